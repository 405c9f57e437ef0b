// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It adapts the job service to HTTP: clients submit
// lead generation jobs, poll their status, page through results and download
// them as CSV.
package api
