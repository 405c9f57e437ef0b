// Package gemini provides an implementation of the generation.Generator interface
// that uses Google's Gemini API to suggest account targets for a job.
//
// This package is an infrastructure adapter in the hexagonal architecture,
// connecting the worker to Google's Gemini service without exposing the
// details of the external API to the rest of the application.
//
// The model is asked for organizations and roles worth approaching for the
// job's intent. It is never asked for, and the adapter never stores, personal
// names or email addresses: emitted leads carry company, title, source URL
// and confidence only.
//
// Transient API failures are retried with exponential backoff and jitter.
// Safety blocks and malformed responses are permanent and returned at once.
package gemini
