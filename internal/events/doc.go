// Package events publishes job lifecycle notifications.
//
// The worker emits a JobEvent whenever a job starts, completes or fails.
// Handlers registered on an EventEmitter receive every event; they are
// observers only and never influence the job's state.
package events
