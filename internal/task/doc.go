// Package task runs lead generation jobs in the background.
//
// A WorkerPool reads dispatch messages from a queue.Consumer and hands each
// job id to a JobProcessor, which drives the job through
// pending → processing → completed|failed using the store's compare-and-swap.
// Because that first transition succeeds only once per job, redelivered
// messages are harmless: the duplicate sees the CAS fail and is acknowledged.
//
// StuckJobMonitor and RecoverPending are maintenance helpers run alongside
// the pool at startup.
package task
