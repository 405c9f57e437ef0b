// Package store defines the persistence contracts for jobs, leads, and owners.
// The job store is the single source of truth for job state; the dispatcher
// and workers coordinate exclusively through its compare-and-swap Transition.
package store
