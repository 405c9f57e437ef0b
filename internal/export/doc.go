// Package export renders a job's leads as CSV.
//
// Leads are read one page at a time and each page is serialized before the
// next is fetched, so memory use is bounded by the page size regardless of
// how many leads a job has.
package export
