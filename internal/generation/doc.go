// Package generation defines the boundary between the job worker and whatever
// produces leads. A Generator streams leads for a Request through an EmitFunc
// so the worker can persist them and report progress as they arrive.
//
// Two built-in implementations live here: Placeholder, which always reports
// ErrNotImplemented, and Sample, which emits deterministic example.com records
// for demos and tests. The LLM-backed generator lives in platform/gemini.
package generation
