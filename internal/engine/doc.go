// Package engine holds the assignment and capacity rules for instructor
// bindings and student placements. It performs no I/O: callers load the
// current state, ask the engine for a decision and commit the result inside
// one atomic unit.
package engine
