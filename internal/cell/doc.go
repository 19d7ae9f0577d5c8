// Package cell provides the single-owner execution primitive the workloads are
// written against. A Cell holds mutable state that is only ever touched inside
// an operation scheduled with When, When2 or WhenAll. Operations are
// asynchronous: scheduling returns immediately and the body runs later, exactly
// once, with exclusive access to every cell it names. Operations that share a
// cell run in the order they were scheduled.
//
// Multi-cell operations acquire their cells all together or not at all. Cells
// are enqueued in ascending identity order while every cell's queue is locked,
// so two overlapping operations are ordered the same way on every cell they
// share and can never wait on each other.
package cell
