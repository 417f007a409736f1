// Package kernel applies small dense gates to a local amplitude shard.
//
// A gate acting on k qubits (k <= MaxQubits) is described by a 2^k x 2^k
// Matrix, the shard positions of its k target qubits, and a control mask of
// shard positions that must all be 1 for the gate to act. Diagonal gates take
// a cheaper path that scales amplitudes in place.
//
// Work is split across goroutines once the shard reaches a size threshold;
// each goroutine owns a disjoint range of amplitude groups so no locking is
// needed.
package kernel
