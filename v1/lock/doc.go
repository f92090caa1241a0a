// Package lock defines the lock state machine: the authoritative LockState,
// the instructions producers submit and the actions the actuator performs.
//
// ToAction is the single source of truth for transition logic. It is pure
// and total; no other package re-derives which action an instruction needs.
package lock
