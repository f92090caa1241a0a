// Package sensors holds the two hardware producers of lock instructions: a
// debounced push button that reverses the lock, and an ultrasonic ranger
// whose readings drive a proximity auto-lock policy. Both submit through an
// arbiter.Submitter and treat ErrBusy as a dropped instruction.
package sensors
