// Package actuator turns a lock.Action into physical motion: it sets the
// indicator LEDs and steps a 4-phase stepper motor through the direction's
// phase table using a timing profile with optional acceleration.
//
// An Actuator is owned by a single caller and performs no locking.
package actuator
