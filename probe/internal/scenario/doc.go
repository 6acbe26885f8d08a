// Package scenario holds the probe's boundary-case catalog and the driver
// that runs it.
//
// A Scenario builds one report; the Driver marshals it, sends it once to the
// target, and compares the status with the scenario's expectation (200 unless
// overridden). Every outcome becomes a Result, including build errors and
// panics, and the Driver always moves on to the next scenario. The Summary
// returned by Run is the only place failures are reported; nothing is
// swallowed.
//
// Scenarios are independent and run strictly in order on the calling
// goroutine.
package scenario
