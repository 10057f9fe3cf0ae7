// Package testutil holds helpers shared by tests and the scenario harness:
// a settable wall clock, a fixed session id generator and a result recorder.
package testutil
