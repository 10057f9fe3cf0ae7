// Package harness runs scripted history sessions for conformance testing.
//
// A Scenario seeds a fresh in-memory store, pins the wall clock and the
// session id, and runs a list of steps through a real session bound to the
// simulated server. Every step waits for its request to complete, so the
// resulting trace is deterministic and can be compared byte for byte
// against a golden file:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/raw_paging.yaml")
//	result, err := harness.RunWithGolden(t, scenario)
//
// Assertions check the trace (trace_contains, trace_order, trace_count)
// and the final store content (final_values).
//
// Subscriptions (advise, playback) are not scriptable: their delivery
// timing depends on the wall clock of the server's ticker.
package harness
