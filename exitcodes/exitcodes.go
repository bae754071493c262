// Package exitcodes defines the exit codes used by the one-shot run command.
package exitcodes

// Exit code constants used by `op-cyrunner run`:
//
// * Success (0): the report was produced and no spec failed
// * TestFailure (1): the report shows failures, or the tool reported a failure
// * RuntimeErr (2): the work area could not be staged or the tool could not run
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
