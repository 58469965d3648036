// Package testkit is a minimal named-case registration and run-all test
// harness, in the style a freestanding kernel without an OS test runner
// would need, but runnable here as a normal Go test via testkit_test.go's
// thin adapter.
package testkit

import "fmt"

// Case is one named, self-contained assertion function; it returns an
// error on failure rather than panicking, extending the "lower layers
// never panic on bad input" rule to test code.
type Case struct {
	Name string
	Run  func() error
}

// Suite is an ordered collection of registered Cases.
type Suite struct {
	cases []Case
}

// NewSuite constructs an empty suite.
func NewSuite() *Suite { return &Suite{} }

// Register appends a named case to the suite.
func (s *Suite) Register(name string, run func() error) {
	s.cases = append(s.cases, Case{Name: name, Run: run})
}

// Result is one case's outcome.
type Result struct {
	Name string
	Err  error
}

// RunAll executes every registered case in order, continuing past
// failures, and returns one Result per case.
func (s *Suite) RunAll() []Result {
	results := make([]Result, len(s.cases))
	for i, c := range s.cases {
		results[i] = Result{Name: c.Name, Err: safeRun(c.Run)}
	}
	return results
}

// safeRun recovers a panicking case into an error result, since a bare-metal
// harness has no process boundary to isolate a crashing case from the rest
// of the suite.
func safeRun(run func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return run()
}

// Failures filters results down to the failing ones.
func Failures(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
