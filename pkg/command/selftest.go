package command

import (
	"context"
	"fmt"
)

// Outcome is the result of one fixture invocation.
type Outcome struct {
	Name   string  `json:"name"`
	OK     bool    `json:"ok"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Summary lists fixture names by verdict.
type Summary struct {
	Passed []string `json:"passed"`
	Failed []string `json:"failed"`
}

// Report aggregates a module's fixture run. OK is true only when every
// fixture passed.
type Report struct {
	OK      bool      `json:"ok"`
	Summary Summary   `json:"summary"`
	Tests   []Outcome `json:"tests"`
}

// RunSuite executes every fixture of m in declaration order. A fixture that
// returns an error or panics is recorded as failed and the run continues.
func RunSuite(ctx context.Context, m Module) Report {
	target := m
	if sb, ok := m.(Sandboxer); ok {
		sandboxed, err := sb.Sandbox(ctx)
		if err != nil {
			return summarize([]Outcome{{Name: "sandbox", Error: fmt.Sprintf("prepare sandbox: %v", err)}})
		}
		target = sandboxed
	}

	fixtures := m.Fixtures()
	outcomes := make([]Outcome, 0, len(fixtures))
	for _, f := range fixtures {
		outcomes = append(outcomes, runFixture(ctx, target, f))
	}
	return summarize(outcomes)
}

// RunAll runs every registered module's suite, keyed by module name.
func RunAll(ctx context.Context, r *Registry) map[string]Report {
	out := make(map[string]Report, len(r.modules))
	for _, name := range r.Names() {
		out[name] = RunSuite(ctx, r.modules[name])
	}
	return out
}

func runFixture(ctx context.Context, m Module, f Fixture) Outcome {
	res, err := Invoke(ctx, m, f.Name, f.Payload.Without())
	if err != nil {
		return Outcome{Name: f.Name, Error: err.Error()}
	}
	return Outcome{Name: f.Name, OK: res.OK, Result: &res}
}

func summarize(outcomes []Outcome) Report {
	report := Report{
		OK:      true,
		Summary: Summary{Passed: []string{}, Failed: []string{}},
		Tests:   outcomes,
	}
	for _, o := range outcomes {
		if o.OK {
			report.Summary.Passed = append(report.Summary.Passed, o.Name)
		} else {
			report.OK = false
			report.Summary.Failed = append(report.Summary.Failed, o.Name)
		}
	}
	return report
}
