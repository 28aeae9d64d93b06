package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/loykin/medassist/internal/metrics"
)

// CheckResult records what happened to one check.
type CheckResult struct {
	Name     string
	Title    string
	Outcome  Outcome
	Message  string
	Details  []string
	Duration time.Duration
}

// Summary aggregates a run.
type Summary struct {
	Results []CheckResult
	// Halted is set when a fatal check failed and the remaining checks were skipped.
	Halted bool
}

func (s Summary) count(o Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

func (s Summary) Passed() int { return s.count(Pass) }
func (s Summary) Warned() int { return s.count(Warn) }
func (s Summary) Failed() int { return s.count(Fail) }

// Clean reports whether every check ran and passed.
func (s Summary) Clean() bool {
	return !s.Halted && s.Warned() == 0 && s.Failed() == 0
}

type Runner struct {
	client *Client
	checks []Check
	out    io.Writer
	logger *slog.Logger
}

// NewRunner returns a runner executing checks strictly in order and printing
// the human-readable report to out.
func NewRunner(client *Client, checks []Check, out io.Writer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{client: client, checks: checks, out: out, logger: logger}
}

// Run executes the checks one after another. A failed fatal check stops the run.
func (r *Runner) Run(ctx context.Context) Summary {
	r.printf("MedAssistBot Integration Test Suite\n%s\n", strings.Repeat("=", 50))
	var sum Summary
	for i, c := range r.checks {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("probe run cancelled", "error", err)
			sum.Halted = true
			break
		}
		r.printf("\n%d. %s...\n", i+1, c.Title)
		res := r.runCheck(ctx, c)
		sum.Results = append(sum.Results, res)
		r.report(res)
		if res.Outcome == Fail && c.Fatal {
			r.printf("\nStopping: %s is required for the remaining checks.\n", c.Name)
			sum.Halted = true
			break
		}
	}
	r.printSummary(sum)
	return sum
}

func (r *Runner) runCheck(ctx context.Context, c Check) (res CheckResult) {
	res = CheckResult{Name: c.Name, Title: c.Title}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		metrics.ObserveProbeDuration(c.Name, res.Duration.Seconds())
		metrics.IncProbeResult(c.Name, string(res.Outcome))
		r.logger.Debug("probe check", "check", c.Name, "outcome", res.Outcome, "duration", res.Duration)
	}()

	result := r.client.Call(ctx, c.Method, c.Path, c.Body)
	if !result.OK {
		res.Outcome = Fail
		res.Message = fmt.Sprintf("%s request failed: %s", c.Name, result.Err)
		return res
	}
	v := evaluate(c, result.Payload)
	res.Outcome, res.Message, res.Details = v.Outcome, v.Message, v.Details
	return res
}

// evaluate shields the run from a predicate that panics on unexpected payloads.
func evaluate(c Check, payload map[string]any) (v Verdict) {
	defer func() {
		if rec := recover(); rec != nil {
			v = Verdict{Outcome: Warn, Message: fmt.Sprintf("could not evaluate response: %v", rec)}
		}
	}()
	if c.Evaluate == nil {
		return Verdict{Outcome: Pass, Message: c.Title + " responded"}
	}
	return c.Evaluate(payload)
}

func (r *Runner) report(res CheckResult) {
	r.printf("%s %s\n", marker(res.Outcome), res.Message)
	for _, d := range res.Details {
		r.printf("   %s\n", d)
	}
}

func (r *Runner) printSummary(s Summary) {
	line := strings.Repeat("=", 50)
	r.printf("\n%s\nIntegration Test Summary\n%s\n", line, line)
	for _, res := range s.Results {
		r.printf("%s %-14s %s\n", marker(res.Outcome), res.Name, res.Outcome)
	}
	skipped := len(r.checks) - len(s.Results)
	r.printf("\nPassed: %d  Warnings: %d  Failed: %d  Skipped: %d\n", s.Passed(), s.Warned(), s.Failed(), skipped)

	r.printf("\nNext steps:\n")
	r.printf("1. Start the backend: medassist start (or uvicorn app:app --reload --host 0.0.0.0 --port 8000)\n")
	r.printf("2. Open the UI files in a web browser\n")
	r.printf("3. Test the chat interface\n")
	r.printf("4. Check the dashboard for analytics\n")
}

func (r *Runner) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func marker(o Outcome) string {
	switch o {
	case Pass:
		return "✓"
	case Warn:
		return "!"
	default:
		return "✗"
	}
}
