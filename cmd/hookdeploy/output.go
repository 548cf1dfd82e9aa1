package main

import (
	"fmt"
	"io"
	"time"

	"hookdeploy/internal/deployment"

	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen, color.Bold)
	colorWarning = color.New(color.FgYellow, color.Bold)
	colorFailed  = color.New(color.FgRed, color.Bold)
	colorSkipped = color.New(color.Faint)
)

func outcomeColor(outcome string) *color.Color {
	switch outcome {
	case string(deployment.OutcomeSuccess):
		return colorSuccess
	case string(deployment.OutcomeWarning):
		return colorWarning
	case string(deployment.OutcomeFailed):
		return colorFailed
	default:
		return colorSkipped
	}
}

// printRun writes one line per step followed by the overall result.
func printRun(w io.Writer, run *deployment.Run) {
	fmt.Fprintf(w, "Deployment %s of branch %s\n", run.ID, run.Branch)

	for _, step := range run.Steps {
		label := outcomeColor(string(step.Outcome)).Sprintf("[%s]", step.Outcome)
		fmt.Fprintf(w, "  %-9s %-10s %s\n", step.Name, label, step.Duration.Round(time.Millisecond))
		if step.Detail != "" && step.Outcome != deployment.OutcomeSuccess {
			fmt.Fprintf(w, "            %s\n", indent(step.Detail))
		}
	}

	if run.Readiness != nil {
		fmt.Fprintf(w, "  readiness: %s after %d attempt(s)\n", run.Readiness.Outcome, run.Readiness.Attempts)
	}

	status := run.Status()
	fmt.Fprintf(w, "Result: %s in %s\n", outcomeColor(status).Sprint(status), run.Duration().Round(time.Millisecond))
}

func indent(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, s[i])
		if s[i] == '\n' && i < len(s)-1 {
			out = append(out, "            "...)
		}
	}
	return string(out)
}
