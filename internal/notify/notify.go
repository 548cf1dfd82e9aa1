// Package notify reports finished deployment runs to external systems.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hookdeploy/internal/deployment"
)

// Notifier is told about every finished run.
type Notifier interface {
	Notify(ctx context.Context, run *deployment.Run) error
}

// Multi sends each run to every notifier in turn.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, run *deployment.Run) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Headline is a one-line summary of a run.
func Headline(run *deployment.Run) string {
	target := run.Branch
	if run.Repository != "" {
		target = run.Repository + "@" + run.Branch
	}

	if failure := run.Failure(); failure != nil {
		return fmt.Sprintf("Deployment of %s failed at %s", target, failure.Name)
	}
	if n := len(run.Warnings()); n > 0 {
		return fmt.Sprintf("Deployment of %s succeeded with %d warning(s)", target, n)
	}
	return fmt.Sprintf("Deployment of %s succeeded", target)
}

// StepSummary lists every step as "name: outcome", one per line.
func StepSummary(run *deployment.Run) string {
	var b strings.Builder
	for _, s := range run.Steps {
		fmt.Fprintf(&b, "%s: %s\n", s.Name, s.Outcome)
	}
	return strings.TrimRight(b.String(), "\n")
}
