package services

import (
	"context"
	"fmt"
)

// Prober checks that a task collection can be read.
type Prober interface {
	Probe(ctx context.Context) error
}

// SetupReport lists problems that keep the service from working.
type SetupReport struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// CheckSetup combines configuration issues with a probe of the task
// collection.
func CheckSetup(ctx context.Context, configIssues []string, prober Prober, collection string) SetupReport {
	issues := append([]string{}, configIssues...)
	if prober != nil {
		if err := prober.Probe(ctx); err != nil {
			issues = append(issues, fmt.Sprintf("Cannot access tasks collection %q. Please ensure the collection exists with proper permissions.", collection))
		}
	}
	return SetupReport{Valid: len(issues) == 0, Issues: issues}
}
