package healthcheck

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func staticChecker(id, status string) Checker {
	return CheckerFunc(func(_ context.Context) CheckResult {
		return CheckResult{ID: id, Status: status}
	})
}

func TestRunAllHealthy(t *testing.T) {
	svc := NewService(slog.Default(),
		staticChecker("database", StatusOK),
		staticChecker("crm", StatusOK))

	report := svc.Run(context.Background())

	assert.Equal(t, StatusOK, report.Status)
	assert.Len(t, report.Checks, 2)
}

func TestRunWorstStatusWins(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"warn dominates ok", []string{StatusOK, StatusWarn}, StatusWarn},
		{"error dominates warn", []string{StatusWarn, StatusError, StatusOK}, StatusError},
		{"empty report is ok", nil, StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var checkers []Checker
			for _, status := range tt.statuses {
				checkers = append(checkers, staticChecker("c", status))
			}
			report := NewService(slog.Default(), checkers...).Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
		})
	}
}

func TestProviderConfigChecker(t *testing.T) {
	assert.Equal(t, StatusOK, ProviderConfigChecker("crm", true).Check(context.Background()).Status)
	assert.Equal(t, StatusWarn, ProviderConfigChecker("docs", false).Check(context.Background()).Status)
}
