package healthcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Report is the aggregate health snapshot.
type Report struct {
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// Service runs the registered checkers and aggregates their results. The
// overall status is the worst individual status.
type Service struct {
	checkers []Checker
	logger   *slog.Logger
}

func NewService(log *slog.Logger, checkers ...Checker) *Service {
	return &Service{
		checkers: checkers,
		logger:   log.With(slog.String("service", "healthcheck")),
	}
}

// Run evaluates every checker with a bounded deadline.
func (s *Service) Run(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	report := Report{Status: StatusOK}
	for _, checker := range s.checkers {
		result := checker.Check(ctx)
		report.Checks = append(report.Checks, result)
		report.Status = worseOf(report.Status, result.Status)
	}
	return report
}

func worseOf(a, b string) string {
	rank := map[string]int{StatusOK: 0, StatusWarn: 1, StatusError: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// DatabaseChecker pings the connection pool.
func DatabaseChecker(pool *pgxpool.Pool) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		if err := pool.Ping(ctx); err != nil {
			return CheckResult{ID: "database", Status: StatusError, Summary: err.Error()}
		}
		return CheckResult{ID: "database", Status: StatusOK, Summary: "reachable"}
	})
}

// ProviderConfigChecker reports whether a provider integration has its OAuth
// client configured. Missing configuration degrades the feature without
// taking the service down, so it warns rather than errors.
func ProviderConfigChecker(id string, configured bool) Checker {
	return CheckerFunc(func(_ context.Context) CheckResult {
		if !configured {
			return CheckResult{ID: id, Status: StatusWarn, Summary: "oauth client not configured"}
		}
		return CheckResult{ID: id, Status: StatusOK, Summary: "configured"}
	})
}
