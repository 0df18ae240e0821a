/**
 * @description
 * Scheduled job implementations for the taxform-service.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// TaxFormRunner runs one eligibility pass.
type TaxFormRunner interface {
	RunYear(ctx context.Context, year int) (RunResult, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	runner TaxFormRunner
	logger *slog.Logger
	now    func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(runner TaxFormRunner, logger *slog.Logger) *Jobs {
	return &Jobs{
		runner: runner,
		logger: logger,
		now:    time.Now,
	}
}

// ProcessTaxFormRequests requests forms for the fiscal year in progress and,
// during January, for the year that just closed.
func (j *Jobs) ProcessTaxFormRequests() {
	j.logger.Info("starting tax form request job")
	ctx := context.Background()

	for _, year := range j.yearsToProcess() {
		result, err := j.runner.RunYear(ctx, year)
		if errors.Is(err, ErrRunInProgress) {
			j.logger.Info("tax form run already in progress elsewhere", "year", year)
			continue
		}
		if err != nil {
			j.logger.Error("failed to run tax form requests", "year", year, "error", err)
			continue
		}
		j.logger.Info("tax form requests processed", "year", year,
			"eligible", result.Eligible, "requested", result.Requested,
			"skipped", result.Skipped, "failed", result.Failed)
	}

	j.logger.Info("tax form request job finished")
}

func (j *Jobs) yearsToProcess() []int {
	now := j.now().UTC()
	if now.Month() == time.January {
		return []int{now.Year() - 1, now.Year()}
	}
	return []int{now.Year()}
}
