package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/transfa/taxform-service/internal/domain"
)

// FindAccountsNeedingForm returns the accounts whose payouts for year cross a
// threshold and that have no tax form yet, or one that should be requested
// again. A year of 0 considers all years.
func (s *TaxFormService) FindAccountsNeedingForm(ctx context.Context, year int) ([]domain.Account, error) {
	totals, err := s.repo.PayoutTotals(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate payouts: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(totals))
	for _, t := range totals {
		if s.opts.Thresholds.RequiresForm(t.RailAmount, t.OtherAmount) {
			ids = append(ids, t.AccountID)
		}
	}
	if len(ids) == 0 {
		return []domain.Account{}, nil
	}

	accounts, err := s.repo.LoadAccountsWithDocuments(ctx, ids, year)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	now := s.now()
	eligible := make([]domain.Account, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Document == nil || acc.Document.ShouldBeRequested(now, s.opts.NotRequestedAfter) {
			eligible = append(eligible, acc)
		}
	}
	return eligible, nil
}
