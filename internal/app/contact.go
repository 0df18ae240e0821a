package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/transfa/taxform-service/internal/domain"
)

// ResolveContact picks the admin who should sign the account's tax form.
// It returns nil when no admin may be contacted. The second value holds every
// admin that passed the recipient policy.
//
// With several candidates the one who most recently submitted an expense to
// the account wins; otherwise the earliest admin membership does.
func (s *TaxFormService) ResolveContact(ctx context.Context, account domain.Account) (*domain.AdminUser, []domain.AdminUser, error) {
	admins := account.Admins
	if admins == nil {
		var err error
		admins, err = s.repo.ListAccountAdmins(ctx, account.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list admins: %w", err)
		}
	}

	allowed := make([]domain.AdminUser, 0, len(admins))
	for _, admin := range admins {
		if !s.opts.AllowedRecipient(admin.Email) {
			s.logger.Info("admin filtered out by recipient policy", "account_id", account.ID, "user_id", admin.ID)
			continue
		}
		allowed = append(allowed, admin)
	}

	switch len(allowed) {
	case 0:
		return nil, allowed, nil
	case 1:
		return &allowed[0], allowed, nil
	}

	ids := make([]uuid.UUID, len(allowed))
	for i, admin := range allowed {
		ids[i] = admin.ID
	}
	requesterID, found, err := s.repo.LatestExpenseRequester(ctx, account.ID, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find latest expense requester: %w", err)
	}
	if found {
		for i := range allowed {
			if allowed[i].ID == requesterID {
				return &allowed[i], allowed, nil
			}
		}
	}
	return &allowed[0], allowed, nil
}
