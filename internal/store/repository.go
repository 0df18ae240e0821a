/**
 * @description
 * This file implements the data access layer for the taxform-service.
 * Accounts, users and expenses are owned by the platform and only read here;
 * legal_documents is the table this service writes.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/taxform-service/internal/domain"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrDocumentNotFound = errors.New("legal document not found")
)

// RailPayoutMethod is the payout method whose totals use the rail threshold.
const RailPayoutMethod = "PAYPAL"

// Repository handles database operations for tax form requests.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// PayoutTotals aggregates paid expenses per payee account, split between the
// rail payout method and everything else. A year of 0 aggregates all years.
func (r *Repository) PayoutTotals(ctx context.Context, year int) ([]domain.PayoutTotals, error) {
	query := `
		SELECT e.account_id::text,
		       COALESCE(SUM(e.amount) FILTER (WHERE e.payout_method_type = $2), 0)::bigint AS rail_amount,
		       COALESCE(SUM(e.amount) FILTER (WHERE e.payout_method_type IS DISTINCT FROM $2), 0)::bigint AS other_amount
		FROM expenses e
		JOIN accounts a ON a.id = e.account_id
		WHERE e.status = 'PAID'
		  AND e.type <> 'RECEIPT'
		  AND e.deleted_at IS NULL
		  AND a.deleted_at IS NULL
		  AND ($1::int = 0 OR EXTRACT(YEAR FROM e.paid_at)::int = $1::int)
		GROUP BY e.account_id
	`
	rows, err := r.db.Query(ctx, query, year, RailPayoutMethod)
	if err != nil {
		return nil, fmt.Errorf("aggregate payouts: %w", err)
	}
	defer rows.Close()

	var totals []domain.PayoutTotals
	for rows.Next() {
		var (
			rawID string
			t     domain.PayoutTotals
		)
		if err := rows.Scan(&rawID, &t.RailAmount, &t.OtherAmount); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("parse account id %q: %w", rawID, err)
		}
		t.AccountID = id
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payout totals: %w", err)
	}
	return totals, nil
}

// LoadAccountsWithDocuments loads the given accounts together with their
// US tax form for year, when one exists.
func (r *Repository) LoadAccountsWithDocuments(ctx context.Context, ids []uuid.UUID, year int) ([]domain.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT a.id::text, a.name, a.legal_name, a.slug, a.type,
		       d.id::text, d.year, d.document_type, d.request_status, d.data, d.created_at, d.updated_at
		FROM accounts a
		LEFT JOIN legal_documents d
		       ON d.account_id = a.id
		      AND d.year = $2
		      AND d.document_type = $3
		WHERE a.id = ANY($1::uuid[])
		ORDER BY a.created_at, a.id
	`
	rows, err := r.db.Query(ctx, query, uuidStrings(ids), year, string(domain.DocumentTypeUSTaxForm))
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var (
			acc         domain.Account
			rawID       string
			accountType string
			doc         documentRow
		)
		if err := rows.Scan(
			&rawID, &acc.Name, &acc.LegalName, &acc.Slug, &accountType,
			&doc.id, &doc.year, &doc.documentType, &doc.requestStatus, &doc.data, &doc.createdAt, &doc.updatedAt,
		); err != nil {
			return nil, err
		}
		if acc.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parse account id %q: %w", rawID, err)
		}
		acc.Type = domain.AccountType(accountType)
		if doc.id != nil {
			doc.accountID = rawID
			d, err := doc.toDomain()
			if err != nil {
				return nil, err
			}
			acc.Document = d
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// FindAccount loads a single account without admins or documents.
func (r *Repository) FindAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var (
		acc         domain.Account
		accountType string
	)
	query := `SELECT name, legal_name, slug, type FROM accounts WHERE id = $1::uuid AND deleted_at IS NULL`
	err := r.db.QueryRow(ctx, query, accountID.String()).Scan(&acc.Name, &acc.LegalName, &acc.Slug, &accountType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	acc.ID = accountID
	acc.Type = domain.AccountType(accountType)
	return &acc, nil
}

// ListAccountAdmins returns the admins of an account in the order the
// membership rows were created.
func (r *Repository) ListAccountAdmins(ctx context.Context, accountID uuid.UUID) ([]domain.AdminUser, error) {
	query := `
		SELECT u.id::text, u.email, u.created_at, p.id::text, p.name, p.legal_name
		FROM account_admins aa
		JOIN users u ON u.id = aa.user_id
		JOIN accounts p ON p.id = u.profile_account_id
		WHERE aa.account_id = $1::uuid
		  AND aa.role = 'ADMIN'
		  AND aa.deleted_at IS NULL
		  AND u.deleted_at IS NULL
		ORDER BY aa.created_at, aa.id
	`
	rows, err := r.db.Query(ctx, query, accountID.String())
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var admins []domain.AdminUser
	for rows.Next() {
		var (
			admin             domain.AdminUser
			userID, profileID string
		)
		if err := rows.Scan(&userID, &admin.Email, &admin.CreatedAt, &profileID, &admin.Profile.Name, &admin.Profile.LegalName); err != nil {
			return nil, err
		}
		if admin.ID, err = uuid.Parse(userID); err != nil {
			return nil, fmt.Errorf("parse user id %q: %w", userID, err)
		}
		if admin.Profile.ID, err = uuid.Parse(profileID); err != nil {
			return nil, fmt.Errorf("parse profile id %q: %w", profileID, err)
		}
		admins = append(admins, admin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admins: %w", err)
	}
	return admins, nil
}

// LatestExpenseRequester returns the requester of the most recently created
// expense paid to accountID among userIDs. The boolean is false when none of
// them ever submitted one.
func (r *Repository) LatestExpenseRequester(ctx context.Context, accountID uuid.UUID, userIDs []uuid.UUID) (uuid.UUID, bool, error) {
	if len(userIDs) == 0 {
		return uuid.Nil, false, nil
	}

	query := `
		SELECT requester_user_id::text
		FROM expenses
		WHERE account_id = $1::uuid
		  AND requester_user_id = ANY($2::uuid[])
		  AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var rawID string
	err := r.db.QueryRow(ctx, query, accountID.String(), uuidStrings(userIDs)).Scan(&rawID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("find latest expense requester: %w", err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("parse requester id %q: %w", rawID, err)
	}
	return id, true, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
