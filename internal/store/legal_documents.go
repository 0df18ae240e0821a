package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/transfa/taxform-service/internal/domain"
)

const legalDocumentColumns = `id::text, account_id::text, year, document_type, request_status, data, created_at, updated_at`

// documentRow mirrors a legal_documents row. Fields are pointers so the same
// scan target works for LEFT JOINs.
type documentRow struct {
	id            *string
	accountID     string
	year          *int
	documentType  *string
	requestStatus *string
	data          []byte
	createdAt     *time.Time
	updatedAt     *time.Time
}

func (row *documentRow) scanTargets() []any {
	return []any{&row.id, &row.accountID, &row.year, &row.documentType, &row.requestStatus, &row.data, &row.createdAt, &row.updatedAt}
}

func (row documentRow) toDomain() (*domain.LegalDocument, error) {
	if row.id == nil {
		return nil, ErrDocumentNotFound
	}
	doc := &domain.LegalDocument{Data: map[string]any{}}

	var err error
	if doc.ID, err = uuid.Parse(*row.id); err != nil {
		return nil, fmt.Errorf("parse document id %q: %w", *row.id, err)
	}
	if doc.AccountID, err = uuid.Parse(row.accountID); err != nil {
		return nil, fmt.Errorf("parse document account id %q: %w", row.accountID, err)
	}
	if row.year != nil {
		doc.Year = *row.year
	}
	if row.documentType != nil {
		doc.DocumentType = domain.DocumentType(*row.documentType)
	}
	if row.requestStatus != nil {
		doc.RequestStatus = domain.RequestStatus(*row.requestStatus)
	}
	if row.createdAt != nil {
		doc.CreatedAt = *row.createdAt
	}
	if row.updatedAt != nil {
		doc.UpdatedAt = *row.updatedAt
	}
	if len(row.data) > 0 {
		if err := json.Unmarshal(row.data, &doc.Data); err != nil {
			return nil, fmt.Errorf("decode document data: %w", err)
		}
		if doc.Data == nil {
			doc.Data = map[string]any{}
		}
	}
	return doc, nil
}

// FindDocument returns the US tax form of an account for a year.
func (r *Repository) FindDocument(ctx context.Context, accountID uuid.UUID, year int) (*domain.LegalDocument, error) {
	query := `SELECT ` + legalDocumentColumns + `
		FROM legal_documents
		WHERE account_id = $1::uuid AND year = $2 AND document_type = $3`

	row := &documentRow{}
	err := r.db.QueryRow(ctx, query, accountID.String(), year, string(domain.DocumentTypeUSTaxForm)).Scan(row.scanTargets()...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("find legal document: %w", err)
	}
	return row.toDomain()
}

// SaveStatus finds or creates the US tax form of an account for a year, then
// sets its status and merges data into the stored payload. Nested objects are
// merged key by key; arrays and scalars are replaced.
func (r *Repository) SaveStatus(ctx context.Context, accountID uuid.UUID, year int, status domain.RequestStatus, data map[string]any) (*domain.LegalDocument, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid request status %q", status)
	}
	incoming, err := normalizeData(data)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	docType := string(domain.DocumentTypeUSTaxForm)
	insert := `
		INSERT INTO legal_documents (id, account_id, year, document_type, request_status, data)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, '{}'::jsonb)
		ON CONFLICT (account_id, year, document_type) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insert, uuid.NewString(), accountID.String(), year, docType, string(domain.RequestStatusNotRequested)); err != nil {
		return nil, fmt.Errorf("create legal document: %w", err)
	}

	lock := `SELECT ` + legalDocumentColumns + `
		FROM legal_documents
		WHERE account_id = $1::uuid AND year = $2 AND document_type = $3
		FOR UPDATE`
	current := &documentRow{}
	if err := tx.QueryRow(ctx, lock, accountID.String(), year, docType).Scan(current.scanTargets()...); err != nil {
		return nil, fmt.Errorf("lock legal document: %w", err)
	}
	existing, err := current.toDomain()
	if err != nil {
		return nil, err
	}

	merged, err := json.Marshal(MergeData(existing.Data, incoming))
	if err != nil {
		return nil, fmt.Errorf("encode document data: %w", err)
	}

	update := `
		UPDATE legal_documents
		SET request_status = $1,
		    data = $2::jsonb,
		    updated_at = NOW()
		WHERE id = $3::uuid
		RETURNING ` + legalDocumentColumns
	saved := &documentRow{}
	if err := tx.QueryRow(ctx, update, string(status), string(merged), existing.ID.String()).Scan(saved.scanTargets()...); err != nil {
		return nil, fmt.Errorf("update legal document: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return saved.toDomain()
}
