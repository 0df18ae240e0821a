/**
 * @description
 * Legal document lifecycle records. One record exists per
 * (account, year, document type) and is never deleted by this service.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DocumentType is the kind of legal document being requested.
type DocumentType string

const DocumentTypeUSTaxForm DocumentType = "US_TAX_FORM"

// RequestStatus is the lifecycle state of a legal document request.
type RequestStatus string

const (
	RequestStatusNotRequested RequestStatus = "NOT_REQUESTED"
	RequestStatusRequested    RequestStatus = "REQUESTED"
	RequestStatusReceived     RequestStatus = "RECEIVED"
	RequestStatusError        RequestStatus = "ERROR"
)

// Valid reports whether s is one of the known statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusNotRequested, RequestStatusRequested, RequestStatusReceived, RequestStatusError:
		return true
	}
	return false
}

// LegalDocument is the persisted request lifecycle for one account and year.
type LegalDocument struct {
	ID            uuid.UUID      `json:"id"`
	AccountID     uuid.UUID      `json:"account_id"`
	Year          int            `json:"year"`
	DocumentType  DocumentType   `json:"document_type"`
	RequestStatus RequestStatus  `json:"request_status"`
	Data          map[string]any `json:"data"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ShouldBeRequested reports whether an existing document warrants a new
// request: always after an ERROR, and for NOT_REQUESTED records once they have
// been idle for at least notRequestedAfter.
func (d LegalDocument) ShouldBeRequested(now time.Time, notRequestedAfter time.Duration) bool {
	switch d.RequestStatus {
	case RequestStatusError:
		return true
	case RequestStatusNotRequested:
		return !now.Before(d.UpdatedAt.Add(notRequestedAfter))
	default:
		return false
	}
}
