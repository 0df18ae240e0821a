/**
 * @description
 * Application layer of the taxform-service. TaxFormService wires the
 * eligibility pass, contact selection, the HelloWorks workflow and the
 * notification hand-off for US tax form requests.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/taxform-service/internal/domain"
	"github.com/transfa/taxform-service/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Repository defines the database operations needed by the service.
type Repository interface {
	PayoutTotals(ctx context.Context, year int) ([]domain.PayoutTotals, error)
	LoadAccountsWithDocuments(ctx context.Context, ids []uuid.UUID, year int) ([]domain.Account, error)
	ListAccountAdmins(ctx context.Context, accountID uuid.UUID) ([]domain.AdminUser, error)
	LatestExpenseRequester(ctx context.Context, accountID uuid.UUID, userIDs []uuid.UUID) (uuid.UUID, bool, error)
	SaveStatus(ctx context.Context, accountID uuid.UUID, year int, status domain.RequestStatus, data map[string]any) (*domain.LegalDocument, error)
}

// WorkflowClient is the e-signature provider.
type WorkflowClient interface {
	CreateInstance(ctx context.Context, req domain.CreateWorkflowRequest) (*domain.WorkflowInstance, error)
	GetAuthenticatedLink(ctx context.Context, instanceID, step string) (string, error)
}

// EventPublisher defines the interface for publishing events to the notification pipeline.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// RunLock keeps two replicas from running the same eligibility pass.
type RunLock interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, acquired bool, err error)
	Release(ctx context.Context, name, token string) error
}

// Options carries the static settings of the service.
type Options struct {
	Thresholds           domain.Thresholds
	NotRequestedAfter    time.Duration
	AllowedRecipient     func(email string) bool
	WorkflowID           string
	ParticipantID        string
	CallbackURL          string
	NotificationExchange string
	RunLockTTL           time.Duration
}

// TaxFormService requests US tax forms from the accounts that need one.
type TaxFormService struct {
	repo      Repository
	workflow  WorkflowClient
	publisher EventPublisher
	lock      RunLock
	metrics   *metrics.TaxFormMetrics
	tracer    trace.Tracer
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
}

// NewTaxFormService creates a new service. lock and m may be nil.
func NewTaxFormService(repo Repository, workflow WorkflowClient, publisher EventPublisher, lock RunLock, m *metrics.TaxFormMetrics, logger *slog.Logger, opts Options) *TaxFormService {
	if opts.AllowedRecipient == nil {
		opts.AllowedRecipient = func(string) bool { return true }
	}
	if opts.NotificationExchange == "" {
		opts.NotificationExchange = "notifications"
	}
	if opts.RunLockTTL <= 0 {
		opts.RunLockTTL = 2 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaxFormService{
		repo:      repo,
		workflow:  workflow,
		publisher: publisher,
		lock:      lock,
		metrics:   m,
		tracer:    otel.Tracer("github.com/transfa/taxform-service/internal/app"),
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}
