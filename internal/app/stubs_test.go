package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/taxform-service/internal/domain"
)

type savedStatus struct {
	accountID uuid.UUID
	year      int
	status    domain.RequestStatus
	data      map[string]any
}

type repoStub struct {
	totals       []domain.PayoutTotals
	totalsErr    error
	accounts     []domain.Account
	loadCalls    int
	loadedIDs    []uuid.UUID
	admins       map[uuid.UUID][]domain.AdminUser
	requester    uuid.UUID
	hasRequester bool
	saved        []savedStatus
	saveErrFor   map[domain.RequestStatus]error
}

func (s *repoStub) PayoutTotals(ctx context.Context, year int) ([]domain.PayoutTotals, error) {
	return s.totals, s.totalsErr
}

func (s *repoStub) LoadAccountsWithDocuments(ctx context.Context, ids []uuid.UUID, year int) ([]domain.Account, error) {
	s.loadCalls++
	s.loadedIDs = ids
	return s.accounts, nil
}

func (s *repoStub) ListAccountAdmins(ctx context.Context, accountID uuid.UUID) ([]domain.AdminUser, error) {
	return s.admins[accountID], nil
}

func (s *repoStub) LatestExpenseRequester(ctx context.Context, accountID uuid.UUID, userIDs []uuid.UUID) (uuid.UUID, bool, error) {
	if !s.hasRequester {
		return uuid.Nil, false, nil
	}
	for _, id := range userIDs {
		if id == s.requester {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (s *repoStub) SaveStatus(ctx context.Context, accountID uuid.UUID, year int, status domain.RequestStatus, data map[string]any) (*domain.LegalDocument, error) {
	if err := s.saveErrFor[status]; err != nil {
		return nil, err
	}
	s.saved = append(s.saved, savedStatus{accountID: accountID, year: year, status: status, data: data})
	return &domain.LegalDocument{AccountID: accountID, Year: year, RequestStatus: status}, nil
}

type workflowStub struct {
	instance  *domain.WorkflowInstance
	createErr error
	link      string
	linkErr   error
	requests  []domain.CreateWorkflowRequest
}

func (s *workflowStub) CreateInstance(ctx context.Context, req domain.CreateWorkflowRequest) (*domain.WorkflowInstance, error) {
	s.requests = append(s.requests, req)
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.instance, nil
}

func (s *workflowStub) GetAuthenticatedLink(ctx context.Context, instanceID, step string) (string, error) {
	if s.linkErr != nil {
		return "", s.linkErr
	}
	return s.link, nil
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type publisherStub struct {
	events []publishedEvent
	err    error
}

func (s *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

type lockStub struct {
	held     bool
	released bool
}

func (s *lockStub) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	if s.held {
		return "", false, nil
	}
	s.held = true
	return "token", true, nil
}

func (s *lockStub) Release(ctx context.Context, name, token string) error {
	if token != "token" {
		return errors.New("wrong token")
	}
	s.held = false
	s.released = true
	return nil
}

func newTestService(repo *repoStub, workflow *workflowStub, publisher *publisherStub, lock RunLock, opts Options) *TaxFormService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Thresholds == (domain.Thresholds{}) {
		opts.Thresholds = domain.DefaultThresholds()
	}
	return NewTaxFormService(repo, workflow, publisher, lock, nil, logger, opts)
}

func admin(email, profileName string) domain.AdminUser {
	return domain.AdminUser{
		ID:      uuid.New(),
		Email:   email,
		Profile: domain.Profile{ID: uuid.New(), Name: profileName},
	}
}

func strPtr(s string) *string { return &s }
