package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/transfa/taxform-service/internal/domain"
	"github.com/transfa/taxform-service/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrRunInProgress is returned when another replica holds the run lock for a year.
	ErrRunInProgress = errors.New("tax form run already in progress")
	// ErrInvalidYear is returned for a year that cannot key a tax form.
	ErrInvalidYear = errors.New("tax form year must be positive")
)

// RunResult summarizes one eligibility pass.
type RunResult struct {
	Year      int `json:"year"`
	Eligible  int `json:"eligible"`
	Requested int `json:"requested"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// errSkipped marks a flow that ended without contacting anyone.
var errSkipped = errors.New("no contact")

// RequestTaxForm drives the signature request for one account and year.
// Accounts without a reachable admin are skipped and return nil. Any failure
// once the contact is known is recorded on the document as ERROR.
func (s *TaxFormService) RequestTaxForm(ctx context.Context, account domain.Account, year int) error {
	if year <= 0 {
		return ErrInvalidYear
	}
	_, err := s.request(ctx, account, year)
	return err
}

func (s *TaxFormService) request(ctx context.Context, account domain.Account, year int) (string, error) {
	ctx, span := s.tracer.Start(ctx, "taxform.request",
		trace.WithAttributes(
			attribute.String("account.id", account.ID.String()),
			attribute.Int("tax_form.year", year),
		),
	)
	defer span.End()

	start := time.Now()
	outcome := metrics.OutcomeRequested
	err := s.requestTaxForm(ctx, account, year)
	switch {
	case errors.Is(err, errSkipped):
		outcome, err = metrics.OutcomeSkipped, nil
	case err != nil:
		outcome = metrics.OutcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("tax_form.outcome", outcome))
	s.metrics.ObserveRequest(outcome, time.Since(start))
	return outcome, err
}

func (s *TaxFormService) requestTaxForm(ctx context.Context, account domain.Account, year int) error {
	logger := s.logger.With("account_id", account.ID, "year", year)

	contact, admins, err := s.ResolveContact(ctx, account)
	if err != nil {
		logger.Error("failed to resolve tax form contact", "error", err)
		return err
	}
	if contact == nil {
		logger.Warn("no admin can be contacted for tax form, skipping", "slug", account.Slug)
		return errSkipped
	}

	if err := s.sendRequest(ctx, account, *contact, admins, year); err != nil {
		logger.Error("tax form request failed", "user_id", contact.ID, "error", err)
		return s.recordFailure(ctx, account, year, err)
	}

	logger.Info("tax form requested", "user_id", contact.ID)
	return nil
}

func (s *TaxFormService) sendRequest(ctx context.Context, account domain.Account, contact domain.AdminUser, admins []domain.AdminUser, year int) error {
	participantName := FormatParticipantName(account, contact)

	instance, err := s.workflow.CreateInstance(ctx, domain.CreateWorkflowRequest{
		CallbackURL:   s.opts.CallbackURL,
		WorkflowID:    s.opts.WorkflowID,
		ParticipantID: s.opts.ParticipantID,
		Participant: domain.WorkflowParticipant{
			Type:     "email",
			Value:    contact.Email,
			FullName: participantName,
		},
		Metadata: workflowMetadata(account, contact, admins, year),
	})
	if err != nil {
		return fmt.Errorf("failed to create workflow instance: %w", err)
	}
	if len(instance.Steps) == 0 {
		return fmt.Errorf("workflow instance %s has no steps", instance.ID)
	}

	// Saved before the link fetch so the instance reference survives a crash.
	if _, err := s.repo.SaveStatus(ctx, account.ID, year, domain.RequestStatusRequested, map[string]any{
		"helloWorks": map[string]any{"instance": instance},
	}); err != nil {
		return fmt.Errorf("failed to save requested status: %w", err)
	}

	step := instance.Steps[0]
	documentLink, err := s.workflow.GetAuthenticatedLink(ctx, instance.ID, step.Step)
	if err != nil {
		s.logger.Warn("failed to get authenticated link, using step url",
			"account_id", account.ID, "year", year, "instance_id", instance.ID, "error", err)
		s.metrics.LinkFallback()
		documentLink = step.URL
	}

	if _, err := s.repo.SaveStatus(ctx, account.ID, year, domain.RequestStatusRequested, map[string]any{
		"helloWorks": map[string]any{"documentLink": documentLink},
	}); err != nil {
		return fmt.Errorf("failed to save document link: %w", err)
	}

	return s.SendRequestEmail(ctx, contact.Email, domain.TaxFormRequestEmail{
		DocumentLink:  documentLink,
		RecipientName: contact.Profile.Name,
		AccountName:   accountDisplayName(account),
	})
}

func accountDisplayName(account domain.Account) string {
	if account.HasLegalName() {
		return *account.LegalName
	}
	return account.Name
}

// recordFailure stores cause as ERROR. The stored stack is the one of this
// call, i.e. the request flow that failed, not the origin of cause.
func (s *TaxFormService) recordFailure(ctx context.Context, account domain.Account, year int, cause error) error {
	_, saveErr := s.repo.SaveStatus(ctx, account.ID, year, domain.RequestStatusError, map[string]any{
		"error": map[string]any{
			"message": cause.Error(),
			"stack":   string(debug.Stack()),
		},
	})
	if saveErr != nil {
		s.logger.Error("failed to save tax form error status", "account_id", account.ID, "year", year, "error", saveErr)
		return errors.Join(cause, fmt.Errorf("failed to save error status: %w", saveErr))
	}
	return cause
}

func workflowMetadata(account domain.Account, contact domain.AdminUser, admins []domain.AdminUser, year int) map[string]string {
	emails := make([]string, len(admins))
	for i, admin := range admins {
		emails[i] = admin.Email
	}
	return map[string]string{
		"accountId":   account.ID.String(),
		"accountType": string(account.Type),
		"adminEmails": strings.Join(emails, ","),
		"userId":      contact.ID.String(),
		"email":       contact.Email,
		"year":        strconv.Itoa(year),
	}
}

// RunYear requests tax forms from every eligible account of year, one account
// at a time. A failing account never stops the pass. Unlike the payout
// aggregation, a run always targets one concrete year.
func (s *TaxFormService) RunYear(ctx context.Context, year int) (RunResult, error) {
	result := RunResult{Year: year}
	if year <= 0 {
		return result, ErrInvalidYear
	}

	if s.lock != nil {
		name := "run:" + strconv.Itoa(year)
		token, acquired, err := s.lock.Acquire(ctx, name, s.opts.RunLockTTL)
		if err != nil {
			return result, fmt.Errorf("failed to acquire run lock: %w", err)
		}
		if !acquired {
			return result, ErrRunInProgress
		}
		defer func() {
			if err := s.lock.Release(context.Background(), name, token); err != nil {
				s.logger.Error("failed to release run lock", "year", year, "error", err)
			}
		}()
	}

	ctx, span := s.tracer.Start(ctx, "taxform.run", trace.WithAttributes(attribute.Int("tax_form.year", year)))
	defer span.End()

	accounts, err := s.FindAccountsNeedingForm(ctx, year)
	s.metrics.ObserveRun(strconv.Itoa(year), len(accounts), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	result.Eligible = len(accounts)
	s.logger.Info("accounts needing a tax form", "year", year, "count", len(accounts))

	for _, account := range accounts {
		outcome, _ := s.request(ctx, account, year)
		switch outcome {
		case metrics.OutcomeSkipped:
			result.Skipped++
		case metrics.OutcomeFailed:
			result.Failed++
		default:
			result.Requested++
		}
	}

	s.logger.Info("tax form run finished", "year", result.Year, "eligible", result.Eligible,
		"requested", result.Requested, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}
