package app

import (
	"context"
	"fmt"

	"github.com/transfa/taxform-service/internal/domain"
)

// TaxFormRequestRoutingKey routes the signature request e-mail.
const TaxFormRequestRoutingKey = "email." + domain.TaxFormRequestTemplate

// SendRequestEmail hands the "please sign" e-mail to the notification pipeline.
func (s *TaxFormService) SendRequestEmail(ctx context.Context, email string, payload domain.TaxFormRequestEmail) error {
	event := domain.EmailEvent{
		Template:  domain.TaxFormRequestTemplate,
		Recipient: email,
		Data:      payload,
	}
	if err := s.publisher.Publish(ctx, s.opts.NotificationExchange, TaxFormRequestRoutingKey, event); err != nil {
		return fmt.Errorf("failed to publish tax form request email: %w", err)
	}
	return nil
}
