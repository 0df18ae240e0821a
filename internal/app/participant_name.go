package app

import (
	"fmt"

	"github.com/transfa/taxform-service/internal/domain"
)

const (
	maxParticipantNameLength = 64
	maxCompositePartLength   = 30
)

// FormatParticipantName builds the signer name shown by the provider.
func FormatParticipantName(account domain.Account, contact domain.AdminUser) string {
	if account.HasLegalName() {
		return truncate(*account.LegalName, maxParticipantNameLength)
	}
	if account.ID == contact.Profile.ID {
		return truncate(account.Name, maxParticipantNameLength)
	}
	return truncate(fmt.Sprintf("%s (%s)",
		truncate(account.Slug, maxCompositePartLength),
		truncate(contact.Profile.Name, maxCompositePartLength),
	), maxParticipantNameLength)
}

// truncate shortens s to at most max runes, ending with an ellipsis when cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
