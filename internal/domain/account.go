/**
 * @description
 * Domain models for the accounts that receive payouts and the admin users
 * who can sign tax forms on their behalf.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountType distinguishes natural persons from organizations.
type AccountType string

const (
	AccountTypeUser         AccountType = "USER"
	AccountTypeOrganization AccountType = "ORGANIZATION"
	AccountTypeCollective   AccountType = "COLLECTIVE"
)

// Account is a payee that may need a tax form.
type Account struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	LegalName *string     `json:"legal_name,omitempty"`
	Slug      string      `json:"slug"`
	Type      AccountType `json:"type"`
	Admins    []AdminUser `json:"admins,omitempty"`

	// Document is the existing US tax form for the year being evaluated, if any.
	Document *LegalDocument `json:"-"`
}

// HasLegalName reports whether a non-blank legal name is set.
func (a Account) HasLegalName() bool {
	return a.LegalName != nil && *a.LegalName != ""
}

// Profile is the personal account attached to a user.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	LegalName *string   `json:"legal_name,omitempty"`
}

// AdminUser is a user holding the ADMIN role on an account.
type AdminUser struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
}
