package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Owner is the party that submitted a job. Authentication is handled elsewhere;
// the service only needs a stable identity to attribute jobs to.
type Owner struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewOwner creates an Owner with the given identity.
func NewOwner(id uuid.UUID, email, fullName string) (*Owner, error) {
	owner := &Owner{
		ID:        id,
		Email:     strings.TrimSpace(email),
		FullName:  OptionalString(fullName),
		CreatedAt: time.Now().UTC(),
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return owner, nil
}

// Validate checks if the Owner has valid data.
func (o *Owner) Validate() error {
	if o.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty")
	}
	if o.Email == "" {
		return NewValidationError("email", "cannot be empty")
	}
	if !validateEmailFormat(o.Email) {
		return NewValidationError("email", "invalid email format")
	}
	return nil
}

// validateEmailFormat requires a non-empty local part and a dotted domain.
func validateEmailFormat(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domainPart := email[at+1:]
	dot := strings.LastIndexByte(domainPart, '.')
	return dot > 0 && dot < len(domainPart)-1 && !strings.ContainsAny(email, " \t\r\n")
}
