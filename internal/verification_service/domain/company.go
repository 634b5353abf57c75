package domain

import (
	"time"

	"github.com/google/uuid"
)

// CompanyConfig is the owning company's cached messaging-platform
// configuration. It is owned by the company subsystem; the verification
// subsystem reads it and writes back exactly one field, PhoneNumberID, once
// a registration has assigned one.
type CompanyConfig struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	PhoneNumber       string    `json:"phone_number"`
	BusinessAccountID string    `json:"business_account_id"`
	AccessToken       string    `json:"-"`
	PhoneNumberID     *string   `json:"phone_number_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
