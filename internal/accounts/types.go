package accounts

import "time"

// Account is the tenant that owns credentials, conversations, and messages.
type Account struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email,omitempty"`
	Role          string    `json:"role"`
	CRMLocationID string    `json:"crm_location_id,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateParams describes a new account row.
type CreateParams struct {
	Username string
	Email    string
	Password string
	Role     string
}
