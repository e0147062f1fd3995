package auth

import "time"

type Role string

const (
	RoleParty    Role = "party"
	RoleMediator Role = "mediator"
	RoleAdmin    Role = "admin"
)

// Principal is an account that can sign in. Its ID is the ledger identity
// used as the caller of resolution operations.
type Principal struct {
	ID           string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains principal registration data supplied by callers.
type RegisterRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// LoginRequest contains principal login credentials.
type LoginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}
