package models

import "time"

// Role values carried by reps.
const (
	RoleRep   = "rep"
	RoleAdmin = "admin"
)

// Rep is an internal team member allowed to sign in.
type Rep struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"is_active"`
	MFAEnabled   bool      `json:"mfa_enabled"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsActive reports whether the rep may authenticate.
func (r *Rep) IsActive() bool {
	return r.Active
}

// RepResponse is the public view of a rep.
type RepResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

func (r *Rep) ToResponse() *RepResponse {
	return &RepResponse{
		ID:       r.ID,
		Username: r.Username,
		Email:    r.Email,
		FullName: r.FullName,
		Role:     r.Role,
	}
}

// Session is a rep session. TokenHash is the SHA-256 of the bearer token
// currently valid for it; rotation replaces it.
type Session struct {
	ID             string    `json:"id"`
	RepID          string    `json:"rep_id"`
	TokenHash      string    `json:"-"`
	Fingerprint    string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	LastRotationAt time.Time `json:"last_rotation_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	MFAVerified    bool      `json:"mfa_verified"`
}

// Activity is one row of the rep activity trail. The client identity is
// stored hashed.
type Activity struct {
	ID             string         `json:"id"`
	RepID          string         `json:"rep_id"`
	Type           string         `json:"activity_type"`
	HashedIdentity string         `json:"hashed_identity"`
	Details        map[string]any `json:"details,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Activity types.
const (
	ActivityLogin       = "login"
	ActivityLogout      = "logout"
	ActivityMFAVerified = "mfa_verified"
	ActivityUnblock     = "unblock"
)

// LoginRequest is the body of POST /api/rep/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Token       string       `json:"token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	CSRFToken   string       `json:"csrf_token"`
	MFARequired bool         `json:"mfa_required"`
	Rep         *RepResponse `json:"rep"`
}

// MFAVerifyRequest is the body of POST /api/rep/mfa/verify.
type MFAVerifyRequest struct {
	Code string `json:"code"`
}

// UnblockRequest is the body of POST /api/security/unblock.
type UnblockRequest struct {
	Identity string `json:"identity"`
}
