package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
	"github.com/aryanndesai/FreshFarmMarket/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// PrincipalSummary describes a minimal view of a principal returned by the API.
type PrincipalSummary struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	FullName         string     `json:"full_name"`
	Phone            *string    `json:"phone,omitempty"`
	PhotoRef         *string    `json:"photo_ref,omitempty"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SessionSummary provides a compact view of session context in login responses.
type SessionSummary struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// LoginResponse describes the response returned for a fully authenticated login.
type LoginResponse struct {
	SessionToken string           `json:"session_token"`
	BindingToken string           `json:"binding_token,omitempty"`
	Superseded   int64            `json:"superseded_sessions"`
	Principal    PrincipalSummary `json:"principal"`
	Session      SessionSummary   `json:"session"`
}

// LoginPendingResponse is returned when credentials passed but a further step
// is required before a session exists.
type LoginPendingResponse struct {
	Outcome   string           `json:"outcome"`
	Message   string           `json:"message"`
	Principal PrincipalSummary `json:"principal"`
}

// TwoFactorVerifyRequest carries a one-time login code back to the service.
type TwoFactorVerifyRequest struct {
	PrincipalID string `json:"principal_id" binding:"required"`
	Code        string `json:"code" binding:"required"`
}

// TwoFactorResendRequest asks for a fresh login code for a pending login.
type TwoFactorResendRequest struct {
	PrincipalID string `json:"principal_id" binding:"required"`
}

// RegistrationRequest defines the account registration payload.
type RegistrationRequest struct {
	Email            string `json:"email" binding:"required,email"`
	FullName         string `json:"full_name" binding:"required"`
	Phone            string `json:"phone" binding:"omitempty"`
	PhotoRef         string `json:"photo_ref" binding:"omitempty"`
	Password         string `json:"password" binding:"required"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

// RegistrationResponse contains the created principal.
type RegistrationResponse struct {
	Principal PrincipalSummary `json:"principal"`
	Message   string           `json:"message,omitempty"`
}

// PasswordChangeRequest defines the authenticated password change payload.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ForcedPasswordChangeRequest carries a credential-bearing change demanded
// when a password has expired or was flagged for replacement.
type ForcedPasswordChangeRequest struct {
	Email           string `json:"email" binding:"required"`
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// PasswordChangeResponse summarizes a completed password change.
type PasswordChangeResponse struct {
	Message       string    `json:"message"`
	ChangedAt     time.Time `json:"changed_at"`
	SessionsEnded int64     `json:"sessions_ended"`
}

// PasswordAgeResponse reports where the caller's password sits in its lifetime.
type PasswordAgeResponse struct {
	ChangedAt        time.Time `json:"changed_at"`
	AgeSeconds       int64     `json:"age_seconds"`
	MaxAgeSeconds    int64     `json:"max_age_seconds"`
	Expired          bool      `json:"expired"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

// PasswordResetRequestPayload represents a password reset initiation payload.
type PasswordResetRequestPayload struct {
	Email string `json:"email" binding:"required"`
}

// PasswordResetConfirmRequest captures a password reset confirmation payload.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// SessionPayload describes a session view in API responses.
type SessionPayload struct {
	ID             string     `json:"id"`
	PrincipalID    string     `json:"principal_id"`
	IP             *string    `json:"ip,omitempty"`
	UserAgent      *string    `json:"user_agent,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	Active         bool       `json:"active"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	EndReason      *string    `json:"end_reason,omitempty"`
}

// SessionListResponse wraps the caller's sessions.
type SessionListResponse struct {
	Sessions []SessionPayload `json:"sessions"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// newPrincipalSummary converts a domain principal to a summary suitable for API responses.
func newPrincipalSummary(principal domain.Principal) PrincipalSummary {
	summary := PrincipalSummary{
		ID:               principal.ID,
		Email:            principal.Email,
		FullName:         principal.FullName,
		TwoFactorEnabled: principal.TwoFactorEnabled,
		CreatedAt:        principal.CreatedAt,
		LastLogin:        principal.LastLogin,
	}

	if principal.Phone != nil {
		phone := strings.TrimSpace(*principal.Phone)
		if phone != "" {
			summary.Phone = &phone
		}
	}

	if principal.PhotoRef != nil {
		summary.PhotoRef = principal.PhotoRef
	}

	return summary
}

// newSessionPayload converts a domain session to an API session payload.
func newSessionPayload(session domain.Session) SessionPayload {
	return SessionPayload{
		ID:             session.ID,
		PrincipalID:    session.PrincipalID,
		IP:             session.IP,
		UserAgent:      session.UserAgent,
		CreatedAt:      session.CreatedAt,
		LastActivityAt: session.LastActivityAt,
		Active:         session.Active,
		EndedAt:        session.EndedAt,
		EndReason:      session.EndReason,
	}
}

func newSessionSummary(session domain.Session) SessionSummary {
	return SessionSummary{
		ID:             session.ID,
		CreatedAt:      session.CreatedAt,
		LastActivityAt: session.LastActivityAt,
	}
}

func newLoginResponse(result *usecase.LoginResult) LoginResponse {
	resp := LoginResponse{
		Principal: newPrincipalSummary(result.Principal),
	}

	if result.Session != nil {
		resp.SessionToken = result.Session.Token
		resp.BindingToken = result.Session.BindingToken
		resp.Superseded = result.Session.Superseded
		resp.Session = newSessionSummary(result.Session.Session)
	}

	return resp
}
