package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
	"github.com/aryanndesai/FreshFarmMarket/internal/repository"
	"github.com/aryanndesai/FreshFarmMarket/internal/usecase"
)

// SessionBindingHeader carries the optional proof-of-possession token issued at login.
const SessionBindingHeader = "X-Session-Binding"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireSession validates the Authorization header against the session
// registry and stores the resolved session in the request context.
func RequireSession(sessions *usecase.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		if !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: must start with 'Bearer'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing session token"))
			return
		}

		bindingToken := strings.TrimSpace(c.GetHeader(SessionBindingHeader))

		session, err := sessions.Validate(c.Request.Context(), token, bindingToken)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrSessionInvalid), errors.Is(err, repository.ErrNotFound):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "session invalid or ended"))
			case errors.Is(err, usecase.ErrSessionBindingRequired):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "session binding token required"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "session validation failed"))
			}
			return
		}

		c.Set(PrincipalIDKey, session.PrincipalID)
		c.Set(SessionKey, session)
		c.Set(SessionTokenKey, token)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.PrincipalID = session.PrincipalID
		}

		c.Next()
	}
}

// GetAuthenticatedPrincipalID retrieves the principal ID from context (helper for handlers)
func GetAuthenticatedPrincipalID(c *gin.Context) (string, bool) {
	principalID, exists := c.Get(PrincipalIDKey)
	if !exists {
		return "", false
	}

	if id, ok := principalID.(string); ok {
		return id, true
	}

	return "", false
}

// GetSession retrieves the validated session stored by RequireSession.
func GetSession(c *gin.Context) (*domain.Session, bool) {
	raw, exists := c.Get(SessionKey)
	if !exists {
		return nil, false
	}

	session, ok := raw.(*domain.Session)
	return session, ok
}

// GetSessionToken retrieves the raw bearer token stored by RequireSession.
func GetSessionToken(c *gin.Context) (string, bool) {
	raw, exists := c.Get(SessionTokenKey)
	if !exists {
		return "", false
	}

	token, ok := raw.(string)
	return token, ok
}
