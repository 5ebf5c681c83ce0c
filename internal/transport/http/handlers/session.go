package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aryanndesai/FreshFarmMarket/internal/transport/http/middleware"
	"github.com/aryanndesai/FreshFarmMarket/internal/usecase"
)

// SessionHandler exposes endpoints for session inspection and termination.
type SessionHandler struct {
	sessions *usecase.SessionService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes binds REST session management routes to the provided router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("", h.ListSessions)
	r.GET("/current", h.CurrentSession)
	r.DELETE("", h.TerminateAll)
}

// ListSessions godoc
// @Summary List the caller's active sessions
// @Description The single-active-session rule means at most one entry is returned,
// @Description but the shape stays a list for forward compatibility.
// @Tags Sessions
// @Security Bearer
// @Produce json
// @Success 200 {object} SessionListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	principalID, ok := middleware.GetAuthenticatedPrincipalID(c)
	if !ok || principalID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessions, err := h.sessions.ListActive(c.Request.Context(), principalID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list sessions"))
		return
	}

	payloads := make([]SessionPayload, 0, len(sessions))
	for _, session := range sessions {
		payloads = append(payloads, newSessionPayload(session))
	}

	c.JSON(http.StatusOK, SessionListResponse{Sessions: payloads})
}

// CurrentSession godoc
// @Summary Inspect the caller's session
// @Description Returns the session resolved from the bearer token.
// @Tags Sessions
// @Security Bearer
// @Produce json
// @Success 200 {object} SessionPayload
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/sessions/current [get]
func (h *SessionHandler) CurrentSession(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok || session == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	c.JSON(http.StatusOK, newSessionPayload(*session))
}

// TerminateAll godoc
// @Summary Terminate all of the caller's sessions
// @Description Ends every active session for the caller, including the current one.
// @Tags Sessions
// @Security Bearer
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/sessions [delete]
func (h *SessionHandler) TerminateAll(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	principalID, ok := middleware.GetAuthenticatedPrincipalID(c)
	if !ok || principalID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if _, err := h.sessions.TerminateAll(c.Request.Context(), principalID, usecase.EndReasonTerminated, clientIP(c)); err != nil {
		if errors.Is(err, usecase.ErrSessionInvalid) {
			c.JSON(http.StatusOK, MessageResponse{Message: "no active sessions"})
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to terminate sessions"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "all sessions terminated"})
}
