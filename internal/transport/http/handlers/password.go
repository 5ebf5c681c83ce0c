package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aryanndesai/FreshFarmMarket/internal/infra/security"
	"github.com/aryanndesai/FreshFarmMarket/internal/transport/http/middleware"
	"github.com/aryanndesai/FreshFarmMarket/internal/usecase"
)

// PasswordHandler exposes password lifecycle endpoints: authenticated change,
// credential-bearing forced change, age inspection and the reset flow.
type PasswordHandler struct {
	passwords *usecase.PasswordService
	resets    *usecase.PasswordResetService
	auth      *usecase.AuthService
}

// NewPasswordHandler constructs a password handler.
func NewPasswordHandler(passwords *usecase.PasswordService, resets *usecase.PasswordResetService, auth *usecase.AuthService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords, resets: resets, auth: auth}
}

// ChangePassword godoc
// @Summary Change the caller's password
// @Description Replaces the caller's password after verifying the current one. All
// @Description sessions are ended; the caller must log in again.
// @Tags Password
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body PasswordChangeRequest true "Change request"
// @Success 200 {object} PasswordChangeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/change [post]
func (h *PasswordHandler) ChangePassword(c *gin.Context) {
	if h.passwords == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password service unavailable"))
		return
	}

	principalID, ok := middleware.GetAuthenticatedPrincipalID(c)
	if !ok || principalID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "current_password and new_password are required"))
		return
	}

	result, err := h.passwords.ChangePassword(c.Request.Context(), usecase.PasswordChangeInput{
		PrincipalID:     principalID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		IP:              clientIP(c),
		UserAgent:       userAgent(c),
	})
	if err != nil {
		respondPasswordError(c, err)
		return
	}

	c.JSON(http.StatusOK, PasswordChangeResponse{
		Message:       "password changed",
		ChangedAt:     result.ChangedAt,
		SessionsEnded: result.SessionsEnded,
	})
}

// CompleteForcedChange godoc
// @Summary Complete a required password change
// @Description Replaces an expired or flagged password. Credentials are verified
// @Description inline since no session exists yet; on success a session is established.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body ForcedPasswordChangeRequest true "Forced change request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 423 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/change/required [post]
func (h *PasswordHandler) CompleteForcedChange(c *gin.Context) {
	if h.passwords == nil || h.auth == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password service unavailable"))
		return
	}

	var req ForcedPasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email, current_password and new_password are required"))
		return
	}

	result, err := h.passwords.CompleteForcedChange(c.Request.Context(), usecase.ForcedChangeInput{
		Email:           strings.TrimSpace(req.Email),
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		IP:              clientIP(c),
		UserAgent:       userAgent(c),
	})
	if err != nil {
		respondPasswordError(c, err)
		return
	}

	login, err := h.auth.EstablishSession(c.Request.Context(), result.PrincipalID, clientIP(c), userAgent(c))
	if err != nil {
		// The password change already landed; report success without a session.
		c.JSON(http.StatusOK, PasswordChangeResponse{
			Message:       "password changed, please log in",
			ChangedAt:     result.ChangedAt,
			SessionsEnded: result.SessionsEnded,
		})
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(login))
}

// PasswordAge godoc
// @Summary Inspect the caller's password age
// @Description Reports when the password was last changed and how long remains
// @Description before expiry forces a change.
// @Tags Password
// @Security Bearer
// @Produce json
// @Success 200 {object} PasswordAgeResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/age [get]
func (h *PasswordHandler) PasswordAge(c *gin.Context) {
	if h.passwords == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password service unavailable"))
		return
	}

	principalID, ok := middleware.GetAuthenticatedPrincipalID(c)
	if !ok || principalID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	info, err := h.passwords.AgeInfo(c.Request.Context(), principalID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to inspect password age"))
		return
	}

	c.JSON(http.StatusOK, PasswordAgeResponse{
		ChangedAt:        info.ChangedAt,
		AgeSeconds:       int64(info.Age.Seconds()),
		MaxAgeSeconds:    int64(info.MaxAge.Seconds()),
		Expired:          info.Expired,
		RemainingSeconds: int64(info.Remaining.Seconds()),
	})
}

// RequestReset godoc
// @Summary Request a password reset link
// @Description Emails a single-use reset link when the address is registered. The
// @Description response is identical either way to avoid account enumeration.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordResetRequestPayload true "Reset request"
// @Success 202 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/reset/request [post]
func (h *PasswordHandler) RequestReset(c *gin.Context) {
	if h.resets == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset unavailable"))
		return
	}

	var req PasswordResetRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email is required"))
		return
	}

	if err := h.resets.RequestReset(c.Request.Context(), strings.TrimSpace(req.Email), clientIP(c), userAgent(c)); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to process reset request"))
		return
	}

	c.JSON(http.StatusAccepted, MessageResponse{
		Message: "if the address is registered, a reset link has been sent",
	})
}

// ConfirmReset godoc
// @Summary Redeem a password reset token
// @Description Installs a new password using a single-use reset token. All sessions
// @Description end and any lockout is cleared.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordResetConfirmRequest true "Reset confirmation"
// @Success 200 {object} PasswordChangeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/reset/confirm [post]
func (h *PasswordHandler) ConfirmReset(c *gin.Context) {
	if h.resets == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset unavailable"))
		return
	}

	var req PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token and new_password are required"))
		return
	}

	result, err := h.resets.ConsumeReset(c.Request.Context(), strings.TrimSpace(req.Token), req.NewPassword, clientIP(c), userAgent(c))
	if err != nil {
		if errors.Is(err, usecase.ErrResetTokenInvalid) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "reset token invalid or expired"))
			return
		}
		respondPasswordError(c, err)
		return
	}

	c.JSON(http.StatusOK, PasswordChangeResponse{
		Message:       "password reset",
		ChangedAt:     result.ChangedAt,
		SessionsEnded: result.SessionsEnded,
	})
}

func respondPasswordError(c *gin.Context, err error) {
	var validationErr *security.PasswordValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, validationErr.Error()))
		return
	}

	var lockedErr *usecase.AccountLockedError
	if errors.As(err, &lockedErr) {
		c.JSON(http.StatusLocked, NewErrorResponse(c, "account locked, try again later"))
		return
	}

	cases := []ErrorCase{
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
		{Err: usecase.ErrPasswordTooYoung, Status: http.StatusConflict, Message: "password was changed too recently"},
		{Err: usecase.ErrPasswordReused, Status: http.StatusConflict, Message: "password was used recently"},
		{Err: usecase.ErrPasswordServiceUnavailable, Status: http.StatusServiceUnavailable, Message: "password service unavailable"},
	}
	RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to change password")
}
