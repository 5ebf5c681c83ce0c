package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aryanndesai/FreshFarmMarket/internal/transport/http/middleware"
	"github.com/aryanndesai/FreshFarmMarket/internal/usecase"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth     *usecase.AuthService
	sessions *usecase.SessionService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, sessions *usecase.SessionService) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions}
}

// RegisterRoutes binds authentication routes, applying optional middleware
// ahead of the credential-bearing handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares, twoFactorMiddlewares []gin.HandlerFunc) {
	loginChain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	loginChain = append(loginChain, h.login)
	r.POST("/login", loginChain...)

	twoFactorChain := append([]gin.HandlerFunc{}, twoFactorMiddlewares...)
	twoFactorChain = append(twoFactorChain, h.verifyTwoFactor)
	r.POST("/two-factor/verify", twoFactorChain...)

	resendChain := append([]gin.HandlerFunc{}, twoFactorMiddlewares...)
	resendChain = append(resendChain, h.resendTwoFactor)
	r.POST("/two-factor/resend", resendChain...)

	r.POST("/logout", middleware.RequireSession(h.sessions), h.logout)
}

// Login godoc
// @Summary Authenticate a principal with credentials
// @Description Validates the provided email and password. On success a session token is
// @Description returned; when two-factor or a password change is required the response
// @Description carries a pending outcome instead.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse "Successfully authenticated"
// @Success 202 {object} LoginPendingResponse "Further action required"
// @Failure 400 {object} ErrorResponse "Invalid request payload"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 423 {object} ErrorResponse "Account locked"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	input := usecase.LoginInput{
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		IP:        clientIP(c),
		UserAgent: userAgent(c),
	}

	result, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	respondLoginResult(c, result)
}

// VerifyTwoFactor godoc
// @Summary Redeem a one-time login code
// @Description Completes a pending two-factor login. The code is single use; a session is
// @Description established on success.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TwoFactorVerifyRequest true "Verification request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 423 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/two-factor/verify [post]
func (h *AuthHandler) verifyTwoFactor(c *gin.Context) {
	var req TwoFactorVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "principal_id and code are required"))
		return
	}

	result, err := h.auth.VerifyTwoFactor(c.Request.Context(), strings.TrimSpace(req.PrincipalID), strings.TrimSpace(req.Code), clientIP(c), userAgent(c))
	if err != nil {
		if errors.Is(err, usecase.ErrTwoFactorCodeInvalid) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "code invalid or expired"))
			return
		}
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(result))
}

// ResendTwoFactor godoc
// @Summary Resend a one-time login code
// @Description Issues a fresh code for a login awaiting two-factor verification.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TwoFactorResendRequest true "Resend request"
// @Success 202 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 423 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/two-factor/resend [post]
func (h *AuthHandler) resendTwoFactor(c *gin.Context) {
	var req TwoFactorResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "principal_id is required"))
		return
	}

	if err := h.auth.ResendTwoFactorCode(c.Request.Context(), strings.TrimSpace(req.PrincipalID), clientIP(c)); err != nil {
		if errors.Is(err, usecase.ErrTwoFactorCodeInvalid) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "no pending verification for principal"))
			return
		}
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, MessageResponse{Message: "a verification code has been sent"})
}

// Logout godoc
// @Summary End the current session
// @Description Ends the caller's session. The bearer token stops validating immediately.
// @Tags Authentication
// @Produce json
// @Success 204 {string} string ""
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	token, ok := middleware.GetSessionToken(c)
	if !ok || token == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), token, clientIP(c)); err != nil {
		if errors.Is(err, usecase.ErrSessionInvalid) {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to end session"))
		return
	}

	c.Status(http.StatusNoContent)
}

func respondLoginResult(c *gin.Context, result *usecase.LoginResult) {
	switch result.Outcome {
	case usecase.OutcomeAuthenticated:
		c.JSON(http.StatusOK, newLoginResponse(result))
	case usecase.OutcomeTwoFactorRequired:
		c.JSON(http.StatusAccepted, LoginPendingResponse{
			Outcome:   string(result.Outcome),
			Message:   "a verification code has been sent",
			Principal: newPrincipalSummary(result.Principal),
		})
	case usecase.OutcomePasswordChangeRequired:
		c.JSON(http.StatusAccepted, LoginPendingResponse{
			Outcome:   string(result.Outcome),
			Message:   "password change required before login",
			Principal: newPrincipalSummary(result.Principal),
		})
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authentication failed"))
	}
}

func respondAuthError(c *gin.Context, err error) {
	var lockedErr *usecase.AccountLockedError
	if errors.As(err, &lockedErr) {
		seconds := int(math.Ceil(lockedErr.Remaining.Seconds()))
		if seconds < 0 {
			seconds = 0
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.JSON(http.StatusLocked, NewErrorResponse(c, "account locked, try again later"))
		return
	}

	switch {
	case errors.Is(err, usecase.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid credentials"))
	case errors.Is(err, usecase.ErrTwoFactorUnavailable):
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "two-factor delivery unavailable"))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authentication failed"))
	}
}

func clientIP(c *gin.Context) *string {
	ip := strings.TrimSpace(c.ClientIP())
	if ip == "" {
		return nil
	}
	return &ip
}

func userAgent(c *gin.Context) *string {
	ua := strings.TrimSpace(c.Request.UserAgent())
	if ua == "" {
		return nil
	}
	return &ua
}
