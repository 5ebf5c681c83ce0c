package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aryanndesai/FreshFarmMarket/internal/infra/security"
	"github.com/aryanndesai/FreshFarmMarket/internal/usecase"
)

// RegistrationHandler exposes the account creation endpoint.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
}

// NewRegistrationHandler constructs a registration handler.
func NewRegistrationHandler(registration *usecase.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registration: registration}
}

// RegisterRoutes binds registration routes, applying optional middleware ahead of handlers.
func (h *RegistrationHandler) RegisterRoutes(r *gin.RouterGroup, middlewares ...gin.HandlerFunc) {
	if len(middlewares) > 0 {
		chain := append([]gin.HandlerFunc{}, middlewares...)
		chain = append(chain, h.register)
		r.POST("/register", chain...)
	} else {
		r.POST("/register", h.register)
	}
}

// Register godoc
// @Summary Register a new principal
// @Description Creates a new principal with the supplied credentials and contact information.
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body RegistrationRequest true "Registration request payload"
// @Success 201 {object} RegistrationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *RegistrationHandler) register(c *gin.Context) {
	if h.registration == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "registration service unavailable"))
		return
	}

	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	input := usecase.RegistrationInput{
		Email:            strings.TrimSpace(req.Email),
		FullName:         strings.TrimSpace(req.FullName),
		Password:         req.Password,
		TwoFactorEnabled: req.TwoFactorEnabled,
		IP:               clientIP(c),
	}

	if phone := strings.TrimSpace(req.Phone); phone != "" {
		input.Phone = &phone
	}
	if photo := strings.TrimSpace(req.PhotoRef); photo != "" {
		input.PhotoRef = &photo
	}

	principal, err := h.registration.Register(c.Request.Context(), input)
	if err != nil {
		var validationErr *security.PasswordValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, validationErr.Error()))
			return
		}

		cases := []ErrorCase{
			{Err: usecase.ErrEmailAlreadyRegistered, Status: http.StatusConflict, Message: "email already registered"},
			{Err: usecase.ErrRegistrationUnavailable, Status: http.StatusServiceUnavailable, Message: "registration service unavailable"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to register")
		return
	}

	c.JSON(http.StatusCreated, RegistrationResponse{
		Principal: newPrincipalSummary(*principal),
		Message:   "account created",
	})
}
