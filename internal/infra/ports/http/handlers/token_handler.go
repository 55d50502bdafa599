package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/overbid/liveshow/internal/application/constant"
	"github.com/overbid/liveshow/internal/infra/ports/http/dto"
	"github.com/overbid/liveshow/internal/usecase"
)

// TokenHandler issues room-scoped credentials. Identity is trusted from
// the request body: authentication of the platform user happens upstream
// of this service.
type TokenHandler struct {
	tokenUsecase usecase.TokenUsecase
}

func NewTokenHandler(tokenUsecase usecase.TokenUsecase) *TokenHandler {
	return &TokenHandler{tokenUsecase: tokenUsecase}
}

func (h *TokenHandler) Issue(c echo.Context) error {
	var req dto.TokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if req.UserName == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_name is required"})
	}

	cred, err := h.tokenUsecase.Issue(c.Request().Context(), req.ShowID, req.UserID, req.UserName)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrShowNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "show not found"})
		case errors.Is(err, usecase.ErrShowEnded):
			return c.JSON(http.StatusConflict, map[string]string{"error": "show has ended"})
		default:
			slog.Error("issue room token", slog.Any(constant.Error, err))

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to issue token"})
		}
	}

	return c.JSON(http.StatusOK, cred)
}
