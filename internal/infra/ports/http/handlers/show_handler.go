package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/overbid/liveshow/internal/application/constant"
	"github.com/overbid/liveshow/internal/infra/appctx"
	"github.com/overbid/liveshow/internal/infra/ports/http/dto"
	"github.com/overbid/liveshow/internal/usecase"
)

type ShowHandler struct {
	showUsecase usecase.ShowUsecase
}

func NewShowHandler(showUsecase usecase.ShowUsecase) *ShowHandler {
	return &ShowHandler{showUsecase: showUsecase}
}

func (h *ShowHandler) List(c echo.Context) error {
	shows, err := h.showUsecase.ListLive(c.Request().Context())
	if err != nil {
		slog.Error("list live shows", slog.Any(constant.Error, err))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list shows"})
	}

	return c.JSON(http.StatusOK, shows)
}

func (h *ShowHandler) Get(c echo.Context) error {
	showID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid show id"})
	}

	show, err := h.showUsecase.Get(c.Request().Context(), showID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "show not found"})
		}

		slog.Error("get show", slog.Any(constant.Error, err))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get show"})
	}

	return c.JSON(http.StatusOK, show)
}

func (h *ShowHandler) Create(c echo.Context) error {
	var req dto.CreateShowRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if req.Title == "" || req.HostName == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "title and host_name are required"})
	}

	show, err := h.showUsecase.Create(c.Request().Context(), req.HostID, req.HostName, req.Title)
	if err != nil {
		slog.Error("create show", slog.Any(constant.Error, err))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create show"})
	}

	return c.JSON(http.StatusCreated, show)
}

// Patch updates mutable room attributes. Only the host's token may use
// it; today the single mutable attribute is the stream-wide audio mute.
func (h *ShowHandler) Patch(c echo.Context) error {
	showID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid show id"})
	}

	id, ok := appctx.Identity(c.Request().Context())
	if !ok || id.ShowID != showID {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid room token"})
	}

	if id.Role != usecase.RoleHost {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "host role required"})
	}

	var req dto.PatchShowRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if req.AudioMuted != nil {
		if err := h.showUsecase.SetAudioMuted(c.Request().Context(), showID, *req.AudioMuted); err != nil {
			slog.Error("set audio muted", slog.Any(constant.Error, err))

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update show"})
		}
	}

	show, err := h.showUsecase.Get(c.Request().Context(), showID)
	if err != nil {
		slog.Error("get show", slog.Any(constant.Error, err))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get show"})
	}

	return c.JSON(http.StatusOK, show)
}

func (h *ShowHandler) Start(c echo.Context) error {
	return h.transition(c, h.showUsecase.Start)
}

func (h *ShowHandler) End(c echo.Context) error {
	return h.transition(c, h.showUsecase.End)
}

func (h *ShowHandler) transition(c echo.Context, fn func(ctx context.Context, showID uuid.UUID) error) error {
	showID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid show id"})
	}

	id, ok := appctx.Identity(c.Request().Context())
	if !ok || id.ShowID != showID {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid room token"})
	}

	if id.Role != usecase.RoleHost {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "host role required"})
	}

	if err := fn(c.Request().Context(), showID); err != nil {
		slog.Error("show transition", slog.Any(constant.Error, err), slog.Any(constant.ShowID, showID))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update show"})
	}

	return c.NoContent(http.StatusOK)
}
