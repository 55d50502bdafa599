package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/overbid/liveshow/internal/application/config"
	"github.com/overbid/liveshow/internal/application/constant"
	"github.com/overbid/liveshow/internal/application/metric"
	"github.com/overbid/liveshow/internal/infra/adapters/memory"
	"github.com/overbid/liveshow/internal/infra/appctx"
	"github.com/overbid/liveshow/internal/usecase"
	"github.com/overbid/liveshow/pkg/liveshow/events"
)

const readDeadline = 60 * time.Second

// CommerceWSHandler is the commerce event channel endpoint. One socket
// per room member; intents come in, sequence-numbered events go out.
type CommerceWSHandler struct {
	upgrader *websocket.Upgrader

	commerceUsecase usecase.CommerceUsecase
	wsRepo          memory.WebsocketConnectionRepository
}

func NewCommerceWSHandler(
	cfg *config.Config,
	commerceUsecase usecase.CommerceUsecase,
	wsRepo memory.WebsocketConnectionRepository,
) *CommerceWSHandler {
	return &CommerceWSHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		commerceUsecase: commerceUsecase,
		wsRepo:          wsRepo,
	}
}

func (h *CommerceWSHandler) Handle(c echo.Context) error {
	id, ok := appctx.Identity(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid room token"})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("websocket upgrade error", slog.Any(constant.Error, err))

		return err
	}
	defer ws.Close()

	if err = ws.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readDeadline))
	})

	member := memory.Member{
		UserID:   id.UserID,
		UserName: id.UserName,
		Role:     id.Role,
	}

	h.wsRepo.Add(id.UserID, ws)
	metric.IncrementWSActiveConnections()

	defer func() {
		h.commerceUsecase.HandleLeave(c.Request().Context(), id.ShowID, id.UserID)
		h.wsRepo.Remove(id.UserID)
		metric.DecrementWSActiveConnections()
	}()

	if err = h.commerceUsecase.HandleJoin(c.Request().Context(), id.ShowID, member); err != nil {
		slog.Error("commerce join", slog.Any(constant.Error, err))

		return nil
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-c.Request().Context().Done():
				return
			}
		}
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read error", slog.Any(constant.Error, err))
			}

			return nil
		}

		var env events.Envelope
		if err = json.Unmarshal(msg, &env); err != nil {
			slog.Warn("unmarshal commerce intent", slog.Any(constant.Error, err))

			continue
		}

		h.commerceUsecase.HandleIntent(c.Request().Context(), id.ShowID, member, env)
	}
}
