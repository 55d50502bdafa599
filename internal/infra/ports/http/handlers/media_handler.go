package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"

	"github.com/overbid/liveshow/internal/application/config"
	"github.com/overbid/liveshow/internal/application/constant"
	"github.com/overbid/liveshow/internal/infra/adapters/memory"
	"github.com/overbid/liveshow/internal/infra/appctx"
	"github.com/overbid/liveshow/internal/usecase"
)

type signalMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type sdpPayload struct {
	SDP string `json:"sdp"`
}

type candidatePayload struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// MediaWSHandler is the media relay signaling endpoint. The host's RTP
// is read off its relay peer and fanned out to every viewer's peer.
type MediaWSHandler struct {
	upgrader *websocket.Upgrader

	mediaUsecase usecase.MediaUsecase
	mediaWSRepo  memory.WebsocketConnectionRepository
}

func NewMediaWSHandler(
	cfg *config.Config,
	mediaUsecase usecase.MediaUsecase,
	mediaWSRepo memory.WebsocketConnectionRepository,
) *MediaWSHandler {
	return &MediaWSHandler{
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
		mediaUsecase: mediaUsecase,
		mediaWSRepo:  mediaWSRepo,
	}
}

func (h *MediaWSHandler) Handle(c echo.Context) error {
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

	h.mediaWSRepo.Add(id.UserID, ws)

	defer func() {
		h.mediaUsecase.HandleLeave(c.Request().Context(), id.UserID)
		h.mediaWSRepo.Remove(id.UserID)
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read error", slog.Any(constant.Error, err))
			}

			return nil
		}

		var sm signalMessage
		if err = json.Unmarshal(msg, &sm); err != nil {
			slog.Warn("unmarshal signal message", slog.Any(constant.Error, err))

			continue
		}

		if err = h.handleMessage(c, id, sm); err != nil {
			slog.Error(
				"handle signal message",
				slog.Any(constant.Error, err),
				slog.String(constant.Event, sm.Type),
			)
		}
	}
}

func (h *MediaWSHandler) handleMessage(c echo.Context, id appctx.RoomIdentity, sm signalMessage) error {
	ctx := c.Request().Context()

	switch sm.Type {
	case "join":
		isHost := id.Role == usecase.RoleHost

		if _, err := h.mediaUsecase.HandleJoin(ctx, id.UserID, id.ShowID, isHost); err != nil {
			return err
		}

		ack, _ := json.Marshal(map[string]any{
			"participant_id": id.UserID.String(),
			"can_publish":    isHost,
		})
		h.mediaWSRepo.Write(id.UserID, map[string]any{"type": "joined", "data": json.RawMessage(ack)})

		return nil

	case "offer":
		var p sdpPayload
		if err := json.Unmarshal(sm.Data, &p); err != nil {
			return err
		}

		return h.mediaUsecase.HandleOffer(ctx, id.UserID, p.SDP)

	case "candidate":
		var p candidatePayload
		if err := json.Unmarshal(sm.Data, &p); err != nil {
			return err
		}

		return h.mediaUsecase.HandleCandidate(ctx, id.UserID, p.Candidate)

	case "leave":
		h.mediaUsecase.HandleLeave(ctx, id.UserID)

		return nil

	default:
		slog.Debug("unknown signal type", slog.String(constant.Event, sm.Type))

		return nil
	}
}
