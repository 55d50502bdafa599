package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/overbid/liveshow/internal/infra/appctx"
	"github.com/overbid/liveshow/internal/usecase"
)

// RoomAuthMiddleware validates the room-scoped bearer token. Browsers
// cannot set headers on websocket dials, so a token query parameter is
// accepted as a fallback.
func RoomAuthMiddleware(tokenUsecase usecase.TokenUsecase) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := bearerToken(c.Request())
			if tokenStr == "" {
				tokenStr = c.QueryParam("token")
			}
			if tokenStr == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing room token"})
			}

			claims, err := tokenUsecase.Parse(tokenStr)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or expired room token"})
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid subject"})
			}

			showID, err := uuid.Parse(claims.Room)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid room"})
			}

			c.SetRequest(
				c.Request().WithContext(
					appctx.WithIdentity(c.Request().Context(), appctx.RoomIdentity{
						UserID:   userID,
						UserName: claims.Name,
						ShowID:   showID,
						Role:     claims.Role,
					}),
				),
			)

			return next(c)
		}
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	return ""
}
