package server

import (
	"github.com/labstack/echo/v4"

	"github.com/overbid/liveshow/internal/infra/ports/http/handlers"
	"github.com/overbid/liveshow/internal/infra/ports/http/middleware"
	"github.com/overbid/liveshow/internal/usecase"
)

func New(
	tokenUsecase usecase.TokenUsecase,
	tokenHandler *handlers.TokenHandler,
	showHandler *handlers.ShowHandler,
	commerceWSHandler *handlers.CommerceWSHandler,
	mediaWSHandler *handlers.MediaWSHandler,
) *echo.Echo {
	e := echo.New()

	e.Use(middleware.SlogLogger())
	e.Use(middleware.HTTPMetrics())

	e.POST("/token", tokenHandler.Issue)

	api := e.Group("/api")
	{
		api.GET("/rooms", showHandler.List)
		api.GET("/rooms/:id", showHandler.Get)
		api.POST("/rooms", showHandler.Create)

		authed := api.Group("")
		authed.Use(middleware.RoomAuthMiddleware(tokenUsecase))
		{
			authed.PATCH("/rooms/:id", showHandler.Patch)
			authed.POST("/rooms/:id/start", showHandler.Start)
			authed.POST("/rooms/:id/end", showHandler.End)
		}
	}

	ws := e.Group("/ws")
	ws.Use(middleware.RoomAuthMiddleware(tokenUsecase))
	{
		ws.GET("", commerceWSHandler.Handle)
		ws.GET("/media", mediaWSHandler.Handle)
	}

	return e
}
