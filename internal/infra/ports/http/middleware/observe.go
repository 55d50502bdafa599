package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/overbid/liveshow/internal/application/constant"
	"github.com/overbid/liveshow/internal/application/metric"
)

func SlogLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.Any(constant.Error, v.Error))
			}

			slog.Info("request", attrs...)

			return nil
		},
	})
}

func HTTPMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			metric.RecordHTTPMetrics(
				c.Request().Method,
				c.Path(),
				c.Response().Status,
				time.Since(start),
			)

			return err
		}
	}
}
