package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// ActorHeader carries the authenticated user id. Authentication itself
// happens in front of this service.
const ActorHeader = "X-Actor-ID"

const actorKey = "actor"

// requireActor resolves the calling user from ActorHeader.
func (s *Server) requireActor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := c.Request().Header.Get(ActorHeader)
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing "+ActorHeader)
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid "+ActorHeader)
		}
		actor, err := s.dir.Lookup(c.Request().Context(), id)
		if err != nil {
			if model.KindOf(err) == model.KindNotFound {
				return echo.NewHTTPError(http.StatusUnauthorized, "unknown actor")
			}
			return err
		}
		c.Set(actorKey, &actor)
		return next(c)
	}
}

func actorFrom(c echo.Context) *model.Actor {
	a, _ := c.Get(actorKey).(*model.Actor)
	return a
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				s.logger.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			s.logger.Debug("request", attrs...)
			return nil
		},
	})
}
