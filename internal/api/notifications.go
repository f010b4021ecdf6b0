package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

func (s *Server) handleNotifications(c echo.Context) error {
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	if limit == 0 || limit > 200 {
		limit = 50
	}
	items, err := s.inbox.List(c.Request().Context(), actorFrom(c).ID, c.QueryParam("unread") == "true", limit)
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.Notification{}
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) handleRead(c echo.Context) error {
	if err := s.inbox.MarkRead(c.Request().Context(), actorFrom(c).ID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleReadAll(c echo.Context) error {
	n, err := s.inbox.MarkAllRead(c.Request().Context(), actorFrom(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleDeleteNotification(c echo.Context) error {
	if err := s.inbox.Delete(c.Request().Context(), actorFrom(c).ID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
