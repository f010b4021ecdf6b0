package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dharsanguruparan/DataBridge/internal/approval"
	"github.com/dharsanguruparan/DataBridge/internal/model"
	"github.com/dharsanguruparan/DataBridge/internal/pipeline"
)

// DecisionRequest is the body of POST /transfers/:id/decision.
type DecisionRequest struct {
	Verdict approval.Verdict `json:"verdict"`
	Text    string           `json:"text"`
	Stage   model.Role       `json:"stage,omitempty"`
}

// CancelRequest is the body of POST /transfers/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// ListResponse is one page of transfers.
type ListResponse struct {
	Items  []*model.Transfer `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// StatsResponse counts transfers per status.
type StatsResponse struct {
	Counts map[model.Status]int `json:"counts"`
	Total  int                  `json:"total"`
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req pipeline.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return model.Validationf("invalid body: %v", err)
	}
	t, err := s.service.Submit(c.Request().Context(), actorFrom(c).ID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) handleGet(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	t, err := s.service.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleHistory(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	entries, err := s.service.History(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) handleDecide(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return model.Validationf("invalid body: %v", err)
	}
	t, err := s.service.Decide(c.Request().Context(), actorFrom(c).ID, id, approval.Decision{
		Verdict: req.Verdict,
		Text:    req.Text,
		Stage:   req.Stage,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleCancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req CancelRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return model.Validationf("invalid body: %v", err)
		}
	}
	t, err := s.service.Cancel(c.Request().Context(), actorFrom(c).ID, id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleList(c echo.Context) error {
	f, err := parseFilter(c, actorFrom(c))
	if err != nil {
		return err
	}
	items, total, err := s.service.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*model.Transfer{}
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return c.JSON(http.StatusOK, ListResponse{Items: items, Total: total, Limit: limit, Offset: f.Offset})
}

func (s *Server) handleStats(c echo.Context) error {
	counts, err := s.service.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	resp := StatsResponse{Counts: counts}
	for _, n := range counts {
		resp.Total += n
	}
	return c.JSON(http.StatusOK, resp)
}

// parseFilter reads list filters from the query string. mine=true limits
// the result to the caller's own submissions and awaiting=me to the stages
// the caller may decide.
func parseFilter(c echo.Context, actor *model.Actor) (model.Filter, error) {
	var f model.Filter
	for _, raw := range c.QueryParams()["status"] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v == "" {
				continue
			}
			st, err := model.ParseStatus(v)
			if err != nil {
				return f, err
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if v := c.QueryParam("submitter"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, model.Validationf("submitter must be numeric")
		}
		f.SubmitterID = &id
	}
	if c.QueryParam("mine") == "true" {
		id := actor.ID
		f.SubmitterID = &id
	}
	if v := c.QueryParam("category"); v != "" {
		f.Category = model.Category(v)
	}
	if v := c.QueryParam("priority"); v != "" {
		f.Priority = model.Priority(v)
	}
	switch v := c.QueryParam("awaiting"); v {
	case "":
	case "me":
		f.AwaitingRole = actor.Role
	default:
		role, err := model.ParseRole(v)
		if err != nil {
			return f, err
		}
		f.AwaitingRole = role
	}
	var err error
	if f.Limit, err = intParam(c, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(c, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, model.Validationf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.Validationf("invalid transfer id %q", c.Param("id"))
	}
	return id, nil
}

// handleDownload returns a presigned URL for a verified production copy.
func (s *Server) handleDownload(c echo.Context) error {
	if s.presign == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "downloads need object storage")
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	fileID, err := strconv.ParseInt(c.Param("fileId"), 10, 64)
	if err != nil {
		return model.Validationf("invalid file id %q", c.Param("fileId"))
	}
	ctx := c.Request().Context()
	t, err := s.service.GetByID(ctx, id)
	if err != nil {
		return err
	}
	f, ok := t.File(fileID)
	if !ok {
		return model.NotFoundf("file %d is not part of %s", fileID, t.Reference)
	}
	if t.Status != model.StatusTransferred || f.Verified == nil || !*f.Verified {
		return model.InvalidTransitionf("%s has not been delivered", t.Reference)
	}
	u, err := s.presign.PresignProduction(ctx, f.DestinationKey, s.opts.DownloadTTL)
	if err != nil {
		return model.Infrastructure("presign download", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": u})
}
