// Package client is the HTTP client used by the databridge CLI.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dharsanguruparan/DataBridge/internal/api"
	"github.com/dharsanguruparan/DataBridge/internal/model"
	"github.com/dharsanguruparan/DataBridge/internal/pipeline"
)

// ErrAPI marks every error returned by the server.
var ErrAPI = errors.New("databridge api")

// APIError carries the decoded error body.
type APIError struct {
	Status int
	Body   api.ErrorResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d): %s: %s", ErrAPI, e.Status, e.Body.Error, e.Body.Message)
}

func (e *APIError) Unwrap() error { return ErrAPI }

// Client talks to the DataBridge API as one actor.
type Client struct {
	rest *resty.Client
}

// New constructs a client for baseURL acting as actorID.
func New(baseURL string, actorID int64) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5*time.Minute).
		SetHeader(api.ActorHeader, strconv.FormatInt(actorID, 10)).
		SetHeader("Accept", "application/json")
	return &Client{rest: rest}
}

func toError(resp *resty.Response) error {
	e := &APIError{Status: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), &e.Body); err != nil || e.Body.Error == "" {
		e.Body.Error = "unexpected response"
		e.Body.Message = resp.String()
	}
	return e
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.rest.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return toError(resp)
	}
	return nil
}

// Health reports whether the API answers its liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, "GET", "/healthz", nil, &body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return fmt.Errorf("healthz: status %q", body.Status)
	}
	return nil
}

// Upload stages a local file and returns its FileSpec.
func (c *Client) Upload(ctx context.Context, path, batch string) (pipeline.FileSpec, error) {
	var staged pipeline.FileSpec
	req := c.rest.R().SetContext(ctx).SetResult(&staged)
	if batch != "" {
		req.SetFormData(map[string]string{"batch": batch})
	}
	resp, err := req.SetFile("file", path).Post("/uploads")
	if err != nil {
		return staged, fmt.Errorf("upload %s: %w", path, err)
	}
	if resp.IsError() {
		return staged, toError(resp)
	}
	return staged, nil
}

// Submit creates a transfer.
func (c *Client) Submit(ctx context.Context, req pipeline.SubmitRequest) (*model.Transfer, error) {
	var t model.Transfer
	if err := c.do(ctx, "POST", "/transfers", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Get returns one transfer.
func (c *Client) Get(ctx context.Context, id int64) (*model.Transfer, error) {
	var t model.Transfer
	if err := c.do(ctx, "GET", fmt.Sprintf("/transfers/%d", id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns one page of transfers matching query.
func (c *Client) List(ctx context.Context, query url.Values) (*api.ListResponse, error) {
	var page api.ListResponse
	resp, err := c.rest.R().SetContext(ctx).SetQueryParamsFromValues(query).SetResult(&page).Get("/transfers")
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	if resp.IsError() {
		return nil, toError(resp)
	}
	return &page, nil
}

// History returns the audit trail of a transfer.
func (c *Client) History(ctx context.Context, id int64) ([]model.HistoryEntry, error) {
	var out []model.HistoryEntry
	if err := c.do(ctx, "GET", fmt.Sprintf("/transfers/%d/history", id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decide records an approval decision.
func (c *Client) Decide(ctx context.Context, id int64, d api.DecisionRequest) (*model.Transfer, error) {
	var t model.Transfer
	if err := c.do(ctx, "POST", fmt.Sprintf("/transfers/%d/decision", id), d, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Cancel stops a transfer.
func (c *Client) Cancel(ctx context.Context, id int64, reason string) (*model.Transfer, error) {
	var t model.Transfer
	if err := c.do(ctx, "POST", fmt.Sprintf("/transfers/%d/cancel", id), api.CancelRequest{Reason: reason}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Stats returns transfer counts per status.
func (c *Client) Stats(ctx context.Context) (*api.StatsResponse, error) {
	var out api.StatsResponse
	if err := c.do(ctx, "GET", "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Notifications lists the caller's notifications.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]model.Notification, error) {
	var out []model.Notification
	resp, err := c.rest.R().SetContext(ctx).
		SetQueryParam("unread", strconv.FormatBool(unreadOnly)).
		SetResult(&out).
		Get("/notifications")
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if resp.IsError() {
		return nil, toError(resp)
	}
	return out, nil
}

// MarkAllRead flags every notification as read and returns how many changed.
func (c *Client) MarkAllRead(ctx context.Context) (int, error) {
	var out struct {
		Updated int `json:"updated"`
	}
	if err := c.do(ctx, "POST", "/notifications/read-all", nil, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}
