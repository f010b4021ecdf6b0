package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dharsanguruparan/DataBridge/internal/model"
	"github.com/dharsanguruparan/DataBridge/internal/stage"
)

// Callback signature headers. The signature covers "<timestamp>.<body>".
const (
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Timestamp"
)

const maxCallbackBody = 64 << 10

// verifySignature rejects callbacks whose HMAC does not match the body.
func (s *Server) verifySignature(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		body, err := io.ReadAll(io.LimitReader(req.Body, maxCallbackBody))
		if err != nil {
			return model.Validationf("read body: %v", err)
		}
		if !s.signer.Validate(req.Header.Get(TimestampHeader), body, req.Header.Get(SignatureHeader), s.opts.CallbackTTL) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
		return next(c)
	}
}

func (s *Server) handleScanCallback(c echo.Context) error {
	var r stage.ScanReport
	if err := json.NewDecoder(c.Request().Body).Decode(&r); err != nil {
		return model.Validationf("invalid scan report: %v", err)
	}
	if err := s.reporter.ReportScan(c.Request().Context(), r); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleCopyCallback(c echo.Context) error {
	var r stage.CopyReport
	if err := json.NewDecoder(c.Request().Body).Decode(&r); err != nil {
		return model.Validationf("invalid copy report: %v", err)
	}
	if err := s.reporter.ReportCopy(c.Request().Context(), r); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}
