package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

var statusByKind = map[model.ErrorKind]int{
	model.KindValidation:             http.StatusBadRequest,
	model.KindInvalidClassification:  http.StatusBadRequest,
	model.KindAuthorization:          http.StatusForbidden,
	model.KindNotFound:               http.StatusNotFound,
	model.KindNotCurrentStage:        http.StatusConflict,
	model.KindConcurrentModification: http.StatusConflict,
	model.KindInvalidTransition:      http.StatusConflict,
	model.KindStageFailure:           http.StatusUnprocessableEntity,
	model.KindInfrastructure:         http.StatusServiceUnavailable,
}

// errorHandler maps pipeline error kinds to status codes and hides the
// detail of unexpected failures.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	resp := ErrorResponse{
		Error:     "internal",
		Message:   "internal server error",
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		resp.Error = http.StatusText(code)
		resp.Message = fmt.Sprintf("%v", httpErr.Message)
	} else if kind := model.KindOf(err); kind != "" {
		if mapped, ok := statusByKind[kind]; ok {
			code = mapped
		}
		resp.Error = string(kind)
		resp.Message = err.Error()
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error("request error", "request_id", resp.RequestID, "status", code, "error", err)
		if code == http.StatusInternalServerError {
			resp.Message = "internal server error"
		}
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, resp)
	}
	if err != nil {
		s.logger.Error("write error response", "error", err)
	}
}
