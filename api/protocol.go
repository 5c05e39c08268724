package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"todo-api/domain"
)

// taskBodyMaxSize bounds request bodies so a misbehaving client cannot make
// the decoder buffer arbitrary amounts of data.
const taskBodyMaxSize = 64 << 10

type createTaskRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Priority    domain.Priority   `json:"priority"`
	Tags        []string          `json:"tags"`
	DueDate     *time.Time        `json:"dueDate"`
	Recurrence  domain.Recurrence `json:"recurrence"`
}

type updateTaskRequest struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	Priority    *domain.Priority   `json:"priority"`
	Tags        *[]string          `json:"tags"`
	DueDate     *time.Time         `json:"dueDate"`
	Recurrence  *domain.Recurrence `json:"recurrence"`
}

type toggleTaskRequest struct {
	Completed *bool `json:"completed"`
}

type tasksResponse struct {
	Tasks      []domain.Task `json:"tasks"`
	TotalCount int           `json:"totalCount"`
	Offset     int           `json:"offset"`
	Limit      int           `json:"limit"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

const (
	kindUnauthorized = "unauthorized"
	kindForbidden    = "forbidden"
	kindValidation   = "validation"
	kindNotFound     = "not_found"
	kindConflict     = "conflict"
	kindStorage      = "storage"
	kindInternal     = "internal"
)

func errorJSON(c echo.Context, status int, kind, message string) error {
	return c.JSON(status, errorResponse{Error: errorDetail{Kind: kind, Message: message}})
}

// respondError maps a domain error onto the wire error contract. Storage
// failure details never leak to clients.
func respondError(c echo.Context, err error) error {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: errorDetail{
			Kind:    kindValidation,
			Message: "invalid task data",
			Fields:  vErr.Fields,
		}})
	}
	if errors.Is(err, domain.ErrTaskNotFound) {
		return errorJSON(c, http.StatusNotFound, kindNotFound, "task not found")
	}
	if errors.Is(err, domain.ErrForbidden) {
		return errorJSON(c, http.StatusForbidden, kindForbidden, "access denied")
	}
	var cErr *domain.ConflictError
	if errors.As(err, &cErr) {
		return errorJSON(c, http.StatusConflict, kindConflict, cErr.Error())
	}
	var sErr *domain.StorageError
	if errors.As(err, &sErr) {
		c.Logger().Error(err)
		if sErr.Retryable {
			return errorJSON(c, http.StatusServiceUnavailable, kindStorage, "storage temporarily unavailable")
		}
		return errorJSON(c, http.StatusInternalServerError, kindStorage, "storage failure")
	}
	c.Logger().Error(err)
	return errorJSON(c, http.StatusInternalServerError, kindInternal, "internal error")
}
