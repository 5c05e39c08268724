package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"todo-api/domain"
)

const idempotencyKeyHeader = "Idempotency-Key"

// ListDefaults caps listing windows so a request without paging params cannot
// pull an unbounded result set.
type ListDefaults struct {
	PageSize    int
	MaxPageSize int
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc TaskService, auth Authenticator, deduper Deduper, logger *log.Logger, defaults ListDefaults) {
	if defaults.PageSize <= 0 {
		defaults.PageSize = 50
	}
	if defaults.MaxPageSize <= 0 {
		defaults.MaxPageSize = 200
	}

	g := e.Group("/api/users/:userID/tasks")
	g.POST("", createTask(svc, auth, deduper, logger))
	g.GET("", listTasks(svc, auth, logger, defaults))
	g.GET("/:taskID", getTask(svc, auth))
	g.PATCH("/:taskID", updateTask(svc, auth))
	g.POST("/:taskID/toggle", toggleTask(svc, auth))
	g.DELETE("/:taskID", deleteTask(svc, auth))

	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// authorize verifies the bearer token and matches it against the :userID path
// segment. A mismatch is a 403 before any task data is touched. When ok is
// false the response has already been written.
func authorize(c echo.Context, auth Authenticator) (string, bool, error) {
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return "", false, errorJSON(c, http.StatusUnauthorized, kindUnauthorized, err.Error())
	}
	if c.Param("userID") != userID {
		return "", false, respondError(c, domain.ErrForbidden)
	}
	return userID, true, nil
}

func decodeStrict(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, taskBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func createTask(svc TaskService, auth Authenticator, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ownerID, ok, err := authorize(c, auth)
		if !ok {
			return err
		}
		var req createTaskRequest
		if err := decodeStrict(c, &req); err != nil {
			return errorJSON(c, http.StatusBadRequest, kindValidation, "invalid body")
		}
		create := domain.CreateTaskRequest{
			Title:       req.Title,
			Description: req.Description,
			Priority:    req.Priority,
			Tags:        req.Tags,
			DueDate:     req.DueDate,
			Recurrence:  req.Recurrence,
		}
		ctx := c.Request().Context()

		idemKey := strings.TrimSpace(c.Request().Header.Get(idempotencyKeyHeader))
		if idemKey == "" || deduper == nil {
			task, err := svc.CreateTask(ctx, ownerID, "", create)
			if err != nil {
				return respondError(c, err)
			}
			return c.JSON(http.StatusCreated, task)
		}

		id := uuid.NewString()
		recordedID, added, dedupErr := deduper.Register(ctx, ownerID, idemKey, id)
		if dedupErr != nil {
			// A deduper outage must not block creates; accept the small
			// duplicate risk instead.
			logger.WithError(dedupErr).Warn("idempotency register failed, creating without dedupe")
			task, err := svc.CreateTask(ctx, ownerID, "", create)
			if err != nil {
				return respondError(c, err)
			}
			return c.JSON(http.StatusCreated, task)
		}

		if !added {
			task, err := svc.GetTask(ctx, ownerID, recordedID)
			if err == nil {
				return c.JSON(http.StatusOK, task)
			}
			if !errors.Is(err, domain.ErrTaskNotFound) {
				return respondError(c, err)
			}
			// The original request reserved the key but its task is not
			// visible yet. Reuse the reserved id so concurrent retries
			// converge on one task.
			id = recordedID
		}

		task, err := svc.CreateTask(ctx, ownerID, id, create)
		if err != nil {
			var cErr *domain.ConflictError
			if !added && errors.As(err, &cErr) {
				// Lost the insert race to the original request.
				if existing, gerr := svc.GetTask(ctx, ownerID, recordedID); gerr == nil {
					return c.JSON(http.StatusOK, existing)
				}
			}
			if added {
				if rmErr := deduper.Remove(ctx, ownerID, idemKey); rmErr != nil {
					logger.WithError(rmErr).Warn("idempotency rollback failed")
				}
			}
			return respondError(c, err)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func listTasks(svc TaskService, auth Authenticator, logger *log.Logger, defaults ListDefaults) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newListRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		ownerID, ok, authErr := authorize(c, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if !ok {
			metrics.SetErrorStage("auth")
			err = authErr
			return err
		}

		filter, sortSpec, page, filtered, parseErr := parseListQuery(c, defaults)
		if parseErr != nil {
			metrics.SetErrorStage("query_params")
			err = respondError(c, parseErr)
			return err
		}
		metrics.SetFilterApplied(filtered)

		queryStart := time.Now()
		tasks, total, listErr := svc.ListTasks(ctx, ownerID, filter, sortSpec, page)
		metrics.ObserveQuery(time.Since(queryStart))
		if listErr != nil {
			metrics.SetErrorStage("query")
			err = respondError(c, listErr)
			return err
		}
		metrics.SetTasksReturned(len(tasks))
		metrics.SetTotalMatched(total)

		resp := tasksResponse{
			Tasks:      tasks,
			TotalCount: total,
			Offset:     page.Offset,
			Limit:      page.Limit,
		}
		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

// parseListQuery maps the query string onto the listing inputs. filtered
// reports whether any narrowing condition was supplied.
func parseListQuery(c echo.Context, defaults ListDefaults) (domain.Filter, domain.Sort, domain.Page, bool, error) {
	var filter domain.Filter
	fields := map[string]string{}

	if raw := c.QueryParam("completed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			fields["completed"] = "must be true or false"
		} else {
			filter.Completed = &v
		}
	}
	if raw := c.QueryParam("priority"); raw != "" {
		p := domain.Priority(raw)
		if !p.Valid() {
			fields["priority"] = "priority must be one of none, low, medium, high"
		} else {
			filter.Priority = &p
		}
	}
	if raw := c.QueryParam("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}
	if due, bad := parseTimeParam(c, "dueFrom"); bad {
		fields["dueFrom"] = "must be an RFC 3339 timestamp"
	} else {
		filter.DueFrom = due
	}
	if due, bad := parseTimeParam(c, "dueTo"); bad {
		fields["dueTo"] = "must be an RFC 3339 timestamp"
	} else {
		filter.DueTo = due
	}
	filter.Search = strings.TrimSpace(c.QueryParam("search"))

	sortSpec := domain.Sort{Key: domain.SortByCreatedAt}
	if raw := c.QueryParam("sort"); raw != "" {
		key := domain.SortKey(raw)
		if !key.Valid() {
			fields["sort"] = "sort must be one of created_at, priority, title, due_date"
		} else {
			sortSpec.Key = key
		}
	}
	switch order := c.QueryParam("order"); order {
	case "", "asc":
	case "desc":
		sortSpec.Desc = true
	default:
		fields["order"] = "order must be asc or desc"
	}

	page := domain.Page{Limit: defaults.PageSize}
	if raw := c.QueryParam("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			fields["offset"] = "must be a non-negative integer"
		} else {
			page.Offset = v
		}
	}
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > defaults.MaxPageSize {
			fields["limit"] = "must be between 1 and " + strconv.Itoa(defaults.MaxPageSize)
		} else {
			page.Limit = v
		}
	}

	if len(fields) > 0 {
		return domain.Filter{}, domain.Sort{}, domain.Page{}, false, &domain.ValidationError{Fields: fields}
	}

	filtered := filter.Completed != nil || filter.Priority != nil || len(filter.Tags) > 0 ||
		filter.DueFrom != nil || filter.DueTo != nil || filter.Search != ""
	return filter, sortSpec, page, filtered, nil
}

func parseTimeParam(c echo.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, true
	}
	ts = ts.UTC()
	return &ts, false
}

func getTask(svc TaskService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ownerID, ok, err := authorize(c, auth)
		if !ok {
			return err
		}
		task, err := svc.GetTask(c.Request().Context(), ownerID, c.Param("taskID"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func updateTask(svc TaskService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ownerID, ok, err := authorize(c, auth)
		if !ok {
			return err
		}
		var req updateTaskRequest
		if err := decodeStrict(c, &req); err != nil {
			return errorJSON(c, http.StatusBadRequest, kindValidation, "invalid body")
		}
		patch := domain.TaskPatch{
			Title:       req.Title,
			Description: req.Description,
			Priority:    req.Priority,
			Tags:        req.Tags,
			DueDate:     req.DueDate,
			Recurrence:  req.Recurrence,
		}
		task, err := svc.UpdateTask(c.Request().Context(), ownerID, c.Param("taskID"), patch)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func toggleTask(svc TaskService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ownerID, ok, err := authorize(c, auth)
		if !ok {
			return err
		}
		var req toggleTaskRequest
		if c.Request().ContentLength != 0 {
			if err := decodeStrict(c, &req); err != nil && err != io.EOF {
				return errorJSON(c, http.StatusBadRequest, kindValidation, "invalid body")
			}
		}
		task, err := svc.ToggleCompletion(c.Request().Context(), ownerID, c.Param("taskID"), req.Completed)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(svc TaskService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ownerID, ok, err := authorize(c, auth)
		if !ok {
			return err
		}
		removed, err := svc.DeleteTask(c.Request().Context(), ownerID, c.Param("taskID"))
		if err != nil {
			return respondError(c, err)
		}
		if !removed {
			return respondError(c, domain.ErrTaskNotFound)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
