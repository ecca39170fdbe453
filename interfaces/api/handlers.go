package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/felixgeelhaar/recon-go/application"
	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/run"
	"github.com/felixgeelhaar/recon-go/domain/scan"
	"github.com/felixgeelhaar/recon-go/infrastructure/logging"
)

type handlers struct {
	scanner     Scanner
	defaultGoal string
}

type goalResponse struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// StartRequest is the body of POST /api/scan, as JSON or form fields.
type StartRequest struct {
	Target string `json:"target" form:"target"`
	Goal   string `json:"goal" form:"goal"`
}

func (h *handlers) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "pid": os.Getpid()})
}

func (h *handlers) listGoals(c *gin.Context) {
	specs := h.scanner.Goals()
	goals := make([]goalResponse, 0, len(specs))
	for _, g := range specs {
		goals = append(goals, goalResponse{ID: g.ID, Label: g.DisplayLabel(), Description: g.Description})
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

func (h *handlers) startScan(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		req.Goal = h.defaultGoal
	}

	rec, err := h.scanner.Start(c.Request.Context(), req.Target, req.Goal)
	if err != nil {
		status := statusFor(err)
		logging.Warn().
			Add(logging.Component("api")).
			Add(logging.Target(req.Target)).
			Add(logging.Goal(req.Goal)).
			Add(logging.HTTPStatus(status)).
			Add(logging.ErrorField(err)).
			Msg("scan refused")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"scan_id": rec.ID, "status": run.StatusRunning})
}

func (h *handlers) scanStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scanner.Status())
}

func (h *handlers) listRuns(c *gin.Context) {
	filter := run.ListFilter{
		Target:     c.Query("target"),
		GoalID:     c.Query("goal"),
		OrderBy:    run.OrderByStartTime,
		Descending: true,
	}
	if s := c.Query("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			filter.Status = append(filter.Status, run.Status(strings.TrimSpace(part)))
		}
	}
	var err error
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runs, err := h.scanner.Runs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []*run.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *handlers) getRun(c *gin.Context) {
	rec, err := h.scanner.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handlers) getReport(c *gin.Context) {
	rec, err := h.scanner.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, run.Report(rec))
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scan.ErrInvalidTarget), errors.Is(err, goal.ErrGoalNotFound),
		errors.Is(err, run.ErrInvalidRunID):
		return http.StatusBadRequest
	case errors.Is(err, run.ErrRunActive):
		return http.StatusConflict
	case errors.Is(err, application.ErrPreflight):
		return http.StatusServiceUnavailable
	case errors.Is(err, run.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
