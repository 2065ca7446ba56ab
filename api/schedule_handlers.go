package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"buckethop/pkg/config"
	"buckethop/pkg/scheduler"
)

var scheduleManager *scheduler.Scheduler

// TransferExecutor runs due schedules through the same task path as the
// HTTP API, so scheduled runs show up in the task registry.
type TransferExecutor struct{}

// Execute implements scheduler.TaskExecutor. It blocks until the run
// finishes so the scheduler's failure counter reflects the outcome.
func (e *TransferExecutor) Execute(ctx context.Context, schedule *scheduler.Schedule) error {
	req := TransferRequest{
		SourceURL:         schedule.SourceURL,
		DestURL:           schedule.DestURL,
		SourceCredentials: &schedule.Source,
		DestCredentials:   &schedule.Dest,
		Workers:           schedule.Workers,
		DryRun:            schedule.DryRun,
	}

	task, done, err := startTransfer(req, schedule.ID)
	if err != nil {
		apiLog.Error("scheduled transfer failed to start",
			zap.String("schedule", schedule.ID),
			zap.Error(err))
		return err
	}

	apiLog.Info("scheduled transfer started",
		zap.String("schedule", schedule.ID),
		zap.String("task", task.ID))

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InitScheduler initializes the global scheduler and loads preconfigured
// schedules from the server config file.
func InitScheduler(log *zap.Logger, schedules []config.ScheduleConfig) error {
	if scheduleManager != nil {
		return nil
	}
	scheduleManager = scheduler.NewScheduler(&TransferExecutor{})

	for _, sc := range schedules {
		schedule := &scheduler.Schedule{
			ID:        uuid.New().String(),
			Name:      sc.Name,
			CronExpr:  sc.CronExpr,
			Enabled:   sc.Enabled,
			SourceURL: sc.SourceURL,
			DestURL:   sc.DestURL,
			Source:    sc.Source,
			Dest:      sc.Dest,
			Workers:   sc.Workers,
		}
		if err := scheduleManager.Add(schedule); err != nil {
			return fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		log.Info("schedule loaded",
			zap.String("name", sc.Name),
			zap.String("cron", sc.CronExpr),
			zap.Bool("enabled", sc.Enabled))
	}

	return scheduleManager.Start()
}

// CreateScheduleRequest is the body of POST and PUT /api/schedules.
type CreateScheduleRequest struct {
	Name      string              `json:"name" binding:"required"`
	CronExpr  string              `json:"cron_expr" binding:"required"`
	SourceURL string              `json:"source_url" binding:"required"`
	DestURL   string              `json:"dest_url" binding:"required"`
	Source    *config.Credentials `json:"source_credentials"`
	Dest      *config.Credentials `json:"dest_credentials"`
	Workers   int                 `json:"workers"`
	DryRun    bool                `json:"dry_run"`
}

// CreateSchedule handles POST /api/schedules.
// @Summary Create a schedule
// @Tags schedules
// @Accept json
// @Produce json
// @Param request body CreateScheduleRequest true "Schedule request"
// @Success 200 {object} scheduler.Schedule
// @Failure 400 {object} gin.H
// @Router /api/schedules [post]
func CreateSchedule(c *gin.Context) {
	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	schedule := &scheduler.Schedule{
		ID:        uuid.New().String(),
		Name:      req.Name,
		CronExpr:  req.CronExpr,
		Enabled:   true,
		SourceURL: req.SourceURL,
		DestURL:   req.DestURL,
		Workers:   req.Workers,
		DryRun:    req.DryRun,
	}
	if req.Source != nil {
		schedule.Source = *req.Source
	}
	if req.Dest != nil {
		schedule.Dest = *req.Dest
	}

	if err := scheduleManager.Add(schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// GetSchedule handles GET /api/schedules/:id.
// @Summary Get a schedule
// @Tags schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} scheduler.Schedule
// @Failure 404 {object} gin.H
// @Router /api/schedules/{id} [get]
func GetSchedule(c *gin.Context) {
	schedule, err := scheduleManager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// ListSchedules handles GET /api/schedules.
// @Summary List schedules
// @Tags schedules
// @Produce json
// @Success 200 {array} scheduler.Schedule
// @Router /api/schedules [get]
func ListSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, scheduleManager.List())
}

// UpdateSchedule handles PUT /api/schedules/:id.
// @Summary Update a schedule
// @Tags schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param request body CreateScheduleRequest true "Updated schedule"
// @Success 200 {object} scheduler.Schedule
// @Failure 400 {object} gin.H
// @Router /api/schedules/{id} [put]
func UpdateSchedule(c *gin.Context) {
	id := c.Param("id")

	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing, err := scheduleManager.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	updated := *existing
	updated.Name = req.Name
	updated.CronExpr = req.CronExpr
	updated.SourceURL = req.SourceURL
	updated.DestURL = req.DestURL
	updated.Workers = req.Workers
	updated.DryRun = req.DryRun
	if req.Source != nil {
		updated.Source = *req.Source
	}
	if req.Dest != nil {
		updated.Dest = *req.Dest
	}

	if err := scheduleManager.Update(&updated); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, &updated)
}

// DeleteSchedule handles DELETE /api/schedules/:id.
// @Summary Delete a schedule
// @Tags schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} gin.H
// @Failure 404 {object} gin.H
// @Router /api/schedules/{id} [delete]
func DeleteSchedule(c *gin.Context) {
	if err := scheduleManager.Remove(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// EnableSchedule handles POST /api/schedules/:id/enable.
// @Summary Enable a schedule
// @Tags schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} gin.H
// @Failure 400 {object} gin.H
// @Router /api/schedules/{id}/enable [post]
func EnableSchedule(c *gin.Context) {
	if err := scheduleManager.Enable(c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "enabled"})
}

// DisableSchedule handles POST /api/schedules/:id/disable.
// @Summary Disable a schedule
// @Tags schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} gin.H
// @Failure 400 {object} gin.H
// @Router /api/schedules/{id}/disable [post]
func DisableSchedule(c *gin.Context) {
	if err := scheduleManager.Disable(c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disabled"})
}

// RunScheduleNow handles POST /api/schedules/:id/run.
// @Summary Run a schedule immediately
// @Tags schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} gin.H
// @Failure 404 {object} gin.H
// @Router /api/schedules/{id}/run [post]
func RunScheduleNow(c *gin.Context) {
	if err := scheduleManager.RunNow(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// GetSchedulerStats handles GET /api/schedules/stats.
// @Summary Scheduler statistics
// @Tags schedules
// @Produce json
// @Success 200 {object} scheduler.Stats
// @Router /api/schedules/stats [get]
func GetSchedulerStats(c *gin.Context) {
	c.JSON(http.StatusOK, scheduleManager.GetStats())
}
