package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"buckethop/pkg/config"
	"buckethop/pkg/models"
	"buckethop/pkg/s3url"
	"buckethop/pkg/state"
	"buckethop/pkg/storage"
	"buckethop/pkg/transfer"
)

var (
	taskManager      *state.Manager
	apiLog           = zap.NewNop()
	defaultWorkers   = 4
	defaultChunkSize = int64(8 * 1024 * 1024)
)

// InitTaskManager sets up the in-memory task registry and the background
// cleanup of old terminal tasks.
func InitTaskManager(log *zap.Logger, workers int, chunkSize int64) {
	if taskManager != nil {
		return
	}
	taskManager = state.NewManager()
	if log != nil {
		apiLog = log
	}
	if workers > 0 {
		defaultWorkers = workers
	}
	if chunkSize > 0 {
		defaultChunkSize = chunkSize
	}
	go cleanupOldTasks()
}

func cleanupOldTasks() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		if removed := taskManager.CleanupOlderThan(7 * 24 * time.Hour); removed > 0 {
			apiLog.Info("cleaned up old tasks", zap.Int("removed", removed))
		}
	}
}

// TransferRequest is the body of POST /api/transfers.
type TransferRequest struct {
	SourceURL         string              `json:"source_url" binding:"required"`
	DestURL           string              `json:"dest_url" binding:"required"`
	SourceCredentials *config.Credentials `json:"source_credentials"`
	DestCredentials   *config.Credentials `json:"dest_credentials"`
	Workers           int                 `json:"workers"`
	ChunkSize         int64               `json:"chunk_size"`
	DryRun            bool                `json:"dry_run"`
}

// startTransfer opens both stores, registers a task and launches the
// run. The returned channel delivers the run's terminal error (nil on a
// completed run) exactly once.
func startTransfer(req TransferRequest, scheduleID string) (*state.Task, <-chan error, error) {
	srcURL, err := s3url.Parse(req.SourceURL)
	if err != nil {
		return nil, nil, fmt.Errorf("source_url: %w", err)
	}
	dstURL, err := s3url.Parse(req.DestURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dest_url: %w", err)
	}

	workers := req.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	srcStore, err := storage.Open(ctx, srcURL, req.SourceCredentials, chunkSize)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("open source: %w", err)
	}
	dstStore, err := storage.Open(ctx, dstURL, req.DestCredentials, chunkSize)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("open destination: %w", err)
	}

	coordinator := transfer.New(
		transfer.Endpoint{Store: srcStore, Bucket: srcURL.Bucket, Prefix: srcURL.Prefix},
		transfer.Endpoint{Store: dstStore, Bucket: dstURL.Bucket, Prefix: dstURL.Prefix},
		transfer.Options{
			Workers:   workers,
			ChunkSize: chunkSize,
			DryRun:    req.DryRun,
			Logger:    apiLog,
		},
	)

	task := &state.Task{
		ID:          uuid.New().String(),
		Status:      state.StatusRunning,
		SourceURL:   srcURL.String(),
		DestURL:     dstURL.String(),
		DryRun:      req.DryRun,
		ScheduleID:  scheduleID,
		StartTime:   time.Now(),
		Coordinator: coordinator,
		Cancel:      cancel,
	}
	taskManager.Save(task)

	done := make(chan error, 1)
	go func() {
		defer cancel()
		summary, err := coordinator.Run(ctx)

		status := state.StatusCompleted
		switch {
		case err != nil:
			status = state.StatusFailed
		case summary.State == models.RunInterrupted:
			status = state.StatusCancelled
		}
		taskManager.Finish(task.ID, status, &summary, err)

		apiLog.Info("transfer finished",
			zap.String("task", task.ID),
			zap.String("status", string(status)),
			zap.Int64("transferred", summary.FilesTransferred),
			zap.Int64("failed", summary.FilesFailed))
		done <- err
	}()

	return task, done, nil
}

// taskResponse is a task plus, while the run is live, a progress
// snapshot taken at read time.
type taskResponse struct {
	*state.Task
	Progress *progressView `json:"progress,omitempty"`
}

type progressView struct {
	FilesDone        int64   `json:"files_done"`
	FilesTotal       int64   `json:"files_total"`
	FilesTransferred int64   `json:"files_transferred"`
	FilesSkipped     int64   `json:"files_skipped"`
	FilesFailed      int64   `json:"files_failed"`
	BytesDone        int64   `json:"bytes_done"`
	BytesTotal       int64   `json:"bytes_total"`
	Rate             float64 `json:"rate_bytes_per_sec"`
	ETASeconds       int64   `json:"eta_seconds,omitempty"`
	State            string  `json:"state"`
}

func viewOf(task *state.Task) taskResponse {
	resp := taskResponse{Task: task}
	coordinator := task.Coordinator
	if coordinator == nil {
		return resp
	}
	tracker := coordinator.Tracker()
	if tracker == nil {
		// Run has not reached the copying stage yet.
		resp.Progress = &progressView{State: string(coordinator.State())}
		return resp
	}
	snap := tracker.Snapshot()
	view := &progressView{
		FilesDone:        snap.FilesDone,
		FilesTotal:       snap.FilesTotal,
		FilesTransferred: snap.FilesTransferred,
		FilesSkipped:     snap.FilesSkipped,
		FilesFailed:      snap.FilesFailed,
		BytesDone:        snap.BytesDone,
		BytesTotal:       snap.BytesTotal,
		Rate:             snap.Rate,
		State:            string(coordinator.State()),
	}
	if snap.ETAKnown {
		view.ETASeconds = int64(snap.ETA / time.Second)
	}
	resp.Progress = view
	return resp
}

// HealthCheck handles GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StartTransfer handles POST /api/transfers.
// @Summary Start a transfer
// @Description Start an asynchronous bucket-to-bucket transfer
// @Tags transfers
// @Accept json
// @Produce json
// @Param request body TransferRequest true "Transfer request"
// @Success 202 {object} state.Task
// @Failure 400 {object} gin.H
// @Router /api/transfers [post]
func StartTransfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, _, err := startTransfer(req, "")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	apiLog.Info("transfer started",
		zap.String("task", task.ID),
		zap.String("source", task.SourceURL),
		zap.String("dest", task.DestURL),
		zap.Bool("dry_run", task.DryRun))
	c.JSON(http.StatusAccepted, viewOf(task))
}

// GetTransfer handles GET /api/transfers/:id.
// @Summary Get transfer status
// @Tags transfers
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} state.Task
// @Failure 404 {object} gin.H
// @Router /api/transfers/{id} [get]
func GetTransfer(c *gin.Context) {
	task, err := taskManager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, viewOf(task))
}

// ListTransfers handles GET /api/transfers.
// @Summary List transfers
// @Tags transfers
// @Produce json
// @Success 200 {array} state.Task
// @Router /api/transfers [get]
func ListTransfers(c *gin.Context) {
	tasks := taskManager.List()
	views := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, viewOf(task))
	}
	c.JSON(http.StatusOK, views)
}

// CancelTransfer handles DELETE /api/transfers/:id. Cancelling a running
// task requests cooperative shutdown; deleting a terminal task removes
// it from the registry.
// @Summary Cancel or delete a transfer
// @Tags transfers
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} gin.H
// @Failure 404 {object} gin.H
// @Router /api/transfers/{id} [delete]
func CancelTransfer(c *gin.Context) {
	id := c.Param("id")
	task, err := taskManager.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if !task.Terminal() {
		if task.Cancel != nil {
			task.Cancel()
		}
		apiLog.Info("transfer cancellation requested", zap.String("task", id))
		c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
		return
	}

	if err := taskManager.Delete(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
