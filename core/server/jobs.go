package server

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// SystemJobIDs are PocketBase's own cron jobs.
var SystemJobIDs = []string{
	"__pbLogsCleanup__",
	"__pbOTPCleanup__",
	"__pbMFACleanup__",
	"__pbDBOptimize__",
}

// JobFunc is a job body. Returning an error marks the run as failed.
type JobFunc func(*JobExecutionLogger) error

// JobMetadata describes a registered job
type JobMetadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Expression  string    `json:"expression"`
	IsSystemJob bool      `json:"is_system_job"`
	CreatedAt   time.Time `json:"created_at"`

	LastRun *JobExecutionResult `json:"last_run,omitempty"`

	fn JobFunc
}

// JobExecutionResult represents the result of job execution
type JobExecutionResult struct {
	JobID       string        `json:"job_id"`
	Success     bool          `json:"success"`
	Duration    time.Duration `json:"duration"`
	Output      string        `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
	TriggerType string        `json:"trigger_type"`
	TriggerBy   string        `json:"trigger_by,omitempty"`
	ExecutedAt  time.Time     `json:"executed_at"`
}

// JobManager registers cron jobs on the app scheduler and records their runs
type JobManager struct {
	app         core.App
	jobRegistry map[string]*JobMetadata
	registryMux sync.RWMutex
}

// NewJobManager creates a new job manager instance
func NewJobManager(app core.App) *JobManager {
	return &JobManager{
		app:         app,
		jobRegistry: make(map[string]*JobMetadata),
	}
}

// RegisterJob registers a cron job with execution tracking
func (jm *JobManager) RegisterJob(jobID, jobName, description, expression string, fn JobFunc) error {
	if jobName == "" {
		jobName = jobID
	}

	metadata := &JobMetadata{
		ID:          jobID,
		Name:        jobName,
		Description: description,
		Expression:  expression,
		IsSystemJob: isSystemJob(jobID),
		CreatedAt:   time.Now(),
		fn:          fn,
	}

	jm.registryMux.Lock()
	jm.jobRegistry[jobID] = metadata
	jm.registryMux.Unlock()

	if err := jm.app.Cron().Add(jobID, expression, func() {
		_, _ = jm.execute(jobID, "scheduled", "")
	}); err != nil {
		jm.registryMux.Lock()
		delete(jm.jobRegistry, jobID)
		jm.registryMux.Unlock()
		return fmt.Errorf("failed to register job %s: %w", jobID, err)
	}

	jm.app.Logger().Info("Registered cron job",
		"job_id", jobID,
		"job_name", jobName,
		"expression", expression,
	)
	return nil
}

// ExecuteJobManually runs a registered job now
func (jm *JobManager) ExecuteJobManually(jobID, triggerBy string) (*JobExecutionResult, error) {
	return jm.execute(jobID, "manual", triggerBy)
}

func (jm *JobManager) execute(jobID, triggerType, triggerBy string) (*JobExecutionResult, error) {
	jm.registryMux.RLock()
	metadata, exists := jm.jobRegistry[jobID]
	jm.registryMux.RUnlock()

	if !exists || metadata.fn == nil {
		return nil, NewJobError("job_execute", "Job not found", http.StatusNotFound, fmt.Errorf("job not found: %s", jobID))
	}

	result := &JobExecutionResult{
		JobID:       jobID,
		TriggerType: triggerType,
		TriggerBy:   triggerBy,
		ExecutedAt:  time.Now(),
	}

	jobLogger := NewJobExecutionLogger(jobID)
	jobLogger.Start(metadata.Name)

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("job panic: %v", r)
			}
		}()
		runErr = metadata.fn(jobLogger)
	}()

	if runErr != nil {
		jobLogger.Fail(runErr)
		result.Error = runErr.Error()
	}
	result.Duration = time.Since(result.ExecutedAt)
	result.Output = jobLogger.GetOutput()
	result.Success = runErr == nil

	jm.registryMux.Lock()
	metadata.LastRun = result
	jm.registryMux.Unlock()

	if !result.Success {
		jm.app.Logger().Error("Job execution failed",
			"job_id", jobID,
			"trigger", triggerType,
			"duration", result.Duration,
			"error", result.Error,
		)
		return result, NewJobError("job_execute", "Job execution failed", http.StatusInternalServerError, runErr)
	}

	jm.app.Logger().Info("Job execution completed",
		"job_id", jobID,
		"trigger", triggerType,
		"duration", result.Duration,
		"output_length", len(result.Output),
	)
	return result, nil
}

// GetJobs lists every scheduled job, sorted by id
func (jm *JobManager) GetJobs(includeSystem bool) []JobMetadata {
	jobs := jm.app.Cron().Jobs()
	result := make([]JobMetadata, 0, len(jobs))

	jm.registryMux.RLock()
	defer jm.registryMux.RUnlock()

	for _, job := range jobs {
		jobID := job.Id()
		if !includeSystem && isSystemJob(jobID) {
			continue
		}

		if metadata, exists := jm.jobRegistry[jobID]; exists {
			result = append(result, *metadata)
			continue
		}

		result = append(result, JobMetadata{
			ID:          jobID,
			Name:        jobID,
			Expression:  job.Expression(),
			IsSystemJob: isSystemJob(jobID),
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// RegisterRoutes binds the superuser job endpoints
func (jm *JobManager) RegisterRoutes(e *core.ServeEvent) {
	g := e.Router.Group("/api/cron/jobs")
	g.Bind(apis.RequireSuperuserAuth())

	g.GET("", func(c *core.RequestEvent) error {
		includeSystem := c.Request.URL.Query().Get("system") == "true"
		return c.JSON(http.StatusOK, map[string]any{
			"jobs":        jm.GetJobs(includeSystem),
			"has_started": jm.app.Cron().HasStarted(),
		})
	})

	g.POST("/{id}/run", func(c *core.RequestEvent) error {
		triggerBy := ""
		if c.Auth != nil {
			triggerBy = c.Auth.Id
		}

		result, err := jm.ExecuteJobManually(c.Request.PathValue("id"), triggerBy)
		if result == nil {
			return err
		}
		return c.JSON(http.StatusOK, result)
	})
}

func isSystemJob(jobID string) bool {
	return slices.Contains(SystemJobIDs, jobID)
}

// JobExecutionLogger collects the output of one job run
type JobExecutionLogger struct {
	jobID     string
	buffer    bytes.Buffer
	mutex     sync.Mutex
	startTime time.Time
}

// NewJobExecutionLogger creates a logger for one run of jobID
func NewJobExecutionLogger(jobID string) *JobExecutionLogger {
	return &JobExecutionLogger{jobID: jobID, startTime: time.Now()}
}

// Info logs an info-level message
func (jel *JobExecutionLogger) Info(format string, args ...any) {
	jel.log("INFO", format, args...)
}

// Warn logs a warning-level message
func (jel *JobExecutionLogger) Warn(format string, args ...any) {
	jel.log("WARN", format, args...)
}

// Error logs an error-level message
func (jel *JobExecutionLogger) Error(format string, args ...any) {
	jel.log("ERROR", format, args...)
}

// Start logs the beginning of a job execution
func (jel *JobExecutionLogger) Start(jobName string) {
	jel.log("INFO", "Starting job: %s", jobName)
}

// Complete logs successful completion of a job
func (jel *JobExecutionLogger) Complete(message string) {
	jel.log("INFO", "Job completed in %v: %s", time.Since(jel.startTime), message)
}

// Fail logs job failure with error details
func (jel *JobExecutionLogger) Fail(err error) {
	jel.log("ERROR", "Job failed after %v: %v", time.Since(jel.startTime), err)
}

func (jel *JobExecutionLogger) log(level, format string, args ...any) {
	jel.mutex.Lock()
	defer jel.mutex.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(&jel.buffer, "[%s] [%s] [%s] %s\n", timestamp, level, jel.jobID, fmt.Sprintf(format, args...))
}

// GetOutput returns all accumulated log output for this job execution
func (jel *JobExecutionLogger) GetOutput() string {
	jel.mutex.Lock()
	defer jel.mutex.Unlock()
	return jel.buffer.String()
}
