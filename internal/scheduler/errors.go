package scheduler

import "errors"

// Admin-surface errors.
var (
	ErrScheduleNotFound      = errors.New("schedule not found")
	ErrScheduleAlreadyExists = errors.New("schedule already exists")
	ErrInvalidCronExpression = errors.New("invalid cron expression")
	ErrInvalidCommand        = errors.New("invalid command")
	ErrExecutionFailed       = errors.New("execution failed")
	ErrServerNotAvailable    = errors.New("server not available")
	ErrSchedulerNotStarted   = errors.New("scheduler not started")
)
