package model

import "time"

// Command types dispatched by the scheduler.
const (
	CommandServerMessage    = "server-message"
	CommandServerMonitoring = "server-monitoring"
)

// CommandSpec is the executor selector plus its free-form parameters.
type CommandSpec struct {
	Type   string            `yaml:"type"`
	Params map[string]string `yaml:"params"`
}

// ServerFilter narrows which servers a schedule runs on. A nil filter
// matches all servers. ServerIDs whitelists, ExcludeServerIDs blacklists
// and is applied after the whitelist.
type ServerFilter struct {
	ServerIDs        []int    `yaml:"server_ids"`
	ExcludeServerIDs []int    `yaml:"exclude_server_ids"`
	MinPlayers       *int     `yaml:"min_players"`
	MaxPlayers       *int     `yaml:"max_players"`
	GameTypes        []string `yaml:"game_types"`
	Tags             []string `yaml:"tags"`
}

// ScheduledCommand is one administrator-defined cron job.
type ScheduledCommand struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	CronExpression string            `yaml:"cron"`
	Command        CommandSpec       `yaml:"command"`
	Enabled        bool              `yaml:"enabled"`
	Filter         *ServerFilter     `yaml:"filter"`
	MaxRetries     *int              `yaml:"max_retries"`
	RetryOnFailure *bool             `yaml:"retry_on_failure"`
	Timeout        time.Duration     `yaml:"timeout"`
	Metadata       map[string]string `yaml:"metadata"`
}

// ScheduleStats accumulates per-job execution counters.
type ScheduleStats struct {
	Total                 int
	Successful            int
	Failed                int
	LastExecutionStart    time.Time
	LastExecutionEnd      time.Time
	LastExecutionDuration time.Duration
}

// Execution result statuses.
const (
	ExecutionSuccess = "success"
	ExecutionFailed  = "failed"
)

// ExecutionResult records one (schedule, server) execution.
type ExecutionResult struct {
	ExecutionID      string
	ScheduleID       string
	ServerID         int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
	Status           string
	ServersProcessed int
	CommandsSent     int
	Errors           []string
}
