package model

import (
	"database/sql"
	"time"
)

// Job is the database row backing a submitted job.
type Job struct {
	JobID             string         `db:"job_id"`
	Name              string         `db:"name"`
	Command           string         `db:"command"`
	Stdin             []byte         `db:"stdin"`
	ResultSource      string         `db:"result_source"`
	MaxRuntimeSeconds int            `db:"max_runtime_seconds"`
	Status            string         `db:"status"`
	KillRequested     bool           `db:"kill_requested"`
	WorkerID          sql.NullString `db:"worker_id"`
	Stdout            string         `db:"stdout"`
	Stderr            string         `db:"stderr"`
	Result            []byte         `db:"result"`
	ReturnCode        sql.NullInt32  `db:"return_code"`
	ErrorMessage      string         `db:"error_message"`
	RetryCount        int            `db:"retry_count"`
	MaxRetries        int            `db:"max_retries"`
	CreatedAt         time.Time      `db:"created_at"`
	StartedAt         sql.NullTime   `db:"started_at"`
	FinishedAt        sql.NullTime   `db:"finished_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}
