package domain

// Job is the claimed job a worker executes.
type Job struct {
	JobID             string
	Name              string
	Command           string
	Stdin             []byte
	ResultSource      string
	MaxRuntimeSeconds int
	Status            string
	WorkerID          string
	RetryCount        int
	MaxRetries        int
}

// JobMessage represents a job message from RabbitMQ
type JobMessage struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}
