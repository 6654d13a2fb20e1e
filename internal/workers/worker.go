package workers

// Worker is a scheduled background job owned by the server process.
type Worker interface {
	// Start schedules the job and returns without waiting for a run
	Start() error

	// Stop waits for a running job to finish
	Stop()

	Name() string
}
