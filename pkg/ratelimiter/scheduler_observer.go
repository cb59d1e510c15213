package ratelimiter

// SchedulerObserver receives scheduler lifecycle events for a job.
type SchedulerObserver interface {
	// OnReserveDenied signals a reserve denial with retry metadata.
	OnReserveDenied(job Job, res ReserveResponse)
	// OnReserveError signals a reserve error before retry.
	OnReserveError(job Job, err error)
	// OnJobStart signals that a worker picked up the job.
	OnJobStart(job Job)
}
