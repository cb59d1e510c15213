package ratelimiter

// LimitKey identifies the resource being limited.
type LimitKey string

// Requirement is a requested reservation against a limit.
type Requirement struct {
	Key    LimitKey `json:"key"`
	Amount uint64   `json:"amount"`
}

// ReserveRequest asks to reserve capacity for a lease.
type ReserveRequest struct {
	LeaseID      string        `json:"lease_id"`
	JobID        string        `json:"job_id"`
	Requirements []Requirement `json:"requirements"`
}

// ReserveResponse reports whether a reservation was allowed.
type ReserveResponse struct {
	Allowed          bool   `json:"allowed"`
	RetryAfterMs     int    `json:"retry_after_ms"`
	ReservedAtUnixMs int64  `json:"reserved_at_unix_ms"`
	Error            string `json:"error"`
}

// CompleteRequest releases a lease once its job has finished.
type CompleteRequest struct {
	LeaseID string `json:"lease_id"`
	JobID   string `json:"job_id"`
}

// CompleteResponse reports whether completion succeeded.
type CompleteResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error"`
}

// RequestsKey returns the per-minute request limit key for a model.
func RequestsKey(model string) LimitKey {
	return LimitKey("rpm:" + model)
}
