package types

// ErrorResponse is the JSON body of a failed API request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ArchiveStatus reports event log uploads since start.
type ArchiveStatus struct {
	Pending  int `json:"pending"`  // Uploads waiting for a retry
	Uploaded int `json:"uploaded"` // Files stored since start
}

// HealthResponse is the JSON body of /healthz.
type HealthResponse struct {
	Status   string `json:"status"`           // "ok" or "degraded"
	Reason   string `json:"reason,omitempty"` // Last sampler error when degraded
	Failures int    `json:"consecutive_failures"`
}
