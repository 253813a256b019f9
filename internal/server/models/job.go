package models

// JobDescriptor is forwarded verbatim to the job platform.
type JobDescriptor struct {
	Name           string         `json:"name"`
	Payload        map[string]any `json:"payload,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// JobAck is the platform's acknowledgement.
type JobAck struct {
	JobID    string `json:"job_id,omitempty"`
	Status   string `json:"status,omitempty"`
	Accepted bool   `json:"accepted"`
}
