package models

import "time"

// BatchRecord remembers the outcome of an upsert submitted with an
// idempotency key.
type BatchRecord struct {
	Key       string
	ConfigID  string
	OwnerID   string
	Inserted  int
	Updated   int
	CreatedAt time.Time
}
