package models

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/datakeeper/internal/common"
)

// UpsertMode selects the transactional shape of a bulk upsert.
type UpsertMode string

const (
	// ModeAtomic applies the whole batch in one transaction.
	ModeAtomic UpsertMode = "atomic"
	// ModeChunked commits fixed size chunks independently.
	ModeChunked UpsertMode = "chunked"
	// ModePerRow commits every row on its own.
	ModePerRow UpsertMode = "per_row"
)

// ParseUpsertMode maps the wire value to a mode. Empty means atomic.
func ParseUpsertMode(s string) (UpsertMode, error) {
	switch UpsertMode(s) {
	case "", ModeAtomic:
		return ModeAtomic, nil
	case ModeChunked, ModePerRow:
		return UpsertMode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", common.ErrMalformedRequest, s)
	}
}

type UpsertOptions struct {
	Mode           UpsertMode
	IdempotencyKey string
	// ChunkSize overrides the configured chunk size in chunked mode.
	ChunkSize int
}

// RowViolation is one validation failure. Row is the zero based index of the
// offending row or file.
type RowViolation struct {
	Row    int    `json:"row"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
}

// ValidationError carries every violation found in a request. It matches
// common.ErrValidationFailed with errors.Is.
type ValidationError struct {
	Violations []RowViolation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return common.ErrValidationFailed.Error()
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Column != "" {
			parts = append(parts, fmt.Sprintf("row %d column %s: %s", v.Row, v.Column, v.Reason))
		} else {
			parts = append(parts, fmt.Sprintf("row %d: %s", v.Row, v.Reason))
		}
	}
	return fmt.Sprintf("%s: %s", common.ErrValidationFailed, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return common.ErrValidationFailed
}

// RowError reports a row that was not persisted.
type RowError struct {
	Row       int    `json:"row"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Err       error  `json:"-"`
}

type ChunkStatus string

const (
	ChunkCommitted ChunkStatus = "committed"
	ChunkFailed    ChunkStatus = "failed"
	ChunkSkipped   ChunkStatus = "skipped"
)

// ChunkOutcome describes one independently committed unit of a chunked or
// per-row upsert.
type ChunkOutcome struct {
	Index    int         `json:"index"`
	FirstRow int         `json:"first_row"`
	Rows     int         `json:"rows"`
	Status   ChunkStatus `json:"status"`
	Inserted int         `json:"inserted"`
	Updated  int         `json:"updated"`
	Replayed bool        `json:"replayed,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// UpsertResult summarizes an upsert. Partial is set when some rows were
// committed and others were not.
type UpsertResult struct {
	Inserted int            `json:"inserted"`
	Updated  int            `json:"updated"`
	Errors   []RowError     `json:"errors"`
	Chunks   []ChunkOutcome `json:"chunks,omitempty"`
	Replayed bool           `json:"replayed,omitempty"`
	Partial  bool           `json:"partial,omitempty"`
}
