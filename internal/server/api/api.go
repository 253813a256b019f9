// Package api holds the wire shapes shared by the HTTP and gRPC transports
// and the request handling both of them delegate to. Transports only decode,
// attach the credential and map errors onto their status codes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/server/auth"
	"github.com/dmitrijs2005/datakeeper/internal/server/jobs"
	"github.com/dmitrijs2005/datakeeper/internal/server/models"
)

// DataEngine is implemented by services.DataService.
type DataEngine interface {
	Upsert(ctx context.Context, cred *auth.Credential, configID string, rows []models.Row, opts models.UpsertOptions) (*models.UpsertResult, error)
	Read(ctx context.Context, cred *auth.Credential, configID string, filter models.Filter) (iter.Seq2[models.Row, error], error)
}

// FileVault is implemented by services.FileService.
type FileVault interface {
	EncryptAndStore(ctx context.Context, cred *auth.Credential, documentType string, files []models.FileInput) ([]models.FileHandle, error)
	ListAndDecrypt(ctx context.Context, cred *auth.Credential, documentType string) ([]models.DecryptedFile, error)
}

type UpsertRequest struct {
	ConfigID       string       `json:"config_id"`
	InputRows      []models.Row `json:"input_rows"`
	Mode           string       `json:"mode,omitempty"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
	ChunkSize      int          `json:"chunk_size,omitempty"`
}

type UpsertResponse struct {
	Success  bool                  `json:"success"`
	Inserted int                   `json:"inserted"`
	Updated  int                   `json:"updated"`
	Errors   []models.RowError     `json:"errors"`
	Chunks   []models.ChunkOutcome `json:"chunks,omitempty"`
	Replayed bool                  `json:"replayed,omitempty"`
	Partial  bool                  `json:"partial,omitempty"`
}

type ReadRequest struct {
	ConfigID string         `json:"config_id"`
	Filter   *models.Filter `json:"filter,omitempty"`
}

type ReadResponse struct {
	Success bool         `json:"success"`
	Rows    []models.Row `json:"rows"`
}

// FileUpload carries one file in a JSON upload. Bytes travel base64 encoded.
type FileUpload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Bytes       []byte `json:"bytes"`
}

type StoreFilesRequest struct {
	// DocumentType is taken from the URL on HTTP.
	DocumentType string       `json:"document_type,omitempty"`
	Files        []FileUpload `json:"files"`
}

type StoreFilesResponse struct {
	Success bool                `json:"success"`
	Files   []models.FileHandle `json:"files"`
}

type ListFilesRequest struct {
	DocumentType string `json:"document_type"`
}

// FileView is one listed file. Exactly one of Bytes and Error is set.
type FileView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContentType  string    `json:"content_type"`
	DocumentType string    `json:"document_type"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
	Bytes        []byte    `json:"bytes,omitempty"`
	Error        string    `json:"error,omitempty"`
}

type ListFilesResponse struct {
	Success bool       `json:"success"`
	Files   []FileView `json:"files"`
}

type JobRequest struct {
	Job *models.JobDescriptor `json:"job"`
}

type JobResponse struct {
	Success bool `json:"success"`
	models.JobAck
}

// ErrorResponse is the uniform failure envelope.
type ErrorResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Errors  []models.RowViolation `json:"errors,omitempty"`
}

// Decode reads exactly one JSON document into v. Numbers stay json.Number so large
// integers survive, and unknown fields are rejected.
func Decode(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", common.ErrMalformedRequest)
		}
		return fmt.Errorf("%w: %w", common.ErrMalformedRequest, err)
	}
	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after the request body", common.ErrMalformedRequest)
	}
	return nil
}

// DecodeBytes is Decode over a byte slice.
func DecodeBytes(b []byte, v any) error {
	return Decode(bytes.NewReader(b), v)
}

// Backend dispatches decoded requests to the services.
type Backend struct {
	Data  DataEngine
	Files FileVault
	Jobs  jobs.Dispatcher
}

func (b *Backend) Upsert(ctx context.Context, cred *auth.Credential, req *UpsertRequest) (*UpsertResponse, error) {
	if strings.TrimSpace(req.ConfigID) == "" {
		return nil, fmt.Errorf("%w: config_id is required", common.ErrMalformedRequest)
	}
	mode, err := models.ParseUpsertMode(req.Mode)
	if err != nil {
		return nil, err
	}

	res, err := b.Data.Upsert(ctx, cred, req.ConfigID, req.InputRows, models.UpsertOptions{
		Mode:           mode,
		IdempotencyKey: req.IdempotencyKey,
		ChunkSize:      req.ChunkSize,
	})
	if err != nil {
		return nil, err
	}

	errs := res.Errors
	if errs == nil {
		errs = []models.RowError{}
	}
	return &UpsertResponse{
		Success:  len(res.Errors) == 0,
		Inserted: res.Inserted,
		Updated:  res.Updated,
		Errors:   errs,
		Chunks:   res.Chunks,
		Replayed: res.Replayed,
		Partial:  res.Partial,
	}, nil
}

// Read drains the row sequence; a store failure part way fails the request.
func (b *Backend) Read(ctx context.Context, cred *auth.Credential, req *ReadRequest) (*ReadResponse, error) {
	if strings.TrimSpace(req.ConfigID) == "" {
		return nil, fmt.Errorf("%w: config_id is required", common.ErrMalformedRequest)
	}
	var filter models.Filter
	if req.Filter != nil {
		filter = *req.Filter
	}

	seq, err := b.Data.Read(ctx, cred, req.ConfigID, filter)
	if err != nil {
		return nil, err
	}

	rows := []models.Row{}
	for row, err := range seq {
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return &ReadResponse{Success: true, Rows: rows}, nil
}

func (b *Backend) StoreFiles(ctx context.Context, cred *auth.Credential, documentType string, files []models.FileInput) (*StoreFilesResponse, error) {
	if strings.TrimSpace(documentType) == "" {
		return nil, fmt.Errorf("%w: document type is required", common.ErrMalformedRequest)
	}
	handles, err := b.Files.EncryptAndStore(ctx, cred, documentType, files)
	if err != nil {
		return nil, err
	}
	return &StoreFilesResponse{Success: true, Files: handles}, nil
}

func (b *Backend) ListFiles(ctx context.Context, cred *auth.Credential, documentType string) (*ListFilesResponse, error) {
	if strings.TrimSpace(documentType) == "" {
		return nil, fmt.Errorf("%w: document type is required", common.ErrMalformedRequest)
	}
	files, err := b.Files.ListAndDecrypt(ctx, cred, documentType)
	if err != nil {
		return nil, err
	}

	out := make([]FileView, len(files))
	for i, f := range files {
		out[i] = FileView{
			ID:           f.ID,
			Name:         f.Name,
			ContentType:  f.ContentType,
			DocumentType: f.DocumentType,
			Size:         f.Size,
			CreatedAt:    f.CreatedAt,
			Bytes:        f.Data,
		}
		if f.Err != nil {
			out[i].Bytes = nil
			out[i].Error = f.Err.Error()
		}
	}
	return &ListFilesResponse{Success: true, Files: out}, nil
}

func (b *Backend) DispatchJob(ctx context.Context, cred *auth.Credential, req *JobRequest) (*JobResponse, error) {
	if req.Job == nil {
		return nil, fmt.Errorf("%w: job is required", common.ErrMalformedRequest)
	}
	ack, err := b.Jobs.Dispatch(ctx, cred, *req.Job)
	if err != nil {
		return nil, err
	}
	return &JobResponse{Success: true, JobAck: *ack}, nil
}

// Uploads converts JSON uploads to service input.
func Uploads(files []FileUpload) []models.FileInput {
	out := make([]models.FileInput, len(files))
	for i, f := range files {
		out[i] = models.FileInput{Name: f.Name, ContentType: f.ContentType, Data: f.Bytes}
	}
	return out
}

// Message renders err for a caller. Store and internal failures are not
// spelled out.
func Message(err error) string {
	switch {
	case errors.Is(err, common.ErrQueryFailed):
		return common.ErrQueryFailed.Error()
	case errors.Is(err, common.ErrorInternal):
		return common.ErrorInternal.Error()
	case isClassified(err):
		return err.Error()
	default:
		return common.ErrorInternal.Error()
	}
}

// Violations extracts validation details, if any.
func Violations(err error) []models.RowViolation {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return verr.Violations
	}
	return nil
}

var classified = []error{
	common.ErrMalformedRequest,
	common.ErrMissingCredential,
	common.ErrInvalidToken,
	common.ErrTokenExpired,
	common.ErrorUnauthorized,
	common.ErrUnknownConfig,
	common.ErrConfigDisabled,
	common.ErrUnknownDocumentType,
	common.ErrorNotFound,
	common.ErrValidationFailed,
	common.ErrConflictPersistence,
	common.ErrConstraintViolation,
	common.ErrDecryptionFailed,
	common.ErrTimeout,
	common.ErrDownstream,
	common.ErrJobRejected,
}

func isClassified(err error) bool {
	for _, c := range classified {
		if errors.Is(err, c) {
			return true
		}
	}
	return false
}
