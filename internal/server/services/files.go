package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/cryptox"
	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/server/auth"
	"github.com/dmitrijs2005/datakeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/datakeeper/internal/server/catalog"
	"github.com/dmitrijs2005/datakeeper/internal/server/config"
	"github.com/dmitrijs2005/datakeeper/internal/server/models"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultContentType is assumed for uploads that do not declare one.
const DefaultContentType = "application/octet-stream"

// KeyProvider hands out per document type file keys. *keyring.Ring
// implements it.
type KeyProvider interface {
	Current() int
	FileKey(version int, documentType string) ([]byte, error)
}

// FileService encrypts uploaded documents before they reach the blob store
// and decrypts them on listing.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	resolver    CatalogResolver
	keys        KeyProvider
	blobs       blobstore.Store
	concurrency int
	logger      logging.Logger
	now         func() time.Time
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, r CatalogResolver, keys KeyProvider,
	blobs blobstore.Store, cfg *config.Config, logger logging.Logger) *FileService {
	concurrency := cfg.DecryptConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &FileService{
		db:          db,
		repomanager: m,
		resolver:    r,
		keys:        keys,
		blobs:       blobs,
		concurrency: concurrency,
		logger:      logger.With("module", "file_service"),
		now:         time.Now,
	}
}

// GetStorageKey lays blobs out by document type and upload month.
func GetStorageKey(documentType, id string, t time.Time) string {
	return fmt.Sprintf("files/%s/%04d/%02d/%s", documentType, t.Year(), int(t.Month()), id)
}

// additionalData binds a ciphertext to its record so blobs cannot be swapped
// between files, types or owners.
func additionalData(rec *models.FileRecord) []byte {
	return []byte(rec.ID + "|" + rec.DocumentType + "|" + rec.OwnerID)
}

// authorize checks the caller's permitted set before the registry is
// consulted, so unpermitted tags are indistinguishable from unknown ones.
func (s *FileService) authorize(ctx context.Context, cred *auth.Credential, documentType string) (*catalog.DocumentType, error) {
	if cred == nil {
		return nil, common.ErrMissingCredential
	}
	if !cred.PermitsDocumentType(documentType) {
		return nil, fmt.Errorf("%w: document type %q", common.ErrorUnauthorized, documentType)
	}
	dt, err := s.resolver.DocumentType(ctx, documentType)
	if err != nil {
		return nil, err
	}
	if dt.Scope == catalog.ScopeOrganization && cred.OrgID == "" {
		return nil, fmt.Errorf("%w: document type %q is organization scoped", common.ErrorUnauthorized, documentType)
	}
	return dt, nil
}

// EncryptAndStore validates, encrypts and persists every file or none.
func (s *FileService) EncryptAndStore(ctx context.Context, cred *auth.Credential, documentType string, files []models.FileInput) ([]models.FileHandle, error) {
	dt, err := s.authorize(ctx, cred, documentType)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", common.ErrMalformedRequest)
	}

	var violations []models.RowViolation
	contentTypes := make([]string, len(files))
	for i, f := range files {
		if strings.TrimSpace(f.Name) == "" {
			violations = append(violations, models.RowViolation{Row: i, Column: "name", Reason: "file name is required"})
		}
		if dt.MaxSizeBytes > 0 && int64(len(f.Data)) > dt.MaxSizeBytes {
			violations = append(violations, models.RowViolation{Row: i, Column: "size",
				Reason: fmt.Sprintf("%d bytes exceeds the limit of %d", len(f.Data), dt.MaxSizeBytes)})
		}
		ct := f.ContentType
		if ct == "" {
			ct = DefaultContentType
		}
		if !dt.AllowsContentType(ct) {
			violations = append(violations, models.RowViolation{Row: i, Column: "content_type", Reason: fmt.Sprintf("content type %q is not allowed", ct)})
		}
		contentTypes[i] = ct
	}
	if len(violations) > 0 {
		return nil, &models.ValidationError{Violations: violations}
	}

	alg, err := cryptox.ParseAlgorithm(dt.Cipher)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	version := s.keys.Current()
	key, err := s.keys.FileKey(version, dt.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: file key: %w", common.ErrorInternal, err)
	}
	defer common.WipeByteArray(key)

	now := s.now().UTC()
	records := make([]*models.FileRecord, 0, len(files))
	var stored []string

	cleanup := func() {
		// the request context may already be gone
		bg := context.WithoutCancel(ctx)
		for _, k := range stored {
			if err := s.blobs.Delete(bg, k); err != nil {
				s.logger.Warn(ctx, "orphaned blob", "storage_key", k, "error", err)
			}
		}
	}

	for i, f := range files {
		id := uuid.NewString()
		rec := &models.FileRecord{
			ID:           id,
			OwnerID:      cred.UserID,
			OrgID:        cred.OrgID,
			DocumentType: dt.Tag,
			FileName:     f.Name,
			ContentType:  contentTypes[i],
			Size:         int64(len(f.Data)),
			Algorithm:    string(alg),
			KeyVersion:   version,
			StorageKey:   GetStorageKey(dt.Tag, id, now),
			CreatedAt:    now,
		}

		ciphertext, nonce, err := cryptox.Seal(alg, key, f.Data, additionalData(rec))
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("%w: encrypt: %w", common.ErrorInternal, err)
		}
		rec.Nonce = nonce

		if err := s.blobs.Put(ctx, rec.StorageKey, ciphertext); err != nil {
			cleanup()
			return nil, fmt.Errorf("store file %d: %w", i, err)
		}
		stored = append(stored, rec.StorageKey)
		records = append(records, rec)
	}

	err = dbx.WithTx(ctx, s.db, s.repomanager.Dialect().TxOptions(), func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Files(tx)
		for _, rec := range records {
			if err := repo.Insert(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("save file metadata: %w", err)
	}

	handles := make([]models.FileHandle, len(records))
	ids := make([]string, len(records))
	for i, rec := range records {
		handles[i] = models.FileHandle{ID: rec.ID, Name: rec.FileName, DocumentType: rec.DocumentType}
		ids[i] = rec.ID
	}
	s.logger.Info(ctx, "files stored", "document_type", dt.Tag, "count", len(records), "ids", ids, "key_version", version)
	return handles, nil
}

// ListAndDecrypt returns the caller's files of one type, newest first. A file
// that cannot be produced carries its own error and does not fail the
// listing.
func (s *FileService) ListAndDecrypt(ctx context.Context, cred *auth.Credential, documentType string) ([]models.DecryptedFile, error) {
	dt, err := s.authorize(ctx, cred, documentType)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Files(s.db)
	var recs []*models.FileRecord
	if dt.Scope == catalog.ScopeOrganization {
		recs, err = repo.ListByOrg(ctx, dt.Tag, cred.OrgID)
	} else {
		recs, err = repo.ListByOwner(ctx, dt.Tag, cred.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	out := make([]models.DecryptedFile, len(recs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, rec := range recs {
		out[i] = models.DecryptedFile{
			ID:           rec.ID,
			Name:         rec.FileName,
			ContentType:  rec.ContentType,
			DocumentType: rec.DocumentType,
			Size:         rec.Size,
			CreatedAt:    rec.CreatedAt,
		}
		g.Go(func() error {
			out[i].Data, out[i].Err = s.decrypt(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrTimeout, err)
	}

	failed := 0
	for _, f := range out {
		if f.Err != nil {
			failed++
		}
	}
	s.logger.Info(ctx, "files listed", "document_type", dt.Tag, "count", len(out), "failed", failed)
	return out, nil
}

func (s *FileService) decrypt(ctx context.Context, rec *models.FileRecord) ([]byte, error) {
	ciphertext, err := s.blobs.Get(ctx, rec.StorageKey)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: ciphertext of file %s", common.ErrorNotFound, rec.ID)
		}
		return nil, fmt.Errorf("file %s: %w", rec.ID, err)
	}

	plaintext, err := s.open(rec, ciphertext)
	if errors.Is(err, common.ErrDownstream) {
		s.logger.Error(ctx, "file key unavailable", "file_id", rec.ID, "key_version", rec.KeyVersion, "error", err)
		return nil, fmt.Errorf("file %s: %w", rec.ID, err)
	}
	if err != nil {
		s.logger.Warn(ctx, "file decryption failed",
			"audit", true,
			"file_id", rec.ID,
			"document_type", rec.DocumentType,
			"owner_id", rec.OwnerID,
			"key_version", rec.KeyVersion,
			"error", err,
		)
		return nil, fmt.Errorf("%w: file %s", common.ErrDecryptionFailed, rec.ID)
	}
	return plaintext, nil
}

func (s *FileService) open(rec *models.FileRecord, ciphertext []byte) ([]byte, error) {
	alg, err := cryptox.ParseAlgorithm(rec.Algorithm)
	if err != nil {
		return nil, err
	}
	key, err := s.keys.FileKey(rec.KeyVersion, rec.DocumentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDownstream, err)
	}
	defer common.WipeByteArray(key)
	plaintext, err := cryptox.Open(alg, key, rec.Nonce, ciphertext, additionalData(rec))
	if err != nil {
		return nil, err
	}
	if int64(len(plaintext)) != rec.Size {
		return nil, fmt.Errorf("size mismatch: got %d, recorded %d", len(plaintext), rec.Size)
	}
	return plaintext, nil
}
