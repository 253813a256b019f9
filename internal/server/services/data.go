package services

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/server/auth"
	"github.com/dmitrijs2005/datakeeper/internal/server/catalog"
	"github.com/dmitrijs2005/datakeeper/internal/server/config"
	"github.com/dmitrijs2005/datakeeper/internal/server/models"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/repomanager"
)

// CatalogResolver is the read side of catalog.Resolver used by the services.
type CatalogResolver interface {
	Resolve(ctx context.Context, configID string) (*catalog.SchemaDescriptor, error)
	DocumentType(ctx context.Context, tag string) (*catalog.DocumentType, error)
	Snapshot(ctx context.Context) *catalog.Catalog
}

// errBatchRecorded marks a lost race on an idempotency key.
var errBatchRecorded = errors.New("idempotency key already recorded")

// DataService runs bulk upserts and reads against descriptor-defined targets.
type DataService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	resolver     CatalogResolver
	chunkSize    int
	maxBatchRows int
	logger       logging.Logger
}

func NewDataService(db *sql.DB, m repomanager.RepositoryManager, r CatalogResolver, cfg *config.Config, logger logging.Logger) *DataService {
	return &DataService{
		db:           db,
		repomanager:  m,
		resolver:     r,
		chunkSize:    cfg.ChunkSize,
		maxBatchRows: cfg.MaxBatchRows,
		logger:       logger.With("module", "data_service"),
	}
}

// Upsert validates every row and applies the batch in the requested mode.
//
// In atomic mode any persistence failure rolls the batch back and is returned
// as an error. Chunked and per-row modes always return a result: failed and
// skipped chunks are reported in it and never undo committed ones.
func (s *DataService) Upsert(ctx context.Context, cred *auth.Credential, configID string, rows []models.Row, opts models.UpsertOptions) (*models.UpsertResult, error) {
	if cred == nil {
		return nil, common.ErrMissingCredential
	}

	d, err := s.resolver.Resolve(ctx, configID)
	if err != nil {
		return nil, err
	}

	if d.ReadOnly || d.Virtual != "" {
		if !cred.HasAnyScope(d.Access.Read) && !cred.HasAnyScope(d.Access.Write) {
			return nil, unknownConfig(configID)
		}
		return nil, fmt.Errorf("%w: config %q is read-only", common.ErrorUnauthorized, d.ID)
	}
	if !cred.HasAnyScope(d.Access.Write) {
		return nil, unknownConfig(configID)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty batch", common.ErrMalformedRequest)
	}
	if s.maxBatchRows > 0 && len(rows) > s.maxBatchRows {
		return nil, fmt.Errorf("%w: batch of %d rows exceeds the limit of %d", common.ErrMalformedRequest, len(rows), s.maxBatchRows)
	}

	mode, err := models.ParseUpsertMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	if opts.ChunkSize < 0 {
		return nil, fmt.Errorf("%w: negative chunk size", common.ErrMalformedRequest)
	}

	prepared, err := prepareRows(d, rows)
	if err != nil {
		return nil, err
	}

	switch mode {
	case models.ModeChunked:
		size := opts.ChunkSize
		if size == 0 {
			size = s.chunkSize
		}
		if size <= 0 {
			size = len(prepared)
		}
		return s.upsertChunks(ctx, cred, d, prepared, opts.IdempotencyKey, size), nil
	case models.ModePerRow:
		return s.upsertChunks(ctx, cred, d, prepared, opts.IdempotencyKey, 1), nil
	default:
		return s.upsertAtomic(ctx, cred, d, prepared, opts.IdempotencyKey)
	}
}

func (s *DataService) upsertAtomic(ctx context.Context, cred *auth.Credential, d *catalog.SchemaDescriptor, rows []models.Row, key string) (*models.UpsertResult, error) {
	res := &models.UpsertResult{Errors: []models.RowError{}}

	inserted, updated, replayed, err := s.commit(ctx, cred, d, rows, 0, key)
	if err != nil {
		s.logger.Error(ctx, "atomic upsert failed", "config_id", d.ID, "rows", len(rows), "error", err)
		return nil, fmt.Errorf("upsert %s: %w", d.ID, err)
	}

	res.Inserted, res.Updated, res.Replayed = inserted, updated, replayed
	s.logger.Info(ctx, "upsert applied", "config_id", d.ID, "mode", models.ModeAtomic,
		"inserted", inserted, "updated", updated, "replayed", replayed)
	return res, nil
}

func (s *DataService) upsertChunks(ctx context.Context, cred *auth.Credential, d *catalog.SchemaDescriptor, rows []models.Row, key string, size int) *models.UpsertResult {
	res := &models.UpsertResult{Errors: []models.RowError{}}

	committed, replayed := 0, 0
	for idx, start := 0, 0; start < len(rows); idx, start = idx+1, start+size {
		end := min(start+size, len(rows))
		out := models.ChunkOutcome{Index: idx, FirstRow: start, Rows: end - start}

		if err := ctx.Err(); err != nil {
			out.Status = models.ChunkSkipped
			out.Message = "not started: " + err.Error()
			for i := start; i < end; i++ {
				res.Errors = append(res.Errors, models.RowError{Row: i, Message: out.Message, Retryable: true, Err: err})
			}
			res.Chunks = append(res.Chunks, out)
			continue
		}

		ins, upd, rep, err := s.commit(ctx, cred, d, rows[start:end], start, chunkKey(key, idx))
		if err != nil {
			out.Status = models.ChunkFailed
			out.Message = err.Error()
			res.Errors = append(res.Errors, chunkRowErrors(start, end, err)...)
			res.Chunks = append(res.Chunks, out)
			s.logger.Warn(ctx, "upsert chunk failed", "config_id", d.ID, "chunk", idx, "rows", end-start, "error", err)
			continue
		}

		out.Status = models.ChunkCommitted
		out.Inserted, out.Updated, out.Replayed = ins, upd, rep
		res.Inserted += ins
		res.Updated += upd
		res.Chunks = append(res.Chunks, out)
		committed++
		if rep {
			replayed++
		}
	}

	res.Partial = committed > 0 && committed < len(res.Chunks)
	res.Replayed = replayed > 0 && replayed == len(res.Chunks)

	s.logger.Info(ctx, "upsert applied", "config_id", d.ID, "chunks", len(res.Chunks), "committed", committed,
		"inserted", res.Inserted, "updated", res.Updated, "failed_rows", len(res.Errors))
	return res
}

// commit applies rows in one transaction. With a key, a previously recorded
// outcome is returned instead and the data is not touched.
func (s *DataService) commit(ctx context.Context, cred *auth.Credential, d *catalog.SchemaDescriptor, rows []models.Row, first int, key string) (inserted, updated int, replayed bool, err error) {
	if key != "" {
		rec, err := s.lookupBatch(ctx, cred, d, key)
		if err != nil {
			return 0, 0, false, err
		}
		if rec != nil {
			return rec.Inserted, rec.Updated, true, nil
		}
	}

	err = dbx.WithTx(ctx, s.db, s.repomanager.Dialect().TxOptions(), func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Records(tx)
		ins, upd := 0, 0
		for i, row := range rows {
			created, err := repo.Upsert(ctx, d, row)
			if err != nil {
				return &rowFailure{row: first + i, err: err}
			}
			if created {
				ins++
			} else {
				upd++
			}
		}

		if key != "" {
			err := s.repomanager.Batches(tx).Insert(ctx, &models.BatchRecord{
				Key:       key,
				ConfigID:  d.ID,
				OwnerID:   cred.UserID,
				Inserted:  ins,
				Updated:   upd,
				CreatedAt: time.Now().UTC(),
			})
			if errors.Is(err, common.ErrConstraintViolation) {
				return errBatchRecorded
			}
			if err != nil {
				return err
			}
		}

		inserted, updated = ins, upd
		return nil
	})

	if errors.Is(err, errBatchRecorded) {
		// a concurrent request with the same key committed first
		rec, lerr := s.lookupBatch(ctx, cred, d, key)
		if lerr != nil {
			return 0, 0, false, lerr
		}
		if rec == nil {
			return 0, 0, false, fmt.Errorf("%w: idempotency key %q", common.ErrConflictPersistence, key)
		}
		return rec.Inserted, rec.Updated, true, nil
	}
	var rf *rowFailure
	if err != nil && !errors.As(err, &rf) {
		// begin and commit failures reach here unclassified
		err = dbx.Classify(err)
	}
	if err != nil {
		return 0, 0, false, err
	}
	return inserted, updated, false, nil
}

func (s *DataService) lookupBatch(ctx context.Context, cred *auth.Credential, d *catalog.SchemaDescriptor, key string) (*models.BatchRecord, error) {
	rec, err := s.repomanager.Batches(s.db).Get(ctx, cred.UserID, d.ID, key)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	return rec, nil
}

func chunkKey(key string, idx int) string {
	if key == "" {
		return ""
	}
	return fmt.Sprintf("%s#%d", key, idx)
}

// rowFailure names the row a transaction failed on.
type rowFailure struct {
	row int
	err error
}

func (f *rowFailure) Error() string {
	return fmt.Sprintf("row %d: %v", f.row, f.err)
}

func (f *rowFailure) Unwrap() error {
	return f.err
}

func chunkRowErrors(start, end int, err error) []models.RowError {
	culprit := -1
	var rf *rowFailure
	if errors.As(err, &rf) {
		culprit = rf.row
	}
	retryable := common.Retryable(err)

	out := make([]models.RowError, 0, end-start)
	for i := start; i < end; i++ {
		msg := "rolled back with its chunk"
		if i == culprit || culprit < 0 {
			msg = err.Error()
			if rf != nil {
				msg = rf.err.Error()
			}
		}
		out = append(out, models.RowError{Row: i, Message: msg, Retryable: retryable, Err: err})
	}
	return out
}

// prepareRows validates every row and returns coerced copies. All
// violations are collected before giving up.
func prepareRows(d *catalog.SchemaDescriptor, rows []models.Row) ([]models.Row, error) {
	var violations []models.RowViolation
	out := make([]models.Row, len(rows))

	for i, row := range rows {
		for _, k := range d.Keys {
			if v, ok := row[k]; !ok || v == nil {
				violations = append(violations, models.RowViolation{Row: i, Column: k, Reason: "key column is required"})
			}
		}

		names := make([]string, 0, len(row))
		for name := range row {
			names = append(names, name)
		}
		slices.Sort(names)

		clean := make(models.Row, len(row))
		for _, name := range names {
			c, ok := d.Column(name)
			if !ok {
				violations = append(violations, models.RowViolation{Row: i, Column: name, Reason: "unknown column"})
				continue
			}

			v := row[name]
			if v == nil {
				if !c.Nullable && !d.IsKey(name) {
					violations = append(violations, models.RowViolation{Row: i, Column: name, Reason: "null is not allowed"})
				}
				clean[name] = nil
				continue
			}

			cv, err := c.Type.Coerce(v)
			if err != nil {
				violations = append(violations, models.RowViolation{Row: i, Column: name, Reason: err.Error()})
				continue
			}

			if name == catalog.DocumentTypeColumn {
				if tag, ok := cv.(string); ok && !d.AllowsDocumentType(tag) {
					violations = append(violations, models.RowViolation{Row: i, Column: name, Reason: fmt.Sprintf("document type %q is not permitted", tag)})
					continue
				}
			}
			clean[name] = cv
		}
		out[i] = clean
	}

	if len(violations) > 0 {
		return nil, &models.ValidationError{Violations: violations}
	}
	return out, nil
}

// unknownConfig is returned to callers without access to a config so that
// a denied identifier cannot be told apart from a missing one.
func unknownConfig(id string) error {
	return fmt.Errorf("%w: %q", common.ErrUnknownConfig, id)
}

// Read returns a lazy sequence of rows matching filter. Store failures are
// yielded as common.ErrQueryFailed, never as a short result.
func (s *DataService) Read(ctx context.Context, cred *auth.Credential, configID string, filter models.Filter) (iter.Seq2[models.Row, error], error) {
	if cred == nil {
		return nil, common.ErrMissingCredential
	}

	d, err := s.resolver.Resolve(ctx, configID)
	if err != nil {
		return nil, err
	}
	if !cred.HasAnyScope(d.Access.Read) {
		return nil, unknownConfig(configID)
	}

	f, err := prepareFilter(d, filter)
	if err != nil {
		return nil, err
	}

	if d.Virtual == catalog.VirtualDocumentTypes {
		return s.readDocumentTypes(ctx, cred, d, f), nil
	}

	seq := s.repomanager.Records(s.db).Select(ctx, d, f)
	return func(yield func(models.Row, error) bool) {
		n := 0
		for row, err := range seq {
			if err != nil {
				s.logger.Error(ctx, "read failed", "config_id", d.ID, "after_rows", n, "error", err)
				yield(nil, fmt.Errorf("%w: %w", common.ErrQueryFailed, err))
				return
			}
			n++
			if !yield(row, nil) {
				return
			}
		}
	}, nil
}

func prepareFilter(d *catalog.SchemaDescriptor, filter models.Filter) (models.Filter, error) {
	var violations []models.RowViolation

	if filter.Limit < 0 {
		violations = append(violations, models.RowViolation{Reason: "limit must not be negative"})
	}

	out := models.Filter{Limit: filter.Limit, OrderBy: filter.OrderBy}
	if len(filter.Equals) > 0 {
		out.Equals = make(map[string]any, len(filter.Equals))
	}
	for name, v := range filter.Equals {
		c, ok := d.Column(name)
		if !ok {
			violations = append(violations, models.RowViolation{Column: name, Reason: "unknown column"})
			continue
		}
		if v == nil {
			out.Equals[name] = nil
			continue
		}
		cv, err := c.Type.Coerce(v)
		if err != nil {
			violations = append(violations, models.RowViolation{Column: name, Reason: err.Error()})
			continue
		}
		out.Equals[name] = cv
	}

	for _, o := range filter.OrderBy {
		if _, ok := d.Column(o.Column); !ok {
			violations = append(violations, models.RowViolation{Column: o.Column, Reason: "unknown sort column"})
		}
	}

	if len(violations) > 0 {
		slices.SortFunc(violations, func(a, b models.RowViolation) int { return cmp.Compare(a.Column, b.Column) })
		return models.Filter{}, &models.ValidationError{Violations: violations}
	}
	return out, nil
}

// readDocumentTypes enumerates the registry entries the caller may use.
func (s *DataService) readDocumentTypes(ctx context.Context, cred *auth.Credential, d *catalog.SchemaDescriptor, f models.Filter) iter.Seq2[models.Row, error] {
	cat := s.resolver.Snapshot(ctx)

	var rows []models.Row
	for _, tag := range cat.DocumentTypeTags() {
		if !cred.PermitsDocumentType(tag) || !d.AllowsDocumentType(tag) {
			continue
		}
		row := cat.DocumentTypes[tag].Row()
		if matchesEquals(d, row, f.Equals) {
			rows = append(rows, row)
		}
	}

	order := f.OrderBy
	if len(order) == 0 {
		order = d.DefaultSort
	}
	if len(order) > 0 {
		slices.SortStableFunc(rows, func(a, b models.Row) int {
			for _, o := range order {
				c := compareValues(a[o.Column], b[o.Column])
				if o.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}

	if f.Limit > 0 && len(rows) > f.Limit {
		rows = rows[:f.Limit]
	}

	return func(yield func(models.Row, error) bool) {
		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

func matchesEquals(d *catalog.SchemaDescriptor, row models.Row, equals map[string]any) bool {
	for name, want := range equals {
		got := row[name]
		if c, ok := d.Column(name); ok && c.Type == catalog.TypeJSON && got != nil {
			b, err := json.Marshal(got)
			if err != nil {
				return false
			}
			got = string(b)
		}
		if got != want {
			return false
		}
	}
	return true
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
