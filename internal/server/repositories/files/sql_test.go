package files

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*SQLRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewSQLRepository(db, dbx.Postgres), mock, db
}

func sampleRecord(at time.Time) *models.FileRecord {
	return &models.FileRecord{
		ID:           "0b4e7c1e-3f0a-4a59-9d4f-8f8c2f7a1c11",
		OwnerID:      "u1",
		OrgID:        "org1",
		DocumentType: "passport",
		FileName:     "scan.pdf",
		ContentType:  "application/pdf",
		Size:         1024,
		Algorithm:    "AES-256-GCM",
		Nonce:        []byte("123456789012"),
		KeyVersion:   1,
		StorageKey:   "passport/0b4e7c1e",
		CreatedAt:    at,
	}
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Now().UTC()
	rec := sampleRecord(at)

	q := `(?s)^INSERT\s+INTO\s+file_records\b.*VALUES\s*\(\$1, .*\$12\)$`
	mock.ExpectExec(q).
		WithArgs(rec.ID, "u1", "org1", "passport", "scan.pdf", "application/pdf", int64(1024),
			"AES-256-GCM", []byte("123456789012"), 1, "passport/0b4e7c1e", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT`).WillReturnError(errors.New("db down"))

	err := repo.Insert(context.Background(), sampleRecord(time.Now()))
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestInsert_RowsAffectedErr(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT`).WillReturnResult(sqlmock.NewErrorResult(errors.New("rows-err")))

	err := repo.Insert(context.Background(), sampleRecord(time.Now()))
	if err == nil || !regexp.MustCompile(`rows affected error: .*rows-err`).MatchString(err.Error()) {
		t.Fatalf("expected rows affected error, got %v", err)
	}
}

func TestListByOwner_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	want := sampleRecord(at)

	cols := []string{"id", "owner_id", "org_id", "document_type", "file_name", "content_type", "size",
		"algorithm", "nonce", "key_version", "storage_key", "created_at"}
	mock.ExpectQuery(`(?s)^SELECT .* FROM file_records\s+WHERE document_type = \$1 AND owner_id = \$2 ORDER BY created_at DESC, id$`).
		WithArgs("passport", "u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			want.ID, want.OwnerID, want.OrgID, want.DocumentType, want.FileName, want.ContentType, want.Size,
			want.Algorithm, want.Nonce, want.KeyVersion, want.StorageKey, want.CreatedAt))

	got, err := repo.ListByOwner(context.Background(), "passport", "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByOrg_QueryError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`org_id = \$2`).WithArgs("contract", "org1").WillReturnError(errors.New("boom"))

	_, err := repo.ListByOrg(context.Background(), "contract", "org1")
	if err == nil || !regexp.MustCompile(`failed to select files: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestListByOwner_ScanError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("x"))

	_, err := repo.ListByOwner(context.Background(), "passport", "u1")
	require.Error(t, err)
}
