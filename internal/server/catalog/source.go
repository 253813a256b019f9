package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/datakeeper/internal/dbx"
)

// Source produces a fresh, validated catalog on every call.
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
}

// FileSource reads a YAML (or JSON) catalog document from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Load(_ context.Context) (*Catalog, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// DBSource reads descriptors from the data_configs and document_types tables.
// Each row holds one YAML or JSON definition; the enabled column lets an
// operator switch a config off without editing its definition.
type DBSource struct {
	DB      dbx.DBTX
	Dialect dbx.Dialect
}

func (s DBSource) Load(ctx context.Context) (*Catalog, error) {
	types, err := s.loadDocumentTypes(ctx)
	if err != nil {
		return nil, err
	}
	configs, err := s.loadConfigs(ctx)
	if err != nil {
		return nil, err
	}
	return build(configs, types)
}

func (s DBSource) loadConfigs(ctx context.Context) ([]configDoc, error) {
	rows, err := s.DB.QueryContext(ctx, s.Dialect.Bind(`SELECT id, definition, enabled FROM data_configs ORDER BY id`))
	if err != nil {
		return nil, fmt.Errorf("query data_configs: %w", err)
	}
	defer rows.Close()

	var out []configDoc
	for rows.Next() {
		var (
			id, def string
			enabled bool
		)
		if err := rows.Scan(&id, &def, &enabled); err != nil {
			return nil, fmt.Errorf("scan data_configs: %w", err)
		}
		var c configDoc
		if err := decodeOne([]byte(def), &c); err != nil {
			return nil, fmt.Errorf("config %q: %w", id, err)
		}
		c.ID = id
		if !enabled {
			c.Enabled = &enabled
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s DBSource) loadDocumentTypes(ctx context.Context) ([]documentTypeDoc, error) {
	rows, err := s.DB.QueryContext(ctx, s.Dialect.Bind(`SELECT tag, definition FROM document_types ORDER BY tag`))
	if err != nil {
		return nil, fmt.Errorf("query document_types: %w", err)
	}
	defer rows.Close()

	var out []documentTypeDoc
	for rows.Next() {
		var tag, def string
		if err := rows.Scan(&tag, &def); err != nil {
			return nil, fmt.Errorf("scan document_types: %w", err)
		}
		var t documentTypeDoc
		if err := decodeOne([]byte(def), &t); err != nil {
			return nil, fmt.Errorf("document type %q: %w", tag, err)
		}
		t.Tag = tag
		out = append(out, t)
	}
	return out, rows.Err()
}
