package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/cryptox"
	"github.com/dmitrijs2005/datakeeper/internal/server/models"
	"gopkg.in/yaml.v3"
)

// document is the on-disk catalog layout. JSON documents parse too since
// YAML is a superset.
type document struct {
	Configs       []configDoc       `yaml:"configs"`
	DocumentTypes []documentTypeDoc `yaml:"document_types"`
}

type configDoc struct {
	ID            string        `yaml:"id"`
	Target        string        `yaml:"target"`
	Columns       []Column      `yaml:"columns"`
	Keys          []string      `yaml:"keys"`
	DocumentTypes []string      `yaml:"document_types"`
	Access        Access        `yaml:"access"`
	Enabled       *bool         `yaml:"enabled"`
	ReadOnly      bool          `yaml:"read_only"`
	Virtual       string        `yaml:"virtual"`
	DefaultSort   []models.Sort `yaml:"default_sort"`
}

type documentTypeDoc struct {
	Tag          string   `yaml:"tag"`
	MaxSizeBytes int64    `yaml:"max_size_bytes"`
	ContentTypes []string `yaml:"content_types"`
	Cipher       string   `yaml:"cipher"`
	Scope        string   `yaml:"scope"`
	ConfigIDs    []string `yaml:"config_ids"`
}

// DefaultMaxSizeBytes applies to document types that do not set a limit.
const DefaultMaxSizeBytes = 10 << 20

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return build(doc.Configs, doc.DocumentTypes)
}

func decodeOne(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c configDoc) descriptor() *SchemaDescriptor {
	d := &SchemaDescriptor{
		ID:            c.ID,
		Target:        c.Target,
		Columns:       c.Columns,
		Keys:          c.Keys,
		DocumentTypes: c.DocumentTypes,
		Access:        c.Access,
		Enabled:       c.Enabled == nil || *c.Enabled,
		ReadOnly:      c.ReadOnly,
		Virtual:       c.Virtual,
		DefaultSort:   c.DefaultSort,
	}
	if d.Virtual == VirtualDocumentTypes {
		d.ReadOnly = true
		if len(d.Columns) == 0 {
			d.Columns = documentTypeColumns
		}
		if len(d.Keys) == 0 {
			d.Keys = []string{"tag"}
		}
	}
	return d
}

func (t documentTypeDoc) documentType() *DocumentType {
	dt := &DocumentType{
		Tag:          t.Tag,
		MaxSizeBytes: t.MaxSizeBytes,
		ContentTypes: t.ContentTypes,
		Cipher:       t.Cipher,
		Scope:        t.Scope,
		ConfigIDs:    t.ConfigIDs,
	}
	if dt.MaxSizeBytes == 0 {
		dt.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if dt.Cipher == "" {
		dt.Cipher = string(cryptox.AES256GCM)
	}
	if dt.Scope == "" {
		dt.Scope = ScopeOwner
	}
	return dt
}

func build(configs []configDoc, types []documentTypeDoc) (*Catalog, error) {
	cat := &Catalog{
		Configs:       make(map[string]*SchemaDescriptor, len(configs)),
		DocumentTypes: make(map[string]*DocumentType, len(types)),
		LoadedAt:      time.Now(),
	}

	var errs []error
	for _, c := range configs {
		if _, dup := cat.Configs[c.ID]; dup {
			errs = append(errs, fmt.Errorf("config %q: duplicate id", c.ID))
			continue
		}
		d := c.descriptor()
		d.index()
		cat.Configs[c.ID] = d
	}
	for _, t := range types {
		if _, dup := cat.DocumentTypes[t.Tag]; dup {
			errs = append(errs, fmt.Errorf("document type %q: duplicate tag", t.Tag))
			continue
		}
		cat.DocumentTypes[t.Tag] = t.documentType()
	}

	if err := Validate(cat); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cat, nil
}
