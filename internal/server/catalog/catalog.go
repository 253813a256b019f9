// Package catalog resolves opaque configuration identifiers to schema
// descriptors and keeps the document type registry.
//
// A Catalog is an immutable snapshot. The Resolver swaps whole snapshots in
// and out so a request never observes a half loaded catalog.
package catalog

import (
	"slices"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/server/models"
)

// VirtualDocumentTypes marks a descriptor that enumerates the document type
// registry instead of reading a table.
const VirtualDocumentTypes = "document_types"

// DocumentTypeColumn is the column checked against a descriptor's document
// type allowlist on upsert.
const DocumentTypeColumn = "document_type"

// Scopes a document type can be listed under.
const (
	ScopeOwner        = "owner"
	ScopeOrganization = "organization"
)

type Column struct {
	Name     string     `yaml:"name" json:"name"`
	Type     ColumnType `yaml:"type" json:"type"`
	Nullable bool       `yaml:"nullable" json:"nullable"`
}

// Access lists the credential scopes allowed to read and write. An empty list
// grants nothing.
type Access struct {
	Read  []string `yaml:"read" json:"read"`
	Write []string `yaml:"write" json:"write"`
}

// SchemaDescriptor maps a configuration identifier onto a store target.
// Descriptors handed out by the Resolver are shared and must not be mutated.
type SchemaDescriptor struct {
	ID            string
	Target        string
	Columns       []Column
	Keys          []string
	DocumentTypes []string
	Access        Access
	Enabled       bool
	ReadOnly      bool
	Virtual       string
	DefaultSort   []models.Sort

	byName map[string]int
}

// Column looks a column up by name.
func (d *SchemaDescriptor) Column(name string) (Column, bool) {
	if d.byName == nil {
		for _, c := range d.Columns {
			if c.Name == name {
				return c, true
			}
		}
		return Column{}, false
	}
	i, ok := d.byName[name]
	if !ok {
		return Column{}, false
	}
	return d.Columns[i], true
}

// IsKey reports whether name is one of the key columns.
func (d *SchemaDescriptor) IsKey(name string) bool {
	return slices.Contains(d.Keys, name)
}

// AllowsDocumentType reports whether the descriptor may reference tag.
func (d *SchemaDescriptor) AllowsDocumentType(tag string) bool {
	return len(d.DocumentTypes) == 0 || slices.Contains(d.DocumentTypes, tag)
}

func (d *SchemaDescriptor) index() {
	d.byName = make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		d.byName[c.Name] = i
	}
}

// DocumentType is one registry entry.
type DocumentType struct {
	Tag          string
	MaxSizeBytes int64
	ContentTypes []string
	Cipher       string
	Scope        string
	ConfigIDs    []string
}

// AllowsContentType reports whether ct is acceptable. An empty allowlist
// accepts anything.
func (t *DocumentType) AllowsContentType(ct string) bool {
	return len(t.ContentTypes) == 0 || slices.Contains(t.ContentTypes, ct)
}

// ReferencedBy reports whether configID may reference this type.
func (t *DocumentType) ReferencedBy(configID string) bool {
	return len(t.ConfigIDs) == 0 || slices.Contains(t.ConfigIDs, configID)
}

// Catalog is one loaded snapshot.
type Catalog struct {
	Configs       map[string]*SchemaDescriptor
	DocumentTypes map[string]*DocumentType
	LoadedAt      time.Time
}

// DocumentTypeTags returns the registered tags in sorted order.
func (c *Catalog) DocumentTypeTags() []string {
	tags := make([]string, 0, len(c.DocumentTypes))
	for t := range c.DocumentTypes {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}

// documentTypeColumns is the fixed shape of a virtual document_types read.
var documentTypeColumns = []Column{
	{Name: "tag", Type: TypeString},
	{Name: "max_size_bytes", Type: TypeInteger},
	{Name: "content_types", Type: TypeJSON, Nullable: true},
	{Name: "cipher", Type: TypeString},
	{Name: "scope", Type: TypeString},
}

// Row renders the registry entry in the virtual document_types shape.
func (t *DocumentType) Row() models.Row {
	cts := make([]any, 0, len(t.ContentTypes))
	for _, c := range t.ContentTypes {
		cts = append(cts, c)
	}
	return models.Row{
		"tag":            t.Tag,
		"max_size_bytes": t.MaxSizeBytes,
		"content_types":  cts,
		"cipher":         t.Cipher,
		"scope":          t.Scope,
	}
}
