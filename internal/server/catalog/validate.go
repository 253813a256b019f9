package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/datakeeper/internal/cryptox"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is safe to splice into SQL as a quoted
// identifier.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// ValidTarget accepts "table" or "schema.table".
func ValidTarget(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if !ValidIdentifier(p) {
			return false
		}
	}
	return true
}

// Validate checks every descriptor and registry invariant and reports all
// problems at once.
func Validate(cat *Catalog) error {
	var errs []error
	for id, d := range cat.Configs {
		for _, err := range validateDescriptor(d, cat) {
			errs = append(errs, fmt.Errorf("config %q: %w", id, err))
		}
	}
	for tag, t := range cat.DocumentTypes {
		for _, err := range validateDocumentType(t, cat) {
			errs = append(errs, fmt.Errorf("document type %q: %w", tag, err))
		}
	}
	return errors.Join(errs...)
}

func validateDescriptor(d *SchemaDescriptor, cat *Catalog) []error {
	var errs []error
	if strings.TrimSpace(d.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}

	switch d.Virtual {
	case "":
		if !ValidTarget(d.Target) {
			errs = append(errs, fmt.Errorf("invalid target %q", d.Target))
		}
	case VirtualDocumentTypes:
	default:
		errs = append(errs, fmt.Errorf("unknown virtual source %q", d.Virtual))
	}

	if len(d.Columns) == 0 {
		errs = append(errs, errors.New("at least one column is required"))
	}
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if !ValidIdentifier(c.Name) {
			errs = append(errs, fmt.Errorf("invalid column name %q", c.Name))
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("duplicate column %q", c.Name))
		}
		seen[c.Name] = true
		if !c.Type.valid() {
			errs = append(errs, fmt.Errorf("column %q: unknown type %q", c.Name, c.Type))
		}
	}

	if len(d.Keys) == 0 {
		errs = append(errs, errors.New("at least one key column is required"))
	}
	keySeen := make(map[string]bool, len(d.Keys))
	for _, k := range d.Keys {
		if !seen[k] {
			errs = append(errs, fmt.Errorf("key %q is not a column", k))
		}
		if keySeen[k] {
			errs = append(errs, fmt.Errorf("duplicate key %q", k))
		}
		keySeen[k] = true
	}

	for _, s := range d.DefaultSort {
		if !seen[s.Column] {
			errs = append(errs, fmt.Errorf("default sort column %q is not a column", s.Column))
		}
	}

	for _, tag := range d.DocumentTypes {
		t, ok := cat.DocumentTypes[tag]
		if !ok {
			errs = append(errs, fmt.Errorf("document type %q is not registered", tag))
			continue
		}
		if !t.ReferencedBy(d.ID) {
			errs = append(errs, fmt.Errorf("document type %q does not list this config", tag))
		}
	}
	return errs
}

func validateDocumentType(t *DocumentType, cat *Catalog) []error {
	var errs []error
	if !ValidIdentifier(t.Tag) {
		errs = append(errs, fmt.Errorf("invalid tag %q", t.Tag))
	}
	if t.MaxSizeBytes < 0 {
		errs = append(errs, errors.New("max_size_bytes must be positive"))
	}
	if _, err := cryptox.ParseAlgorithm(t.Cipher); err != nil {
		errs = append(errs, err)
	}
	if t.Scope != ScopeOwner && t.Scope != ScopeOrganization {
		errs = append(errs, fmt.Errorf("unknown scope %q", t.Scope))
	}
	for _, id := range t.ConfigIDs {
		if _, ok := cat.Configs[id]; !ok {
			errs = append(errs, fmt.Errorf("config %q is not defined", id))
		}
	}
	return errs
}
