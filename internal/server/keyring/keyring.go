// Package keyring holds the versioned master keys used to encrypt stored
// files and derives per document type keys from them.
//
// Old versions stay in the ring so records sealed before a rotation remain
// readable; new records always use the current version.
package keyring

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/datakeeper/internal/cryptox"
)

// FileKeyInfoPrefix prefixes the HKDF info string for file keys.
const FileKeyInfoPrefix = "datakeeper/file/"

var (
	ErrUnknownVersion = errors.New("unknown key version")
	ErrEmptyRing      = errors.New("key ring is empty")
)

// Spec describes one master key as it appears in configuration. Either Secret
// (base64, at least 32 bytes decoded) or Passphrase plus Salt must be set.
type Spec struct {
	Version    int    `json:"version"`
	Secret     string `json:"secret,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	Salt       string `json:"salt,omitempty"`
}

// Ring is immutable after New and safe for concurrent use.
type Ring struct {
	masters map[int][]byte
	current int
}

// New builds a ring from specs. current selects the version used for new
// records; zero picks the highest version present.
func New(specs []Spec, current int) (*Ring, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyRing
	}

	r := &Ring{masters: make(map[int][]byte, len(specs))}
	for _, s := range specs {
		if s.Version <= 0 {
			return nil, fmt.Errorf("key version must be positive, got %d", s.Version)
		}
		if _, dup := r.masters[s.Version]; dup {
			return nil, fmt.Errorf("duplicate key version %d", s.Version)
		}
		master, err := masterFromSpec(s)
		if err != nil {
			return nil, fmt.Errorf("key version %d: %w", s.Version, err)
		}
		r.masters[s.Version] = master
		if current == 0 && s.Version > r.current {
			r.current = s.Version
		}
	}

	if current != 0 {
		if _, ok := r.masters[current]; !ok {
			return nil, fmt.Errorf("%w: current version %d", ErrUnknownVersion, current)
		}
		r.current = current
	}
	return r, nil
}

func masterFromSpec(s Spec) ([]byte, error) {
	switch {
	case s.Secret != "" && s.Passphrase != "":
		return nil, errors.New("secret and passphrase are mutually exclusive")
	case s.Secret != "":
		b, err := base64.StdEncoding.DecodeString(s.Secret)
		if err != nil {
			return nil, fmt.Errorf("decode secret: %w", err)
		}
		if len(b) < cryptox.KeySize {
			return nil, fmt.Errorf("secret must be at least %d bytes", cryptox.KeySize)
		}
		return b, nil
	case s.Passphrase != "":
		if s.Salt == "" {
			return nil, errors.New("passphrase requires a salt")
		}
		return cryptox.DeriveMasterKey([]byte(s.Passphrase), []byte(s.Salt)), nil
	default:
		return nil, errors.New("either secret or passphrase is required")
	}
}

// Current returns the version used to seal new records.
func (r *Ring) Current() int {
	return r.current
}

// Versions lists the versions held, ascending.
func (r *Ring) Versions() []int {
	out := make([]int, 0, len(r.masters))
	for v := range r.masters {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// FileKey derives the key for documentType under the given master version.
func (r *Ring) FileKey(version int, documentType string) ([]byte, error) {
	master, ok := r.masters[version]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
	return cryptox.DeriveSubkey(master, FileKeyInfoPrefix+documentType)
}
