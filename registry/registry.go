// Package registry holds the pre-encoded registry and tag tables streamed to
// clients during configuration. The tables are produced by an external tool
// and are opaque to the server.
package registry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is one registry element. Data is the pre-encoded element payload and
// is nil when the client is expected to know the element already.
type Entry struct {
	Key  string `json:"key"`
	Data []byte `json:"data,omitempty"`
}

type Registry struct {
	ID      string  `json:"id"`
	Entries []Entry `json:"entries"`
}

type Tag struct {
	ID      string  `json:"id"`
	Entries []int32 `json:"entries"`
}

type TagRegistry struct {
	ID   string `json:"id"`
	Tags []Tag  `json:"tags"`
}

// Tables is the full set of registry and tag data. It is never mutated after
// loading.
type Tables struct {
	Registries []Registry    `json:"registries"`
	Tags       []TagRegistry `json:"tags"`
}

// Empty returns tables with no registries and no tags.
func Empty() *Tables {
	return &Tables{}
}

// Load reads tables from a JSON document. Paths ending in .gz are gunzipped.
func Load(path string) (*Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry tables: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	return Decode(r)
}

// Decode parses tables from r and validates them.
func Decode(r io.Reader) (*Tables, error) {
	var t Tables
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("parse registry tables: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks identifiers are present and unique within their scope.
func (t *Tables) Validate() error {
	seen := make(map[string]bool, len(t.Registries))
	for i, reg := range t.Registries {
		if reg.ID == "" {
			return fmt.Errorf("registry[%d]: empty id", i)
		}
		if seen[reg.ID] {
			return fmt.Errorf("registry %q: duplicate id", reg.ID)
		}
		seen[reg.ID] = true
		for j, e := range reg.Entries {
			if e.Key == "" {
				return fmt.Errorf("registry %q entry[%d]: empty key", reg.ID, j)
			}
		}
	}

	seen = make(map[string]bool, len(t.Tags))
	for i, tr := range t.Tags {
		if tr.ID == "" {
			return fmt.Errorf("tags[%d]: empty registry id", i)
		}
		if seen[tr.ID] {
			return fmt.Errorf("tags %q: duplicate registry id", tr.ID)
		}
		seen[tr.ID] = true
	}
	return nil
}

// IndexOf returns the position of key inside the registry with the given id.
func (t *Tables) IndexOf(registryID, key string) (int, bool) {
	for _, reg := range t.Registries {
		if reg.ID != registryID {
			continue
		}
		for i, e := range reg.Entries {
			if e.Key == key {
				return i, true
			}
		}
		return 0, false
	}
	return 0, false
}
