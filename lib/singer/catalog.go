package singer

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	ReplicationFullTable   = "FULL_TABLE"
	ReplicationIncremental = "INCREMENTAL"
)

type Catalog struct {
	Streams []CatalogEntry `json:"streams"`
}

type CatalogEntry struct {
	TapStreamId       string          `json:"tap_stream_id"`
	Stream            string          `json:"stream"`
	Schema            json.RawMessage `json:"schema"`
	KeyProperties     []string        `json:"key_properties"`
	ReplicationMethod string          `json:"replication_method"`
	ReplicationKey    string          `json:"replication_key,omitempty"`
	Metadata          []Metadata      `json:"metadata,omitempty"`
}

type Metadata struct {
	Breadcrumb []string       `json:"breadcrumb"`
	Metadata   MetadataFields `json:"metadata"`
}

type MetadataFields struct {
	Selected *bool  `json:"selected,omitempty"`
	Inclusion string `json:"inclusion,omitempty"`
}

func ReadCatalog(path string) (Catalog, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	var catalog Catalog
	if err := json.Unmarshal(contents, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return catalog, nil
}

func (c Catalog) entry(stream string) (CatalogEntry, bool) {
	for _, e := range c.Streams {
		if e.TapStreamId == stream {
			return e, true
		}
	}
	return CatalogEntry{}, false
}

// IsSelected reports whether a stream should be synced. Streams absent from
// the catalog, or present without an explicit selected flag on the
// stream-level breadcrumb, default to selected. An empty catalog (no
// --catalog given) selects everything.
func (c Catalog) IsSelected(stream string) bool {
	entry, ok := c.entry(stream)
	if !ok {
		return true
	}
	for _, md := range entry.Metadata {
		if len(md.Breadcrumb) != 0 {
			continue
		}
		if md.Metadata.Selected != nil {
			return *md.Metadata.Selected
		}
	}
	return true
}
