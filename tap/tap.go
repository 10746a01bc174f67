package tap

import (
	"time"

	"tap-bigmarker/lib/bigmarker"
	"tap-bigmarker/lib/singer"
)

const Name = "tap-bigmarker"

const bookmarkLastDate = "last_date"

type Tap struct {
	Client  *bigmarker.Client
	Writer  *singer.Writer
	Catalog singer.Catalog
	State   singer.State

	// overridable clock so incremental bookmarks are testable
	Now func() time.Time

	// called whenever state is emitted, used to persist bookmarks to
	// the sqlite store
	OnStateFlush func(state singer.State) error

	schemasEmitted map[string]bool
}

func New(client *bigmarker.Client, writer *singer.Writer) *Tap {
	return &Tap{
		Client:         client,
		Writer:         writer,
		State:          singer.NewState(),
		Now:            time.Now,
		schemasEmitted: map[string]bool{},
	}
}

// Discover builds the catalog from the stream registry and the embedded
// schemas.
func Discover() (singer.Catalog, error) {
	catalog := singer.Catalog{}
	for _, stream := range Streams {
		schema, err := stream.SchemaJSON()
		if err != nil {
			return singer.Catalog{}, err
		}
		catalog.Streams = append(catalog.Streams, singer.CatalogEntry{
			TapStreamId:       stream.Name,
			Stream:            stream.Name,
			Schema:            schema,
			KeyProperties:     stream.PrimaryKeys,
			ReplicationMethod: stream.ReplicationMethod,
			ReplicationKey:    stream.ReplicationKey,
			Metadata: []singer.Metadata{
				{
					Breadcrumb: []string{},
					Metadata:   singer.MetadataFields{Inclusion: "available"},
				},
			},
		})
	}
	return catalog, nil
}
