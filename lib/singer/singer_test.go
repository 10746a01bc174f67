package singer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriterEmitsOneMessagePerLine(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)

	schema := json.RawMessage(`{"type":"object","properties":{"id":{"type":"string"}}}`)
	require.NoError(t, w.WriteSchema("conferences", schema, []string{"id"}, []string{"last_date"}))

	extracted := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, w.WriteRecord("conferences", map[string]any{"id": "abc"}, extracted))

	state := NewState()
	state.Set("conferences", "last_date", int64(1714566600))
	require.NoError(t, w.WriteState(state))
	require.NoError(t, w.Flush())

	scanner := bufio.NewScanner(&out)

	require.True(t, scanner.Scan())
	var schemaMsg Message
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &schemaMsg))
	require.Equal(t, TypeSchema, schemaMsg.Type)
	require.Equal(t, "conferences", schemaMsg.Stream)
	require.Equal(t, []string{"id"}, schemaMsg.KeyProperties)
	require.Equal(t, []string{"last_date"}, schemaMsg.BookmarkProperties)

	require.True(t, scanner.Scan())
	var recordMsg Message
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &recordMsg))
	require.Equal(t, TypeRecord, recordMsg.Type)
	require.Equal(t, "abc", recordMsg.Record["id"])
	require.Equal(t, "2024-05-01T12:30:00Z", recordMsg.TimeExtracted)

	require.True(t, scanner.Scan())
	var stateMsg struct {
		Type  string `json:"type"`
		Value State  `json:"value"`
	}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &stateMsg))
	require.Equal(t, TypeState, stateMsg.Type)
	got, ok := stateMsg.Value.GetInt64("conferences", "last_date")
	require.True(t, ok)
	require.Equal(t, int64(1714566600), got)

	require.False(t, scanner.Scan())
}

func TestCatalogSelection(t *testing.T) {
	selected := false
	catalog := Catalog{
		Streams: []CatalogEntry{
			{
				TapStreamId: "channels",
				Metadata: []Metadata{
					{Breadcrumb: []string{}, Metadata: MetadataFields{Selected: &selected}},
				},
			},
			{TapStreamId: "conferences"},
		},
	}

	require.False(t, catalog.IsSelected("channels"))
	// no explicit selected flag defaults to selected
	require.True(t, catalog.IsSelected("conferences"))
	// streams missing from the catalog default to selected
	require.True(t, catalog.IsSelected("conferences_attendees"))
	// an empty catalog selects everything
	require.True(t, Catalog{}.IsSelected("channels"))
}

func TestStateRoundTripsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	err := os.WriteFile(path, []byte(`{
		"bookmarks": {
			"conferences": {"last_date": 1714566600, "foreign_field": "kept"}
		}
	}`), 0600)
	require.NoError(t, err)

	state, err := ReadState(path)
	require.NoError(t, err)

	last, ok := state.GetInt64("conferences", "last_date")
	require.True(t, ok)
	require.Equal(t, int64(1714566600), last)

	state.Set("conferences", "last_date", int64(1714600000))

	raw, err := json.Marshal(state)
	require.NoError(t, err)
	var roundTripped State
	require.NoError(t, json.Unmarshal(raw, &roundTripped))

	foreign, ok := roundTripped.Get("conferences", "foreign_field")
	require.True(t, ok)
	require.Equal(t, "kept", foreign)
}
