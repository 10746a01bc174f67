// Package singer implements the subset of the Singer protocol this tap
// needs: SCHEMA/RECORD/STATE messages as JSON lines, catalogs with stream
// selection, and bookmark state.
package singer

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
	"time"
)

const (
	TypeSchema = "SCHEMA"
	TypeRecord = "RECORD"
	TypeState  = "STATE"
)

type Message struct {
	Type               string          `json:"type"`
	Stream             string          `json:"stream,omitempty"`
	Schema             json.RawMessage `json:"schema,omitempty"`
	Record             map[string]any  `json:"record,omitempty"`
	Value              any             `json:"value,omitempty"`
	KeyProperties      []string        `json:"key_properties,omitempty"`
	BookmarkProperties []string        `json:"bookmark_properties,omitempty"`
	TimeExtracted      string          `json:"time_extracted,omitempty"`
}

// Writer emits singer messages as JSON lines. It is safe for concurrent
// use, messages are never interleaved within a line.
type Writer struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	return &Writer{
		buf: buf,
		enc: json.NewEncoder(buf),
	}
}

func (w *Writer) write(msg Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	// json.Encoder.Encode appends the trailing newline
	return w.enc.Encode(msg)
}

func (w *Writer) WriteSchema(stream string, schema json.RawMessage, keyProperties, bookmarkProperties []string) error {
	return w.write(Message{
		Type:               TypeSchema,
		Stream:             stream,
		Schema:             schema,
		KeyProperties:      keyProperties,
		BookmarkProperties: bookmarkProperties,
	})
}

func (w *Writer) WriteRecord(stream string, record map[string]any, extracted time.Time) error {
	return w.write(Message{
		Type:          TypeRecord,
		Stream:        stream,
		Record:        record,
		TimeExtracted: extracted.UTC().Format(time.RFC3339),
	})
}

func (w *Writer) WriteState(state State) error {
	return w.write(Message{
		Type:  TypeState,
		Value: state,
	})
}

func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}
