package tap

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tap-bigmarker/lib/bigmarker"
	"tap-bigmarker/lib/singer"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// fakeApi serves a tiny BigMarker account: one channel with one subscriber
// and one admin, one conference with one attendee. Everything else is
// empty, handouts 404 like the real API does.
func fakeApi(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	respond := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}
	}

	mux.HandleFunc("/channels", respond(`{"channels":[{"channel_id":"ch1","channel_name":"Main"}]}`))
	mux.HandleFunc("/channels/ch1/subscribers", respond(`{"subscribers":[{"bmid":"s1","email":"s@example.com"}]}`))
	mux.HandleFunc("/channel_admins/ch1", respond(`[{"admin_id":"a1"}]`))

	mux.HandleFunc("/conferences/search/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NotEmpty(t, r.URL.Query().Get("start_time"))
		if r.URL.Query().Get("page") == "" {
			fmt.Fprint(w, `{"conferences":[{"id":"conf1","title":"Launch"}]}`)
			return
		}
		fmt.Fprint(w, `{"conferences":[]}`)
	})

	mux.HandleFunc("/conferences/conf1/handouts", http.NotFound)
	mux.HandleFunc("/conferences/survey/conf1", respond(`{"survey":[]}`))
	mux.HandleFunc("/conferences/conf1/presenters", respond(`{"presenters":[]}`))
	mux.HandleFunc("/conferences/conf1/attendees", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("current_page") == "" {
			fmt.Fprint(w, `{"attendees":[{"id":"att1","email":"a@example.com"}]}`)
			return
		}
		fmt.Fprint(w, `{"attendees":[]}`)
	})
	mux.HandleFunc("/conferences/registrations_with_fields/conf1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"registrations":[]}`)
	})
	mux.HandleFunc("/reporting/conferences/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"registrations":[],"attendees":[],"q_and_a":[]}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestTap(t *testing.T, serverUrl string, out *bytes.Buffer) *Tap {
	t.Helper()

	client, err := bigmarker.NewClient(bigmarker.ClientOptions{
		BaseUrl:           serverUrl,
		ApiKey:            "test-key",
		RequestsPerSecond: 1000,
		RetryWait:         time.Millisecond,
		MaxRetries:        1,
	})
	require.NoError(t, err)

	tp := New(client, singer.NewWriter(out))
	tp.Now = func() time.Time {
		return time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	}
	return tp
}

type parsedOutput struct {
	messages []singer.Message
	states   []singer.State
}

func parseOutput(t *testing.T, out *bytes.Buffer) parsedOutput {
	t.Helper()

	var parsed parsedOutput
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var msg singer.Message
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg))
		parsed.messages = append(parsed.messages, msg)

		if msg.Type == singer.TypeState {
			var stateMsg struct {
				Value singer.State `json:"value"`
			}
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &stateMsg))
			parsed.states = append(parsed.states, stateMsg.Value)
		}
	}
	return parsed
}

func (p parsedOutput) records(stream string) []singer.Message {
	var records []singer.Message
	for _, msg := range p.messages {
		if msg.Type == singer.TypeRecord && msg.Stream == stream {
			records = append(records, msg)
		}
	}
	return records
}

func TestSyncWalksParentsAndChildren(t *testing.T) {
	server := fakeApi(t)
	var out bytes.Buffer
	tp := newTestTap(t, server.URL, &out)

	require.NoError(t, tp.Sync(context.Background()))
	parsed := parseOutput(t, &out)

	require.Len(t, parsed.records("channels"), 1)
	require.Len(t, parsed.records("channels_subscribers"), 1)
	require.Len(t, parsed.records("channels_admins"), 1)
	require.Len(t, parsed.records("conferences"), 1)
	require.Len(t, parsed.records("conferences_attendees"), 1)
	// handouts 404 on the fake api, tolerated as an empty stream
	require.Empty(t, parsed.records("conferences_handouts"))

	ch := parsed.records("channels")[0]
	diff := cmp.Diff(map[string]any{
		"channel_id":   "ch1",
		"channel_name": "Main",
	}, ch.Record)
	require.Empty(t, diff)

	att := parsed.records("conferences_attendees")[0]
	require.Equal(t, "att1", att.Record["id"])
	require.Equal(t, "2024-05-02T09:00:00Z", att.TimeExtracted)
}

func TestSyncEmitsSchemaBeforeFirstRecord(t *testing.T) {
	server := fakeApi(t)
	var out bytes.Buffer
	tp := newTestTap(t, server.URL, &out)

	require.NoError(t, tp.Sync(context.Background()))
	parsed := parseOutput(t, &out)

	seenSchema := map[string]bool{}
	schemaCount := map[string]int{}
	for _, msg := range parsed.messages {
		switch msg.Type {
		case singer.TypeSchema:
			seenSchema[msg.Stream] = true
			schemaCount[msg.Stream]++
		case singer.TypeRecord:
			require.True(t, seenSchema[msg.Stream], "record before schema for %s", msg.Stream)
		}
	}
	for stream, n := range schemaCount {
		require.Equal(t, 1, n, "schema for %s emitted more than once", stream)
	}
}

func TestSyncAdvancesConferenceBookmark(t *testing.T) {
	server := fakeApi(t)
	var out bytes.Buffer
	tp := newTestTap(t, server.URL, &out)

	require.NoError(t, tp.Sync(context.Background()))
	parsed := parseOutput(t, &out)

	require.NotEmpty(t, parsed.states)
	final := parsed.states[len(parsed.states)-1]
	last, ok := final.GetInt64("conferences", "last_date")
	require.True(t, ok)
	require.Equal(t, tp.Now().Unix(), last)
}

func TestSyncStateFlushCallback(t *testing.T) {
	server := fakeApi(t)
	var out bytes.Buffer
	tp := newTestTap(t, server.URL, &out)

	flushes := 0
	tp.OnStateFlush = func(state singer.State) error {
		flushes++
		return nil
	}

	require.NoError(t, tp.Sync(context.Background()))
	// one flush per top-level stream: channels and conferences
	require.Equal(t, 2, flushes)
}

func TestSyncHonorsDeselection(t *testing.T) {
	server := fakeApi(t)
	var out bytes.Buffer
	tp := newTestTap(t, server.URL, &out)

	deselected := false
	tp.Catalog = singer.Catalog{
		Streams: []singer.CatalogEntry{
			{
				TapStreamId: "channels",
				Metadata: []singer.Metadata{
					{Breadcrumb: []string{}, Metadata: singer.MetadataFields{Selected: &deselected}},
				},
			},
			{
				TapStreamId: "conferences_attendees",
				Metadata: []singer.Metadata{
					{Breadcrumb: []string{}, Metadata: singer.MetadataFields{Selected: &deselected}},
				},
			},
		},
	}

	require.NoError(t, tp.Sync(context.Background()))
	parsed := parseOutput(t, &out)

	require.Empty(t, parsed.records("channels"))
	require.Empty(t, parsed.records("channels_subscribers"))
	require.Empty(t, parsed.records("conferences_attendees"))
	require.Len(t, parsed.records("conferences"), 1)
}

func TestSyncSendsIncrementalStartTime(t *testing.T) {
	var gotStartTime string
	mux := http.NewServeMux()
	mux.HandleFunc("/conferences/search/", func(w http.ResponseWriter, r *http.Request) {
		gotStartTime = r.URL.Query().Get("start_time")
		fmt.Fprint(w, `{"conferences":[]}`)
	})
	mux.HandleFunc("/channels", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"channels":[]}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	var out bytes.Buffer
	tp := newTestTap(t, server.URL, &out)

	// bookmark at 2024-05-01 10:30 UTC: truncated to midnight, minus one
	// day of lookback = 2024-04-30 00:00 UTC
	bookmark := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC).Unix()
	tp.State.Set("conferences", "last_date", bookmark)

	require.NoError(t, tp.Sync(context.Background()))

	expected := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC).Unix()
	require.Equal(t, fmt.Sprint(expected), gotStartTime)
}

func TestIncrementalStartWithoutBookmark(t *testing.T) {
	tp := New(nil, nil)
	stream, ok := StreamByName("conferences")
	require.True(t, ok)
	require.Equal(t, int64(0), tp.incrementalStart(stream))
}
