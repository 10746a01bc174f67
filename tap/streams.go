// Package tap wires the bigmarker client, the stream registry and the
// singer output into a working extractor.
package tap

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tap-bigmarker/lib/singer"
)

//go:embed schemas/*.json
var schemaFS embed.FS

type Stream struct {
	Name       string
	Path       string
	Method     string
	RecordsKey string
	// query parameter carrying the page number, "" means "page"
	PageKey  string
	Paginate bool

	PrimaryKeys       []string
	ReplicationMethod string
	ReplicationKey    string

	// parent stream name, "" for top-level streams
	Parent string
	// name of the path placeholder this stream's records provide to
	// children, e.g. conferences fills {conference_id}
	ContextKey string
	// record field the context value is read from
	ContextField string

	// schema file under schemas/, defaults to <name>.json
	SchemaFile string
}

// Streams lists every stream in sync order. Children always directly
// follow their parent and run once per parent record.
var Streams = []Stream{
	{
		Name:              "channels",
		Path:              "/channels",
		Method:            http.MethodGet,
		RecordsKey:        "channels",
		PrimaryKeys:       []string{"channel_id"},
		ReplicationMethod: singer.ReplicationFullTable,
		ContextKey:        "channel_id",
		ContextField:      "channel_id",
	},
	{
		Name:              "channels_subscribers",
		Path:              "/channels/{channel_id}/subscribers",
		Method:            http.MethodGet,
		RecordsKey:        "subscribers",
		PrimaryKeys:       []string{"bmid"},
		ReplicationMethod: singer.ReplicationFullTable,
		Parent:            "channels",
	},
	{
		Name:              "channels_admins",
		Path:              "/channel_admins/{channel_id}",
		Method:            http.MethodGet,
		RecordsKey:        "",
		PrimaryKeys:       []string{"admin_id"},
		ReplicationMethod: singer.ReplicationFullTable,
		Parent:            "channels",
	},
	{
		Name:              "conferences",
		Path:              "/conferences/search/",
		Method:            http.MethodPost,
		RecordsKey:        "conferences",
		Paginate:          true,
		PrimaryKeys:       []string{"id"},
		ReplicationMethod: singer.ReplicationIncremental,
		ReplicationKey:    "id",
		ContextKey:        "conference_id",
		ContextField:      "id",
	},
	{
		Name:              "conferences_handouts",
		Path:              "/conferences/{conference_id}/handouts",
		Method:            http.MethodGet,
		RecordsKey:        "",
		PrimaryKeys:       []string{"id"},
		ReplicationMethod: singer.ReplicationFullTable,
		Parent:            "conferences",
	},
	{
		Name:              "conferences_surveys",
		Path:              "/conferences/survey/{conference_id}",
		Method:            http.MethodGet,
		RecordsKey:        "survey",
		PrimaryKeys:       []string{"question_title", "answer_type"},
		ReplicationMethod: singer.ReplicationFullTable,
		Parent:            "conferences",
	},
	{
		Name:              "conferences_presenters",
		Path:              "/conferences/{conference_id}/presenters",
		Method:            http.MethodGet,
		RecordsKey:        "presenters",
		PrimaryKeys:       []string{"presenter_id"},
		ReplicationMethod: singer.ReplicationFullTable,
		Parent:            "conferences",
	},
	{
		Name:              "conferences_attendees",
		Path:              "/conferences/{conference_id}/attendees",
		Method:            http.MethodGet,
		RecordsKey:        "attendees",
		PageKey:           "current_page",
		Paginate:          true,
		PrimaryKeys:       []string{"id"},
		ReplicationMethod: singer.ReplicationFullTable,
		Parent:            "conferences",
	},
	{
		Name:              "conferences_registrants",
		Path:              "/conferences/registrations_with_fields/{conference_id}",
		Method:            http.MethodGet,
		RecordsKey:        "registrations",
		Paginate:          true,
		PrimaryKeys:       []string{"id"},
		ReplicationMethod: singer.ReplicationFullTable,
		Parent:            "conferences",
	},
	{
		Name:              "conferences_registrations_live",
		Path:              "/reporting/conferences/registrations/{conference_id}",
		Method:            http.MethodGet,
		RecordsKey:        "registrations",
		PageKey:           "current_page",
		Paginate:          true,
		PrimaryKeys:       []string{"id"},
		ReplicationMethod: singer.ReplicationFullTable,
		Parent:            "conferences",
		SchemaFile:        "conferences_registrants_live.json",
	},
	{
		Name:              "conferences_attendees_live",
		Path:              "/reporting/conferences/live_attendees/{conference_id}",
		Method:            http.MethodGet,
		RecordsKey:        "attendees",
		PageKey:           "current_page",
		Paginate:          true,
		PrimaryKeys:       []string{"id"},
		ReplicationMethod: singer.ReplicationFullTable,
		Parent:            "conferences",
	},
	{
		Name:              "conferences_attendees_on_demand",
		Path:              "/reporting/conferences/on_demand_attendees/{conference_id}",
		Method:            http.MethodGet,
		RecordsKey:        "attendees",
		PageKey:           "current_page",
		Paginate:          true,
		PrimaryKeys:       []string{"id"},
		ReplicationMethod: singer.ReplicationFullTable,
		Parent:            "conferences",
	},
	{
		Name:              "conferences_registrations_no_shows",
		Path:              "/reporting/conferences/no_shows/{conference_id}",
		Method:            http.MethodGet,
		RecordsKey:        "registrations",
		PageKey:           "current_page",
		Paginate:          true,
		PrimaryKeys:       []string{"id"},
		ReplicationMethod: singer.ReplicationFullTable,
		Parent:            "conferences",
	},
	{
		Name:              "conferences_registrations_qa",
		Path:              "/reporting/conferences/q_and_a_transcript/{conference_id}",
		Method:            http.MethodGet,
		RecordsKey:        "q_and_a",
		PageKey:           "current_page",
		Paginate:          true,
		PrimaryKeys:       []string{"bmid"},
		ReplicationMethod: singer.ReplicationFullTable,
		Parent:            "conferences",
	},
}

func StreamByName(name string) (Stream, bool) {
	for _, s := range Streams {
		if s.Name == name {
			return s, true
		}
	}
	return Stream{}, false
}

func ChildrenOf(parent string) []Stream {
	var children []Stream
	for _, s := range Streams {
		if s.Parent == parent {
			children = append(children, s)
		}
	}
	return children
}

func (s Stream) SchemaJSON() (json.RawMessage, error) {
	file := s.SchemaFile
	if file == "" {
		file = s.Name + ".json"
	}
	contents, err := schemaFS.ReadFile("schemas/" + file)
	if err != nil {
		return nil, fmt.Errorf("read schema for %s: %w", s.Name, err)
	}
	return json.RawMessage(contents), nil
}

// ResolvePath substitutes {placeholder} path segments from the parent
// context.
func (s Stream) ResolvePath(context map[string]string) (string, error) {
	path := s.Path
	for key, value := range context {
		path = strings.ReplaceAll(path, "{"+key+"}", value)
	}
	if idx := strings.IndexByte(path, '{'); idx >= 0 {
		return "", fmt.Errorf("stream %s: unresolved path parameter in %s", s.Name, path)
	}
	return path, nil
}

// BookmarkProperties lists the state fields a stream advances.
func (s Stream) BookmarkProperties() []string {
	if s.ReplicationMethod != singer.ReplicationIncremental {
		return nil
	}
	return []string{bookmarkLastDate}
}
