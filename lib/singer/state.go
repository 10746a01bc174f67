package singer

import (
	"encoding/json"
	"fmt"
	"os"
)

// State holds per-stream bookmarks. Bookmark values a tap doesn't
// understand are round-tripped untouched so a newer tap never clobbers a
// foreign bookmark field.
type State struct {
	Bookmarks map[string]Bookmark `json:"bookmarks"`
}

type Bookmark map[string]any

func NewState() State {
	return State{Bookmarks: map[string]Bookmark{}}
}

func ReadState(path string) (State, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(contents, &state); err != nil {
		return State{}, fmt.Errorf("parse state %s: %w", path, err)
	}
	if state.Bookmarks == nil {
		state.Bookmarks = map[string]Bookmark{}
	}
	return state, nil
}

func (s *State) Set(stream, key string, value any) {
	if s.Bookmarks == nil {
		s.Bookmarks = map[string]Bookmark{}
	}
	bookmark, ok := s.Bookmarks[stream]
	if !ok {
		bookmark = Bookmark{}
		s.Bookmarks[stream] = bookmark
	}
	bookmark[key] = value
}

func (s State) Get(stream, key string) (any, bool) {
	bookmark, ok := s.Bookmarks[stream]
	if !ok {
		return nil, false
	}
	value, ok := bookmark[key]
	return value, ok
}

// GetInt64 reads a numeric bookmark value. JSON decoding produces float64,
// sqlite round-trips produce int64 or json.Number, all are handled.
func (s State) GetInt64(stream, key string) (int64, bool) {
	value, ok := s.Get(stream, key)
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	default:
		return 0, false
	}
}
