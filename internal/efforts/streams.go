package efforts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// The discovery endpoint answers in one of three shapes:
//
//	shapeObjectOfArrays: {"watts": [..], "time": [..]}
//	shapeNestedObject:   {"streams": {"watts": [..], "time": [..]}}
//	shapeNestedArray:    {"streams": [{"name": "watts"}, {"type": "hr"}]}
//
// availableStreams normalizes all three into one list of stream names in
// first-seen order. Channels that index the recording rather than measure
// effort ("time", "latlng") are excluded; they are array-valued like real
// streams but querying a best effort against them is meaningless.
func availableStreams(raw json.RawMessage) ([]string, error) {
	entries, err := objectEntries(raw)
	if err != nil {
		return nil, fmt.Errorf("parse stream discovery response: %w", err)
	}

	for _, e := range entries {
		if e.key != "streams" {
			continue
		}
		switch firstByte(e.value) {
		case '{':
			return nestedObjectStreams(e.value)
		case '[':
			return nestedArrayStreams(e.value)
		}
		return nil, fmt.Errorf("unexpected shape for streams field: %s", snippet(e.value))
	}

	// Flat shape: every array-valued top-level key is a stream name.
	var names []string
	for _, e := range entries {
		if firstByte(e.value) == '[' && !isIndexChannel(e.key) {
			names = append(names, e.key)
		}
	}
	return names, nil
}

func nestedObjectStreams(raw json.RawMessage) ([]string, error) {
	entries, err := objectEntries(raw)
	if err != nil {
		return nil, fmt.Errorf("parse nested streams object: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !isIndexChannel(e.key) {
			names = append(names, e.key)
		}
	}
	return names, nil
}

func nestedArrayStreams(raw json.RawMessage) ([]string, error) {
	var items []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse nested streams array: %w", err)
	}
	var names []string
	for _, item := range items {
		name := item.Name
		if name == "" {
			name = item.Type
		}
		if name != "" && !isIndexChannel(name) {
			names = append(names, name)
		}
	}
	return names, nil
}

func isIndexChannel(name string) bool {
	switch strings.ToLower(name) {
	case "time", "latlng":
		return true
	}
	return false
}

// objectEntry is one key/value pair of a JSON object, in document order.
type objectEntry struct {
	key   string
	value json.RawMessage
}

// objectEntries walks a JSON object with a token decoder so that key
// order is preserved; encoding/json maps would lose it.
func objectEntries(raw json.RawMessage) ([]objectEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %s", snippet(raw))
	}

	var entries []objectEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key token %v", keyTok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		entries = append(entries, objectEntry{key: key, value: value})
	}
	return entries, nil
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func snippet(raw json.RawMessage) string {
	const max = 64
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
