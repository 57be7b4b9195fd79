package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// VideoMap is an insertion-ordered mapping of videoId to VideoProgress.
// Insertion order is playlist order and survives a JSON round trip.
type VideoMap struct {
	keys  []string
	items map[string]*VideoProgress
}

// NewVideoMap returns an empty VideoMap.
func NewVideoMap() *VideoMap {
	return &VideoMap{items: make(map[string]*VideoProgress)}
}

// Len returns the number of videos.
func (m *VideoMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Get returns the video stored under id.
func (m *VideoMap) Get(id string) (VideoProgress, bool) {
	if m == nil {
		return VideoProgress{}, false
	}
	v, ok := m.items[id]
	if !ok {
		return VideoProgress{}, false
	}
	return *v, true
}

// Set inserts or replaces the video under v.VideoID. New ids are appended.
func (m *VideoMap) Set(v VideoProgress) {
	if m.items == nil {
		m.items = make(map[string]*VideoProgress)
	}
	if _, ok := m.items[v.VideoID]; !ok {
		m.keys = append(m.keys, v.VideoID)
	}
	m.items[v.VideoID] = &v
}

// Keys returns the video ids in playlist order.
func (m *VideoMap) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Values returns the videos in playlist order.
func (m *VideoMap) Values() []VideoProgress {
	if m == nil {
		return nil
	}
	out := make([]VideoProgress, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, *m.items[k])
	}
	return out
}

// Clone returns a deep copy of m.
func (m *VideoMap) Clone() *VideoMap {
	out := NewVideoMap()
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out.Set(m.items[k].Clone())
	}
	return out
}

// MarshalJSON encodes the map as a JSON object with keys in playlist order.
func (m *VideoMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if m != nil {
		for i, k := range m.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(m.items[k])
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the input.
func (m *VideoMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = *NewVideoMap()
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("videos: expected object, got %v", tok)
	}

	out := NewVideoMap()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("videos: expected string key, got %v", tok)
		}
		var v VideoProgress
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("videos[%s]: %w", key, err)
		}
		if v.VideoID == "" {
			v.VideoID = key
		}
		if v.VideoID != key {
			return fmt.Errorf("videos[%s]: videoId mismatch %q", key, v.VideoID)
		}
		out.Set(v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = *out
	return nil
}
