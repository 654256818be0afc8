// Package subtitles defines the subtitle payload exchanged between the
// compute pipeline, the cache tiers and the HTTP API. The coordination layer
// treats it as an opaque blob; this package is where it gets shape.
package subtitles

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
)

type Payload struct {
	Text     string            `json:"text"`
	Language string            `json:"language,omitempty"`
	Segments []Segment         `json:"segments"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Segment is one timed line of the transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func Decode(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode subtitle payload: %w", err)
	}
	return p, nil
}

func (p Payload) Encode() ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode subtitle payload: %w", err)
	}
	return raw, nil
}

// WithDetectedLanguage fills in the language field by detecting it from the
// transcript text when the pipeline did not report one.
func (p Payload) WithDetectedLanguage() Payload {
	if p.Language != "" || strings.TrimSpace(p.Text) == "" {
		return p
	}
	lang := whatlanggo.DetectLang(p.Text).Iso6391()
	if lang != "" {
		p.Language = lang
	}
	return p
}

// Title returns the video title carried in the pipeline metadata, if any.
func (p Payload) Title() string {
	return p.Meta["title"]
}

// Uploader returns the uploader name carried in the pipeline metadata, if any.
func (p Payload) Uploader() string {
	return p.Meta["uploader"]
}
