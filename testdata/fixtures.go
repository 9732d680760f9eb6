// Package testdata embeds pose recordings shared by tests.
package testdata

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/ayusman/repcounter/internal/detector"
)

//go:embed recordings/*.jsonl
var recordingsFS embed.FS

// PushUps is a recording of three push-ups with one low-confidence and one
// incomplete sample.
const PushUps = "pushups.jsonl"

// LoadRecording decodes a JSON-lines pose recording by file name.
func LoadRecording(name string) ([]detector.PoseSample, error) {
	data, err := recordingsFS.ReadFile("recordings/" + name)
	if err != nil {
		return nil, fmt.Errorf("load recording %s: %w", name, err)
	}

	samples, err := detector.DecodeSamples(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode recording %s: %w", name, err)
	}
	return samples, nil
}
