// Package sample defines the review data model shared by the client and the
// dev server: samples, text classes, class predictions and task metadata.
//
// Two deployment variants exist on the wire. Older servers send a confidence
// vector parallel to the task's class list (textClassPredictions); newer ones
// send per-sample candidates (availableTextClasses). Both decode into the same
// Predictions value and are normalized against the task before ranking.
package sample

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TextClass is a class a sample can be labeled with.
type TextClass struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Candidate is one class option for a sample with the model's confidence.
type Candidate struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Sample is one unit of review work.
// ID and Text never change after fetch. TextClass is nil when unlabeled.
type Sample struct {
	ID          string
	Text        string
	TextClass   *TextClass
	Predictions Predictions
}

// Labeled reports whether the sample carries a label.
func (s Sample) Labeled() bool {
	return s.TextClass != nil
}

// WithLabel returns a copy of s labeled with tc (nil clears the label).
// The class is copied so the result never aliases the caller's value.
func (s Sample) WithLabel(tc *TextClass) Sample {
	if tc == nil {
		s.TextClass = nil
		return s
	}
	c := *tc
	s.TextClass = &c
	return s
}

// wireSample is the JSON shape of a sample. Exactly one of the prediction
// fields is expected; a nil pointer means the field was absent or null.
type wireSample struct {
	ID                   string          `json:"id"`
	Text                 string          `json:"text"`
	TextClass            json.RawMessage `json:"textClass"`
	TextClassPredictions *[]float64      `json:"textClassPredictions,omitempty"`
	AvailableTextClasses *[]Candidate    `json:"availableTextClasses,omitempty"`
}

// UnmarshalJSON decodes either prediction variant.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var w wireSample
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.ID == "" {
		return fmt.Errorf("sample: missing id")
	}

	tc, err := decodeTextClass(w.TextClass)
	if err != nil {
		return fmt.Errorf("sample %s: %w", w.ID, err)
	}

	var p Predictions
	switch {
	case w.AvailableTextClasses != nil:
		p = CandidatePredictions(*w.AvailableTextClasses)
	case w.TextClassPredictions != nil:
		p = VectorPredictions(*w.TextClassPredictions)
	}

	*s = Sample{ID: w.ID, Text: w.Text, TextClass: tc, Predictions: p}
	return nil
}

// MarshalJSON encodes the sample in the variant its predictions carry.
func (s Sample) MarshalJSON() ([]byte, error) {
	w := wireSample{ID: s.ID, Text: s.Text, TextClass: json.RawMessage("null")}
	if s.TextClass != nil {
		raw, err := json.Marshal(s.TextClass)
		if err != nil {
			return nil, err
		}
		w.TextClass = raw
	}
	switch s.Predictions.Kind() {
	case PredictionsVector:
		v := s.Predictions.Vector()
		w.TextClassPredictions = &v
	case PredictionsCandidates:
		c := s.Predictions.Candidates()
		w.AvailableTextClasses = &c
	}
	return json.Marshal(w)
}

// decodeTextClass accepts null, a bare class name (vector deployments label
// by name) or a {id,name} object.
func decodeTextClass(raw json.RawMessage) (*TextClass, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, fmt.Errorf("decode textClass: %w", err)
		}
		return &TextClass{ID: name, Name: name}, nil
	}
	var tc TextClass
	if err := json.Unmarshal(raw, &tc); err != nil {
		return nil, fmt.Errorf("decode textClass: %w", err)
	}
	if tc.ID == "" {
		tc.ID = tc.Name
	}
	return &tc, nil
}

// LabelDelta is the partial update a patch carries. A nil TextClass clears
// the label.
type LabelDelta struct {
	TextClass *TextClass
}

// Label returns a delta that sets the label to tc.
func Label(tc TextClass) LabelDelta {
	return LabelDelta{TextClass: &tc}
}

// ClearLabel returns a delta that removes the label.
func ClearLabel() LabelDelta {
	return LabelDelta{}
}

// Apply returns s with the delta applied.
func (d LabelDelta) Apply(s Sample) Sample {
	return s.WithLabel(d.TextClass)
}

// Patch is the PATCH /samples/{id} request body. TextClassID is always
// serialized; null means "remove the label".
type Patch struct {
	ID          string  `json:"id"`
	TextClassID *string `json:"textClassId"`
}

// PatchFor builds the wire body for applying d to the sample with the given id.
func PatchFor(id string, d LabelDelta) Patch {
	p := Patch{ID: id}
	if d.TextClass != nil {
		classID := d.TextClass.ID
		p.TextClassID = &classID
	}
	return p
}

// WorkerStatus reports the server's background estimation worker.
type WorkerStatus struct {
	IsWorking bool `json:"isWorking"`
}

// Status is the server status snapshot. Comparable with ==.
type Status struct {
	Worker WorkerStatus `json:"worker"`
}
