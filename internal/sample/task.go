package sample

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AnnotationTask is task-wide metadata: the ordered classes valid for every
// sample in the task. Loaded once per session and never modified.
type AnnotationTask struct {
	ID          string      `json:"id,omitempty"`
	Name        string      `json:"name,omitempty"`
	TextClasses []TextClass `json:"textClasses"`
}

// TaskConfig is the single-task form served by GET /taskConfig.
type TaskConfig = AnnotationTask

// UnmarshalJSON accepts textClasses as plain names or as {id,name} objects.
func (t *AnnotationTask) UnmarshalJSON(data []byte) error {
	var w struct {
		ID          string            `json:"id"`
		Name        string            `json:"name"`
		TextClasses []json.RawMessage `json:"textClasses"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	classes := make([]TextClass, 0, len(w.TextClasses))
	for i, raw := range w.TextClasses {
		tc, err := decodeTextClass(raw)
		if err != nil {
			return fmt.Errorf("task %s: class %d: %w", w.ID, i, err)
		}
		if tc == nil {
			return fmt.Errorf("task %s: class %d is null", w.ID, i)
		}
		classes = append(classes, *tc)
	}

	*t = AnnotationTask{ID: w.ID, Name: w.Name, TextClasses: classes}
	return nil
}

// ClassByID returns the declared class with the given id.
func (t AnnotationTask) ClassByID(id string) (TextClass, bool) {
	for _, c := range t.TextClasses {
		if c.ID == id {
			return c, true
		}
	}
	return TextClass{}, false
}

// ClassNames returns the declared class names in order.
func (t AnnotationTask) ClassNames() []string {
	names := make([]string, len(t.TextClasses))
	for i, c := range t.TextClasses {
		names[i] = c.Name
	}
	return names
}

// isNull reports whether raw is the JSON literal null.
func isNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// DecodeNextSample decodes a nextSample response body. The server answers
// null when no unlabeled sample is left; ok is false in that case.
func DecodeNextSample(body []byte) (s Sample, ok bool, err error) {
	if len(bytes.TrimSpace(body)) == 0 || isNull(body) {
		return Sample{}, false, nil
	}
	if err := json.Unmarshal(body, &s); err != nil {
		return Sample{}, false, fmt.Errorf("decode sample: %w", err)
	}
	return s, true, nil
}
