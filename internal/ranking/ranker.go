// Package ranking orders a sample's classes by model confidence.
package ranking

import (
	"math"
	"sort"

	"github.com/JackEngelmann/nlpanno/internal/sample"
)

// ClassPrediction is one ranked class.
type ClassPrediction struct {
	Class      sample.TextClass
	Confidence float64
}

// Name returns the class name.
func (p ClassPrediction) Name() string { return p.Class.Name }

// Rank returns one entry per class declared by task, sorted by confidence
// descending. Equal confidences keep the task's declared order.
//
// Rank is pure: the same inputs always produce the same output. Classes
// without prediction data score 0, so a sample with no predictions ranks in
// declared order. NaN confidences also score 0.
func Rank(s sample.Sample, task sample.AnnotationTask) []ClassPrediction {
	normalized := s.Predictions.Normalize(task.TextClasses)

	ranked := make([]ClassPrediction, len(normalized))
	for i, c := range normalized {
		confidence := c.Confidence
		if math.IsNaN(confidence) {
			confidence = 0
		}
		ranked[i] = ClassPrediction{
			Class:      task.TextClasses[i],
			Confidence: confidence,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})
	return ranked
}
