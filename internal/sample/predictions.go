package sample

// PredictionKind tags which variant a Predictions value holds.
type PredictionKind int

const (
	// PredictionsNone means the sample carries no model output yet.
	PredictionsNone PredictionKind = iota
	// PredictionsVector is a confidence vector parallel to the task's classes.
	PredictionsVector
	// PredictionsCandidates is a per-sample list of scored classes.
	PredictionsCandidates
)

func (k PredictionKind) String() string {
	switch k {
	case PredictionsVector:
		return "vector"
	case PredictionsCandidates:
		return "candidates"
	default:
		return "none"
	}
}

// Predictions is a tagged union over the two wire variants. The zero value
// is PredictionsNone. Values are immutable: accessors return copies.
type Predictions struct {
	kind       PredictionKind
	vector     []float64
	candidates []Candidate
}

// VectorPredictions wraps a confidence vector.
func VectorPredictions(v []float64) Predictions {
	cp := make([]float64, len(v))
	copy(cp, v)
	return Predictions{kind: PredictionsVector, vector: cp}
}

// CandidatePredictions wraps a candidate list.
func CandidatePredictions(c []Candidate) Predictions {
	cp := make([]Candidate, len(c))
	copy(cp, c)
	return Predictions{kind: PredictionsCandidates, candidates: cp}
}

// Kind returns the variant tag.
func (p Predictions) Kind() PredictionKind {
	return p.kind
}

// Vector returns a copy of the confidence vector (nil unless PredictionsVector).
func (p Predictions) Vector() []float64 {
	if p.kind != PredictionsVector {
		return nil
	}
	cp := make([]float64, len(p.vector))
	copy(cp, p.vector)
	return cp
}

// Candidates returns a copy of the candidate list (nil unless PredictionsCandidates).
func (p Predictions) Candidates() []Candidate {
	if p.kind != PredictionsCandidates {
		return nil
	}
	cp := make([]Candidate, len(p.candidates))
	copy(cp, p.candidates)
	return cp
}

// Normalize resolves the predictions against the task's declared classes.
// The result has exactly one entry per class, in declared order.
//
// Missing data scores 0: a short vector, a class with no candidate, or no
// predictions at all. Candidates are matched by id, then by name; candidates
// for classes the task does not declare are ignored.
func (p Predictions) Normalize(classes []TextClass) []Candidate {
	out := make([]Candidate, len(classes))
	for i, c := range classes {
		out[i] = Candidate{ID: c.ID, Name: c.Name}
	}

	switch p.kind {
	case PredictionsVector:
		for i := range out {
			if i < len(p.vector) {
				out[i].Confidence = p.vector[i]
			}
		}

	case PredictionsCandidates:
		byID := make(map[string]float64, len(p.candidates))
		byName := make(map[string]float64, len(p.candidates))
		for _, c := range p.candidates {
			if c.ID != "" {
				byID[c.ID] = c.Confidence
			}
			byName[c.Name] = c.Confidence
		}
		for i := range out {
			if v, ok := byID[out[i].ID]; ok && out[i].ID != "" {
				out[i].Confidence = v
			} else if v, ok := byName[out[i].Name]; ok {
				out[i].Confidence = v
			}
		}
	}

	return out
}
