// Package status combines the loading and error flags of independent data
// sources into one screen-level readiness signal, and polls the server
// status.
package status

// Readiness is the combined state of a screen's data sources.
type Readiness int

const (
	Ready Readiness = iota
	Loading
	Failed
)

func (r Readiness) String() string {
	switch r {
	case Loading:
		return "loading"
	case Failed:
		return "failed"
	default:
		return "ready"
	}
}

// Source is anything with a loading flag and a sticky error flag.
type Source interface {
	Loading() bool
	Failed() bool
}

// Flags is a fixed Source value.
type Flags struct {
	IsLoading     bool
	ErrorOccurred bool
}

func (f Flags) Loading() bool { return f.IsLoading }
func (f Flags) Failed() bool  { return f.ErrorOccurred }

// Combine reports Failed if any source failed, else Loading if any source is
// loading, else Ready. Errors are checked first so a source that failed is
// never masked by another that is still loading. Nil sources are skipped.
func Combine(sources ...Source) Readiness {
	for _, s := range sources {
		if s != nil && s.Failed() {
			return Failed
		}
	}
	for _, s := range sources {
		if s != nil && s.Loading() {
			return Loading
		}
	}
	return Ready
}
