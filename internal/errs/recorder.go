package errs

import "sync"

// Report is one entry captured by a Recorder
type Report struct {
	Context Context
	Err     error
}

// Recorder is a Reporter that keeps every report in memory
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

// Report implements Reporter
func (r *Recorder) Report(ctx Context, err interface{}) error {
	normalized := Normalize(err)
	r.mu.Lock()
	r.reports = append(r.reports, Report{Context: ctx, Err: normalized})
	r.mu.Unlock()
	return normalized
}

// Reports returns a copy of the captured reports
func (r *Recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// Last returns the most recent report, if any
func (r *Recorder) Last() (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reports) == 0 {
		return Report{}, false
	}
	return r.reports[len(r.reports)-1], true
}
