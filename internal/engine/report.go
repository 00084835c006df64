package engine

import (
	"sync"
	"time"

	"go.trai.ch/tern/internal/core/domain"
)

// Result pairs a test with its terminal outcome.
type Result struct {
	Test    *domain.TestDescriptor
	Outcome domain.Outcome
}

// Report is the summary of one session.
type Report struct {
	SessionID string
	Started   time.Time
	Finished  time.Time

	mu          sync.Mutex
	results     []Result
	index       map[string]int
	scopeErrors []error
}

func newReport(sessionID string, c *domain.Catalog, now time.Time) *Report {
	r := &Report{
		SessionID: sessionID,
		Started:   now,
		results:   make([]Result, 0, c.Len()),
		index:     make(map[string]int, c.Len()),
	}
	for _, d := range c.All() {
		r.index[d.ID.String()] = len(r.results)
		r.results = append(r.results, Result{Test: d})
	}
	return r
}

func (r *Report) record(d *domain.TestDescriptor, o domain.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.index[d.ID.String()]; ok {
		r.results[i].Outcome = o
	}
}

func (r *Report) addScopeError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopeErrors = append(r.scopeErrors, err)
}

// Results returns every test with its outcome in registration order.
func (r *Report) Results() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

// Outcome returns the outcome of one test.
func (r *Report) Outcome(id string) (domain.Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return domain.Outcome{}, false
	}
	return r.results[i].Outcome, true
}

// ScopeErrors returns failures of scope exit hooks and resource disposal.
// They are reported here and never change a test outcome.
func (r *Report) ScopeErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.scopeErrors...)
}

// Counts returns the number of tests per status.
func (r *Report) Counts() map[domain.Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.Status]int, 4)
	for _, res := range r.results {
		counts[res.Outcome.Status]++
	}
	return counts
}

// Failed reports whether any test failed or was cancelled.
func (r *Report) Failed() bool {
	counts := r.Counts()
	return counts[domain.StatusFailed] > 0 || counts[domain.StatusCancelled] > 0
}

// Duration returns the wall time of the session.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Records converts the outcomes into history records.
func (r *Report) Records() []domain.RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.RunRecord, 0, len(r.results))
	for _, res := range r.results {
		if res.Outcome.Status == "" {
			continue
		}
		out = append(out, domain.NewRunRecord(res.Test.ID.String(), res.Outcome, r.Finished))
	}
	return out
}
