// Package watch implements the Watch Store (component C5): an ordered
// list of watch expressions, re-evaluated against the current stopped
// frame after every stop event.
//
// Grounded on the evaluate-request shape used throughout the pack's DAP
// clients (context "watch", a frame id, an expression string) and on the
// teacher's debugger REPL ("print"-like commands in codegen/debug.go)
// for the watch-refresh-on-stop idea, generalized here to a DAP
// evaluate round trip instead of an in-process interpreter lookup.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Watch is one tracked expression.
type Watch struct {
	ID         string
	Expression string
	Result     string
	Error      string
	CreatedAt  time.Time
}

// Evaluator evaluates one expression in the current frame context,
// returning either a result or an error string — never both, and a
// failure to evaluate one watch never halts the batch.
type Evaluator func(ctx context.Context, expression string) (result string, evalErr string)

// Store holds watch expressions in insertion order.
type Store struct {
	mu      sync.Mutex
	order   []string
	byID    map[string]*Watch
}

// New builds an empty Store.
func New() *Store {
	return &Store{byID: make(map[string]*Watch)}
}

// Add appends a new watch expression and returns it with empty result
// fields; it is refreshed on the next stop.
func (s *Store) Add(expression string) *Watch {
	w := &Watch{
		ID:         uuid.NewString(),
		Expression: expression,
		CreatedAt:  timeNow(),
	}
	s.mu.Lock()
	s.order = append(s.order, w.ID)
	s.byID[w.ID] = w
	s.mu.Unlock()
	return w
}

// Remove deletes a watch by id.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Find looks a watch up by id.
func (s *Store) Find(id string) (*Watch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.byID[id]
	return w, ok
}

// All returns every watch in insertion order.
func (s *Store) All() []*Watch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Watch, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Clear resets every watch's result/error fields to empty, used when no
// session is stopped.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		w := s.byID[id]
		w.Result = ""
		w.Error = ""
	}
}

// RefreshAll re-evaluates every watch in insertion order using eval.
// Failures on one expression do not halt the rest of the batch.
func (s *Store) RefreshAll(ctx context.Context, eval Evaluator) {
	s.mu.Lock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	s.mu.Unlock()

	for _, id := range ids {
		s.mu.Lock()
		w, ok := s.byID[id]
		expr := ""
		if ok {
			expr = w.Expression
		}
		s.mu.Unlock()
		if !ok {
			continue
		}

		result, evalErr := eval(ctx, expr)

		s.mu.Lock()
		if w, ok := s.byID[id]; ok {
			w.Result = result
			w.Error = evalErr
		}
		s.mu.Unlock()
	}
}

var timeNow = time.Now
