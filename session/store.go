// Package session holds the explicit per-browser application state and
// expires it after a period of inactivity.
package session

import (
	"context"
	"sync"
	"time"

	"TableDetFront/analysis"
	iface "TableDetFront/interface"
	"TableDetFront/intake"
	"TableDetFront/logger"
	"TableDetFront/monitor"
	"TableDetFront/notify"
	"TableDetFront/preview"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is everything one browser session owns. Callers hold the embedded
// mutex while reading or changing it; the orchestrator guards its own flag.
type State struct {
	sync.Mutex
	ID        string
	Selection *intake.Selection
	Notices   *notify.Center
	Analyzer  *analysis.Orchestrator

	// last successful run
	Pairs          []analysis.Pair
	Batch          *iface.BatchResponse
	Mode           string
	ResultsVisible bool

	ConfidencePercent int
	Visualize         bool

	scope      *preview.Scope
	lastActive time.Time
}

// SwapScope installs the scope of a new render and closes the previous one.
func (s *State) SwapScope(next *preview.Scope) {
	prev := s.scope
	s.scope = next
	prev.Close()
}

// CloseScope releases the handles of the current render.
func (s *State) CloseScope() {
	s.scope.Close()
	s.scope = nil
}

func (s *State) touch(now time.Time) {
	s.lastActive = now
}

// Factory builds the state for a new session id.
type Factory func(id string) *State

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*State
	idle     time.Duration
	factory  Factory
	onExpire func(*State)
	now      func() time.Time
	log      *zap.Logger
}

func NewStore(idle time.Duration, factory Factory, onExpire func(*State)) *Store {
	return &Store{
		sessions: make(map[string]*State),
		idle:     idle,
		factory:  factory,
		onExpire: onExpire,
		now:      time.Now,
		log:      logger.Named("session"),
	}
}

// GetOrCreate returns the session for id, creating a fresh one with a new
// id when id is empty or unknown.
func (st *Store) GetOrCreate(id string) (*State, bool) {
	now := st.now()
	if id != "" {
		st.mu.RLock()
		s, ok := st.sessions[id]
		st.mu.RUnlock()
		if ok {
			s.Lock()
			s.touch(now)
			s.Unlock()
			return s, false
		}
	}
	s := st.factory(uuid.NewString())
	s.touch(now)
	st.mu.Lock()
	st.sessions[s.ID] = s
	monitor.Sessions.Set(float64(len(st.sessions)))
	st.mu.Unlock()
	st.log.Debug("session created", zap.String("session", s.ID))
	return s, true
}

func (st *Store) Get(id string) (*State, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Reap expires sessions idle for longer than the idle timeout. Sessions
// with an analysis in flight are kept.
func (st *Store) Reap() int {
	now := st.now()
	var expired []*State
	st.mu.Lock()
	for id, s := range st.sessions {
		s.Lock()
		stale := now.Sub(s.lastActive) > st.idle && !s.Analyzer.Running()
		s.Unlock()
		if stale {
			delete(st.sessions, id)
			expired = append(expired, s)
		}
	}
	monitor.Sessions.Set(float64(len(st.sessions)))
	st.mu.Unlock()

	for _, s := range expired {
		s.Lock()
		s.CloseScope()
		s.Unlock()
		if st.onExpire != nil {
			st.onExpire(s)
		}
		st.log.Debug("session expired", zap.String("session", s.ID))
	}
	return len(expired)
}

// Run reaps on a ticker until ctx is done.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Reap(); n > 0 {
				st.log.Info("expired idle sessions", zap.Int("count", n))
			}
		}
	}
}
