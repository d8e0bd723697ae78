package jobs

import (
	"sort"
	"sync"
	"time"
)

// circuitState is a consecutive-failure breaker for one job name. A
// success closes the circuit and clears the count; once failures reach
// the trip threshold the circuit opens for an exponentially growing
// cooldown, and a long quiet period resets everything.
type circuitState struct {
	fails       int
	openUntil   time.Time
	lastFailure time.Time
}

type circuitStore struct {
	mu sync.Mutex
	m  map[string]*circuitState
}

func (s *circuitStore) state(name string) *circuitState {
	if s.m == nil {
		s.m = make(map[string]*circuitState)
	}
	st := s.m[name]
	if st == nil {
		st = &circuitState{}
		s.m[name] = st
	}
	return st
}

// isOpen reports whether the job's circuit is open at now, and until
// when.
func (s *circuitStore) isOpen(now time.Time, name string, cfg Config) (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(name)
	s.maybeResetLocked(st, now, cfg)
	if !st.openUntil.IsZero() && now.Before(st.openUntil) {
		return true, st.openUntil
	}
	return false, time.Time{}
}

// record updates the breaker with a final job result.
func (s *circuitStore) record(now time.Time, name string, cfg Config, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(name)
	s.maybeResetLocked(st, now, cfg)

	if err == nil {
		st.fails = 0
		st.openUntil = time.Time{}
		st.lastFailure = time.Time{}
		return
	}

	st.fails++
	st.lastFailure = now
	if st.fails < cfg.CircuitTrip {
		return
	}

	// Exponential cooldown once tripped.
	d := cfg.CircuitBaseDelay
	for i := 0; i < st.fails-cfg.CircuitTrip; i++ {
		d *= 2
		if d >= cfg.CircuitMaxDelay {
			d = cfg.CircuitMaxDelay
			break
		}
	}
	if d > cfg.CircuitMaxDelay {
		d = cfg.CircuitMaxDelay
	}
	st.openUntil = now.Add(d)
}

func (s *circuitStore) maybeResetLocked(st *circuitState, now time.Time, cfg Config) {
	if !st.lastFailure.IsZero() && cfg.CircuitResetAfter > 0 && now.Sub(st.lastFailure) > cfg.CircuitResetAfter {
		st.fails = 0
		st.openUntil = time.Time{}
	}
}

// open returns the names of currently open circuits.
func (s *circuitStore) open(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for name, st := range s.m {
		if !st.openUntil.IsZero() && now.Before(st.openUntil) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
