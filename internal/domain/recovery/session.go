package recovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/auth"
)

// Session walks one user through a recovery run:
// idle -> scanning -> (no-data | reviewing) -> importing -> (success | partial-success).
// A finished run must be Reset before scanning again.
type Session struct {
	mu           sync.Mutex
	orchestrator *Orchestrator
	identity     auth.Identity
	state        State
	scan         *ScanResult
	report       *Report
}

// NewSession creates an idle session for identity
func NewSession(o *Orchestrator, identity auth.Identity) *Session {
	return &Session{orchestrator: o, identity: identity, state: StateIdle}
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastScan returns the scan under review, if any
func (s *Session) LastScan() *ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scan
}

// LastReport returns the report of the finished import, if any
func (s *Session) LastReport() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Scan probes for legacy data. Allowed only from idle.
func (s *Session) Scan(ctx context.Context) (*ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return nil, fmt.Errorf("%w: cannot scan while %s", ErrInvalidState, s.state)
	}
	s.state = StateScanning

	scan, err := s.orchestrator.Scan(ctx, s.identity)
	if err != nil {
		s.state = StateIdle
		return nil, err
	}

	s.scan = scan
	s.state = StateReviewing
	if !scan.Probe.Found {
		s.state = StateNoData
	}
	return scan, nil
}

// Import writes the reviewed scan into targets. Allowed only while reviewing.
func (s *Session) Import(ctx context.Context, targets Targets) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReviewing {
		return nil, fmt.Errorf("%w: cannot import while %s", ErrInvalidState, s.state)
	}
	s.state = StateImporting

	report, err := s.orchestrator.Import(ctx, s.identity, s.scan, targets)
	if err != nil {
		// Import fails before writing any record
		s.state = StateIdle
		s.scan = nil
		return nil, err
	}

	s.report = report
	s.state = report.State
	return report, nil
}

// Reset returns a finished or reviewed session to idle
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateScanning || s.state == StateImporting {
		return fmt.Errorf("%w: cannot reset while %s", ErrInvalidState, s.state)
	}
	s.state = StateIdle
	s.scan = nil
	s.report = nil
	return nil
}
