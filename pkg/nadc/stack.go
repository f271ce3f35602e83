package nadc

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// StackEntry is one recorded warning.
type StackEntry struct {
	Code    Code
	Message string
}

// Stack collects the warnings raised while one file is processed.
type Stack struct {
	mu      sync.Mutex
	entries []StackEntry
}

// Push records err when it is non-nil. It returns err unchanged so that
// callers can write `return stack.Push(err)`. A nil stack drops err.
func (s *Stack) Push(err error) error {
	if err == nil || s == nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, StackEntry{Code: CodeOf(err), Message: err.Error()})
	return err
}

func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns a copy of the recorded warnings.
func (s *Stack) Entries() []StackEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StackEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Flush logs every recorded entry on logger and empties the stack.
func (s *Stack) Flush(logger log.FieldLogger) {
	s.mu.Lock()
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()
	for _, e := range entries {
		logger.WithField("code", e.Code.String()).Warn(e.Message)
	}
}
