// Package idgentest provides a deterministic idgen.Generator for tests.
package idgentest

import (
	"sync"

	"pkceauth/pkg/idgen"
)

var _ idgen.Generator = (*Sequence)(nil)

// Sequence hands out 1, 2, 3, ... The zero value is ready to use.
type Sequence struct {
	mu   sync.Mutex
	next int64
}

func (s *Sequence) GenerateID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	return s.next
}
