package provider

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/turnhub/turnhub/internal/domain/provider"
)

// Scripted is a deterministic completer for demos and tests. It replays a
// fixed list of lines per persona, cycling when the list is exhausted.
type Scripted struct {
	mu    sync.Mutex
	lines map[string][]string
	pos   map[string]int
}

// NewScripted creates a scripted completer. Keys are persona names; the
// empty key is the fallback script.
func NewScripted(lines map[string][]string) *Scripted {
	return &Scripted{
		lines: lines,
		pos:   make(map[string]int),
	}
}

// Complete implements provider.Completer.
func (s *Scripted) Complete(_ context.Context, prompt domain.PromptContext) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := prompt.Persona
	script, ok := s.lines[key]
	if !ok {
		script = s.lines[""]
	}
	if len(script) == 0 {
		return "", fmt.Errorf("%w: no script for persona %q", domain.ErrFailed, key)
	}
	line := script[s.pos[key]%len(script)]
	s.pos[key]++
	return line, nil
}
