// Package hotkeys binds the primary generation action to ctrl+enter.
//
// Most terminals cannot tell ctrl+enter from a line feed, so ctrl+j is
// accepted as the same key. Plain enter never matches.
package hotkeys

import (
	"sync"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type Handler func() tea.Cmd

var Submit = key.NewBinding(
	key.WithKeys("ctrl+enter", "ctrl+j"),
	key.WithHelp("ctrl+enter", "generate / interrupt"),
)

type Shortcut struct {
	binding key.Binding

	mu         sync.Mutex
	handler    Handler
	attachment uint64
}

func New() *Shortcut {
	return &Shortcut{binding: Submit}
}

// Attach installs handler, replacing any previous one. The returned detach
// func only removes this attachment and is safe to call more than once.
func (s *Shortcut) Attach(handler Handler) (detach func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attachment++
	s.handler = handler

	id := s.attachment

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.attachment == id {
			s.handler = nil
		}
	}
}

func (s *Shortcut) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.handler != nil
}

// Handle runs the handler when msg is the shortcut. The bool reports whether
// the key was consumed; callers skip their default handling when it is.
func (s *Shortcut) Handle(msg tea.Msg) (tea.Cmd, bool) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || !key.Matches(keyMsg, s.binding) {
		return nil, false
	}

	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	if handler == nil {
		return nil, false
	}

	return handler(), true
}

func (s *Shortcut) Help() key.Binding {
	return s.binding
}
