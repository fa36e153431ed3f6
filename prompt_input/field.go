// Package prompt_input holds the value behind a prompt text field and its
// "add random" action.
package prompt_input

import (
	"context"
	"sync"

	"dream_layer_client/entities"

	"github.com/charmbracelet/log"
	"github.com/go-errors/errors"
)

const MaxLength = 500

type RandomPromptFetcher interface {
	FetchRandomPrompt(ctx context.Context, kind entities.PromptKind) (string, error)
}

type Field struct {
	kind    entities.PromptKind
	fetcher RandomPromptFetcher

	mu    sync.RWMutex
	value string

	onChange func(string)
}

type Config struct {
	Kind    entities.PromptKind
	Fetcher RandomPromptFetcher
	// Initial is the starting value, usually the stored prompt.
	Initial string
	// OnChange is called with the new value after every change.
	OnChange func(string)
}

func New(cfg Config) (*Field, error) {
	if cfg.Kind != entities.PromptPositive && cfg.Kind != entities.PromptNegative {
		return nil, errors.Errorf("unknown prompt type %q", cfg.Kind)
	}

	if cfg.Fetcher == nil {
		return nil, errors.New("missing random prompt fetcher")
	}

	return &Field{
		kind:     cfg.Kind,
		fetcher:  cfg.Fetcher,
		value:    truncate(cfg.Initial),
		onChange: cfg.OnChange,
	}, nil
}

func (f *Field) Kind() entities.PromptKind {
	return f.kind
}

func (f *Field) Value() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.value
}

// SetValue stores value, cut to MaxLength runes.
func (f *Field) SetValue(value string) {
	value = truncate(value)

	f.mu.Lock()
	changed := f.value != value
	f.value = value
	f.mu.Unlock()

	if changed && f.onChange != nil {
		f.onChange(value)
	}
}

// AddRandom replaces the value with a prompt fetched from the backend. On
// failure the value is left as it was and the error is returned.
func (f *Field) AddRandom(ctx context.Context) error {
	prompt, err := f.fetcher.FetchRandomPrompt(ctx, f.kind)
	if err != nil {
		log.Error("Error fetching random prompt", "type", f.kind, "err", err)

		return err
	}

	f.SetValue(prompt)

	return nil
}

func truncate(value string) string {
	runes := []rune(value)
	if len(runes) <= MaxLength {
		return value
	}

	return string(runes[:MaxLength])
}
