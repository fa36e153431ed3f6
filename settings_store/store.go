// Package settings_store owns the generation settings of one generation mode.
//
// A Store is created once per mode and handed to whatever reads or edits the
// settings (the controller at submit time, the front ends on every edit).
// Reads return copies; writes go through Merge or the extras setters.
package settings_store

import (
	"context"
	"sync"

	"dream_layer_client/entities"
	"dream_layer_client/repositories"
	"dream_layer_client/repositories/generation_settings"

	"github.com/charmbracelet/log"
	"github.com/go-errors/errors"
)

// Patch holds the keys to change. Nil fields are left untouched.
type Patch struct {
	Prompt         *string
	NegativePrompt *string
	SamplerName    *string
	Scheduler      *string
	Steps          *int
	CfgScale       *float64
	Width          *int
	Height         *int
	BatchCount     *int
	BatchSize      *int
	Seed           *int
	RandomSeed     *bool
	ModelName      *string
}

func (p Patch) apply(s *entities.GenerationSettings) {
	setIf(&s.Prompt, p.Prompt)
	setIf(&s.NegativePrompt, p.NegativePrompt)
	setIf(&s.SamplerName, p.SamplerName)
	setIf(&s.Scheduler, p.Scheduler)
	setIf(&s.Steps, p.Steps)
	setIf(&s.CfgScale, p.CfgScale)
	setIf(&s.Width, p.Width)
	setIf(&s.Height, p.Height)
	setIf(&s.BatchCount, p.BatchCount)
	setIf(&s.BatchSize, p.BatchSize)
	setIf(&s.Seed, p.Seed)
	setIf(&s.RandomSeed, p.RandomSeed)
	setIf(&s.ModelName, p.ModelName)
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Ptr is a helper for building patches inline.
func Ptr[T any](v T) *T {
	return &v
}

func PromptPatch(value string, negative bool) Patch {
	if negative {
		return Patch{NegativePrompt: &value}
	}

	return Patch{Prompt: &value}
}

func SamplingPatch(sampler, scheduler string, steps int, cfg float64) Patch {
	return Patch{SamplerName: &sampler, Scheduler: &scheduler, Steps: &steps, CfgScale: &cfg}
}

func SizePatch(width, height int) Patch {
	return Patch{Width: &width, Height: &height}
}

func BatchPatch(count, size int) Patch {
	return Patch{BatchCount: &count, BatchSize: &size}
}

func SeedPatch(seed int, random bool) Patch {
	return Patch{Seed: &seed, RandomSeed: &random}
}

// Snapshot is an immutable copy of a store's state.
type Snapshot struct {
	Mode           entities.GenerationMode
	Settings       entities.GenerationSettings
	ControlNet     *entities.ControlNetConfig
	Lora           *entities.LoraConfig
	CustomWorkflow entities.CustomWorkflow
	InputImage     *entities.InputImage
}

type Listener func(Snapshot)

type Store struct {
	mu    sync.RWMutex
	state Snapshot

	listeners map[int]Listener
	nextID    int

	repo generation_settings.Repository
}

type Config struct {
	Mode entities.GenerationMode
	// Repo is optional. When set, the stored settings are loaded on New and
	// every change is written back.
	Repo generation_settings.Repository
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if !cfg.Mode.Valid() {
		return nil, errors.Errorf("unknown generation mode %q", cfg.Mode)
	}

	store := &Store{
		state: Snapshot{
			Mode:     cfg.Mode,
			Settings: entities.NewGenerationSettings(),
		},
		listeners: make(map[int]Listener),
		repo:      cfg.Repo,
	}

	if store.repo == nil {
		return store, nil
	}

	record, err := store.repo.GetByMode(ctx, cfg.Mode)
	if err != nil {
		if repositories.IsNotFound(err) {
			log.Infof("No stored %s settings, using defaults", cfg.Mode)

			return store, nil
		}

		return nil, err
	}

	store.state.Settings = record.Settings
	store.state.ControlNet = record.ControlNet
	store.state.Lora = record.Lora
	store.state.CustomWorkflow = record.CustomWorkflow

	log.Infof("Loaded stored %s settings", cfg.Mode)

	return store, nil
}

func (s *Store) Mode() entities.GenerationMode {
	return s.state.Mode
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.clone()
}

func (s *Store) Settings() entities.GenerationSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.Settings
}

// Merge applies every set key of patch and leaves the rest unchanged.
func (s *Store) Merge(patch Patch) {
	s.update(func(state *Snapshot) {
		patch.apply(&state.Settings)
	})
}

// SetControlNet stores the config only while it is enabled; a nil or
// disabled config clears the slot.
func (s *Store) SetControlNet(cfg *entities.ControlNetConfig) {
	s.update(func(state *Snapshot) {
		if cfg == nil || !cfg.Enabled {
			state.ControlNet = nil
			return
		}

		state.ControlNet = cfg.Clone()
	})
}

func (s *Store) SetLora(cfg *entities.LoraConfig) {
	s.update(func(state *Snapshot) {
		state.Lora = cfg.Clone()
	})
}

func (s *Store) SetCustomWorkflow(workflow entities.CustomWorkflow) {
	s.update(func(state *Snapshot) {
		if workflow.Empty() {
			state.CustomWorkflow = nil
			return
		}

		state.CustomWorkflow = workflow.Clone()
	})
}

func (s *Store) SetInputImage(img *entities.InputImage) {
	s.update(func(state *Snapshot) {
		if img == nil {
			state.InputImage = nil
			return
		}

		clone := *img
		state.InputImage = &clone
	})
}

// Subscribe registers fn for every change and returns the function that
// removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.listeners, id)
	}
}

func (s *Store) update(fn func(state *Snapshot)) {
	s.mu.Lock()

	fn(&s.state)

	snapshot := s.state.clone()

	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}

	// persisted under the lock so writes land in edit order
	s.persist(snapshot)

	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func (s *Store) persist(snapshot Snapshot) {
	if s.repo == nil {
		return
	}

	_, err := s.repo.Upsert(context.Background(), &entities.SettingsRecord{
		Mode:           snapshot.Mode,
		Settings:       snapshot.Settings,
		ControlNet:     snapshot.ControlNet,
		Lora:           snapshot.Lora,
		CustomWorkflow: snapshot.CustomWorkflow,
	})
	if err != nil {
		log.Error("Error saving generation settings", "mode", snapshot.Mode, "err", err)
	}
}

func (s Snapshot) clone() Snapshot {
	clone := s
	clone.ControlNet = s.ControlNet.Clone()
	clone.Lora = s.Lora.Clone()
	clone.CustomWorkflow = s.CustomWorkflow.Clone()

	if s.InputImage != nil {
		img := *s.InputImage
		clone.InputImage = &img
	}

	return clone
}
