package gallery

import (
	"context"
	"sync"

	"dream_layer_client/entities"
	"dream_layer_client/repositories/generated_images"

	"github.com/charmbracelet/log"
	"github.com/go-errors/errors"
)

// Gallery is the insertion-ordered list of images generated in one mode.
type Gallery struct {
	mode entities.GenerationMode

	mu     sync.RWMutex
	images []entities.GeneratedImage

	listeners map[int]func([]entities.GeneratedImage)
	nextID    int

	repo generated_images.Repository
}

type Config struct {
	Mode entities.GenerationMode
	// Repo is optional; when set the gallery is reloaded from it on New.
	Repo generated_images.Repository
}

func New(ctx context.Context, cfg Config) (*Gallery, error) {
	if !cfg.Mode.Valid() {
		return nil, errors.Errorf("unknown generation mode %q", cfg.Mode)
	}

	g := &Gallery{
		mode:      cfg.Mode,
		images:    make([]entities.GeneratedImage, 0),
		listeners: make(map[int]func([]entities.GeneratedImage)),
		repo:      cfg.Repo,
	}

	if g.repo == nil {
		return g, nil
	}

	stored, err := g.repo.ListByMode(ctx, cfg.Mode)
	if err != nil {
		return nil, err
	}

	for _, image := range stored {
		g.images = append(g.images, *image)
	}

	log.Infof("Loaded %d %s gallery images", len(g.images), cfg.Mode)

	return g, nil
}

func (g *Gallery) Mode() entities.GenerationMode {
	return g.mode
}

// Add appends images in the order given.
func (g *Gallery) Add(ctx context.Context, images ...entities.GeneratedImage) {
	if len(images) == 0 {
		return
	}

	g.mu.Lock()

	for _, image := range images {
		if g.repo != nil {
			_, err := g.repo.Create(ctx, &image)
			if err != nil {
				log.Error("Error saving generated image", "id", image.ID, "err", err)
			}
		}

		g.images = append(g.images, image)
	}

	listeners, list := g.notifyLocked()

	g.mu.Unlock()

	notify(listeners, list)
}

func (g *Gallery) List() []entities.GeneratedImage {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return append([]entities.GeneratedImage(nil), g.images...)
}

func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.images)
}

// Remove deletes one image. It reports whether the id was present.
func (g *Gallery) Remove(ctx context.Context, id string) bool {
	g.mu.Lock()

	idx := -1

	for i, image := range g.images {
		if image.ID == id {
			idx = i
			break
		}
	}

	if idx < 0 {
		g.mu.Unlock()
		return false
	}

	g.images = append(g.images[:idx], g.images[idx+1:]...)

	if g.repo != nil {
		if err := g.repo.Delete(ctx, id); err != nil {
			log.Error("Error deleting generated image", "id", id, "err", err)
		}
	}

	listeners, list := g.notifyLocked()

	g.mu.Unlock()

	notify(listeners, list)

	return true
}

func (g *Gallery) Clear(ctx context.Context) {
	g.mu.Lock()

	g.images = make([]entities.GeneratedImage, 0)

	if g.repo != nil {
		if err := g.repo.DeleteByMode(ctx, g.mode); err != nil {
			log.Error("Error clearing gallery", "mode", g.mode, "err", err)
		}
	}

	listeners, list := g.notifyLocked()

	g.mu.Unlock()

	notify(listeners, list)
}

// Subscribe calls fn with the full list after every change.
func (g *Gallery) Subscribe(fn func([]entities.GeneratedImage)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextID
	g.nextID++
	g.listeners[id] = fn

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		delete(g.listeners, id)
	}
}

func (g *Gallery) notifyLocked() ([]func([]entities.GeneratedImage), []entities.GeneratedImage) {
	listeners := make([]func([]entities.GeneratedImage), 0, len(g.listeners))
	for _, l := range g.listeners {
		listeners = append(listeners, l)
	}

	return listeners, append([]entities.GeneratedImage(nil), g.images...)
}

func notify(listeners []func([]entities.GeneratedImage), list []entities.GeneratedImage) {
	for _, l := range listeners {
		l(list)
	}
}
