package generation_controller

import (
	"bytes"
	"context"
	"image"
	"sync"

	// decoders for first image verification
	_ "image/jpeg"
	_ "image/png"

	"dream_layer_client/clock"
	"dream_layer_client/dream_layer_api"
	"dream_layer_client/entities"
	"dream_layer_client/generation_request"
	"dream_layer_client/settings_store"

	"github.com/charmbracelet/log"
	"github.com/go-errors/errors"
	"github.com/google/uuid"
)

var (
	ErrAlreadyGenerating = errors.New("a generation is already in progress")
	ErrMissingInputImage = errors.New("an input image is required")
	ErrNoImagesGenerated = errors.New("no images were generated")
	ErrInterrupted       = errors.New("generation was interrupted")
)

type controllerImpl struct {
	mode         entities.GenerationMode
	api          dream_layer_api.DreamLayerAPI
	settings     SettingsSource
	gallery      ImageSink
	clock        clock.Clock
	verifyImages bool

	mu sync.Mutex
	// token identifies the submission currently owning the in-flight flag.
	// Interrupt bumps it so a late response can tell it is stale.
	token    uint64
	inFlight bool
	cancel   context.CancelFunc
}

type Config struct {
	API      dream_layer_api.DreamLayerAPI
	Settings SettingsSource
	Gallery  ImageSink
	Clock    clock.Clock
	// VerifyImages downloads the first returned image and checks that it
	// decodes before anything is added to the gallery.
	VerifyImages bool
}

func New(cfg Config) (Controller, error) {
	if cfg.API == nil {
		return nil, errors.New("missing dream layer API")
	}

	if cfg.Settings == nil {
		return nil, errors.New("missing settings store")
	}

	if cfg.Gallery == nil {
		return nil, errors.New("missing gallery")
	}

	if !cfg.Settings.Mode().Valid() {
		return nil, errors.Errorf("unknown generation mode %q", cfg.Settings.Mode())
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}

	return &controllerImpl{
		mode:         cfg.Settings.Mode(),
		api:          cfg.API,
		settings:     cfg.Settings,
		gallery:      cfg.Gallery,
		clock:        cfg.Clock,
		verifyImages: cfg.VerifyImages,
	}, nil
}

func (c *controllerImpl) Mode() entities.GenerationMode {
	return c.mode
}

func (c *controllerImpl) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.inFlight
}

func (c *controllerImpl) Toggle(ctx context.Context) ([]entities.GeneratedImage, error) {
	if c.InFlight() {
		return nil, c.Interrupt(ctx)
	}

	return c.Submit(ctx)
}

func (c *controllerImpl) Submit(ctx context.Context) ([]entities.GeneratedImage, error) {
	generation, err := c.Begin()
	if err != nil {
		return nil, err
	}

	return generation.Wait(ctx)
}

func (c *controllerImpl) Begin() (*Generation, error) {
	snapshot := c.settings.Snapshot()

	if c.mode == entities.ModeImageToImage && (snapshot.InputImage == nil || snapshot.InputImage.Data == "") {
		log.Warn("Generation refused, no input image", "mode", c.mode)

		return nil, ErrMissingInputImage
	}

	token, err := c.acquire()
	if err != nil {
		return nil, err
	}

	return &Generation{controller: c, token: token, snapshot: snapshot}, nil
}

// Generation is a submission that owns the in-flight flag. Wait must be
// called exactly once to send it and release the flag.
type Generation struct {
	controller *controllerImpl
	token      uint64
	snapshot   settings_store.Snapshot
	waited     bool
}

// Settings returns the settings captured when the generation began.
func (g *Generation) Settings() entities.GenerationSettings {
	return g.snapshot.Settings
}

func (g *Generation) Wait(ctx context.Context) ([]entities.GeneratedImage, error) {
	if g.waited {
		return nil, errors.New("generation already sent")
	}

	g.waited = true

	c := g.controller
	token := g.token
	snapshot := g.snapshot

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer c.release(token)

	// an interrupt between Begin and Wait already gave up the flag
	if !c.attach(token, cancel) {
		return nil, ErrInterrupted
	}

	payload := generation_request.Build(snapshot.Settings, generation_request.Extras{
		ControlNet:     snapshot.ControlNet,
		Lora:           snapshot.Lora,
		CustomWorkflow: snapshot.CustomWorkflow,
		InputImage:     snapshot.InputImage,
	})

	log.Info("Starting generation", "mode", c.mode, "prompt", snapshot.Settings.Prompt)

	var (
		resp *dream_layer_api.GenerationResponse
		err  error
	)

	switch c.mode {
	case entities.ModeImageToImage:
		resp, err = c.api.ImageToImage(reqCtx, payload)
	default:
		resp, err = c.api.TextToImage(reqCtx, payload)
	}

	if !c.current(token) {
		log.Info("Discarding interrupted generation", "mode", c.mode)

		return nil, ErrInterrupted
	}

	if err != nil {
		log.Error("Error generating images", "mode", c.mode, "err", err)

		return nil, err
	}

	descriptors := resp.Images()
	if len(descriptors) == 0 {
		log.Error("Generation returned no images", "mode", c.mode, "status", resp.Status, "message", resp.Message)

		return nil, ErrNoImagesGenerated
	}

	if c.verifyImages {
		err = c.verifyFirst(reqCtx, descriptors[0].URL)
		if !c.current(token) {
			return nil, ErrInterrupted
		}

		if err != nil {
			log.Error("Error verifying generated image", "mode", c.mode, "url", descriptors[0].URL, "err", err)

			return nil, err
		}
	}

	// from here on the result belongs to the gallery even if an interrupt lands
	if !c.finish(token) {
		return nil, ErrInterrupted
	}

	now := c.clock.Now()
	images := make([]entities.GeneratedImage, len(descriptors))

	for i, descriptor := range descriptors {
		images[i] = entities.GeneratedImage{
			ID:             uuid.NewString(),
			Mode:           c.mode,
			URL:            descriptor.URL,
			Prompt:         snapshot.Settings.Prompt,
			NegativePrompt: snapshot.Settings.NegativePrompt,
			Timestamp:      now,
			Settings:       snapshot.Settings,
		}
	}

	c.gallery.Add(ctx, images...)

	log.Info("Generation finished", "mode", c.mode, "images", len(images))

	return images, nil
}

func (c *controllerImpl) Interrupt(ctx context.Context) error {
	c.mu.Lock()

	if c.inFlight {
		c.token++
		c.inFlight = false

		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
	}

	c.mu.Unlock()

	log.Info("Interrupting generation", "mode", c.mode)

	err := c.api.Interrupt(ctx, c.mode)
	if err != nil {
		log.Error("Error interrupting generation", "mode", c.mode, "err", err)

		return err
	}

	return nil
}

func (c *controllerImpl) verifyFirst(ctx context.Context, url string) error {
	data, err := c.api.FetchImage(ctx, url)
	if err != nil {
		return err
	}

	_, _, err = image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return errors.WrapPrefix(err, "decoding "+url, 0)
	}

	return nil
}

func (c *controllerImpl) acquire() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return 0, ErrAlreadyGenerating
	}

	c.token++
	c.inFlight = true

	return c.token, nil
}

// attach hands the request's cancel func to Interrupt while token still owns
// the flag.
func (c *controllerImpl) attach(token uint64, cancel context.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != token {
		return false
	}

	c.cancel = cancel

	return true
}

func (c *controllerImpl) current(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.token == token
}

// finish releases the flag if token still owns it and reports whether it did.
func (c *controllerImpl) finish(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != token {
		return false
	}

	c.inFlight = false
	c.cancel = nil

	return true
}

func (c *controllerImpl) release(token uint64) {
	c.finish(token)
}

var _ SettingsSource = (*settings_store.Store)(nil)
