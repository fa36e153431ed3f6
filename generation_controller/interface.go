package generation_controller

import (
	"context"

	"dream_layer_client/entities"
	"dream_layer_client/settings_store"
)

type Controller interface {
	// Submit sends the current settings of the controller's mode and waits
	// for the backend. The generated images are appended to the gallery
	// before they are returned.
	Submit(ctx context.Context) ([]entities.GeneratedImage, error)
	// Begin takes the in-flight flag and the settings snapshot without
	// sending anything, so a caller can answer synchronously. The request
	// goes out on Generation.Wait.
	Begin() (*Generation, error)
	// Interrupt asks the backend to stop and abandons the local request.
	Interrupt(ctx context.Context) error
	// Toggle is the primary action: Interrupt while a generation is in
	// flight, Submit otherwise.
	Toggle(ctx context.Context) ([]entities.GeneratedImage, error)
	InFlight() bool
	Mode() entities.GenerationMode
}

type SettingsSource interface {
	Mode() entities.GenerationMode
	Snapshot() settings_store.Snapshot
}

type ImageSink interface {
	Add(ctx context.Context, images ...entities.GeneratedImage)
}
