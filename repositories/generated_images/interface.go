package generated_images

import (
	"context"

	"dream_layer_client/entities"
)

type Repository interface {
	Create(ctx context.Context, image *entities.GeneratedImage) (*entities.GeneratedImage, error)
	ListByMode(ctx context.Context, mode entities.GenerationMode) ([]*entities.GeneratedImage, error)
	Delete(ctx context.Context, id string) error
	DeleteByMode(ctx context.Context, mode entities.GenerationMode) error
}
