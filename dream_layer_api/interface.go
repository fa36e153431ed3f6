package dream_layer_api

import (
	"context"

	"dream_layer_client/entities"
)

type DreamLayerAPI interface {
	TextToImage(ctx context.Context, payload any) (*GenerationResponse, error)
	ImageToImage(ctx context.Context, payload any) (*GenerationResponse, error)
	Interrupt(ctx context.Context, mode entities.GenerationMode) error
	GetModels(ctx context.Context) ([]entities.CheckpointModel, error)
	FetchRandomPrompt(ctx context.Context, kind entities.PromptKind) (string, error)
	GetUpscalerModels(ctx context.Context) ([]string, error)
	AddAPIKey(ctx context.Context, alias, apiKey string) (bool, error)
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}
