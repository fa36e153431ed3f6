package generation_settings

import (
	"context"

	"dream_layer_client/entities"
)

type Repository interface {
	Upsert(ctx context.Context, record *entities.SettingsRecord) (*entities.SettingsRecord, error)
	GetByMode(ctx context.Context, mode entities.GenerationMode) (*entities.SettingsRecord, error)
}
