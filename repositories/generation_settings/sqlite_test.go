package generation_settings

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dream_layer_client/clock"
	"dream_layer_client/databases/sqlite"
	"dream_layer_client/entities"
	"dream_layer_client/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndGet(t *testing.T) {
	ctx := context.Background()

	db, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "settings.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	repo, err := NewRepository(&Config{DB: db, Clock: clock.NewFixedClock(now)})
	require.NoError(t, err)

	_, err = repo.GetByMode(ctx, entities.ModeTextToImage)
	assert.True(t, repositories.IsNotFound(err))

	settings := entities.NewGenerationSettings()
	settings.Prompt = "a cat"
	settings.Steps = 30

	_, err = repo.Upsert(ctx, &entities.SettingsRecord{
		Mode:           entities.ModeTextToImage,
		Settings:       settings,
		Lora:           &entities.LoraConfig{Enabled: true, Name: "detail", StrengthModel: 1},
		CustomWorkflow: entities.CustomWorkflow(`{"1":{}}`),
	})
	require.NoError(t, err)

	got, err := repo.GetByMode(ctx, entities.ModeTextToImage)
	require.NoError(t, err)

	assert.Equal(t, settings, got.Settings)
	require.NotNil(t, got.Lora)
	assert.Equal(t, "detail", got.Lora.Name)
	assert.Nil(t, got.ControlNet)
	assert.JSONEq(t, `{"1":{}}`, string(got.CustomWorkflow))
	assert.True(t, now.Equal(got.UpdatedAt))

	// a second upsert replaces the row
	settings.Prompt = "a dog"
	_, err = repo.Upsert(ctx, &entities.SettingsRecord{Mode: entities.ModeTextToImage, Settings: settings})
	require.NoError(t, err)

	got, err = repo.GetByMode(ctx, entities.ModeTextToImage)
	require.NoError(t, err)
	assert.Equal(t, "a dog", got.Settings.Prompt)
	assert.Nil(t, got.Lora)
	assert.True(t, got.CustomWorkflow.Empty())
}

func TestUpsertRejectsUnknownMode(t *testing.T) {
	ctx := context.Background()

	db, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "settings.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	repo, err := NewRepository(&Config{DB: db})
	require.NoError(t, err)

	_, err = repo.Upsert(ctx, &entities.SettingsRecord{Mode: "upscale"})
	assert.Error(t, err)
}
