package generated_images

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dream_layer_client/databases/sqlite"
	"dream_layer_client/entities"
	"dream_layer_client/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateListDelete(t *testing.T) {
	ctx := context.Background()

	db, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "images.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	repo, err := NewRepository(&Config{DB: db})
	require.NoError(t, err)

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	settings := entities.NewGenerationSettings()
	settings.Prompt = "a cat"

	for _, id := range []string{"c", "a", "b"} {
		_, err = repo.Create(ctx, &entities.GeneratedImage{
			ID:        id,
			Mode:      entities.ModeTextToImage,
			URL:       "http://x/" + id + ".png",
			Prompt:    settings.Prompt,
			Timestamp: ts,
			Settings:  settings,
		})
		require.NoError(t, err)
	}

	_, err = repo.Create(ctx, &entities.GeneratedImage{ID: "other", Mode: entities.ModeImageToImage, Timestamp: ts})
	require.NoError(t, err)

	images, err := repo.ListByMode(ctx, entities.ModeTextToImage)
	require.NoError(t, err)
	require.Len(t, images, 3)

	// insertion order, not id order
	assert.Equal(t, "c", images[0].ID)
	assert.Equal(t, "a", images[1].ID)
	assert.Equal(t, "b", images[2].ID)
	assert.Equal(t, settings, images[0].Settings)
	assert.True(t, ts.Equal(images[0].Timestamp))

	require.NoError(t, repo.Delete(ctx, "a"))
	assert.True(t, repositories.IsNotFound(repo.Delete(ctx, "a")))

	require.NoError(t, repo.DeleteByMode(ctx, entities.ModeTextToImage))

	images, err = repo.ListByMode(ctx, entities.ModeTextToImage)
	require.NoError(t, err)
	assert.Empty(t, images)

	images, err = repo.ListByMode(ctx, entities.ModeImageToImage)
	require.NoError(t, err)
	assert.Len(t, images, 1)
}
