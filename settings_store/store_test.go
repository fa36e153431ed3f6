package settings_store

import (
	"context"
	"path/filepath"
	"testing"

	"dream_layer_client/databases/sqlite"
	"dream_layer_client/entities"
	"dream_layer_client/repositories/generation_settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(context.Background(), Config{Mode: entities.ModeTextToImage})
	require.NoError(t, err)

	return store
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := New(context.Background(), Config{Mode: "inpaint"})
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	store := newStore(t)

	assert.Equal(t, entities.NewGenerationSettings(), store.Settings())
	assert.Equal(t, entities.ModeTextToImage, store.Mode())
}

func TestMergeOnlyTouchesSetKeys(t *testing.T) {
	store := newStore(t)

	store.Merge(PromptPatch("a cat", false))
	store.Merge(PromptPatch("blurry", true))
	store.Merge(SizePatch(768, 1024))
	store.Merge(Patch{Steps: Ptr(35)})

	settings := store.Settings()

	want := entities.NewGenerationSettings()
	want.Prompt = "a cat"
	want.NegativePrompt = "blurry"
	want.Width = 768
	want.Height = 1024
	want.Steps = 35

	assert.Equal(t, want, settings)
}

func TestSnapshotIsACopy(t *testing.T) {
	store := newStore(t)
	store.SetLora(&entities.LoraConfig{Enabled: true, Name: "detail"})

	snapshot := store.Snapshot()
	snapshot.Lora.Name = "mutated"
	snapshot.Settings.Prompt = "mutated"

	assert.Equal(t, "detail", store.Snapshot().Lora.Name)
	assert.Empty(t, store.Settings().Prompt)
}

func TestSetControlNetDisabledClears(t *testing.T) {
	store := newStore(t)

	store.SetControlNet(&entities.ControlNetConfig{Enabled: true, Units: []entities.ControlNetUnit{{Enabled: true}}})
	require.NotNil(t, store.Snapshot().ControlNet)

	store.SetControlNet(&entities.ControlNetConfig{Enabled: false})
	assert.Nil(t, store.Snapshot().ControlNet)
}

func TestSetCustomWorkflowAndInputImage(t *testing.T) {
	store := newStore(t)

	store.SetCustomWorkflow(entities.CustomWorkflow(`{"1":{}}`))
	assert.JSONEq(t, `{"1":{}}`, string(store.Snapshot().CustomWorkflow))

	store.SetCustomWorkflow(nil)
	assert.Nil(t, store.Snapshot().CustomWorkflow)

	store.SetInputImage(&entities.InputImage{Name: "a.png", Data: "AAAA"})
	assert.Equal(t, "a.png", store.Snapshot().InputImage.Name)

	store.SetInputImage(nil)
	assert.Nil(t, store.Snapshot().InputImage)
}

func TestSubscribe(t *testing.T) {
	store := newStore(t)

	var seen []string
	unsubscribe := store.Subscribe(func(s Snapshot) {
		seen = append(seen, s.Settings.Prompt)
	})

	store.Merge(PromptPatch("one", false))
	unsubscribe()
	store.Merge(PromptPatch("two", false))

	assert.Equal(t, []string{"one"}, seen)
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()

	db, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "store.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	repo, err := generation_settings.NewRepository(&generation_settings.Config{DB: db})
	require.NoError(t, err)

	store, err := New(ctx, Config{Mode: entities.ModeImageToImage, Repo: repo})
	require.NoError(t, err)

	store.Merge(SeedPatch(42, false))
	store.SetLora(&entities.LoraConfig{Enabled: true, Name: "detail"})
	store.SetInputImage(&entities.InputImage{Name: "a.png", Data: "AAAA"})

	reopened, err := New(ctx, Config{Mode: entities.ModeImageToImage, Repo: repo})
	require.NoError(t, err)

	snapshot := reopened.Snapshot()
	assert.Equal(t, 42, snapshot.Settings.Seed)
	assert.False(t, snapshot.Settings.RandomSeed)
	require.NotNil(t, snapshot.Lora)
	assert.Equal(t, "detail", snapshot.Lora.Name)
	assert.Nil(t, snapshot.InputImage)
}
