package discord_bot

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dream_layer_client/dream_layer_api"
	"dream_layer_client/entities"
	"dream_layer_client/gallery"
	"dream_layer_client/generation_controller"
	"dream_layer_client/settings_store"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	edits     chan *discordgo.WebhookEdit
}

func newFakeSession() *fakeSession {
	return &fakeSession{edits: make(chan *discordgo.WebhookEdit, 4)}
}

func (f *fakeSession) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.responses = append(f.responses, resp)

	return nil
}

func (f *fakeSession) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit) (*discordgo.Message, error) {
	f.edits <- edit

	return &discordgo.Message{}, nil
}

func (f *fakeSession) lastResponse(t *testing.T) *discordgo.InteractionResponse {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	require.NotEmpty(t, f.responses)

	return f.responses[len(f.responses)-1]
}

func (f *fakeSession) nextEdit(t *testing.T) *discordgo.WebhookEdit {
	t.Helper()

	select {
	case edit := <-f.edits:
		return edit
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for interaction edit")
		return nil
	}
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))

	return buf.Bytes()
}

func newTestBot(t *testing.T, handler http.HandlerFunc) (*botImpl, *settings_store.Store) {
	t.Helper()

	ctx := context.Background()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	api, err := dream_layer_api.New(dream_layer_api.Config{Host: server.URL})
	require.NoError(t, err)

	store, err := settings_store.New(ctx, settings_store.Config{Mode: entities.ModeTextToImage})
	require.NoError(t, err)

	g, err := gallery.New(ctx, gallery.Config{Mode: entities.ModeTextToImage})
	require.NoError(t, err)

	controller, err := generation_controller.New(generation_controller.Config{
		API:      api,
		Settings: store,
		Gallery:  g,
	})
	require.NoError(t, err)

	bot, err := newBot(Config{API: api, Controller: controller, Store: store})
	require.NoError(t, err)

	return bot, store
}

func commandInteraction(name string, options map[string]string) *discordgo.InteractionCreate {
	data := discordgo.ApplicationCommandInteractionData{Name: name}

	for key, value := range options {
		data.Options = append(data.Options, &discordgo.ApplicationCommandInteractionDataOption{
			Name:  key,
			Type:  discordgo.ApplicationCommandOptionString,
			Value: value,
		})
	}

	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:     "interaction",
			Type:   discordgo.InteractionApplicationCommand,
			Data:   data,
			Member: &discordgo.Member{User: &discordgo.User{ID: "42"}},
		},
	}
}

func TestNewBotValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = newBot(Config{})
	assert.Error(t, err)
}

func TestDevelopmentModePrefixesCommands(t *testing.T) {
	bot, store := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {})

	dev, err := newBot(Config{API: bot.api, Controller: bot.controller, Store: store, DevelopmentMode: true})
	require.NoError(t, err)

	commands := dev.commands()
	assert.Equal(t, "dev_imagine", commands[0].Name)
	assert.Equal(t, "dev_random-prompt", commands[1].Name)
}

func TestImagineCommand(t *testing.T) {
	pngData := tinyPNG(t)

	bot, store := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/txt2img":
			_, _ = w.Write([]byte(`{"comfy_response":{"generated_images":[{"url":"/api/images/1.png"},{"url":"/api/images/2.png"}]}}`))
		default:
			_, _ = w.Write(pngData)
		}
	})

	session := newFakeSession()

	bot.handleInteraction(session, commandInteraction("imagine", map[string]string{
		"prompt":          "a cat",
		"negative_prompt": "blurry",
	}))

	assert.Contains(t, session.lastResponse(t).Data.Content, "a cat")
	assert.NotEmpty(t, session.lastResponse(t).Data.Components)

	edit := session.nextEdit(t)
	require.NotNil(t, edit.Content)
	assert.Contains(t, *edit.Content, "here is what I imagined")
	require.Len(t, edit.Files, 1)
	assert.Equal(t, "image/png", edit.Files[0].ContentType)

	assert.Equal(t, "a cat", store.Settings().Prompt)
	assert.Equal(t, "blurry", store.Settings().NegativePrompt)
}

func TestImagineWithoutPrompt(t *testing.T) {
	bot, _ := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	})

	session := newFakeSession()

	bot.handleInteraction(session, commandInteraction("imagine", nil))

	assert.Contains(t, session.lastResponse(t).Data.Content, "Give me a prompt first")
	assert.False(t, bot.controller.InFlight())
}

func TestImagineFailure(t *testing.T) {
	bot, _ := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	session := newFakeSession()

	bot.handleInteraction(session, commandInteraction("imagine", map[string]string{"prompt": "a cat"}))

	edit := session.nextEdit(t)
	assert.Contains(t, *edit.Content, "I had a problem")
	assert.Empty(t, edit.Files)
}

func TestInterruptButton(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	interrupted := make(chan struct{}, 1)

	bot, _ := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/txt2img/interrupt":
			interrupted <- struct{}{}
		case "/api/txt2img":
			started <- struct{}{}
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}
	})
	defer close(release)

	session := newFakeSession()

	bot.handleInteraction(session, commandInteraction("imagine", map[string]string{"prompt": "a cat"}))
	<-started

	bot.handleInteraction(session, &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionMessageComponent,
			Data: discordgo.MessageComponentInteractionData{CustomID: interruptButtonID},
		},
	})

	<-interrupted

	edit := session.nextEdit(t)
	assert.Contains(t, *edit.Content, "was interrupted")
	assert.False(t, bot.controller.InFlight())
}

func TestSecondImagineWhileGenerating(t *testing.T) {
	release := make(chan struct{})
	prompts := make(chan string, 2)

	bot, store := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/txt2img" {
			return
		}

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		prompts <- body["prompt"].(string)

		select {
		case <-release:
		case <-r.Context().Done():
			return
		}

		_, _ = w.Write([]byte(`{"comfy_response":{"generated_images":[{"url":"/api/images/1.png"}]}}`))
	})

	session := newFakeSession()

	bot.handleInteraction(session, commandInteraction("imagine", map[string]string{"prompt": "user A: a cat"}))
	assert.Contains(t, session.lastResponse(t).Data.Content, "Currently dreaming it up")
	assert.True(t, bot.controller.InFlight())

	bot.handleInteraction(session, commandInteraction("imagine", map[string]string{"prompt": "user B: a dog"}))
	assert.Contains(t, session.lastResponse(t).Data.Content, "already running")
	assert.NotEmpty(t, session.lastResponse(t).Data.Components)
	assert.Equal(t, "user A: a cat", store.Settings().Prompt)

	assert.Equal(t, "user A: a cat", <-prompts)
	close(release)

	edit := session.nextEdit(t)
	assert.Contains(t, *edit.Content, "user A: a cat")
	assert.Empty(t, prompts)
}

func TestRandomPromptCommand(t *testing.T) {
	bot, store := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "negative", r.URL.Query().Get("type"))
		_, _ = w.Write([]byte(`{"status":"success","prompt":"lowres","type":"negative"}`))
	})

	session := newFakeSession()

	bot.handleInteraction(session, commandInteraction("random-prompt", map[string]string{"kind": "negative"}))

	assert.Contains(t, session.lastResponse(t).Data.Content, "lowres")
	assert.Equal(t, "lowres", store.Settings().NegativePrompt)
}

func TestRandomPromptCommandError(t *testing.T) {
	bot, store := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"x"}`))
	})

	store.Merge(settings_store.PromptPatch("kept", false))

	session := newFakeSession()

	bot.handleInteraction(session, commandInteraction("random-prompt", map[string]string{"kind": "positive"}))

	assert.Contains(t, session.lastResponse(t).Data.Content, "couldn't fetch")
	assert.Equal(t, "kept", store.Settings().Prompt)
}
