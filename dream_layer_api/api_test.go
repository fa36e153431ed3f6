package dream_layer_api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"dream_layer_client/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) DreamLayerAPI {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	api, err := New(Config{Host: server.URL + "/"})
	require.NoError(t, err)

	return api
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	api, err := New(Config{Host: "http://localhost:5001///"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5001", api.(*apiImpl).host)
}

func TestTextToImage(t *testing.T) {
	var gotBody map[string]any

	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/txt2img", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &gotBody))

		_, _ = w.Write([]byte(`{"comfy_response":{"generated_images":[{"url":"http://x/1.png"},{"url":"http://x/2.png"}]}}`))
	})

	resp, err := api.TextToImage(context.Background(), map[string]any{"prompt": "a cat"})
	require.NoError(t, err)

	assert.Equal(t, "a cat", gotBody["prompt"])
	require.Len(t, resp.Images(), 2)
	assert.Equal(t, "http://x/1.png", resp.Images()[0].URL)
	assert.Equal(t, "http://x/2.png", resp.Images()[1].URL)
}

func TestImageToImageStatusError(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/img2img", r.URL.Path)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := api.ImageToImage(context.Background(), map[string]any{})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "boom", statusErr.Body)
}

func TestGenerationResponseWithoutImages(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})

	resp, err := api.TextToImage(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, resp.Images())
}

func TestMalformedJSON(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := api.TextToImage(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestInterrupt(t *testing.T) {
	calls := 0

	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/img2img/interrupt", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, api.Interrupt(context.Background(), entities.ModeImageToImage))
	assert.Equal(t, 1, calls)

	assert.Error(t, api.Interrupt(context.Background(), "upscale"))
	assert.Equal(t, 1, calls)
}

func TestGetModels(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"success","models":[{"id":"1","name":"juggernaut","filename":"juggernaut.safetensors"}]}`))
	})

	models, err := api.GetModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []entities.CheckpointModel{
		{ID: "1", Name: "juggernaut", Filename: "juggernaut.safetensors"},
	}, models)
}

func TestGetModelsInvalidFormat(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"no checkpoints dir"}`))
	})

	_, err := api.GetModels(context.Background())

	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, "invalid response format", respErr.Message)
}

func TestFetchRandomPrompt(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/fetch-prompt", r.URL.Path)
		assert.Equal(t, "positive", r.URL.Query().Get("type"))
		_, _ = w.Write([]byte(`{"status":"success","prompt":"a cat","type":"positive","message":"ok"}`))
	})

	prompt, err := api.FetchRandomPrompt(context.Background(), entities.PromptPositive)
	require.NoError(t, err)
	assert.Equal(t, "a cat", prompt)
}

func TestFetchRandomPromptError(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"x"}`))
	})

	prompt, err := api.FetchRandomPrompt(context.Background(), entities.PromptNegative)
	require.Error(t, err)
	assert.Empty(t, prompt)

	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, "x", respErr.Message)
}

func TestFetchRandomPromptUnknownError(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error"}`))
	})

	_, err := api.FetchRandomPrompt(context.Background(), entities.PromptPositive)
	assert.ErrorContains(t, err, "Unknown error")
}

func TestGetUpscalerModels(t *testing.T) {
	bodies := []string{
		`{"models":["ESRGAN","R-ESRGAN 4x"]}`,
		`{"status":"success","models":["ESRGAN","R-ESRGAN 4x"]}`,
	}

	for _, body := range bodies {
		api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/upscaler-models", r.URL.Path)
			_, _ = w.Write([]byte(body))
		})

		models, err := api.GetUpscalerModels(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"ESRGAN", "R-ESRGAN 4x"}, models)
	}

	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"nope"}`))
	})

	_, err := api.GetUpscalerModels(context.Background())
	assert.Error(t, err)
}

func TestAddAPIKey(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "bare true", body: `true`, want: true},
		{name: "bare false", body: `false`, want: false},
		{name: "success field", body: `{"success":true}`, want: true},
		{name: "status field", body: `{"status":"success"}`, want: true},
		{name: "error status", body: `{"status":"error"}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
				var req addAPIKeyRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "flux-pro", req.Alias)
				assert.Equal(t, "secret", req.APIKey)
				_, _ = w.Write([]byte(tt.body))
			})

			ok, err := api.AddAPIKey(context.Background(), "flux-pro", "secret")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestFetchImageResolvesRelativeURL(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/images/out_1.png", r.URL.Path)
		_, _ = w.Write([]byte("png-bytes"))
	})

	data, err := api.FetchImage(context.Background(), "/api/images/out_1.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestContextCancelled(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := api.TextToImage(ctx, map[string]any{})
	assert.ErrorIs(t, err, context.Canceled)
}
