package dream_layer_api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"dream_layer_client/entities"

	"github.com/charmbracelet/log"
	"github.com/go-errors/errors"
)

const (
	modelsPath         = "/api/models"
	fetchPromptPath    = "/api/fetch-prompt"
	upscalerModelsPath = "/api/upscaler-models"
	addAPIKeyPath      = "/api/add-api-key"

	statusSuccess = "success"
)

func generationPath(mode entities.GenerationMode) string {
	return "/api/" + string(mode)
}

func interruptPath(mode entities.GenerationMode) string {
	return generationPath(mode) + "/interrupt"
}

type apiImpl struct {
	host   string
	client *http.Client
}

type Config struct {
	Host string
	// HTTPClient defaults to a client without a timeout; a hung generation
	// stays in flight until the request settles or is interrupted.
	HTTPClient *http.Client
}

func New(cfg Config) (DreamLayerAPI, error) {
	if cfg.Host == "" {
		return nil, errors.New("missing host")
	}

	// remove trailing slash
	cfg.Host = strings.TrimRight(cfg.Host, "/")

	if _, err := url.ParseRequestURI(cfg.Host); err != nil {
		return nil, errors.WrapPrefix(err, "invalid host", 0)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &apiImpl{
		host:   cfg.Host,
		client: client,
	}, nil
}

type ImageDescriptor struct {
	URL string `json:"url"`
}

type ComfyResponse struct {
	GeneratedImages []ImageDescriptor `json:"generated_images"`
}

type GenerationResponse struct {
	Status        string         `json:"status,omitempty"`
	Message       string         `json:"message,omitempty"`
	ComfyResponse *ComfyResponse `json:"comfy_response"`
}

// Images returns the descriptors in the order the backend listed them, or
// nil when the response carries none.
func (r *GenerationResponse) Images() []ImageDescriptor {
	if r == nil || r.ComfyResponse == nil {
		return nil
	}

	return r.ComfyResponse.GeneratedImages
}

func (api *apiImpl) TextToImage(ctx context.Context, payload any) (*GenerationResponse, error) {
	return api.generate(ctx, entities.ModeTextToImage, payload)
}

func (api *apiImpl) ImageToImage(ctx context.Context, payload any) (*GenerationResponse, error) {
	return api.generate(ctx, entities.ModeImageToImage, payload)
}

func (api *apiImpl) generate(ctx context.Context, mode entities.GenerationMode, payload any) (*GenerationResponse, error) {
	if payload == nil {
		return nil, errors.New("missing request")
	}

	respStruct := &GenerationResponse{}

	err := api.doJSON(ctx, http.MethodPost, generationPath(mode), payload, respStruct)
	if err != nil {
		return nil, err
	}

	return respStruct, nil
}

func (api *apiImpl) Interrupt(ctx context.Context, mode entities.GenerationMode) error {
	if !mode.Valid() {
		return errors.Errorf("unknown generation mode %q", mode)
	}

	_, err := api.do(ctx, http.MethodPost, interruptPath(mode), struct{}{})

	return err
}

type modelsResponse struct {
	Status  string                     `json:"status"`
	Message string                     `json:"message"`
	Models  []entities.CheckpointModel `json:"models"`
}

func (api *apiImpl) GetModels(ctx context.Context) ([]entities.CheckpointModel, error) {
	respStruct := &modelsResponse{}

	err := api.doJSON(ctx, http.MethodGet, modelsPath, nil, respStruct)
	if err != nil {
		return nil, err
	}

	if respStruct.Status != statusSuccess || respStruct.Models == nil {
		log.Error("Unexpected models response", "status", respStruct.Status, "message", respStruct.Message)

		return nil, errors.New(&ResponseError{Endpoint: modelsPath, Message: "invalid response format"})
	}

	return respStruct.Models, nil
}

type RandomPromptResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Prompt  string `json:"prompt"`
}

func (api *apiImpl) FetchRandomPrompt(ctx context.Context, kind entities.PromptKind) (string, error) {
	if kind != entities.PromptPositive && kind != entities.PromptNegative {
		return "", errors.Errorf("unknown prompt type %q", kind)
	}

	path := fetchPromptPath + "?" + url.Values{"type": {string(kind)}}.Encode()

	respStruct := &RandomPromptResponse{}

	err := api.doJSON(ctx, http.MethodGet, path, nil, respStruct)
	if err != nil {
		return "", err
	}

	if respStruct.Status != statusSuccess {
		message := respStruct.Message
		if message == "" {
			message = "Unknown error"
		}

		return "", errors.New(&ResponseError{Endpoint: fetchPromptPath, Message: message})
	}

	return respStruct.Prompt, nil
}

type upscalerModelsResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Models  []string `json:"models"`
}

func (api *apiImpl) GetUpscalerModels(ctx context.Context) ([]string, error) {
	respStruct := &upscalerModelsResponse{}

	err := api.doJSON(ctx, http.MethodGet, upscalerModelsPath, nil, respStruct)
	if err != nil {
		return nil, err
	}

	// the envelope is optional; only an explicit non-success status is an error
	if respStruct.Status != "" && respStruct.Status != statusSuccess {
		return nil, errors.New(&ResponseError{Endpoint: upscalerModelsPath, Message: respStruct.Message})
	}

	if respStruct.Models == nil {
		return []string{}, nil
	}

	return respStruct.Models, nil
}

type addAPIKeyRequest struct {
	Alias  string `json:"alias"`
	APIKey string `json:"api_key"`
}

func (api *apiImpl) AddAPIKey(ctx context.Context, alias, apiKey string) (bool, error) {
	if alias == "" {
		return false, errors.New("missing alias")
	}

	if apiKey == "" {
		return false, errors.New("missing api key")
	}

	body, err := api.do(ctx, http.MethodPost, addAPIKeyPath, &addAPIKeyRequest{Alias: alias, APIKey: apiKey})
	if err != nil {
		return false, err
	}

	return parseSuccess(body)
}

// parseSuccess accepts a bare JSON boolean or an object carrying either a
// "success" boolean or a "status" string.
func parseSuccess(body []byte) (bool, error) {
	var ok bool
	if err := json.Unmarshal(body, &ok); err == nil {
		return ok, nil
	}

	var envelope struct {
		Success *bool  `json:"success"`
		Status  string `json:"status"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil {
		return false, errors.WrapPrefix(err, addAPIKeyPath+": unexpected response", 0)
	}

	if envelope.Success != nil {
		return *envelope.Success, nil
	}

	return envelope.Status == statusSuccess, nil
}

// FetchImage downloads a generated image. Relative URLs are resolved
// against the configured host.
func (api *apiImpl) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if imageURL == "" {
		return nil, errors.New("missing image url")
	}

	target, err := api.resolve(imageURL)
	if err != nil {
		return nil, err
	}

	return api.send(ctx, http.MethodGet, target, nil)
}

func (api *apiImpl) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", errors.WrapPrefix(err, "invalid url", 0)
	}

	if u.IsAbs() {
		return u.String(), nil
	}

	base, err := url.Parse(api.host + "/")
	if err != nil {
		return "", errors.WrapPrefix(err, "invalid host", 0)
	}

	return base.ResolveReference(u).String(), nil
}

func (api *apiImpl) doJSON(ctx context.Context, method, path string, reqBody any, respStruct any) error {
	body, err := api.do(ctx, method, path, reqBody)
	if err != nil {
		return err
	}

	err = json.Unmarshal(body, respStruct)
	if err != nil {
		log.Error("Unexpected API response", "url", api.host+path, "body", string(body))

		return errors.WrapPrefix(err, method+" "+path+": decoding response", 0)
	}

	return nil
}

func (api *apiImpl) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var jsonData []byte

	if reqBody != nil {
		var err error

		jsonData, err = json.Marshal(reqBody)
		if err != nil {
			return nil, errors.Wrap(err, 0)
		}
	}

	return api.send(ctx, method, api.host+path, jsonData)
}

func (api *apiImpl) send(ctx context.Context, method, target string, jsonData []byte) ([]byte, error) {
	var reqBody io.Reader
	if jsonData != nil {
		reqBody = bytes.NewReader(jsonData)
	}

	request, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	if jsonData != nil {
		request.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}

	response, err := api.client.Do(request)
	if err != nil {
		log.Error("Error with API request", "method", method, "url", target, "err", err)

		return nil, errors.WrapPrefix(err, method+" "+target, 0)
	}

	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, errors.WrapPrefix(err, method+" "+target+": reading response", 0)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		log.Error("API request failed", "method", method, "url", target, "status", response.StatusCode)

		return nil, errors.New(&StatusError{
			Method:     method,
			URL:        target,
			StatusCode: response.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	return body, nil
}
