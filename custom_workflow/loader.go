// Package custom_workflow loads ComfyUI workflows for the custom workflow
// extra, either from a JSON export or from the metadata of a generated PNG.
package custom_workflow

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"dream_layer_client/entities"

	"github.com/charmbracelet/log"
	"github.com/go-errors/errors"
)

var (
	ErrNotPNG              = errors.New("not a PNG file")
	ErrNoWorkflow          = errors.New("no workflow found")
	ErrUnsupportedFormat   = errors.New("unsupported workflow file, expected .json or .png")
	ErrWorkflowNotAnObject = errors.New("workflow must be a JSON object")
)

// PNG text keywords, in lookup order.
const (
	keywordWorkflow   = "workflow"
	keywordPrompt     = "prompt"
	keywordParameters = "parameters"
)

type Result struct {
	Workflow entities.CustomWorkflow
	// Source names where the workflow came from: "json", or the PNG text
	// keyword it was read from.
	Source string
	// Prompt is the positive prompt from A1111 style "parameters" metadata,
	// when present.
	Prompt string
}

type loaderImpl struct{}

func New() Loader {
	return &loaderImpl{}
}

func (l *loaderImpl) LoadFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return l.Load(path, data)
}

func (l *loaderImpl) Load(name string, data []byte) (*Result, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		workflow, err := parseWorkflow(data)
		if err != nil {
			return nil, err
		}

		return &Result{Workflow: workflow, Source: "json"}, nil
	case ".png":
		return loadPNG(data)
	default:
		return nil, ErrUnsupportedFormat
	}
}

func loadPNG(data []byte) (*Result, error) {
	texts, err := textChunks(data)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	if parameters, ok := texts[keywordParameters]; ok {
		result.Prompt, _, _ = strings.Cut(parameters, "\n")
	}

	for _, keyword := range []string{keywordWorkflow, keywordPrompt} {
		raw, ok := texts[keyword]
		if !ok {
			continue
		}

		workflow, err := parseWorkflow([]byte(raw))
		if err != nil {
			log.Warn("Skipping invalid PNG workflow metadata", "keyword", keyword, "err", err)
			continue
		}

		result.Workflow = workflow
		result.Source = keyword

		return result, nil
	}

	if result.Prompt != "" {
		result.Source = keywordParameters

		return result, nil
	}

	return nil, ErrNoWorkflow
}

func parseWorkflow(data []byte) (entities.CustomWorkflow, error) {
	trimmed := bytes.TrimSpace(data)

	var object map[string]json.RawMessage

	if err := json.Unmarshal(trimmed, &object); err != nil {
		return nil, errors.WrapPrefix(err, ErrWorkflowNotAnObject.Error(), 0)
	}

	if object == nil {
		return nil, ErrWorkflowNotAnObject
	}

	if len(object) == 0 {
		return nil, ErrNoWorkflow
	}

	return entities.CustomWorkflow(append([]byte(nil), trimmed...)), nil
}
