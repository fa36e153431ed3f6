package entities

import "encoding/json"

type GenerationMode string

const (
	ModeTextToImage  GenerationMode = "txt2img"
	ModeImageToImage GenerationMode = "img2img"
)

func (m GenerationMode) Valid() bool {
	return m == ModeTextToImage || m == ModeImageToImage
}

func (m GenerationMode) Label() string {
	switch m {
	case ModeTextToImage:
		return "Text to Image"
	case ModeImageToImage:
		return "Image to Image"
	default:
		return string(m)
	}
}

type GenerationSettings struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	SamplerName    string  `json:"sampler_name"`
	Scheduler      string  `json:"scheduler"`
	Steps          int     `json:"steps"`
	CfgScale       float64 `json:"cfg_scale"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	BatchCount     int     `json:"batch_count"`
	BatchSize      int     `json:"batch_size"`
	Seed           int     `json:"seed"`
	RandomSeed     bool    `json:"random_seed"`
	ModelName      string  `json:"model_name"`
}

const (
	DefaultSampler    = "euler"
	DefaultScheduler  = "normal"
	DefaultSteps      = 20
	DefaultCFGScale   = 7.0
	DefaultWidth      = 512
	DefaultHeight     = 512
	DefaultBatchCount = 1
	DefaultBatchSize  = 1
	DefaultSeed       = -1
)

func NewGenerationSettings() GenerationSettings {
	return GenerationSettings{
		SamplerName: DefaultSampler,
		Scheduler:   DefaultScheduler,
		Steps:       DefaultSteps,
		CfgScale:    DefaultCFGScale,
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		BatchCount:  DefaultBatchCount,
		BatchSize:   DefaultBatchSize,
		Seed:        DefaultSeed,
		RandomSeed:  true,
	}
}

// OutputQuantity is the number of images a submission is expected to produce.
func (s GenerationSettings) OutputQuantity() int {
	return s.BatchCount * s.BatchSize
}

type ControlNetUnit struct {
	Enabled      bool     `json:"enabled"`
	InputImage   string   `json:"input_image,omitempty"`
	Model        string   `json:"model,omitempty"`
	Module       string   `json:"module,omitempty"`
	Weight       *float64 `json:"weight,omitempty"`
	ResizeMode   string   `json:"resize_mode,omitempty"`
	ProcessorRes *int     `json:"processor_res,omitempty"`
}

type ControlNetConfig struct {
	Enabled bool             `json:"enabled"`
	Units   []ControlNetUnit `json:"units"`
}

// Usable reports whether the config should be sent at all: it has to be
// switched on and carry at least one enabled unit.
func (c *ControlNetConfig) Usable() bool {
	if c == nil || !c.Enabled {
		return false
	}

	for _, unit := range c.Units {
		if unit.Enabled {
			return true
		}
	}

	return false
}

func (c *ControlNetConfig) Clone() *ControlNetConfig {
	if c == nil {
		return nil
	}

	clone := *c
	clone.Units = append([]ControlNetUnit(nil), c.Units...)

	return &clone
}

type LoraConfig struct {
	Enabled       bool    `json:"enabled"`
	Name          string  `json:"name"`
	StrengthModel float64 `json:"strength_model"`
	StrengthClip  float64 `json:"strength_clip"`
}

func (l *LoraConfig) Usable() bool {
	return l != nil && l.Enabled
}

func (l *LoraConfig) Clone() *LoraConfig {
	if l == nil {
		return nil
	}

	clone := *l

	return &clone
}

// CustomWorkflow is a backend pipeline description. It is never inspected
// beyond checking that it is a JSON object.
type CustomWorkflow json.RawMessage

func (w CustomWorkflow) Empty() bool {
	return len(w) == 0 || string(w) == "null"
}

func (w CustomWorkflow) Clone() CustomWorkflow {
	if w == nil {
		return nil
	}

	return append(CustomWorkflow(nil), w...)
}

func (w CustomWorkflow) MarshalJSON() ([]byte, error) {
	if w.Empty() {
		return []byte("null"), nil
	}

	return w, nil
}

func (w *CustomWorkflow) UnmarshalJSON(data []byte) error {
	*w = append((*w)[:0], data...)

	return nil
}

type InputImage struct {
	Name string `json:"name"`
	// Data is the base64 encoded image.
	Data string `json:"data"`
}
