// Package generation_request assembles the JSON body sent to the generation
// endpoints from a settings snapshot and the optional extras.
package generation_request

import (
	"dream_layer_client/entities"
)

// Extras holds the independently toggled add-ons. A nil field, or one that
// is switched off, never reaches the wire.
type Extras struct {
	ControlNet     *entities.ControlNetConfig
	Lora           *entities.LoraConfig
	CustomWorkflow entities.CustomWorkflow
	InputImage     *entities.InputImage
}

type Payload struct {
	entities.GenerationSettings

	ControlNet     *entities.ControlNetConfig `json:"controlnet,omitempty"`
	Lora           *entities.LoraConfig       `json:"lora,omitempty"`
	CustomWorkflow entities.CustomWorkflow    `json:"custom_workflow,omitempty"`

	InputImage     string `json:"input_image,omitempty"`
	InputImageName string `json:"input_image_name,omitempty"`
}

// Build merges extras into a copy of settings.
func Build(settings entities.GenerationSettings, extras Extras) *Payload {
	payload := &Payload{GenerationSettings: settings}

	if extras.ControlNet.Usable() {
		payload.ControlNet = extras.ControlNet.Clone()
	}

	if extras.Lora.Usable() {
		payload.Lora = extras.Lora.Clone()
	}

	if !extras.CustomWorkflow.Empty() {
		payload.CustomWorkflow = extras.CustomWorkflow.Clone()
	}

	if extras.InputImage != nil && extras.InputImage.Data != "" {
		payload.InputImage = extras.InputImage.Data
		payload.InputImageName = extras.InputImage.Name
	}

	return payload
}
