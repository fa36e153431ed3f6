package entities

import "time"

// SettingsRecord is the persisted form of one mode's settings store.
// Input images are not persisted.
type SettingsRecord struct {
	Mode           GenerationMode     `json:"mode"`
	Settings       GenerationSettings `json:"settings"`
	ControlNet     *ControlNetConfig  `json:"controlnet,omitempty"`
	Lora           *LoraConfig        `json:"lora,omitempty"`
	CustomWorkflow CustomWorkflow     `json:"custom_workflow,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}
