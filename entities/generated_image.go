package entities

import "time"

type GeneratedImage struct {
	ID             string             `json:"id"`
	Mode           GenerationMode     `json:"mode"`
	URL            string             `json:"url"`
	Prompt         string             `json:"prompt"`
	NegativePrompt string             `json:"negative_prompt"`
	Timestamp      time.Time          `json:"timestamp"`
	Settings       GenerationSettings `json:"settings"`
	SortOrder      int                `json:"sort_order"`
}
