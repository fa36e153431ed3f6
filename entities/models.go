package entities

type CheckpointModel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
}

type PromptKind string

const (
	PromptPositive PromptKind = "positive"
	PromptNegative PromptKind = "negative"
)
