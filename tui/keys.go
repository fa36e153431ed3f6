package tui

import (
	"dream_layer_client/hotkeys"

	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Quit             key.Binding
	NextMode         key.Binding
	PrevMode         key.Binding
	NextSection      key.Binding
	NextField        key.Binding
	PrevField        key.Binding
	Random           key.Binding
	ToggleLora       key.Binding
	ToggleControlNet key.Binding
	ClearWorkflow    key.Binding
	RemoveLast       key.Binding
	ClearGallery     key.Binding
}

var keys = keyMap{
	Quit:             key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
	NextMode:         key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next mode")),
	PrevMode:         key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous mode")),
	NextSection:      key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "next section")),
	NextField:        key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "next field")),
	PrevField:        key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "previous field")),
	Random:           key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "add random prompt")),
	ToggleLora:       key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "toggle lora")),
	ToggleControlNet: key.NewBinding(key.WithKeys("ctrl+k"), key.WithHelp("ctrl+k", "toggle controlnet")),
	ClearWorkflow:    key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "clear workflow")),
	RemoveLast:       key.NewBinding(key.WithKeys("ctrl+g"), key.WithHelp("ctrl+g", "remove last image")),
	ClearGallery:     key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "clear gallery")),
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{
		hotkeys.Submit, k.Random, k.NextMode, k.NextSection, k.ToggleLora, k.ToggleControlNet,
		k.ClearWorkflow, k.RemoveLast, k.ClearGallery, k.Quit,
	}
}
