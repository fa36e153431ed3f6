package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	labelStyle        = lipgloss.NewStyle().Width(18).Foreground(lipgloss.Color("#767676"))
	focusedLabelStyle = labelStyle.Foreground(lipgloss.Color("#FF06B7"))
)

// form is a vertical list of labelled text inputs with one focused at a time.
type form struct {
	labels  []string
	inputs  []textinput.Model
	focused int
}

func newInput(placeholder string, charLimit int) textinput.Model {
	input := textinput.New()
	input.Placeholder = placeholder
	input.CharLimit = charLimit
	input.Width = 48
	input.Prompt = ""

	// tab belongs to the mode tabs
	input.KeyMap.AcceptSuggestion = key.NewBinding(key.WithKeys("ctrl+y"))
	input.KeyMap.NextSuggestion = key.NewBinding(key.WithKeys("ctrl+down"))
	input.KeyMap.PrevSuggestion = key.NewBinding(key.WithKeys("ctrl+up"))

	return input
}

func (f *form) add(label string, input textinput.Model) int {
	f.labels = append(f.labels, label)
	f.inputs = append(f.inputs, input)

	return len(f.inputs) - 1
}

func (f *form) focus() tea.Cmd {
	for i := range f.inputs {
		f.inputs[i].Blur()
	}

	if len(f.inputs) == 0 {
		return nil
	}

	return f.inputs[f.focused].Focus()
}

func (f *form) blur() {
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
}

func (f *form) next() tea.Cmd {
	if len(f.inputs) > 0 {
		f.focused = (f.focused + 1) % len(f.inputs)
	}

	return f.focus()
}

func (f *form) prev() tea.Cmd {
	if len(f.inputs) > 0 {
		f.focused = (f.focused - 1 + len(f.inputs)) % len(f.inputs)
	}

	return f.focus()
}

func (f *form) value(i int) string {
	return strings.TrimSpace(f.inputs[i].Value())
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	if len(f.inputs) == 0 {
		return nil
	}

	var cmd tea.Cmd
	f.inputs[f.focused], cmd = f.inputs[f.focused].Update(msg)

	return cmd
}

func (f *form) view() string {
	rows := make([]string, len(f.inputs))

	for i, input := range f.inputs {
		style := labelStyle
		if i == f.focused {
			style = focusedLabelStyle
		}

		rows[i] = lipgloss.JoinHorizontal(lipgloss.Top, style.Render(f.labels[i]), input.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
