package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
)

var (
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	danger    = lipgloss.AdaptiveColor{Light: "#E0245E", Dark: "#FF5F87"}
)

var (
	activeTabBorder = lipgloss.Border{
		Top:         "─",
		Bottom:      " ",
		Left:        "│",
		Right:       "│",
		TopLeft:     "╭",
		TopRight:    "╮",
		BottomLeft:  "┘",
		BottomRight: "└",
	}

	tabBorder = lipgloss.Border{
		Top:         "─",
		Bottom:      "─",
		Left:        "│",
		Right:       "│",
		TopLeft:     "╭",
		TopRight:    "╮",
		BottomLeft:  "┴",
		BottomRight: "┴",
	}

	tabStyle = lipgloss.NewStyle().
			Border(tabBorder, true).
			BorderForeground(highlight).
			Padding(0, 1)

	activeTabStyle = tabStyle.Border(activeTabBorder, true)

	tabGapStyle = tabStyle.
			BorderTop(false).
			BorderLeft(false).
			BorderRight(false)
)

// tabs is a row of clickable tabs. Zones are marked with prefix+label.
type tabs struct {
	prefix string
	width  int

	items  []string
	active int
}

func newTabs(prefix string, items ...string) tabs {
	return tabs{prefix: prefix, items: items}
}

func (t tabs) Active() string {
	return t.items[t.active]
}

func (t tabs) Index() int {
	return t.active
}

func (t tabs) Next() tabs {
	t.active = (t.active + 1) % len(t.items)
	return t
}

func (t tabs) Previous() tabs {
	t.active = (t.active - 1 + len(t.items)) % len(t.items)
	return t
}

// Click activates the tab under a mouse press. It reports whether the
// active tab changed.
func (t tabs) Click(msg tea.MouseMsg) (tabs, bool) {
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return t, false
	}

	for i, item := range t.items {
		if z := zone.Get(t.prefix + item); z != nil && z.InBounds(msg) {
			changed := i != t.active
			t.active = i

			return t, changed
		}
	}

	return t, false
}

func (t tabs) SetWidth(width int) tabs {
	t.width = width
	return t
}

func (t tabs) View() string {
	out := make([]string, 0, len(t.items))

	for i, item := range t.items {
		style := tabStyle
		if i == t.active {
			style = activeTabStyle
		}

		out = append(out, zone.Mark(t.prefix+item, style.Render(item)))
	}

	row := lipgloss.JoinHorizontal(lipgloss.Top, out...)
	gap := tabGapStyle.Render(strings.Repeat(" ", max(0, t.width-lipgloss.Width(row)-2)))

	return lipgloss.JoinHorizontal(lipgloss.Bottom, row, gap)
}
