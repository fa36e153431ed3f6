// Package tui is the terminal front end: one tab per generation mode, each
// with its settings form, primary action button and gallery.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"dream_layer_client/custom_workflow"
	"dream_layer_client/dream_layer_api"
	"dream_layer_client/entities"
	"dream_layer_client/gallery"
	"dream_layer_client/generation_controller"
	"dream_layer_client/hotkeys"
	"dream_layer_client/settings_store"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/go-errors/errors"
	zone "github.com/lrstanley/bubblezone"
)

var zoneOnce sync.Once

type (
	modelsMsg struct {
		models []entities.CheckpointModel
		err    error
	}

	upscalersMsg struct {
		upscalers []string
	}
)

// Mode groups what one mode tab drives.
type Mode struct {
	Controller generation_controller.Controller
	Store      *settings_store.Store
	Gallery    *gallery.Gallery
}

type Config struct {
	API   dream_layer_api.DreamLayerAPI
	Modes []Mode
}

type model struct {
	width  int
	height int

	api      dream_layer_api.DreamLayerAPI
	shortcut *hotkeys.Shortcut
	detach   func()

	modeTabs tabs
	panes    []*pane

	models    []entities.CheckpointModel
	upscalers []string
	err       error
}

func newModel(cfg Config) (*model, error) {
	if cfg.API == nil {
		return nil, errors.New("missing dream layer API")
	}

	if len(cfg.Modes) == 0 {
		return nil, errors.New("missing modes")
	}

	zoneOnce.Do(zone.NewGlobal)

	loader := custom_workflow.New()

	m := &model{
		api:      cfg.API,
		shortcut: hotkeys.New(),
		panes:    make([]*pane, 0, len(cfg.Modes)),
	}

	labels := make([]string, 0, len(cfg.Modes))

	for _, mode := range cfg.Modes {
		p, err := newPane(paneConfig{
			Controller: mode.Controller,
			Store:      mode.Store,
			Gallery:    mode.Gallery,
			Fetcher:    cfg.API,
			Loader:     loader,
		})
		if err != nil {
			return nil, err
		}

		m.panes = append(m.panes, p)
		labels = append(labels, p.mode.Label())
	}

	m.modeTabs = newTabs("mode-", labels...)
	m.mount()

	return m, nil
}

func (m *model) active() *pane {
	return m.panes[m.modeTabs.Index()]
}

func (m *model) pane(mode entities.GenerationMode) *pane {
	for _, p := range m.panes {
		if p.mode == mode {
			return p
		}
	}

	return nil
}

// mount binds the shortcut to the active pane, replacing the previous one.
func (m *model) mount() tea.Cmd {
	if m.detach != nil {
		m.detach()
	}

	p := m.active()
	m.detach = m.shortcut.Attach(p.primaryAction)

	return p.focus()
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadModels(), m.loadUpscalers())
}

func (m *model) loadModels() tea.Cmd {
	api := m.api

	return func() tea.Msg {
		models, err := api.GetModels(context.Background())

		return modelsMsg{models: models, err: err}
	}
}

func (m *model) loadUpscalers() tea.Cmd {
	api := m.api

	return func() tea.Msg {
		upscalers, err := api.GetUpscalerModels(context.Background())
		if err != nil {
			log.Warn("Could not load upscaler models", "err", err)

			return upscalersMsg{upscalers: []string{}}
		}

		return upscalersMsg{upscalers: upscalers}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		return m, nil
	case modelsMsg:
		if msg.err != nil {
			log.Error("Error loading models", "err", msg.err)
			m.err = msg.err

			return m, nil
		}

		m.models = msg.models
		for _, p := range m.panes {
			p.setModels(msg.models)
		}

		return m, nil
	case upscalersMsg:
		m.upscalers = msg.upscalers

		return m, nil
	case generationDoneMsg:
		if p := m.pane(msg.mode); p != nil {
			p.handleGenerationDone(msg)
		}

		return m, nil
	case interruptDoneMsg:
		if p := m.pane(msg.mode); p != nil && msg.err != nil {
			p.err = msg.err
		}

		return m, nil
	case randomPromptMsg:
		if p := m.pane(msg.mode); p != nil {
			p.handleRandomPrompt(msg)
		}

		return m, nil
	case galleryChangedMsg:
		return m, nil
	case spinner.TickMsg:
		var cmds []tea.Cmd

		for _, p := range m.panes {
			if !p.controller.InFlight() {
				continue
			}

			var cmd tea.Cmd
			p.spinner, cmd = p.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

		return m, tea.Batch(cmds...)
	case tea.MouseMsg:
		var changed bool

		m.modeTabs, changed = m.modeTabs.Click(msg)
		if changed {
			return m, m.mount()
		}

		return m, m.active().handleMouse(msg)
	case tea.KeyMsg:
		if cmd, handled := m.shortcut.Handle(msg); handled {
			return m, cmd
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.NextMode):
			m.modeTabs = m.modeTabs.Next()
			return m, m.mount()
		case key.Matches(msg, keys.PrevMode):
			m.modeTabs = m.modeTabs.Previous()
			return m, m.mount()
		}

		return m, m.active().handleKey(msg)
	}

	return m, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

func (m *model) View() string {
	header := headerStyle.Render("Dream Layer")

	info := fmt.Sprintf("%d models, %d upscalers", len(m.models), len(m.upscalers))
	if m.err != nil {
		info = errorStyle.Render("models unavailable: " + m.err.Error())
	}

	help := make([]string, 0, len(keys.help()))
	for _, binding := range keys.help() {
		h := binding.Help()
		help = append(help, h.Key+" "+h.Desc)
	}

	view := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, header, "  ", dimStyle.Render(info)),
		m.modeTabs.SetWidth(m.width).View(),
		m.active().view(m.width),
		"",
		helpStyle.Render(strings.Join(help, " • ")),
	)

	return zone.Scan(view)
}

// Run starts the program and blocks until the user quits or ctx is done.
func Run(ctx context.Context, cfg Config) error {
	m, err := newModel(cfg)
	if err != nil {
		return err
	}

	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

	for _, p := range m.panes {
		mode := p.mode

		unsubscribe := p.gallery.Subscribe(func([]entities.GeneratedImage) {
			go program.Send(galleryChangedMsg{mode: mode})
		})
		defer unsubscribe()
	}

	_, err = program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}

	return nil
}
