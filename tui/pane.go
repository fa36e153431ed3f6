package tui

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dream_layer_client/custom_workflow"
	"dream_layer_client/entities"
	"dream_layer_client/gallery"
	"dream_layer_client/generation_controller"
	"dream_layer_client/prompt_input"
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

const (
	sectionGeneration = "Generation"
	sectionWorkflow   = "Custom Workflow"
	sectionLora       = "Lora"
	sectionControlNet = "ControlNet"

	labelGenerate  = "Generate Image"
	labelInterrupt = "Interrupt"

	galleryRows = 6
)

type (
	generationDoneMsg struct {
		mode   entities.GenerationMode
		images []entities.GeneratedImage
		err    error
	}

	interruptDoneMsg struct {
		mode entities.GenerationMode
		err  error
	}

	randomPromptMsg struct {
		mode entities.GenerationMode
		kind entities.PromptKind
		err  error
	}

	galleryChangedMsg struct {
		mode entities.GenerationMode
	}
)

// generation form rows
const (
	rowPrompt = iota
	rowNegative
	rowModel
	rowSteps
	rowCfg
	rowWidth
	rowHeight
	rowBatchCount
	rowBatchSize
	rowSeed
	rowInputImage
)

// lora form rows
const (
	rowLoraName = iota
	rowLoraStrengthModel
	rowLoraStrengthClip
)

// controlnet form rows
const (
	rowControlNetModel = iota
	rowControlNetModule
	rowControlNetWeight
	rowControlNetImage
)

// pane is everything shown under one mode tab.
type pane struct {
	mode       entities.GenerationMode
	controller generation_controller.Controller
	store      *settings_store.Store
	gallery    *gallery.Gallery
	loader     custom_workflow.Loader

	positive *prompt_input.Field
	negative *prompt_input.Field

	sections    tabs
	generation  form
	lora        form
	loraEnabled bool
	workflow    form

	controlNet        form
	controlNetEnabled bool
	// the unit image is read once per path; an empty path keeps the stored one
	controlNetImagePath string
	controlNetImage     string

	inputImagePath string

	spinner spinner.Model
	status  string
	err     error
}

type paneConfig struct {
	Controller generation_controller.Controller
	Store      *settings_store.Store
	Gallery    *gallery.Gallery
	Fetcher    prompt_input.RandomPromptFetcher
	Loader     custom_workflow.Loader
}

func newPane(cfg paneConfig) (*pane, error) {
	if cfg.Controller == nil || cfg.Store == nil || cfg.Gallery == nil {
		return nil, errors.New("missing controller, store or gallery")
	}

	mode := cfg.Controller.Mode()
	snapshot := cfg.Store.Snapshot()

	p := &pane{
		mode:       mode,
		controller: cfg.Controller,
		store:      cfg.Store,
		gallery:    cfg.Gallery,
		loader:     cfg.Loader,
		sections:   newTabs(string(mode)+"-section-", sectionGeneration, sectionWorkflow, sectionLora, sectionControlNet),
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
	}

	var err error

	p.positive, err = prompt_input.New(prompt_input.Config{
		Kind:    entities.PromptPositive,
		Fetcher: cfg.Fetcher,
		Initial: snapshot.Settings.Prompt,
		OnChange: func(value string) {
			cfg.Store.Merge(settings_store.PromptPatch(value, false))
		},
	})
	if err != nil {
		return nil, err
	}

	p.negative, err = prompt_input.New(prompt_input.Config{
		Kind:    entities.PromptNegative,
		Fetcher: cfg.Fetcher,
		Initial: snapshot.Settings.NegativePrompt,
		OnChange: func(value string) {
			cfg.Store.Merge(settings_store.PromptPatch(value, true))
		},
	})
	if err != nil {
		return nil, err
	}

	p.buildForms(snapshot)

	return p, nil
}

func (p *pane) buildForms(snapshot settings_store.Snapshot) {
	s := snapshot.Settings

	withValue := func(placeholder string, limit int, value string) (input textinput.Model) {
		input = newInput(placeholder, limit)
		input.SetValue(value)

		return input
	}

	p.generation.add("Prompt", withValue("a cat in a hat", prompt_input.MaxLength, s.Prompt))
	p.generation.add("Negative prompt", withValue("blurry, lowres", prompt_input.MaxLength, s.NegativePrompt))
	p.generation.add("Model", withValue("checkpoint filename", 256, s.ModelName))
	p.generation.add("Steps", withValue("20", 4, strconv.Itoa(s.Steps)))
	p.generation.add("CFG scale", withValue("7", 6, formatFloat(s.CfgScale)))
	p.generation.add("Width", withValue("512", 5, strconv.Itoa(s.Width)))
	p.generation.add("Height", withValue("512", 5, strconv.Itoa(s.Height)))
	p.generation.add("Batch count", withValue("1", 3, strconv.Itoa(s.BatchCount)))
	p.generation.add("Batch size", withValue("1", 3, strconv.Itoa(s.BatchSize)))
	p.generation.add("Seed", withValue("-1 for random", 12, seedValue(s)))

	if p.mode == entities.ModeImageToImage {
		p.generation.add("Input image", withValue("path to a .png or .jpg", 1024, ""))
	}

	p.lora.add("Name", withValue("lora filename", 256, ""))
	p.lora.add("Strength model", withValue("1.0", 6, "1"))
	p.lora.add("Strength clip", withValue("1.0", 6, "1"))

	if snapshot.Lora != nil {
		p.loraEnabled = snapshot.Lora.Enabled
		p.lora.inputs[rowLoraName].SetValue(snapshot.Lora.Name)
		p.lora.inputs[rowLoraStrengthModel].SetValue(formatFloat(snapshot.Lora.StrengthModel))
		p.lora.inputs[rowLoraStrengthClip].SetValue(formatFloat(snapshot.Lora.StrengthClip))
	}

	p.controlNet.add("Model", withValue("controlnet model filename", 256, ""))
	p.controlNet.add("Module", withValue("preprocessor, e.g. canny", 64, ""))
	p.controlNet.add("Weight", withValue("1.0", 6, "1"))
	p.controlNet.add("Control image", withValue("path to a .png or .jpg", 1024, ""))

	if cn := snapshot.ControlNet; cn != nil && len(cn.Units) > 0 {
		unit := cn.Units[0]

		p.controlNetEnabled = cn.Enabled && unit.Enabled
		p.controlNetImage = unit.InputImage
		p.controlNet.inputs[rowControlNetModel].SetValue(unit.Model)
		p.controlNet.inputs[rowControlNetModule].SetValue(unit.Module)

		if unit.Weight != nil {
			p.controlNet.inputs[rowControlNetWeight].SetValue(formatFloat(*unit.Weight))
		}
	}

	p.workflow.add("Workflow file", withValue("path to a .json or .png", 1024, ""))

	if !snapshot.CustomWorkflow.Empty() {
		p.status = "Stored custom workflow loaded"
	}
}

func seedValue(s entities.GenerationSettings) string {
	if s.RandomSeed {
		return "-1"
	}

	return strconv.Itoa(s.Seed)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (p *pane) activeForm() *form {
	switch p.sections.Active() {
	case sectionLora:
		return &p.lora
	case sectionControlNet:
		return &p.controlNet
	case sectionWorkflow:
		return &p.workflow
	default:
		return &p.generation
	}
}

func (p *pane) focus() tea.Cmd {
	p.generation.blur()
	p.lora.blur()
	p.controlNet.blur()
	p.workflow.blur()

	return p.activeForm().focus()
}

func (p *pane) setModels(models []entities.CheckpointModel) {
	names := make([]string, len(models))
	for i, model := range models {
		names[i] = model.Filename
	}

	p.generation.inputs[rowModel].SetSuggestions(names)
	p.generation.inputs[rowModel].ShowSuggestions = len(names) > 0
}

// primaryAction is the one handler behind the button, the mouse click and
// ctrl+enter.
func (p *pane) primaryAction() tea.Cmd {
	if p.controller.InFlight() {
		p.status = "Interrupting..."

		return p.interruptCmd()
	}

	if err := p.commit(); err != nil {
		p.err = err

		return nil
	}

	// the flag is taken here so a second press before the request goes out
	// already interrupts
	generation, err := p.controller.Begin()
	if err != nil {
		p.err = err
		p.status = ""

		return nil
	}

	p.err = nil
	p.status = "Generating..."

	return tea.Batch(p.spinner.Tick, p.waitCmd(generation))
}

func (p *pane) waitCmd(generation *generation_controller.Generation) tea.Cmd {
	mode := p.mode

	return func() tea.Msg {
		images, err := generation.Wait(context.Background())

		return generationDoneMsg{mode: mode, images: images, err: err}
	}
}

func (p *pane) interruptCmd() tea.Cmd {
	controller := p.controller

	return func() tea.Msg {
		err := controller.Interrupt(context.Background())

		return interruptDoneMsg{mode: controller.Mode(), err: err}
	}
}

func (p *pane) randomCmd() tea.Cmd {
	field := p.positive
	if p.sections.Active() == sectionGeneration && p.generation.focused == rowNegative {
		field = p.negative
	}

	mode := p.mode

	return func() tea.Msg {
		err := field.AddRandom(context.Background())

		return randomPromptMsg{mode: mode, kind: field.Kind(), err: err}
	}
}

// commit writes the form values into the settings store.
func (p *pane) commit() error {
	g := &p.generation

	p.positive.SetValue(g.inputs[rowPrompt].Value())
	p.negative.SetValue(g.inputs[rowNegative].Value())

	steps, err := parsePositiveInt("steps", g.value(rowSteps))
	if err != nil {
		return err
	}

	cfg, err := strconv.ParseFloat(g.value(rowCfg), 64)
	if err != nil || cfg <= 0 {
		return errors.Errorf("invalid CFG scale %q", g.value(rowCfg))
	}

	width, err := parsePositiveInt("width", g.value(rowWidth))
	if err != nil {
		return err
	}

	height, err := parsePositiveInt("height", g.value(rowHeight))
	if err != nil {
		return err
	}

	batchCount, err := parsePositiveInt("batch count", g.value(rowBatchCount))
	if err != nil {
		return err
	}

	batchSize, err := parsePositiveInt("batch size", g.value(rowBatchSize))
	if err != nil {
		return err
	}

	seed, err := strconv.Atoi(g.value(rowSeed))
	if err != nil {
		return errors.Errorf("invalid seed %q", g.value(rowSeed))
	}

	patch := settings_store.SamplingPatch(p.store.Settings().SamplerName, p.store.Settings().Scheduler, steps, cfg)
	patch.Width = &width
	patch.Height = &height
	patch.BatchCount = &batchCount
	patch.BatchSize = &batchSize
	patch.Seed = &seed
	patch.RandomSeed = settings_store.Ptr(seed < 0)
	patch.ModelName = settings_store.Ptr(g.value(rowModel))

	p.store.Merge(patch)

	if p.mode == entities.ModeImageToImage {
		if err := p.commitInputImage(g.value(rowInputImage)); err != nil {
			return err
		}
	}

	if err := p.commitLora(); err != nil {
		return err
	}

	return p.commitControlNet()
}

func (p *pane) commitInputImage(path string) error {
	if path == p.inputImagePath {
		return nil
	}

	if path == "" {
		p.store.SetInputImage(nil)
		p.inputImagePath = ""

		return nil
	}

	data, err := readImageFile(path)
	if err != nil {
		return errors.WrapPrefix(err, "reading input image", 0)
	}

	p.store.SetInputImage(&entities.InputImage{
		Name: filepath.Base(path),
		Data: data,
	})
	p.inputImagePath = path

	log.Info("Input image set", "mode", p.mode, "path", path)

	return nil
}

// readImageFile returns the file's contents base64 encoded.
func readImageFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

func (p *pane) commitLora() error {
	l := &p.lora

	name := l.value(rowLoraName)
	if !p.loraEnabled && name == "" {
		p.store.SetLora(nil)

		return nil
	}

	strengthModel, err := strconv.ParseFloat(l.value(rowLoraStrengthModel), 64)
	if err != nil {
		return errors.Errorf("invalid lora model strength %q", l.value(rowLoraStrengthModel))
	}

	strengthClip, err := strconv.ParseFloat(l.value(rowLoraStrengthClip), 64)
	if err != nil {
		return errors.Errorf("invalid lora clip strength %q", l.value(rowLoraStrengthClip))
	}

	p.store.SetLora(&entities.LoraConfig{
		Enabled:       p.loraEnabled && name != "",
		Name:          name,
		StrengthModel: strengthModel,
		StrengthClip:  strengthClip,
	})

	return nil
}

func (p *pane) commitControlNet() error {
	if !p.controlNetEnabled {
		p.store.SetControlNet(nil)

		return nil
	}

	c := &p.controlNet

	model := c.value(rowControlNetModel)
	if model == "" {
		return errors.New("controlnet model is required")
	}

	weight, err := strconv.ParseFloat(c.value(rowControlNetWeight), 64)
	if err != nil || weight < 0 {
		return errors.Errorf("invalid controlnet weight %q", c.value(rowControlNetWeight))
	}

	if path := c.value(rowControlNetImage); path != "" && path != p.controlNetImagePath {
		data, err := readImageFile(path)
		if err != nil {
			return errors.WrapPrefix(err, "reading control image", 0)
		}

		p.controlNetImage = data
		p.controlNetImagePath = path
	}

	p.store.SetControlNet(&entities.ControlNetConfig{
		Enabled: true,
		Units: []entities.ControlNetUnit{
			{
				Enabled:    true,
				Model:      model,
				Module:     c.value(rowControlNetModule),
				Weight:     &weight,
				InputImage: p.controlNetImage,
			},
		},
	})

	return nil
}

func (p *pane) loadWorkflow() {
	path := p.workflow.value(0)
	if path == "" {
		p.err = errors.New("enter a workflow file path")
		return
	}

	if p.loader == nil {
		p.err = errors.New("workflow loading is not available")
		return
	}

	result, err := p.loader.LoadFile(path)
	if err != nil {
		log.Error("Error loading custom workflow", "path", path, "err", err)
		p.err = err

		return
	}

	p.err = nil

	if !result.Workflow.Empty() {
		p.store.SetCustomWorkflow(result.Workflow)
		p.status = fmt.Sprintf("Custom workflow loaded from %s (%s)", filepath.Base(path), result.Source)
	}

	if result.Prompt != "" && result.Workflow.Empty() {
		p.positive.SetValue(result.Prompt)
		p.generation.inputs[rowPrompt].SetValue(p.positive.Value())
		p.status = "Prompt loaded from " + filepath.Base(path)
	}
}

func parsePositiveInt(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, errors.Errorf("invalid %s %q", name, value)
	}

	return n, nil
}

// handleKey runs pane level shortcuts, falling back to the focused input.
func (p *pane) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, keys.NextSection):
		p.sections = p.sections.Next()
		return p.focus()
	case key.Matches(msg, keys.NextField):
		return p.activeForm().next()
	case key.Matches(msg, keys.PrevField):
		return p.activeForm().prev()
	case key.Matches(msg, keys.Random):
		p.status = "Fetching random prompt..."
		return p.randomCmd()
	case key.Matches(msg, keys.ToggleLora):
		p.loraEnabled = !p.loraEnabled
		if err := p.commitLora(); err != nil {
			p.err = err
		}

		return nil
	case key.Matches(msg, keys.ToggleControlNet):
		p.controlNetEnabled = !p.controlNetEnabled
		if err := p.commitControlNet(); err != nil {
			p.err = err
		} else {
			p.err = nil
		}

		return nil
	case key.Matches(msg, keys.ClearWorkflow):
		p.store.SetCustomWorkflow(nil)
		p.status = "Custom workflow cleared"

		return nil
	case key.Matches(msg, keys.RemoveLast):
		images := p.gallery.List()
		if len(images) > 0 {
			p.gallery.Remove(context.Background(), images[len(images)-1].ID)
		}

		return nil
	case key.Matches(msg, keys.ClearGallery):
		p.gallery.Clear(context.Background())
		p.status = "Gallery cleared"

		return nil
	case msg.Type == tea.KeyEnter && p.sections.Active() == sectionWorkflow:
		p.loadWorkflow()
		return nil
	}

	return p.activeForm().update(msg)
}

func (p *pane) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return nil
	}

	if z := zone.Get(p.buttonZone()); z != nil && z.InBounds(msg) {
		return p.primaryAction()
	}

	var changed bool

	p.sections, changed = p.sections.Click(msg)
	if changed {
		return p.focus()
	}

	return nil
}

func (p *pane) handleGenerationDone(msg generationDoneMsg) {
	switch {
	case msg.err == nil:
		p.err = nil
		p.status = fmt.Sprintf("Generated %d image(s)", len(msg.images))
	case errors.Is(msg.err, generation_controller.ErrInterrupted):
		p.err = nil
		p.status = "Generation interrupted"
	default:
		p.err = msg.err
		p.status = ""
	}
}

func (p *pane) handleRandomPrompt(msg randomPromptMsg) {
	if msg.err != nil {
		p.err = msg.err
		p.status = ""

		return
	}

	p.err = nil
	p.status = "Random " + string(msg.kind) + " prompt added"

	if msg.kind == entities.PromptNegative {
		p.generation.inputs[rowNegative].SetValue(p.negative.Value())
	} else {
		p.generation.inputs[rowPrompt].SetValue(p.positive.Value())
	}
}

func (p *pane) buttonZone() string {
	return string(p.mode) + "-primary"
}

func (p *pane) buttonLabel() string {
	if p.controller.InFlight() {
		return labelInterrupt
	}

	return labelGenerate
}

var (
	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Background(highlight).
			Padding(0, 3).
			MarginTop(1)

	interruptButtonStyle = buttonStyle.Background(danger)

	statusStyle = lipgloss.NewStyle().Foreground(special)
	errorStyle  = lipgloss.NewStyle().Foreground(danger)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
)

func (p *pane) view(width int) string {
	var body string

	switch p.sections.Active() {
	case sectionLora:
		body = lipgloss.JoinVertical(lipgloss.Left,
			dimStyle.Render(fmt.Sprintf("Enabled: %v (ctrl+l to toggle)", p.loraEnabled)),
			p.lora.view(),
		)
	case sectionControlNet:
		body = lipgloss.JoinVertical(lipgloss.Left,
			dimStyle.Render(fmt.Sprintf("Enabled: %v (ctrl+k to toggle)", p.controlNetEnabled)),
			p.controlNet.view(),
		)
	case sectionWorkflow:
		loaded := "none"
		if wf := p.store.Snapshot().CustomWorkflow; !wf.Empty() {
			loaded = fmt.Sprintf("%d bytes", len(wf))
		}

		body = lipgloss.JoinVertical(lipgloss.Left,
			dimStyle.Render("Current workflow: "+loaded+" (enter to load, ctrl+o to clear)"),
			p.workflow.view(),
		)
	default:
		body = p.generation.view()
	}

	style := buttonStyle
	if p.controller.InFlight() {
		style = interruptButtonStyle
	}

	button := zone.Mark(p.buttonZone(), style.Render(p.buttonLabel()))

	status := statusStyle.Render(p.status)
	if p.controller.InFlight() {
		status = p.spinner.View() + " " + status
	}

	if p.err != nil {
		status = errorStyle.Render("Error: " + p.err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		p.sections.SetWidth(width).View(),
		body,
		button,
		status,
		"",
		p.galleryView(),
	)
}

func (p *pane) galleryView() string {
	images := p.gallery.List()

	lines := []string{fmt.Sprintf("Gallery (%d)", len(images))}

	start := max(0, len(images)-galleryRows)
	for _, img := range images[start:] {
		prompt := []rune(img.Prompt)
		if len(prompt) > 40 {
			prompt = append(prompt[:37], []rune("...")...)
		}

		lines = append(lines, dimStyle.Render(fmt.Sprintf("%s  %-40s  %s",
			img.Timestamp.Format("15:04:05"), string(prompt), img.URL)))
	}

	return strings.Join(lines, "\n")
}
