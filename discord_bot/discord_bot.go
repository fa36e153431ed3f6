package discord_bot

import (
	"context"
	"strings"
	"sync"

	"dream_layer_client/composite_renderer"
	"dream_layer_client/dream_layer_api"
	"dream_layer_client/entities"
	"dream_layer_client/generation_controller"
	"dream_layer_client/prompt_input"
	"dream_layer_client/settings_store"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"
	"github.com/go-errors/errors"
)

const (
	defaultImagineCommand = "imagine"
	randomPromptCommand   = "random-prompt"

	interruptButtonID = "imagine_interrupt"

	devPrefix = "dev_"

	previewMaxImages = 9
)

// interactionSession is the part of *discordgo.Session the handlers use.
type interactionSession interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit) (*discordgo.Message, error)
}

type botImpl struct {
	botSession         *discordgo.Session
	guildID            string
	imagineCommand     string
	randomCommand      string
	removeCommands     bool
	registeredCommands []*discordgo.ApplicationCommand

	api        dream_layer_api.DreamLayerAPI
	controller generation_controller.Controller
	store      *settings_store.Store
	prompts    map[string]*prompt_input.Field
	renderer   composite_renderer.Renderer

	// imagineMu serializes prompt edits with taking the generation flag
	imagineMu sync.Mutex
}

type Config struct {
	BotToken string
	// GuildID may be empty, in which case commands are registered globally.
	GuildID         string
	DevelopmentMode bool
	ImagineCommand  string
	RemoveCommands  bool

	API        dream_layer_api.DreamLayerAPI
	Controller generation_controller.Controller
	Store      *settings_store.Store
}

func New(cfg Config) (Bot, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("missing bot token")
	}

	botSession, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, err
	}

	bot, err := newBot(cfg)
	if err != nil {
		return nil, err
	}

	bot.botSession = botSession

	botSession.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Infof("Logged in as: %v#%v", s.State.User.Username, s.State.User.Discriminator)
	})

	botSession.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		bot.handleInteraction(s, i)
	})

	return bot, nil
}

// newBot wires everything except the gateway session.
func newBot(cfg Config) (*botImpl, error) {
	if cfg.API == nil {
		return nil, errors.New("missing dream layer API")
	}

	if cfg.Controller == nil {
		return nil, errors.New("missing generation controller")
	}

	if cfg.Store == nil {
		return nil, errors.New("missing settings store")
	}

	if cfg.Controller.Mode() != cfg.Store.Mode() {
		return nil, errors.Errorf("controller mode %s does not match store mode %s", cfg.Controller.Mode(), cfg.Store.Mode())
	}

	renderer, err := composite_renderer.New(composite_renderer.Config{MaxImages: previewMaxImages})
	if err != nil {
		return nil, err
	}

	imagineCommand := cfg.ImagineCommand
	if imagineCommand == "" {
		imagineCommand = defaultImagineCommand
	}

	randomCommand := randomPromptCommand

	if cfg.DevelopmentMode {
		imagineCommand = devPrefix + imagineCommand
		randomCommand = devPrefix + randomCommand
	}

	prompts, err := newPromptFields(cfg.API, cfg.Store)
	if err != nil {
		return nil, err
	}

	return &botImpl{
		guildID:            cfg.GuildID,
		imagineCommand:     imagineCommand,
		randomCommand:      randomCommand,
		removeCommands:     cfg.RemoveCommands,
		registeredCommands: make([]*discordgo.ApplicationCommand, 0),
		api:                cfg.API,
		controller:         cfg.Controller,
		store:              cfg.Store,
		prompts:            prompts,
		renderer:           renderer,
	}, nil
}

func newPromptFields(api dream_layer_api.DreamLayerAPI, store *settings_store.Store) (map[string]*prompt_input.Field, error) {
	settings := store.Settings()

	positive, err := prompt_input.New(prompt_input.Config{
		Kind:    entities.PromptPositive,
		Fetcher: api,
		Initial: settings.Prompt,
		OnChange: func(value string) {
			store.Merge(settings_store.PromptPatch(value, false))
		},
	})
	if err != nil {
		return nil, err
	}

	negative, err := prompt_input.New(prompt_input.Config{
		Kind:    entities.PromptNegative,
		Fetcher: api,
		Initial: settings.NegativePrompt,
		OnChange: func(value string) {
			store.Merge(settings_store.PromptPatch(value, true))
		},
	})
	if err != nil {
		return nil, err
	}

	return map[string]*prompt_input.Field{
		string(entities.PromptPositive): positive,
		string(entities.PromptNegative): negative,
	}, nil
}

func (b *botImpl) Start(ctx context.Context) error {
	err := b.botSession.Open()
	if err != nil {
		return errors.WrapPrefix(err, "opening discord session", 0)
	}

	err = b.addCommands()
	if err != nil {
		_ = b.botSession.Close()

		return err
	}

	log.Info("Bot is running, press Ctrl+C to exit")

	<-ctx.Done()

	return b.teardown()
}

func (b *botImpl) teardown() error {
	if b.removeCommands {
		for _, cmd := range b.registeredCommands {
			log.Infof("Removing command '%v'...", cmd.Name)

			err := b.botSession.ApplicationCommandDelete(b.botSession.State.User.ID, b.guildID, cmd.ID)
			if err != nil {
				log.Error("Error removing command", "command", cmd.Name, "err", err)
			}
		}
	}

	return b.botSession.Close()
}

func (b *botImpl) commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        b.imagineCommand,
			Description: "Ask the bot to imagine something",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "prompt",
					Description: "The text prompt to imagine. Leave empty to reuse the last prompt",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "negative_prompt",
					Description: "What to keep out of the image",
					Required:    false,
				},
			},
		},
		{
			Name:        b.randomCommand,
			Description: "Replace the current prompt with a random one",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "kind",
					Description: "Which prompt to replace",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "positive", Value: "positive"},
						{Name: "negative", Value: "negative"},
					},
				},
			},
		},
	}
}

func (b *botImpl) addCommands() error {
	for _, command := range b.commands() {
		log.Infof("Adding command '%s'...", command.Name)

		cmd, err := b.botSession.ApplicationCommandCreate(b.botSession.State.User.ID, b.guildID, command)
		if err != nil {
			log.Error("Error creating command", "command", command.Name, "err", err)

			return err
		}

		b.registeredCommands = append(b.registeredCommands, cmd)
	}

	return nil
}

func (b *botImpl) handleInteraction(s interactionSession, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		switch name := i.ApplicationCommandData().Name; name {
		case b.imagineCommand:
			b.processImagineCommand(s, i)
		case b.randomCommand:
			b.processRandomPromptCommand(s, i)
		default:
			log.Warnf("Unknown command '%v'", name)
		}
	case discordgo.InteractionMessageComponent:
		switch id := i.MessageComponentData().CustomID; id {
		case interruptButtonID:
			b.processInterrupt(s, i)
		default:
			log.Warnf("Unknown message component '%v'", id)
		}
	}
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	values := make(map[string]string, len(options))

	for _, opt := range options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			values[opt.Name] = strings.TrimSpace(opt.StringValue())
		}
	}

	return values
}

func interactionUserID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}

	if i.User != nil {
		return i.User.ID
	}

	return ""
}
