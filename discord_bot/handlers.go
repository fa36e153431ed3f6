package discord_bot

import (
	"bytes"
	"context"
	"fmt"

	"dream_layer_client/entities"
	"dream_layer_client/generation_controller"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"
	"github.com/go-errors/errors"
)

func imagineMessageContent(userID, prompt string, finished bool) string {
	if !finished {
		return fmt.Sprintf("<@%s> asked me to imagine \"%s\". Currently dreaming it up for them.", userID, prompt)
	}

	return fmt.Sprintf("<@%s> asked me to imagine \"%s\", here is what I imagined for them.", userID, prompt)
}

func interruptComponents() *[]discordgo.MessageComponent {
	return &[]discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Interrupt",
					Style:    discordgo.DangerButton,
					CustomID: interruptButtonID,
					Emoji: discordgo.ComponentEmoji{
						Name: "⏹️",
					},
				},
			},
		},
	}
}

func (b *botImpl) processImagineCommand(s interactionSession, i *discordgo.InteractionCreate) {
	options := optionMap(i.ApplicationCommandData().Options)
	userID := interactionUserID(i.Interaction)

	generation, err := b.beginImagine(options)
	if err != nil {
		switch {
		case errors.Is(err, generation_controller.ErrAlreadyGenerating):
			b.respond(s, i, "A generation is already running. Press Interrupt to stop it first.", interruptComponents())
		case errors.Is(err, errMissingPrompt):
			b.respond(s, i, fmt.Sprintf("Give me a prompt first, or use /%s to get one.", b.randomCommand), nil)
		default:
			b.respond(s, i, "I'm sorry, but I couldn't start imagining: "+err.Error(), nil)
		}

		return
	}

	prompt := generation.Settings().Prompt

	b.respond(s, i, imagineMessageContent(userID, prompt, false), interruptComponents())

	go b.generate(s, i.Interaction, userID, generation)
}

var errMissingPrompt = errors.New("missing prompt")

// beginImagine writes the command's prompts into the store and takes the
// generation flag in one step, so a concurrent /imagine cannot swap the
// prompt before the settings are captured.
func (b *botImpl) beginImagine(options map[string]string) (*generation_controller.Generation, error) {
	b.imagineMu.Lock()
	defer b.imagineMu.Unlock()

	if b.controller.InFlight() {
		return nil, generation_controller.ErrAlreadyGenerating
	}

	if prompt, ok := options["prompt"]; ok && prompt != "" {
		b.prompts[string(entities.PromptPositive)].SetValue(prompt)
	}

	if negative, ok := options["negative_prompt"]; ok {
		b.prompts[string(entities.PromptNegative)].SetValue(negative)
	}

	if b.store.Settings().Prompt == "" {
		return nil, errMissingPrompt
	}

	return b.controller.Begin()
}

// generate sends the submission and edits the original response with the
// outcome.
func (b *botImpl) generate(s interactionSession, interaction *discordgo.Interaction, userID string, generation *generation_controller.Generation) {
	prompt := generation.Settings().Prompt

	log.Info("Processing imagine", "interaction", interaction.ID, "prompt", prompt)

	ctx := context.Background()
	noComponents := &[]discordgo.MessageComponent{}

	images, err := generation.Wait(ctx)
	if err != nil {
		content := "I'm sorry, but I had a problem imagining your image."

		if errors.Is(err, generation_controller.ErrInterrupted) {
			content = fmt.Sprintf("<@%s> the generation of \"%s\" was interrupted.", userID, prompt)
		}

		b.edit(s, interaction, &discordgo.WebhookEdit{
			Content:    &content,
			Components: noComponents,
		})

		return
	}

	finishedContent := imagineMessageContent(userID, prompt, true)

	edit := &discordgo.WebhookEdit{
		Content:    &finishedContent,
		Components: noComponents,
	}

	preview, err := b.renderPreview(ctx, images)
	if err != nil {
		log.Error("Error rendering preview", "err", err)

		links := finishedContent
		for _, img := range images {
			links += "\n" + img.URL
		}

		edit.Content = &links
	} else {
		edit.Files = []*discordgo.File{
			{
				ContentType: "image/png",
				Name:        "imagine.png",
				Reader:      preview,
			},
		}
	}

	b.edit(s, interaction, edit)
}

func (b *botImpl) renderPreview(ctx context.Context, images []entities.GeneratedImage) (*bytes.Buffer, error) {
	data := make([][]byte, 0, len(images))

	for _, img := range images {
		if len(data) == previewMaxImages {
			break
		}

		imageData, err := b.api.FetchImage(ctx, img.URL)
		if err != nil {
			return nil, err
		}

		data = append(data, imageData)
	}

	return b.renderer.TileImages(data)
}

func (b *botImpl) processRandomPromptCommand(s interactionSession, i *discordgo.InteractionCreate) {
	kind := optionMap(i.ApplicationCommandData().Options)["kind"]

	field, ok := b.prompts[kind]
	if !ok {
		b.respond(s, i, fmt.Sprintf("Unknown prompt kind %q.", kind), nil)

		return
	}

	err := field.AddRandom(context.Background())
	if err != nil {
		b.respond(s, i, "I couldn't fetch a random prompt: "+err.Error(), nil)

		return
	}

	b.respond(s, i, fmt.Sprintf("New %s prompt: \"%s\"", kind, field.Value()), nil)
}

func (b *botImpl) processInterrupt(s interactionSession, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		log.Error("Error responding to interaction", "err", err)
	}

	if !b.controller.InFlight() {
		return
	}

	err = b.controller.Interrupt(context.Background())
	if err != nil {
		log.Error("Error interrupting generation", "err", err)
	}
}

func (b *botImpl) respond(s interactionSession, i *discordgo.InteractionCreate, content string, components *[]discordgo.MessageComponent) {
	data := &discordgo.InteractionResponseData{
		Content: content,
	}

	if components != nil {
		data.Components = *components
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		log.Error("Error responding to interaction", "err", err)
	}
}

func (b *botImpl) edit(s interactionSession, interaction *discordgo.Interaction, edit *discordgo.WebhookEdit) {
	_, err := s.InteractionResponseEdit(interaction, edit)
	if err != nil {
		log.Error("Error editing interaction", "err", err)
	}
}
