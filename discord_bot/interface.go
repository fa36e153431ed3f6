package discord_bot

import "context"

type Bot interface {
	// Start opens the gateway, registers the commands and blocks until ctx
	// is done.
	Start(ctx context.Context) error
}
