package application

import (
	"errors"

	"agora/contexts/community-experience/chat-service/ports"
	"agora/internal/shared/mediator"
)

type Handlers struct {
	Post   PostMessageHandler
	Edit   EditMessageHandler
	Delete DeleteMessageHandler
	List   ListMessagesHandler
}

// Register adds the chat routes to registry and, when codec is non-nil, the
// broker decoders for the chat commands.
func Register(registry *mediator.Registry, codec *mediator.Codec, h Handlers) error {
	err := errors.Join(
		mediator.RegisterCommand[PostMessage, ports.Message](registry, h.Post),
		mediator.RegisterCommand[EditMessage, ports.Message](registry, h.Edit),
		mediator.RegisterCommand[DeleteMessage, ports.Message](registry, h.Delete),
		mediator.RegisterQuery[ListMessages, ListMessagesResult](registry, h.List),
	)
	if err != nil || codec == nil {
		return err
	}
	return errors.Join(
		mediator.RegisterJSON[PostMessage](codec),
		mediator.RegisterJSON[EditMessage](codec),
		mediator.RegisterJSON[DeleteMessage](codec),
	)
}
