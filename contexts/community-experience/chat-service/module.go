package chatservice

import (
	"log/slog"
	"time"

	httpadapter "agora/contexts/community-experience/chat-service/adapters/http"
	"agora/contexts/community-experience/chat-service/adapters/memory"
	"agora/contexts/community-experience/chat-service/application"
	"agora/contexts/community-experience/chat-service/ports"
	"agora/internal/shared/mediator"
)

// Module holds the chat handlers until they are registered on the shared
// mediator. HTTP handlers are created from the built mediator.
type Module struct {
	Handlers application.Handlers
	Store    *memory.Store
	Logger   *slog.Logger
}

type Dependencies struct {
	Repository  ports.Repository
	IDGenerator ports.IDGenerator
	Clock       ports.Clock
	EditWindow  time.Duration
	Logger      *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Handlers: application.Handlers{
			Post: application.PostMessageHandler{
				Repo:        deps.Repository,
				IDGenerator: deps.IDGenerator,
				Clock:       deps.Clock,
				Logger:      deps.Logger,
			},
			Edit: application.EditMessageHandler{
				Repo:       deps.Repository,
				Clock:      deps.Clock,
				EditWindow: deps.EditWindow,
				Logger:     deps.Logger,
			},
			Delete: application.DeleteMessageHandler{Repo: deps.Repository, Clock: deps.Clock, Logger: deps.Logger},
			List:   application.ListMessagesHandler{Repo: deps.Repository},
		},
		Logger: deps.Logger,
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repository:  store,
		IDGenerator: store,
		Clock:       store,
		Logger:      logger,
	})
	module.Store = store
	return module
}

// Register adds the chat commands and queries to registry and their broker
// decoders to codec.
func (m Module) Register(registry *mediator.Registry, codec *mediator.Codec) error {
	return application.Register(registry, codec, m.Handlers)
}

func (m Module) HTTPHandler(med *mediator.Mediator) httpadapter.Handler {
	return httpadapter.Handler{Mediator: med, Logger: m.Logger}
}
