package webhook

import (
	"github.com/draftworks/meridian/internal/webhook/repository"
	"github.com/draftworks/meridian/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
