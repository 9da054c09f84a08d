package audit

import (
	"github.com/draftworks/meridian/internal/audit/repository"
	"github.com/draftworks/meridian/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
