package wallet

import (
	"github.com/draftworks/meridian/internal/wallet/repository"
	"github.com/draftworks/meridian/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
