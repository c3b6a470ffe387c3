package ledger

import (
	"github.com/smallbiznis/fundledger/internal/ledger/registry"
	"github.com/smallbiznis/fundledger/internal/ledger/repository"
	"github.com/smallbiznis/fundledger/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(
		repository.Provide,
		registry.New,
		registry.Provide,
		service.NewService,
	),
)
