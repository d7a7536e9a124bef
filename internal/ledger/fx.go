package ledger

import (
	"github.com/rentease/rentledger/internal/ledger/repository"
	"github.com/rentease/rentledger/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
