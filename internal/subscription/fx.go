package subscription

import (
	"github.com/mtandao/netbill/internal/subscription/repository"
	"github.com/mtandao/netbill/internal/subscription/service"
	"github.com/mtandao/netbill/pkg/keylock"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(
		keylock.New,
		repository.Provide,
		service.New,
	),
)
