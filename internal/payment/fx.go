package payment

import (
	"github.com/mtandao/netbill/internal/payment/repository"
	"github.com/mtandao/netbill/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
