package subscriber

import (
	"github.com/mtandao/netbill/internal/subscriber/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("subscriber",
	fx.Provide(repository.Provide),
)
