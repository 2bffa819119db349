package mikrotik

import (
	"github.com/mtandao/netbill/internal/mikrotik/client"
	"go.uber.org/fx"
)

var Module = fx.Module("mikrotik.client",
	fx.Provide(client.New),
)
