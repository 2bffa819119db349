package notifier

import (
	"github.com/mtandao/netbill/internal/notifier/sms"
	"go.uber.org/fx"
)

var Module = fx.Module("notifier.sms",
	fx.Provide(sms.New),
)
