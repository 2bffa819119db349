// Package migration creates the schema on startup so a self-hosted install
// is usable out of the box on any of the supported dialects.
package migration

import (
	billingdomain "github.com/mtandao/netbill/internal/billing/domain"
	catalogdomain "github.com/mtandao/netbill/internal/catalog/domain"
	paymentdomain "github.com/mtandao/netbill/internal/payment/domain"
	subscriberdomain "github.com/mtandao/netbill/internal/subscriber/domain"
	subscriptiondomain "github.com/mtandao/netbill/internal/subscription/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

func Run(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&subscriberdomain.Subscriber{},
		&subscriberdomain.Router{},
		&subscriberdomain.Company{},
		&catalogdomain.Package{},
		&billingdomain.LedgerEntry{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.Gateway{},
		&paymentdomain.Transaction{},
	)
}
