package migration

import (
	"github.com/rentease/rentledger/internal/config"
	ledgerdomain "github.com/rentease/rentledger/internal/ledger/domain"
	paymentdomain "github.com/rentease/rentledger/internal/paymentintent/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// The versioned migrations target postgres; other dialects are
		// dev conveniences and get schema sync instead.
		return conn.AutoMigrate(
			&ledgerdomain.Bill{},
			&ledgerdomain.TransactionRecord{},
			&ledgerdomain.Settlement{},
			&paymentdomain.PaymentIntent{},
			&paymentdomain.LandlordAccount{},
		)
	}),
)
