package database

import (
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tipdai/tipdai/internal/payment"
	"github.com/tipdai/tipdai/internal/tip"
	"github.com/tipdai/tipdai/internal/user"
)

func createDatabase(path string, models ...interface{}) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{DisableForeignKeyConstraintWhenMigrating: true, FullSaveAssociations: true})
	if err != nil {
		panic(err)
	}
	err = db.AutoMigrate(models...)
	if err != nil {
		panic(err)
	}
	return db
}

// AutoMigration opens the ledger and transactions databases and brings
// their schemas up to date.
func AutoMigration(dbPath, transactionsPath string) (ledger *gorm.DB, transactions *gorm.DB) {
	ledger = createDatabase(dbPath, &user.User{}, &payment.Cashout{})
	transactions = createDatabase(transactionsPath, &tip.Tip{})
	log.Infof("[Database] migrated %s and %s", dbPath, transactionsPath)
	return ledger, transactions
}
