package models

import (
	"github.com/nens/trs_backend/config"
)

// MigrateTable brings the schema to the current model definitions.
// Parents migrate before the ledger tables that reference them.
func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&YearWeek{},
		&Mpc{},
		&Person{},
		&Project{},
		&PersonChange{},
		&WorkAssignment{},
		&BudgetAssignment{},
		&Booking{},
		&ThirdPartyEstimate{},
		&Payable{},
	)
}
