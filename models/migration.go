package models

import (
	"log"

	"bitbucket.org/stitchfocus/garments_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{},
		&Consignee{},
		&FabricRoll{},
		&NumberSeries{},
		&CuttingLot{}, &LotSize{}, &LotBundle{}, &LotPiece{}, &LotRollConsumption{},
		&StageConsumption{}, &ConsumptionLedger{}, &ConsumptionEvent{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
