// seed-dev creates a development business with a consignee and a few fabric
// rolls, then prints a bearer token scoped to that business.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/stitchfocus/garments_backend/config"
	"bitbucket.org/stitchfocus/garments_backend/models"
	"bitbucket.org/stitchfocus/garments_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const devBusinessName = "Stitchfocus Dev"

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	var business models.Business
	err := db.WithContext(ctx).Where("name = ?", devBusinessName).First(&business).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup business: %v\n", err)
			os.Exit(1)
		}
		created, err := models.CreateBusiness(ctx, &models.NewBusiness{
			Name:       devBusinessName,
			Email:      "dev@stitchfocus.local",
			FiscalYear: "Apr",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create business: %v\n", err)
			os.Exit(1)
		}
		business = *created
		fmt.Printf("Created business %q (%s)\n", business.Name, business.ID)
	} else {
		fmt.Printf("Business %q already exists (%s)\n", business.Name, business.ID)
	}

	businessId := business.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	if _, err := models.CreateConsignee(ctx, &models.NewConsignee{
		Name:    "Dev Washing Unit",
		Phone:   "+919876543210",
		Address: "Plot 12, Industrial Estate, Tiruppur",
	}); err != nil {
		if utils.IsClientError(err) {
			fmt.Println("Consignee already seeded, skipping")
		} else {
			fmt.Fprintf(os.Stderr, "failed to create consignee: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println("Created consignee \"Dev Washing Unit\"")
	}

	rolls := []models.NewFabricRoll{
		{RollNumber: "R-1001", FabricType: "Single Jersey 180gsm", Color: "Navy", Weight: decimal.NewFromFloat(42.5)},
		{RollNumber: "R-1002", FabricType: "Single Jersey 180gsm", Color: "Navy", Weight: decimal.NewFromFloat(38.75)},
		{RollNumber: "R-2001", FabricType: "Rib 2x2", Color: "White", Weight: decimal.NewFromFloat(20)},
	}
	for i := range rolls {
		if _, err := models.CreateFabricRoll(ctx, &rolls[i]); err != nil {
			if utils.IsClientError(err) {
				fmt.Printf("Roll %s already seeded, skipping\n", rolls[i].RollNumber)
				continue
			}
			fmt.Fprintf(os.Stderr, "failed to create roll %s: %v\n", rolls[i].RollNumber, err)
			os.Exit(1)
		}
		fmt.Printf("Created fabric roll %s\n", rolls[i].RollNumber)
	}

	token, err := utils.JwtGenerate(1, businessId, "Seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDev bearer token:\n%s\n", token)
}
