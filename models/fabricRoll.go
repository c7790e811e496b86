package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/stitchfocus/garments_backend/config"
	"bitbucket.org/stitchfocus/garments_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FabricRoll is a fabric inventory unit with a finite available weight,
// consumed by cutting lots. AvailableWeight is only ever read under a row
// lock and decremented in the same transaction as the locked read.
type FabricRoll struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index:idx_roll_number,unique;not null" json:"business_id"`
	RollNumber      string          `gorm:"index:idx_roll_number,unique;size:50;not null" json:"roll_number" binding:"required"`
	FabricType      string          `gorm:"size:100;not null" json:"fabric_type" binding:"required"`
	Color           string          `gorm:"size:50" json:"color"`
	AvailableWeight decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"available_weight"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r FabricRoll) GetBusinessId() string { return r.BusinessId }

type NewFabricRoll struct {
	RollNumber string          `json:"roll_number" binding:"required"`
	FabricType string          `json:"fabric_type" binding:"required"`
	Color      string          `json:"color"`
	Weight     decimal.Decimal `json:"weight" binding:"required"`
}

func (input *NewFabricRoll) validate(ctx context.Context, businessId string, id int) error {
	if !input.Weight.IsPositive() {
		return utils.NewValidationError("weight", "weight must be positive")
	}
	if err := utils.ValidateUnique[FabricRoll](ctx, businessId, "roll_number", input.RollNumber, id); err != nil {
		return err
	}
	return nil
}

func CreateFabricRoll(ctx context.Context, input *NewFabricRoll) (*FabricRoll, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	roll := FabricRoll{
		BusinessId:      businessId,
		RollNumber:      input.RollNumber,
		FabricType:      input.FabricType,
		Color:           input.Color,
		AvailableWeight: input.Weight,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&roll).Error; err != nil {
		return nil, err
	}
	utils.RemoveRedisList[FabricRoll](businessId)
	return &roll, nil
}

func GetFabricRollAll(ctx context.Context) ([]*FabricRoll, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var rolls []*FabricRoll
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Where("available_weight > 0").
		Order("roll_number").
		Find(&rolls).Error; err != nil {
		return nil, err
	}
	return rolls, nil
}

// LockFabricRoll reads the roll under FOR UPDATE so its available weight
// cannot change until the caller's transaction ends.
func LockFabricRoll(tx *gorm.DB, businessId string, rollNumber string) (*FabricRoll, error) {
	var roll FabricRoll
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND roll_number = ?", businessId, rollNumber).
		First(&roll).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		if utils.IsLockWaitTimeout(err) {
			return nil, &utils.LockTimeoutError{Resource: "fabric roll " + rollNumber, Err: err}
		}
		return nil, err
	}
	return &roll, nil
}

// DrawFromFabricRoll decrements the locked roll's available weight.
// The caller must hold the row lock from LockFabricRoll in the same tx.
func DrawFromFabricRoll(tx *gorm.DB, roll *FabricRoll, weight decimal.Decimal) error {
	if roll.AvailableWeight.LessThan(weight) {
		return &utils.InsufficientRollWeightError{
			RollNumber: roll.RollNumber,
			Available:  roll.AvailableWeight,
			Requested:  weight,
		}
	}
	if err := tx.Exec("UPDATE fabric_rolls SET available_weight = available_weight - ? WHERE id = ?",
		weight, roll.ID).Error; err != nil {
		return err
	}
	roll.AvailableWeight = roll.AvailableWeight.Sub(weight)
	return nil
}
