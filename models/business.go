package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/stitchfocus/garments_backend/config"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Business struct {
	ID         uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email      string    `gorm:"size:100" json:"email"`
	FiscalYear string    `gorm:"size:3;default:'Apr'" json:"fiscal_year"`
	Timezone   string    `gorm:"size:50;default:'Asia/Kolkata'" json:"timezone"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email"`
	FiscalYear string `json:"fiscal_year"`
}

func (b *Business) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	fiscalYear := input.FiscalYear
	if fiscalYear == "" {
		fiscalYear = "Apr"
	}
	business := Business{
		Name:       input.Name,
		Email:      input.Email,
		FiscalYear: fiscalYear,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func GetBusinessById(ctx context.Context, businessId string) (*Business, error) {
	var business Business
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", businessId).First(&business).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("business not found")
		}
		return nil, err
	}
	return &business, nil
}

// GetBusinessById2 is the transaction-scoped variant used inside workflows.
func GetBusinessById2(tx *gorm.DB, businessId string) (*Business, error) {
	var business Business
	if err := tx.Where("id = ?", businessId).First(&business).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("business not found")
		}
		return nil, err
	}
	return &business, nil
}
