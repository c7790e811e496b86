package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/stitchfocus/garments_backend/config"
	"bitbucket.org/stitchfocus/garments_backend/utils"
)

// Consignee is the receiving party of a delivery challan and the owning
// entity of its challan number series.
type Consignee struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Phone      string    `gorm:"size:20" json:"phone"`
	Address    string    `gorm:"size:255" json:"address"`
	Gstin      string    `gorm:"size:20" json:"gstin"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c Consignee) GetBusinessId() string { return c.BusinessId }

type NewConsignee struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Gstin   string `json:"gstin"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewConsignee) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateUnique[Consignee](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return utils.NewValidationError("phone", "invalid phone number")
		}
	}
	return nil
}

func CreateConsignee(ctx context.Context, input *NewConsignee) (*Consignee, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	consignee := Consignee{
		BusinessId: businessId,
		Name:       input.Name,
		Phone:      input.Phone,
		Address:    input.Address,
		Gstin:      input.Gstin,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&consignee).Error; err != nil {
		return nil, err
	}
	// invalidate the cached list on write
	utils.RemoveRedisList[Consignee](businessId)
	return &consignee, nil
}

func UpdateConsignee(ctx context.Context, id int, input *NewConsignee) (*Consignee, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	consignee, err := utils.FetchModel[Consignee](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(consignee).
		Updates(map[string]interface{}{
			"Name":    input.Name,
			"Phone":   input.Phone,
			"Address": input.Address,
			"Gstin":   input.Gstin,
		}).Error; err != nil {
		return nil, err
	}
	utils.RemoveRedis[Consignee](id)
	utils.RemoveRedisList[Consignee](businessId)
	return consignee, nil
}

func GetConsignee(ctx context.Context, id int) (*Consignee, error) {
	return GetResource[Consignee](ctx, id)
}

func GetConsigneeAll(ctx context.Context) ([]*Consignee, error) {
	return ListAllResource[Consignee](ctx)
}
