package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/stitchfocus/garments_backend/config"
	"bitbucket.org/stitchfocus/garments_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CuttingLot is a manufacturing batch. It exclusively owns its sizes,
// bundles, pieces and roll consumptions; lots are never deleted, only
// consumed by downstream stages.
type CuttingLot struct {
	ID             int                  `gorm:"primary_key" json:"id"`
	BusinessId     string               `gorm:"index:idx_lot_number,unique;not null" json:"business_id"`
	LotNumber      string               `gorm:"index:idx_lot_number,unique;size:50;not null" json:"lot_number"`
	LotType        LotType              `gorm:"type:enum('C','A');default:'C'" json:"lot_type"`
	OwnerId        int                  `gorm:"index;not null" json:"owner_id"`
	OwnerName      string               `gorm:"size:100" json:"owner_name"`
	Sku            string               `gorm:"size:100;not null" json:"sku"`
	FabricType     string               `gorm:"size:100;not null" json:"fabric_type"`
	BundleCapacity int                  `gorm:"not null" json:"bundle_capacity"`
	TotalLayers    int                  `gorm:"not null" json:"total_layers"`
	TotalPieces    int                  `gorm:"not null;default:0" json:"total_pieces"`
	Sizes          []LotSize            `gorm:"foreignKey:LotId" json:"sizes"`
	Rolls          []LotRollConsumption `gorm:"foreignKey:LotId" json:"rolls"`
	CreatedAt      time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l CuttingLot) GetBusinessId() string { return l.BusinessId }

// LotSize is one size label's share of a lot.
// Invariant: TotalPieces = pattern count x total layers across all rolls;
// the sum over sizes equals the lot's TotalPieces.
type LotSize struct {
	ID           int             `gorm:"primary_key" json:"id"`
	LotId        int             `gorm:"index:idx_lot_size,unique;not null" json:"lot_id"`
	BusinessId   string          `gorm:"index;not null" json:"business_id"`
	Label        string          `gorm:"index:idx_lot_size,unique;size:20;not null" json:"label"`
	PatternCount int             `gorm:"not null" json:"pattern_count"`
	TotalPieces  int             `gorm:"not null" json:"total_pieces"`
	BundleCount  int             `gorm:"not null" json:"bundle_count"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// LotBundle groups up to BundleCapacity pieces of one size. GlobalSequence
// is lot-global (never reset per size); SizeLocalSequence restarts at 1 for
// each size. Only the last bundle of a size may hold fewer than capacity.
type LotBundle struct {
	ID                int    `gorm:"primary_key" json:"id"`
	LotId             int    `gorm:"index;not null" json:"lot_id"`
	SizeId            int    `gorm:"index;not null" json:"size_id"`
	BusinessId        string `gorm:"index;not null" json:"business_id"`
	GlobalSequence    int    `gorm:"not null" json:"global_sequence"`
	SizeLocalSequence int    `gorm:"not null" json:"size_local_sequence"`
	Code              string `gorm:"size:60;not null" json:"code"`
	Pieces            int    `gorm:"not null" json:"pieces"`
}

// LotPiece is the smallest individually coded unit of output.
type LotPiece struct {
	ID               int    `gorm:"primary_key" json:"id"`
	LotId            int    `gorm:"index;not null" json:"lot_id"`
	BundleId         int    `gorm:"index;not null" json:"bundle_id"`
	SizeId           int    `gorm:"index;not null" json:"size_id"`
	BusinessId       string `gorm:"index;not null" json:"business_id"`
	GlobalSequence   int    `gorm:"not null" json:"global_sequence"`
	BundleLocalIndex int    `gorm:"not null" json:"bundle_local_index"`
	Code             string `gorm:"size:60;not null" json:"code"`
}

// LotRollConsumption records weight drawn from a fabric roll by a lot.
type LotRollConsumption struct {
	ID         int             `gorm:"primary_key" json:"id"`
	LotId      int             `gorm:"index;not null" json:"lot_id"`
	BusinessId string          `gorm:"index;not null" json:"business_id"`
	RollNumber string          `gorm:"size:50;not null" json:"roll_number"`
	WeightUsed decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"weight_used"`
	Layers     int             `gorm:"not null" json:"layers"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

/* inputs */

type NewCuttingLot struct {
	LotType        LotType            `json:"lot_type"`
	OwnerId        int                `json:"owner_id" binding:"required"`
	OwnerName      string             `json:"owner_name"`
	Sku            string             `json:"sku" binding:"required"`
	FabricType     string             `json:"fabric_type" binding:"required"`
	BundleCapacity int                `json:"bundle_capacity" binding:"required"`
	Sizes          []NewLotSizeEntry  `json:"sizes" binding:"required,dive"`
	Rolls          []NewLotRollEntry  `json:"rolls" binding:"required,dive"`
}

type NewLotSizeEntry struct {
	Label        string          `json:"label" binding:"required"`
	PatternCount decimal.Decimal `json:"pattern_count" binding:"required"`
}

type NewLotRollEntry struct {
	RollNumber string          `json:"roll_number" binding:"required"`
	Weight     decimal.Decimal `json:"weight" binding:"required"`
	Layers     int             `json:"layers" binding:"required"`
}

/* queries */

func GetCuttingLot(ctx context.Context, id int) (*CuttingLot, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[CuttingLot](ctx, businessId, id, "Sizes", "Rolls")
}

func GetCuttingLotByNumber(ctx context.Context, lotNumber string) (*CuttingLot, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var lot CuttingLot
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("business_id = ? AND lot_number = ?", businessId, lotNumber).
		Preload("Sizes").Preload("Rolls").
		First(&lot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &lot, nil
}

func GetCuttingLotAll(ctx context.Context, sku *string) ([]*CuttingLot, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if sku != nil && len(*sku) > 0 {
		dbCtx = dbCtx.Where("sku LIKE ?", "%"+*sku+"%")
	}
	var lots []*CuttingLot
	if err := dbCtx.Preload("Sizes").Order("id DESC").Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// GetLotBundles lists a lot's bundles in global sequence order.
func GetLotBundles(ctx context.Context, lotId int) ([]*LotBundle, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	var bundles []*LotBundle
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("business_id = ? AND lot_id = ?", businessId, lotId).
		Order("global_sequence").
		Find(&bundles).Error; err != nil {
		return nil, err
	}
	return bundles, nil
}
