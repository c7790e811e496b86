package workflow

import (
	"context"
	"errors"

	"bitbucket.org/stitchfocus/garments_backend/config"
	"bitbucket.org/stitchfocus/garments_backend/models"
	"bitbucket.org/stitchfocus/garments_backend/utils"
)

// pieceInsertChunk bounds the size of each batched piece INSERT.
const pieceInsertChunk = 500

// LotSummary is what lot creation hands back to the boundary layer.
type LotSummary struct {
	LotNumber   string          `json:"lot_number"`
	LotType     models.LotType  `json:"lot_type"`
	TotalPieces int             `json:"total_pieces"`
	TotalLayers int             `json:"total_layers"`
	Sizes       []SizeBreakdown `json:"sizes"`
	BundleCount int             `json:"bundle_count"`
}

// CreateCuttingLot runs the whole lot-creation protocol in one transaction:
// validate, allocate the lot number, lock and draw the rolls, compute the
// bundle/piece breakdown, persist everything. Any failure rolls the whole
// thing back; no partial lot ever persists. No external I/O happens while
// row locks are held.
func CreateCuttingLot(ctx context.Context, input *models.NewCuttingLot) (*LotSummary, error) {
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := validateNewCuttingLot(input); err != nil {
		return nil, err
	}

	release, err := utils.BusinessLock(ctx, businessId, "lotPosting")
	if err != nil {
		config.LogError(logger, "lotWorkflow.go", "CreateCuttingLot", "BusinessLock", businessId, err)
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	lotType := input.LotType
	if lotType == "" {
		lotType = models.LotTypeCutting
	}
	format := models.SeriesFormatLegacy
	if lotType == models.LotTypeApi {
		format = models.SeriesFormatPadded5
	}

	seq, err := models.NextSequence(tx, businessId, models.LotSeriesKey(lotType, input.OwnerId))
	if err != nil {
		config.LogError(logger, "lotWorkflow.go", "CreateCuttingLot", "NextSequence", input.OwnerId, err)
		return nil, err
	}
	lotNumber := models.FormatLotNumber(format, input.OwnerName, seq)

	// Lock and draw every roll before any allocation arithmetic. Total
	// layers for the lot is the sum across rolls.
	totalLayers := 0
	for _, entry := range input.Rolls {
		roll, err := models.LockFabricRoll(tx, businessId, entry.RollNumber)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				return nil, utils.NewValidationError("rolls", "Roll No. %s not found", entry.RollNumber)
			}
			config.LogError(logger, "lotWorkflow.go", "CreateCuttingLot", "LockFabricRoll", entry.RollNumber, err)
			return nil, err
		}
		if err := models.DrawFromFabricRoll(tx, roll, entry.Weight); err != nil {
			return nil, err
		}
		totalLayers += entry.Layers
	}

	alloc, err := AllocateBundles(lotNumber, input.Sizes, totalLayers, input.BundleCapacity)
	if err != nil {
		return nil, err
	}

	lot := models.CuttingLot{
		BusinessId:     businessId,
		LotNumber:      lotNumber,
		LotType:        lotType,
		OwnerId:        input.OwnerId,
		OwnerName:      input.OwnerName,
		Sku:            input.Sku,
		FabricType:     input.FabricType,
		BundleCapacity: input.BundleCapacity,
		TotalLayers:    totalLayers,
		TotalPieces:    alloc.TotalPieces,
	}
	if err := tx.Create(&lot).Error; err != nil {
		config.LogError(logger, "lotWorkflow.go", "CreateCuttingLot", "CreateLot", lotNumber, err)
		return nil, err
	}

	sizeIds := make(map[string]int, len(alloc.Sizes))
	for _, breakdown := range alloc.Sizes {
		size := models.LotSize{
			LotId:        lot.ID,
			BusinessId:   businessId,
			Label:        breakdown.Label,
			PatternCount: breakdown.PatternCount,
			TotalPieces:  breakdown.TotalPieces,
			BundleCount:  breakdown.BundleCount,
		}
		if err := tx.Create(&size).Error; err != nil {
			config.LogError(logger, "lotWorkflow.go", "CreateCuttingLot", "CreateLotSize", breakdown.Label, err)
			return nil, err
		}
		sizeIds[breakdown.Label] = size.ID
	}

	bundles := make([]models.LotBundle, 0, len(alloc.Bundles))
	for _, slot := range alloc.Bundles {
		bundles = append(bundles, models.LotBundle{
			LotId:             lot.ID,
			SizeId:            sizeIds[slot.SizeLabel],
			BusinessId:        businessId,
			GlobalSequence:    slot.GlobalSequence,
			SizeLocalSequence: slot.SizeLocalSequence,
			Code:              slot.Code,
			Pieces:            slot.Pieces,
		})
	}
	if err := tx.Create(&bundles).Error; err != nil {
		config.LogError(logger, "lotWorkflow.go", "CreateCuttingLot", "CreateBundles", lotNumber, err)
		return nil, err
	}

	bundleIds := make(map[string]int, len(bundles))
	for _, b := range bundles {
		bundleIds[b.Code] = b.ID
	}

	pieces := make([]models.LotPiece, 0, len(alloc.Pieces))
	for _, slot := range alloc.Pieces {
		pieces = append(pieces, models.LotPiece{
			LotId:            lot.ID,
			BundleId:         bundleIds[slot.BundleCode],
			SizeId:           sizeIds[slot.SizeLabel],
			BusinessId:       businessId,
			GlobalSequence:   slot.GlobalSequence,
			BundleLocalIndex: slot.BundleLocalIndex,
			Code:             slot.Code,
		})
	}
	if err := tx.CreateInBatches(&pieces, pieceInsertChunk).Error; err != nil {
		config.LogError(logger, "lotWorkflow.go", "CreateCuttingLot", "CreatePieces", lotNumber, err)
		return nil, err
	}

	for _, entry := range input.Rolls {
		consumption := models.LotRollConsumption{
			LotId:      lot.ID,
			BusinessId: businessId,
			RollNumber: entry.RollNumber,
			WeightUsed: entry.Weight,
			Layers:     entry.Layers,
		}
		if err := tx.Create(&consumption).Error; err != nil {
			config.LogError(logger, "lotWorkflow.go", "CreateCuttingLot", "CreateRollConsumption", entry.RollNumber, err)
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, "lotWorkflow.go", "CreateCuttingLot", "Commit", lotNumber, err)
		return nil, err
	}
	committed = true

	return &LotSummary{
		LotNumber:   lotNumber,
		LotType:     lotType,
		TotalPieces: alloc.TotalPieces,
		TotalLayers: totalLayers,
		Sizes:       alloc.Sizes,
		BundleCount: len(alloc.Bundles),
	}, nil
}

func validateNewCuttingLot(input *models.NewCuttingLot) error {
	if input.Sku == "" {
		return utils.NewValidationError("sku", "sku is required")
	}
	if input.FabricType == "" {
		return utils.NewValidationError("fabric_type", "fabric type is required")
	}
	if input.BundleCapacity <= 0 {
		return utils.NewValidationError("bundle_capacity", "bundle capacity must be positive")
	}
	if len(input.Sizes) == 0 {
		return utils.NewValidationError("sizes", "at least one size entry is required")
	}
	if len(input.Rolls) == 0 {
		return utils.NewValidationError("rolls", "at least one roll entry is required")
	}
	seen := make(map[string]bool, len(input.Rolls))
	for _, entry := range input.Rolls {
		if entry.RollNumber == "" {
			return utils.NewValidationError("rolls", "roll number is required")
		}
		if seen[entry.RollNumber] {
			return utils.NewValidationError("rolls", "duplicate roll %q", entry.RollNumber)
		}
		seen[entry.RollNumber] = true
		if !entry.Weight.IsPositive() {
			return utils.NewValidationError("rolls", "weight for roll %q must be positive", entry.RollNumber)
		}
		if entry.Layers <= 0 {
			return utils.NewValidationError("rolls", "layers for roll %q must be positive", entry.RollNumber)
		}
	}
	return nil
}
