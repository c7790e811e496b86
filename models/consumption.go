package models

import (
	"errors"
	"time"

	"bitbucket.org/stitchfocus/garments_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StageConsumption is one downstream stage's cumulative draw against a
// (lot, size) pair. Incremental top-ups update Pieces in place; the audit
// trail of individual increments lives in ConsumptionEvent rows.
type StageConsumption struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index;not null" json:"business_id"`
	LotNumber     string    `gorm:"index;size:50;not null" json:"lot_number"`
	SizeLabel     string    `gorm:"size:20;not null" json:"size_label"`
	Stage         StageType `gorm:"type:enum('STI','ASM','WSH','FIN','CHL');not null" json:"stage"`
	Pieces        int       `gorm:"not null" json:"pieces"`
	ChallanNumber *string   `gorm:"size:50" json:"challan_number"`
	ConsigneeId   *int      `json:"consignee_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ConsumptionLedger keeps a running total per (lot, size). It is
// revalidated against the live SUM of StageConsumption rows on every write,
// so it can drift detectably but never silently over-allocate.
type ConsumptionLedger struct {
	ID               int       `gorm:"primary_key" json:"id"`
	BusinessId       string    `gorm:"index:idx_ledger_key,unique;not null" json:"business_id"`
	LotNumber        string    `gorm:"index:idx_ledger_key,unique;size:50;not null" json:"lot_number"`
	SizeLabel        string    `gorm:"index:idx_ledger_key,unique;size:20;not null" json:"size_label"`
	CumulativePieces int       `gorm:"not null;default:0" json:"cumulative_pieces"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ConsumptionEvent is the append-only audit trail: one row per increment.
type ConsumptionEvent struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	LotNumber   string    `gorm:"index;size:50;not null" json:"lot_number"`
	SizeLabel   string    `gorm:"size:20;not null" json:"size_label"`
	Stage       StageType `gorm:"type:enum('STI','ASM','WSH','FIN','CHL');not null" json:"stage"`
	PiecesAdded int       `gorm:"not null" json:"pieces_added"`
	OccurredAt  time.Time `gorm:"autoCreateTime" json:"occurred_at"`
}

type ConsumeInput struct {
	LotNumber     string
	SizeLabel     string
	Stage         StageType
	Pieces        int
	ChallanNumber *string
	ConsigneeId   *int
}

// lockLotSize takes the FOR UPDATE lock on the owning size row. All
// remainder arithmetic for that (lot, size) happens behind this lock.
func lockLotSize(tx *gorm.DB, businessId string, lotNumber string, sizeLabel string) (*LotSize, error) {
	var lot CuttingLot
	err := tx.Select("id").
		Where("business_id = ? AND lot_number = ?", businessId, lotNumber).
		First(&lot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	var size LotSize
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("lot_id = ? AND label = ?", lot.ID, sizeLabel).
		First(&size).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		if utils.IsLockWaitTimeout(err) {
			return nil, &utils.LockTimeoutError{Resource: "lot size " + lotNumber + "/" + sizeLabel, Err: err}
		}
		return nil, err
	}
	return &size, nil
}

func sumConsumed(tx *gorm.DB, businessId string, lotNumber string, sizeLabel string) (int, error) {
	var consumed int
	err := tx.Model(&StageConsumption{}).
		Select("COALESCE(SUM(pieces), 0)").
		Where("business_id = ? AND lot_number = ? AND size_label = ?", businessId, lotNumber, sizeLabel).
		Scan(&consumed).Error
	return consumed, err
}

// Remaining computes upstream total minus the live SUM of downstream
// consumption. Read-only; calling it twice with no intervening writes
// returns the same value.
func Remaining(tx *gorm.DB, businessId string, lotNumber string, sizeLabel string) (int, error) {
	var lot CuttingLot
	err := tx.Select("id").
		Where("business_id = ? AND lot_number = ?", businessId, lotNumber).
		First(&lot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, utils.ErrorRecordNotFound
		}
		return 0, err
	}

	var size LotSize
	err = tx.Where("lot_id = ? AND label = ?", lot.ID, sizeLabel).First(&size).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, utils.ErrorRecordNotFound
		}
		return 0, err
	}

	consumed, err := sumConsumed(tx, businessId, lotNumber, sizeLabel)
	if err != nil {
		return 0, err
	}
	return size.TotalPieces - consumed, nil
}

// TryConsume validates and records a downstream stage's draw. It acquires
// the size-row lock itself, so callers only need to supply a transaction;
// two concurrent consumers of the same (lot, size) serialize here.
func TryConsume(tx *gorm.DB, businessId string, input ConsumeInput) (*StageConsumption, error) {
	if input.Pieces <= 0 {
		return nil, utils.NewValidationError("pieces", "pieces must be positive")
	}
	if !input.Stage.Valid() {
		return nil, utils.NewValidationError("stage", "unknown stage %q", string(input.Stage))
	}

	size, err := lockLotSize(tx, businessId, input.LotNumber, input.SizeLabel)
	if err != nil {
		return nil, err
	}

	consumed, err := sumConsumed(tx, businessId, input.LotNumber, input.SizeLabel)
	if err != nil {
		return nil, err
	}
	remaining := size.TotalPieces - consumed
	if input.Pieces > remaining {
		return nil, &utils.InsufficientRemainderError{
			LotNumber: input.LotNumber,
			SizeLabel: input.SizeLabel,
			Remaining: remaining,
			Requested: input.Pieces,
		}
	}

	record := StageConsumption{
		BusinessId:    businessId,
		LotNumber:     input.LotNumber,
		SizeLabel:     input.SizeLabel,
		Stage:         input.Stage,
		Pieces:        input.Pieces,
		ChallanNumber: input.ChallanNumber,
		ConsigneeId:   input.ConsigneeId,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}

	if err := applyLedger(tx, businessId, input.LotNumber, input.SizeLabel, input.Stage, input.Pieces); err != nil {
		return nil, err
	}
	return &record, nil
}

// AddToConsumption tops up an existing consumption record. The remainder is
// recomputed under the size-row lock and already includes the record's own
// prior pieces, so only the increment is validated.
func AddToConsumption(tx *gorm.DB, businessId string, recordId int, pieces int) (*StageConsumption, error) {
	if pieces <= 0 {
		return nil, utils.NewValidationError("pieces", "pieces must be positive")
	}

	var record StageConsumption
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, recordId).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	size, err := lockLotSize(tx, businessId, record.LotNumber, record.SizeLabel)
	if err != nil {
		return nil, err
	}

	consumed, err := sumConsumed(tx, businessId, record.LotNumber, record.SizeLabel)
	if err != nil {
		return nil, err
	}
	remaining := size.TotalPieces - consumed
	if pieces > remaining {
		return nil, &utils.InsufficientRemainderError{
			LotNumber: record.LotNumber,
			SizeLabel: record.SizeLabel,
			Remaining: remaining,
			Requested: pieces,
		}
	}

	if err := tx.Exec("UPDATE stage_consumptions SET pieces = pieces + ? WHERE id = ?", pieces, record.ID).Error; err != nil {
		return nil, err
	}
	record.Pieces += pieces

	if err := applyLedger(tx, businessId, record.LotNumber, record.SizeLabel, record.Stage, pieces); err != nil {
		return nil, err
	}
	return &record, nil
}

// applyLedger bumps the running total and appends the audit event. The
// running total is then cross-checked against the live SUM; a mismatch
// aborts the transaction rather than persisting drift.
func applyLedger(tx *gorm.DB, businessId string, lotNumber string, sizeLabel string, stage StageType, pieces int) error {
	ledger := ConsumptionLedger{
		BusinessId: businessId,
		LotNumber:  lotNumber,
		SizeLabel:  sizeLabel,
	}
	if err := tx.Where("business_id = ? AND lot_number = ? AND size_label = ?",
		businessId, lotNumber, sizeLabel).
		FirstOrCreate(&ledger).Error; err != nil {
		return err
	}
	if err := tx.Exec("UPDATE consumption_ledgers SET cumulative_pieces = cumulative_pieces + ? WHERE id = ?",
		pieces, ledger.ID).Error; err != nil {
		return err
	}

	consumed, err := sumConsumed(tx, businessId, lotNumber, sizeLabel)
	if err != nil {
		return err
	}
	var cumulative int
	if err := tx.Model(&ConsumptionLedger{}).Select("cumulative_pieces").
		Where("id = ?", ledger.ID).Scan(&cumulative).Error; err != nil {
		return err
	}
	if cumulative != consumed {
		return errors.New("consumption ledger drift detected")
	}

	event := ConsumptionEvent{
		BusinessId:  businessId,
		LotNumber:   lotNumber,
		SizeLabel:   sizeLabel,
		Stage:       stage,
		PiecesAdded: pieces,
	}
	return tx.Create(&event).Error
}
