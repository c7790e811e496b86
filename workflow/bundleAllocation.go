package workflow

import (
	"fmt"

	"bitbucket.org/stitchfocus/garments_backend/models"
	"bitbucket.org/stitchfocus/garments_backend/utils"
)

const (
	// MaxBundleSequence bounds lot-global bundle numbering.
	MaxBundleSequence = 999999
	// MaxPieceSequence bounds lot-global piece numbering.
	MaxPieceSequence = 99999999
)

// SizeBreakdown is one size's share of the allocation.
type SizeBreakdown struct {
	Label        string `json:"label"`
	PatternCount int    `json:"pattern_count"`
	TotalPieces  int    `json:"total_pieces"`
	BundleCount  int    `json:"bundle_count"`
}

// BundleSlot is one bundle to persist: pieces of a single size, coded with
// the lot-global sequence.
type BundleSlot struct {
	Code              string `json:"code"`
	SizeLabel         string `json:"size_label"`
	GlobalSequence    int    `json:"global_sequence"`
	SizeLocalSequence int    `json:"size_local_sequence"`
	Pieces            int    `json:"pieces"`
}

// PieceSlot is one piece to persist.
type PieceSlot struct {
	Code             string `json:"code"`
	BundleCode       string `json:"bundle_code"`
	SizeLabel        string `json:"size_label"`
	GlobalSequence   int    `json:"global_sequence"`
	BundleLocalIndex int    `json:"bundle_local_index"`
}

// BundleAllocation is the full size/bundle/piece breakdown of one lot.
type BundleAllocation struct {
	TotalPieces int             `json:"total_pieces"`
	Sizes       []SizeBreakdown `json:"sizes"`
	Bundles     []BundleSlot    `json:"bundles"`
	Pieces      []PieceSlot     `json:"pieces"`
}

// AllocateBundles partitions a lot's pieces into bundles and individually
// numbered pieces. Pure computation: persistence belongs to the caller.
//
// Bundle and piece numbering is lot-global and never resets across size
// boundaries. Only the final bundle of a size may hold fewer than
// bundleCapacity pieces.
func AllocateBundles(lotNumber string, sizes []models.NewLotSizeEntry, totalLayers int, bundleCapacity int) (*BundleAllocation, error) {
	if lotNumber == "" {
		return nil, utils.NewValidationError("lot_number", "lot number is required")
	}
	if totalLayers <= 0 {
		return nil, utils.NewValidationError("total_layers", "total layers must be positive")
	}
	if bundleCapacity <= 0 {
		return nil, utils.NewValidationError("bundle_capacity", "bundle capacity must be positive")
	}
	if len(sizes) == 0 {
		return nil, utils.NewValidationError("sizes", "at least one size entry is required")
	}

	// Resolve pattern counts first so cap checks can run before any
	// enumeration work.
	patternCounts := make([]int, len(sizes))
	seen := make(map[string]bool, len(sizes))
	totalPieces := 0
	totalBundles := 0
	for i, entry := range sizes {
		if entry.Label == "" {
			return nil, utils.NewValidationError("sizes", "size label is required")
		}
		if seen[entry.Label] {
			return nil, utils.NewValidationError("sizes", "duplicate size label %q", entry.Label)
		}
		seen[entry.Label] = true

		count, ok := utils.RoundToInt(entry.PatternCount)
		if !ok {
			return nil, utils.NewValidationError("pattern_count",
				"pattern count %s for size %q is not a whole number", entry.PatternCount.String(), entry.Label)
		}
		if count <= 0 {
			return nil, utils.NewValidationError("pattern_count",
				"pattern count for size %q must be positive", entry.Label)
		}
		// Bound before multiplying so the product cannot wrap past the cap.
		if count > MaxPieceSequence/totalLayers {
			return nil, utils.NewValidationError("sizes",
				"piece sequence space exhausted: size %q exceeds the %d cap", entry.Label, MaxPieceSequence)
		}
		pieces := count * totalLayers
		patternCounts[i] = count
		totalPieces += pieces
		totalBundles += (pieces + bundleCapacity - 1) / bundleCapacity
	}

	if totalBundles > MaxBundleSequence {
		return nil, utils.NewValidationError("sizes",
			"bundle sequence space exhausted: %d bundles exceed the %d cap", totalBundles, MaxBundleSequence)
	}
	if totalPieces > MaxPieceSequence {
		return nil, utils.NewValidationError("sizes",
			"piece sequence space exhausted: %d pieces exceed the %d cap", totalPieces, MaxPieceSequence)
	}

	alloc := BundleAllocation{
		TotalPieces: totalPieces,
		Sizes:       make([]SizeBreakdown, 0, len(sizes)),
		Bundles:     make([]BundleSlot, 0, totalBundles),
		Pieces:      make([]PieceSlot, 0, totalPieces),
	}

	bundleSeq := 0
	pieceSeq := 0
	for i, entry := range sizes {
		sizePieces := patternCounts[i] * totalLayers
		breakdown := SizeBreakdown{
			Label:        entry.Label,
			PatternCount: patternCounts[i],
			TotalPieces:  sizePieces,
		}

		localSeq := 0
		for remaining := sizePieces; remaining > 0; {
			inBundle := bundleCapacity
			if remaining < inBundle {
				inBundle = remaining
			}
			bundleSeq++
			localSeq++
			bundle := BundleSlot{
				Code:              fmt.Sprintf("%sb%d", lotNumber, bundleSeq),
				SizeLabel:         entry.Label,
				GlobalSequence:    bundleSeq,
				SizeLocalSequence: localSeq,
				Pieces:            inBundle,
			}
			alloc.Bundles = append(alloc.Bundles, bundle)

			for j := 1; j <= inBundle; j++ {
				pieceSeq++
				alloc.Pieces = append(alloc.Pieces, PieceSlot{
					Code:             fmt.Sprintf("%sp%d", lotNumber, pieceSeq),
					BundleCode:       bundle.Code,
					SizeLabel:        entry.Label,
					GlobalSequence:   pieceSeq,
					BundleLocalIndex: j,
				})
			}
			remaining -= inBundle
		}
		breakdown.BundleCount = localSeq
		alloc.Sizes = append(alloc.Sizes, breakdown)
	}

	return &alloc, nil
}
