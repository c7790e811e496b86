package models

// LotType distinguishes the two lot-number namespaces. The divergence is
// deliberate: legacy cutting lots and api-client lots keep separate
// formatting rules (see SeriesFormat).
type LotType string

const (
	LotTypeCutting LotType = "C"
	LotTypeApi     LotType = "A"
)

// StageType identifies the downstream manufacturing stage consuming pieces
// out of a cutting lot.
type StageType string

const (
	StageTypeStitching StageType = "STI"
	StageTypeAssembly  StageType = "ASM"
	StageTypeWashing   StageType = "WSH"
	StageTypeFinishing StageType = "FIN"
	StageTypeChallan   StageType = "CHL"
)

func (s StageType) Valid() bool {
	switch s {
	case StageTypeStitching, StageTypeAssembly, StageTypeWashing, StageTypeFinishing, StageTypeChallan:
		return true
	}
	return false
}

// SeriesFormat names a presentation strategy for sequence values. The
// counter itself is format-agnostic; formatting happens at the edge.
type SeriesFormat string

const (
	// SeriesFormatLegacy renders "<prefix><n>" (cutting lots).
	SeriesFormatLegacy SeriesFormat = "legacy"
	// SeriesFormatPadded5 renders "<prefix><00000n>" (api lots, challans).
	SeriesFormatPadded5 SeriesFormat = "padded5"
)
