// Package landscape holds the live state of a simulated forest landscape:
// the resource unit grid, individual trees, sapling cohorts on the light
// grid, per-unit soil and standing deadwood pools, and the derived light
// pattern and stand statistics.
package landscape

const (
	// RUSize is the side length of a resource unit in metres.
	RUSize = 100.0
	// LightCellSize is the side length of a light (LIF) cell in metres.
	LightCellSize = 2.0
	// CellsPerRU is the number of light cells along one side of a resource unit.
	CellsPerRU = 50
	// HeightCellSize is the side length of a dominant-height cell in metres.
	HeightCellSize = 10.0
	// SaplingSlots is the number of cohort slots per light cell.
	SaplingSlots = 5
	// OtherWoodPools is the number of other-wood (branch/coarse root) pools per snag.
	OtherWoodPools = 5
)
