package landscape

type CNPair struct {
	C, N float64
}

// CNPool is a carbon/nitrogen pool with its decomposition parameter.
type CNPool struct {
	C, N      float64
	Parameter float64
}

// Soil holds the per-unit soil carbon model state.
type Soil struct {
	Kyl, Kyr float64

	InputLab CNPool
	InputRef CNPool
	YL       CNPool
	YR       CNPool
	SOM      CNPair
}

// WaterCycle holds the per-unit water state carried between years.
type WaterCycle struct {
	Content  float64 // mm
	SnowPack float64 // mm
}
