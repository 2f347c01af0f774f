package landscape

type DiameterClass int

const (
	SmallSnags DiameterClass = iota
	MediumSnags
	LargeSnags
	NumDiameterClasses
)

var diameterClassNames = [NumDiameterClasses]string{"small", "medium", "large"}

func (c DiameterClass) String() string {
	if c < 0 || c >= NumDiameterClasses {
		return "invalid"
	}
	return diameterClassNames[c]
}

// ClassValues holds one value per snag diameter class.
type ClassValues [NumDiameterClasses]float64

// Snag holds the standing woody debris pools of a resource unit.
type Snag struct {
	ClimateFactor float64

	SWD      [NumDiameterClasses]CNPair
	TotalSWD CNPair

	NumberOfSnags  ClassValues
	AvgDbh         ClassValues
	AvgHeight      ClassValues
	AvgVolume      ClassValues
	TimeSinceDeath ClassValues
	KSW            ClassValues
	HalfLife       ClassValues

	OtherWood     [OtherWoodPools]CNPair
	BranchCounter int
}
