package domain

// AttributeDelta is the movement of one contributing attribute between two
// periods.
type AttributeDelta struct {
	Column     string
	Attribute  string
	Base       float64
	Compare    float64
	Difference float64
}

// Attribution holds the ranked deltas for a single comparison
type Attribution struct {
	Spec          ComparisonSpec
	BasePeriod    string
	ComparePeriod string
	Available     bool
	Deltas        []AttributeDelta
}

// Commentary is the generated narrative along with the inputs it explains.
type Commentary struct {
	Report       string
	Text         string
	Periods      PeriodSet
	Selections   []Selection
	Attributions []Attribution
}
