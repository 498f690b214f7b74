package domain

import "fmt"

// ComparisonType names a summary column that can be decomposed into
// attribute deltas.
type ComparisonType string

const (
	YearOverYear       ComparisonType = "Y/Y $"
	QuarterOverQuarter ComparisonType = "Q/Q $"
)

func ParseComparisonType(s string) (ComparisonType, error) {
	ct := ComparisonType(s)
	if !ct.Valid() {
		return "", &UnknownComparisonTypeError{Value: s}
	}
	return ct, nil
}

func (c ComparisonType) Valid() bool {
	return c == YearOverYear || c == QuarterOverQuarter
}

// Selection is a summary cell marked as significant by the user
type Selection struct {
	RowKey    string
	ColumnKey string
	Value     float64
}

func (s Selection) String() string {
	return fmt.Sprintf("%s / %s = %.2f", s.RowKey, s.ColumnKey, s.Value)
}

// ComparisonSpec identifies one reason code compared over one window.
type ComparisonSpec struct {
	ReasonCode string
	Comparison ComparisonType
}

func NewComparisonSpec(reasonCode, comparison string) (ComparisonSpec, error) {
	ct, err := ParseComparisonType(comparison)
	if err != nil {
		return ComparisonSpec{}, err
	}
	return ComparisonSpec{ReasonCode: reasonCode, Comparison: ct}, nil
}

func (s Selection) ComparisonSpec() (ComparisonSpec, error) {
	return NewComparisonSpec(s.RowKey, s.ColumnKey)
}

// SpecsFromSelections converts every selection, failing on the first
// unknown column.
func SpecsFromSelections(selections []Selection) ([]ComparisonSpec, error) {
	specs := make([]ComparisonSpec, 0, len(selections))
	for _, sel := range selections {
		spec, err := sel.ComparisonSpec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (s ComparisonSpec) String() string {
	return fmt.Sprintf("%s (%s)", s.ReasonCode, s.Comparison)
}
