package domain

// PeriodSet is the sorted set of period labels found in a ledger table.
type PeriodSet struct {
	Labels   []string
	Current  string
	Previous string
	// YearAgo is empty when no label matches the current sub-period one
	// year back.
	YearAgo string
}

func (p PeriodSet) HasYearAgo() bool {
	return p.YearAgo != ""
}

// Window returns the base and compare periods of a comparison. available is
// false when the base period does not exist in the data.
func (p PeriodSet) Window(c ComparisonType) (base, compare string, available bool, err error) {
	switch c {
	case QuarterOverQuarter:
		return p.Previous, p.Current, true, nil
	case YearOverYear:
		return p.YearAgo, p.Current, p.HasYearAgo(), nil
	default:
		return "", "", false, &UnknownComparisonTypeError{Value: string(c)}
	}
}
