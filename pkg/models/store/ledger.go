package store

// AttributeAmount is the summed amount of one attribute value in one period.
type AttributeAmount struct {
	Period    string
	Attribute string
	Amount    float64
}

// ReasonAmount is the summed amount of one reason code in one period.
type ReasonAmount struct {
	ReasonCode string
	Period     string
	Amount     float64
}
