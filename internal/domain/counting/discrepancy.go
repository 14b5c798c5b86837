package counting

// Classification labels a discrepancy.
type Classification string

const (
	Correct  Classification = "CORRECT"
	Surplus  Classification = "SURPLUS"
	Shortage Classification = "SHORTAGE"
)

// Discrepancy is the signed gap between counted and theoretical stock.
type Discrepancy struct {
	Difference     int64          `json:"difference"`
	Classification Classification `json:"classification"`
}

// ComputeDifference returns physical - expected and its classification.
// expected must be captured at the moment of the call; stock moves.
func ComputeDifference(physical, expected int64) Discrepancy {
	diff := physical - expected
	return Discrepancy{Difference: diff, Classification: Classify(diff)}
}

// Classify maps a difference to CORRECT, SURPLUS or SHORTAGE.
func Classify(difference int64) Classification {
	switch {
	case difference > 0:
		return Surplus
	case difference < 0:
		return Shortage
	default:
		return Correct
	}
}
