package analysis

// Multiplier tiers. Boundaries are half-open: a 2.0 build rates "good".
const (
	RatingPoor         = "poor"
	RatingBelowAverage = "below_average"
	RatingAverage      = "average"
	RatingGood         = "good"
	RatingExcellent    = "excellent"
	RatingExceptional  = "exceptional"
)

// Difficulty tiers over the selection's average obtainment difficulty.
const (
	DifficultyEasy     = "easy"
	DifficultyModerate = "moderate"
	DifficultyHard     = "hard"
	DifficultyVeryHard = "very_hard"
)

// MultiplierRating buckets a total multiplier into a named tier.
func MultiplierRating(m float64) string {
	switch {
	case m < 1.2:
		return RatingPoor
	case m < 1.5:
		return RatingBelowAverage
	case m < 2.0:
		return RatingAverage
	case m < 2.5:
		return RatingGood
	case m < 3.0:
		return RatingExcellent
	default:
		return RatingExceptional
	}
}

// DifficultyRating buckets an average obtainment difficulty (1..10) into a
// named tier.
func DifficultyRating(avg float64) string {
	switch {
	case avg < 3:
		return DifficultyEasy
	case avg < 6:
		return DifficultyModerate
	case avg < 8:
		return DifficultyHard
	default:
		return DifficultyVeryHard
	}
}
