// internal/circulation/fee.go
package circulation

// Tiered late fee schedule, in cents.
const (
	firstTierDays      = 7
	firstTierCentsDay  = 50
	secondTierCentsDay = 100
	maxFeeCents        = 1500
)

// MaxLateFee is the most a single loan can be charged.
const MaxLateFee = float64(maxFeeCents) / 100

// TieredLateFee is the fee charged for a loan that is daysOverdue whole days
// late: 0.50 per day for the first 7 days, 1.00 per day after that, capped at
// MaxLateFee.
func TieredLateFee(daysOverdue int) float64 {
	return float64(tieredFeeCents(daysOverdue)) / 100
}

func tieredFeeCents(daysOverdue int) int {
	if daysOverdue <= 0 {
		return 0
	}
	first := min(daysOverdue, firstTierDays)
	rest := max(daysOverdue-firstTierDays, 0)
	return min(maxFeeCents, first*firstTierCentsDay+rest*secondTierCentsDay)
}
