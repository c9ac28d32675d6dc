package canonical

import "time"

// DefaultClosingDay puts every date in its own calendar month.
const DefaultClosingDay = 31

// StatementPeriod returns the YYYY-MM billing cycle of date. Days after the
// closing day belong to the next month's statement.
func StatementPeriod(date time.Time, closingDay int) string {
	if closingDay <= 0 || closingDay > 31 {
		closingDay = DefaultClosingDay
	}
	y, m, d := date.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	if d > closingDay {
		first = first.AddDate(0, 1, 0)
	}
	return first.Format("2006-01")
}
