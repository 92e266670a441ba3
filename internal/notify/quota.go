package notify

import (
	"time"

	"github.com/asmejkal/DustyBot-sub000/internal/keywords"
)

// consume counts one notification for the user. Counts reset lazily the first
// time a request sees a later UTC date. A ceiling of zero or less disables
// the limit.
func consume(q *keywords.Quota, userID string, now time.Time, ceiling int) (reached, suppressed bool) {
	today := now.UTC().Format(time.DateOnly)
	if q.Counts == nil || today > q.Date {
		q.Date = today
		q.Counts = make(map[string]int)
	}
	q.Counts[userID]++
	if ceiling <= 0 {
		return false, false
	}
	count := q.Counts[userID]
	return count == ceiling, count > ceiling
}

// untilReset returns the time left until the next UTC midnight.
func untilReset(now time.Time) time.Duration {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now)
}
