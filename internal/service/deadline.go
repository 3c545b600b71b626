package service

import (
	"math"
	"time"

	"github.com/noah-isme/convivencia-api/internal/models"
)

const (
	lowSeverityWindow         = 24 * time.Hour
	expulsionBusinessDays     = 10
	relevantBusinessDays      = 45
	reconsiderationWindowDays = 15

	urgentThresholdDays   = 3
	upcomingThresholdDays = 7
)

// AddBusinessDays returns the date n weekdays after start, skipping Saturdays and
// Sundays. Holidays are not modelled. The time of day is preserved and n <= 0
// returns start unchanged.
func AddBusinessDays(start time.Time, n int) time.Time {
	result := start
	for added := 0; added < n; {
		result = result.AddDate(0, 0, 1)
		if isBusinessDay(result) {
			added++
		}
	}
	return result
}

func isBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// ComputeLegalDeadline derives the fatal deadline for resolving a case.
// LOW offenses get 24 calendar hours, expulsion cases 10 business days and every
// other severity 45 business days.
func ComputeLegalDeadline(start time.Time, severity models.Severity) time.Time {
	switch severity {
	case models.SeverityLow:
		return start.Add(lowSeverityWindow)
	case models.SeveritySevereExpulsion:
		return AddBusinessDays(start, expulsionBusinessDays)
	default:
		return AddBusinessDays(start, relevantBusinessDays)
	}
}

// DaysRemaining returns the signed number of calendar days between now and the
// deadline, rounded up. Overdue deadlines yield negative values.
func DaysRemaining(deadline, now time.Time) int {
	diff := deadline.Sub(now)
	return int(math.Ceil(diff.Hours() / 24))
}

// ClassifyUrgency buckets a DaysRemaining value.
func ClassifyUrgency(days int) models.Urgency {
	switch {
	case days < 0:
		return models.UrgencyOverdue
	case days <= urgentThresholdDays:
		return models.UrgencyUrgent
	case days <= upcomingThresholdDays:
		return models.UrgencyUpcoming
	default:
		return models.UrgencyNormal
	}
}

// ReconsiderationDeadline is the last moment a guardian may appeal a resolution.
func ReconsiderationDeadline(resolvedAt time.Time) time.Time {
	return AddBusinessDays(resolvedAt, reconsiderationWindowDays)
}

// AppealWindowOpen reports whether a reconsideration request is still on time.
func AppealWindowOpen(resolvedAt, now time.Time) bool {
	return !now.After(ReconsiderationDeadline(resolvedAt))
}
