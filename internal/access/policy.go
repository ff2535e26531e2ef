// Package access decides which calendar day a ticket may consume.
package access

import (
	"fmt"
	"strings"
	"time"

	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/models"
)

// DayFormat is the canonical calendar-day form used everywhere a day is
// compared or stored.
const DayFormat = "2006-01-02"

// Decision is the outcome of evaluating a ticket's day policy.
type Decision struct {
	Allowed bool
	// Day is the calendar day the check-in consumes when Allowed.
	Day     string
	Reason  errs.Kind
	Details string
}

// DayIn renders t as a calendar day in the given IANA timezone. All
// "today" derivations go through here so the whole service shares one
// timezone policy: days resolve in the event's local zone, UTC when the
// event has none configured.
func DayIn(tz string, t time.Time) string {
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	return t.In(loc).Format(DayFormat)
}

// DaysBetween enumerates every calendar day from start to end inclusive,
// resolved in the given timezone.
func DaysBetween(start, end time.Time, tz string) models.DateList {
	first := DayIn(tz, start)
	last := DayIn(tz, end)
	if last < first {
		return nil
	}
	days := models.DateList{first}
	cur, _ := time.Parse(DayFormat, first)
	for {
		cur = cur.AddDate(0, 0, 1)
		day := cur.Format(DayFormat)
		if day > last {
			break
		}
		days = append(days, day)
	}
	return days
}

// AuthorizedDays computes the day set a freshly issued ticket grants
// entry to. For specific_days the configured days are taken verbatim.
// For any_single_day the full event range is populated as candidate
// days; the first check-in consumes the single use.
func AuthorizedDays(tt *models.TicketType, ev *models.Event) models.DateList {
	if tt.AccessType == models.AccessSpecificDays {
		return append(models.DateList{}, tt.AvailableDays...)
	}
	return DaysBetween(ev.StartDate, ev.EndDate, ev.Timezone)
}

// CanCheckInToday evaluates whether a check-in is permitted today and
// which day it consumes.
func CanCheckInToday(accessType models.AccessType, authorized, used models.DateList, today string) Decision {
	if used.Contains(today) {
		return Decision{
			Reason:  errs.AlreadyCheckedInToday,
			Details: fmt.Sprintf("ticket already checked in on %s", today),
		}
	}

	switch accessType {
	case models.AccessAnySingleDay:
		if len(used) > 0 {
			return Decision{
				Reason:  errs.AlreadyUsed,
				Details: fmt.Sprintf("single-use ticket already redeemed on %s", used[0]),
			}
		}
		return Decision{Allowed: true, Day: today}

	case models.AccessSpecificDays:
		if !authorized.Contains(today) {
			return Decision{
				Reason:  errs.NotAuthorizedToday,
				Details: fmt.Sprintf("ticket is not valid on %s; valid days: %s", today, strings.Join(authorized, ", ")),
			}
		}
		return Decision{Allowed: true, Day: today}

	default: // all_days
		if len(authorized) == 0 || today < authorized[0] || today > authorized[len(authorized)-1] {
			return Decision{
				Reason:  errs.NotAuthorizedToday,
				Details: fmt.Sprintf("ticket is not valid on %s; valid days: %s", today, rangeLabel(authorized)),
			}
		}
		return Decision{Allowed: true, Day: today}
	}
}

func rangeLabel(days models.DateList) string {
	switch len(days) {
	case 0:
		return "none"
	case 1:
		return days[0]
	default:
		return days[0] + " to " + days[len(days)-1]
	}
}
