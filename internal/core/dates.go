package core

import (
	"fmt"
	"mousedb/pkg/domain"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// exportDateLayout is the fixed form dates take when handed to the export collaborator.
const exportDateLayout = "06-01-02"

// Accepted string layouts, tried in order. Four-digit-year layouts come first
// so "2023-05-01" never matches the two-digit export layout.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"20060102",
	exportDateLayout,
	"06/01/02",
}

// ToDate converts a date-like value to a calendar date. Unknown types,
// blanks, placeholders and unparseable strings yield nil.
func ToDate(value any) *civil.Date {
	switch v := value.(type) {
	case nil:
		return nil
	case civil.Date:
		if !v.IsValid() {
			return nil
		}
		return &v
	case *civil.Date:
		if v == nil || !v.IsValid() {
			return nil
		}
		cp := *v
		return &cp
	case time.Time:
		if v.IsZero() {
			return nil
		}
		d := civil.DateOf(v)
		return &d
	case *time.Time:
		if v == nil {
			return nil
		}
		return ToDate(*v)
	case string:
		return parseDateString(v)
	case fmt.Stringer:
		return parseDateString(v.String())
	default:
		return nil
	}
}

func parseDateString(raw string) *civil.Date {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		d := civil.DateOf(t)
		return &d
	}
	return nil
}

// DaysSince returns the number of days from date to today. It returns nil
// when date is absent and a Future span when date lies after today.
func DaysSince(date *civil.Date, today civil.Date) *domain.Span {
	if date == nil {
		return nil
	}
	if date.After(today) {
		return &domain.Span{Future: true}
	}
	return &domain.Span{Days: today.DaysSince(*date)}
}

// FormatDate renders a date in the export form, or "" when absent.
func FormatDate(d *civil.Date) string {
	if d == nil {
		return ""
	}
	return d.In(time.UTC).Format(exportDateLayout)
}

// Today returns the calendar date of now() in local time.
func Today(now func() time.Time) civil.Date {
	if now == nil {
		now = time.Now
	}
	return civil.DateOf(now())
}
