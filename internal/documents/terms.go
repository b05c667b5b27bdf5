package documents

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTermsDays applies when the terms string is absent or unrecognised.
const DefaultTermsDays = 30

// MissingDueDateDays is the sentinel used when an invoice has no due date:
// it is treated as maximally overdue rather than excluded from aging.
const MissingDueDateDays = 999

var (
	daysTermsRe       = regexp.MustCompile(`(\d+)\s*(?:jours?|days?|j\b|d\b)`)
	endOfMonthRe      = regexp.MustCompile(`(?:fin\s+de\s+mois|end\s+of\s+month)(?:\s*\+\s*(\d+))?`)
	immediateKeywords = []string{"comptant", "cash", "réception", "reception", "on receipt", "à livraison"}
)

// ResolveDueDate turns a free-form payment-terms string into a due date.
// Rules are tried in order: "<N> days", "end of month [+ N]", immediate
// payment synonyms, then the 30-day default.
func ResolveDueDate(documentDate time.Time, paymentTerms string) time.Time {
	terms := strings.ToLower(strings.TrimSpace(paymentTerms))
	if terms == "" {
		return documentDate.AddDate(0, 0, DefaultTermsDays)
	}

	if m := daysTermsRe.FindStringSubmatch(terms); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return documentDate.AddDate(0, 0, n)
		}
	}

	if m := endOfMonthRe.FindStringSubmatch(terms); m != nil {
		eom := endOfMonth(documentDate)
		if m[1] != "" {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return eom.AddDate(0, 0, n)
			}
		}
		return eom
	}

	for _, kw := range immediateKeywords {
		if strings.Contains(terms, kw) {
			return documentDate
		}
	}

	return documentDate.AddDate(0, 0, DefaultTermsDays)
}

func endOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// Aging classifies an overdue amount relative to a reference date.
type Aging struct {
	Bucket      string
	DaysPastDue int
}

// Aging bucket labels.
const (
	Bucket0To30  = "0-30"
	Bucket31To60 = "31-60"
	Bucket61To90 = "61-90"
	BucketOver90 = ">90"
)

// AgingBucket classifies a due date against a reference date. A zero due
// date is treated as maximally overdue.
func AgingBucket(dueDate, referenceDate time.Time) Aging {
	if dueDate.IsZero() {
		return Aging{Bucket: BucketOver90, DaysPastDue: MissingDueDateDays}
	}
	days := int(math.Floor(referenceDate.Sub(dueDate).Hours() / 24))
	switch {
	case days <= 30:
		return Aging{Bucket: Bucket0To30, DaysPastDue: days}
	case days <= 60:
		return Aging{Bucket: Bucket31To60, DaysPastDue: days}
	case days <= 90:
		return Aging{Bucket: Bucket61To90, DaysPastDue: days}
	default:
		return Aging{Bucket: BucketOver90, DaysPastDue: days}
	}
}
