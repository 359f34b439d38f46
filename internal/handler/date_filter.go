package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/jalali"
)

// parseDateQuery reads a Jalali YYYY-MM-DD query value; absent yields nil.
func parseDateQuery(r *http.Request, key string) (*jalali.Date, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	d, err := jalali.ParseDate(value)
	if err != nil {
		return nil, domain.Validationf("invalid %s %q, expected YYYY-MM-DD", key, value)
	}
	return &d, nil
}

// parseRangeQuery reads from/to. A missing bound defaults to today; an absent
// range is reported through ok.
func parseRangeQuery(r *http.Request, cal jalali.Calendar) (from, to jalali.Date, ok bool, err error) {
	f, err := parseDateQuery(r, "from")
	if err != nil {
		return from, to, false, err
	}
	t, err := parseDateQuery(r, "to")
	if err != nil {
		return from, to, false, err
	}
	if f == nil && t == nil {
		return from, to, false, nil
	}
	today := cal.Today()
	from, to = today, today
	if f != nil {
		from = *f
	}
	if t != nil {
		to = *t
	}
	if to.Before(from) {
		return from, to, false, domain.Validationf("from must not be after to")
	}
	return from, to, true, nil
}

// periodPrefix builds a date prefix from optional year and month query values.
func periodPrefix(r *http.Request) (string, error) {
	q := r.URL.Query()
	rawYear, rawMonth := q.Get("year"), q.Get("month")
	if rawYear == "" {
		if rawMonth != "" {
			return "", domain.Validationf("month requires year")
		}
		return "", nil
	}
	year, err := strconv.Atoi(rawYear)
	if err != nil || year < 1 || year > 9999 {
		return "", domain.Validationf("invalid year %q", rawYear)
	}
	if rawMonth == "" {
		return fmt.Sprintf("%04d-", year), nil
	}
	month, err := strconv.Atoi(rawMonth)
	if err != nil || month < 1 || month > 12 {
		return "", domain.Validationf("invalid month %q", rawMonth)
	}
	return jalali.MonthPrefix(year, month), nil
}
