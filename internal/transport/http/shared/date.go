package shared

import "time"

const dateOnly = "2006-01-02"

// ParseDate accepts RFC3339 or YYYY-MM-DD. The empty string is the zero time.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse(dateOnly, value)
}

// ParseDateEnd is ParseDate for the upper bound of a range: a bare date
// covers the whole day, so the result is the following midnight.
func ParseDateEnd(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	day, err := time.Parse(dateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	return day.AddDate(0, 0, 1), nil
}
