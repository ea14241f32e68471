package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimerNow is the When value of a timer that is due immediately.
const TimerNow = "now"

// ErrInvalidTimer is returned when a timer's When value cannot be interpreted.
var ErrInvalidTimer = errors.New("invalid timer")

// Timer configures when a suspended branch becomes due. When is "now", an
// RFC 3339 timestamp, or a relative delay such as "5m", "1.5h" or "2d".
// A negative delay is already due.
type Timer struct {
	When string `json:"when" validate:"required"`
}

// DueAt returns the instant the timer becomes due, relative delays being
// counted from the given time.
func (t Timer) DueAt(from time.Time) (time.Time, error) {
	when := strings.TrimSpace(t.When)
	if when == "" {
		return time.Time{}, fmt.Errorf("%w: empty when", ErrInvalidTimer)
	}
	if when == TimerNow {
		return from, nil
	}
	if ts, err := time.Parse(time.RFC3339, when); err == nil {
		return ts, nil
	}

	unit := when[len(when)-1]
	amount, err := strconv.ParseFloat(when[:len(when)-1], 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimer, t.When)
	}
	switch unit {
	case 'd':
		days := math.Trunc(amount)
		return from.AddDate(0, 0, int(days)).Add(scale(amount-days, 24*time.Hour)), nil
	case 'h':
		return from.Add(scale(amount, time.Hour)), nil
	case 'm':
		return from.Add(scale(amount, time.Minute)), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown unit in %q", ErrInvalidTimer, t.When)
	}
}

func scale(amount float64, unit time.Duration) time.Duration {
	return time.Duration(math.Round(amount * float64(unit)))
}
