package model

import (
	"fmt"
	"time"
)

// Site represents a ground station able to collect satellite passes. Sites are
// reference data: the engine reads them but never mutates one.
type Site struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"` // maximum concurrent passes

	// AllocatedPasses is the load already committed to this site across all
	// opportunities. It is supplied by the caller and treated as read-only.
	AllocatedPasses int `json:"allocated_passes"`

	// OperationalDays lists the weekdays the site operates. Empty means every
	// day.
	OperationalDays []time.Weekday `json:"operational_days,omitempty"`

	// Hours is nil when the site operates around the clock.
	Hours *OperationalHours `json:"hours,omitempty"`

	// Accreditation caps the classification the site may collect. The zero
	// value means the caller supplied no accreditation data and the check is
	// skipped.
	Accreditation ClassificationLevel `json:"accreditation,omitempty"`
}

// OperationalHours bounds the hours of day a site accepts passes, expressed in
// the site's local timezone. End is exclusive; End <= Start describes an
// overnight window.
type OperationalHours struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Timezone string `json:"timezone"`
}

// Validate checks that the site definition is sound.
func (s Site) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("site id is required")
	}
	if s.Capacity <= 0 {
		return fmt.Errorf("site %s: capacity must be positive", s.ID)
	}
	if s.AllocatedPasses < 0 {
		return fmt.Errorf("site %s: allocated passes cannot be negative", s.ID)
	}
	if s.Hours != nil {
		if s.Hours.Start < 0 || s.Hours.Start > 23 || s.Hours.End < 0 || s.Hours.End > 24 {
			return fmt.Errorf("site %s: operational hours out of range", s.ID)
		}
	}
	return nil
}

// RemainingCapacity returns the passes the site can still accept. It can be
// negative when the caller supplied an already over-booked site.
func (s Site) RemainingCapacity() int {
	return s.Capacity - s.AllocatedPasses
}

// OpenAt reports whether the site is operational at the given instant. The
// instant is converted to the site's local timezone before the day and hour
// checks. An unresolvable timezone is reported as an error, which callers
// treat as a window conflict.
func (s Site) OpenAt(t time.Time) (bool, error) {
	loc := time.UTC
	if s.Hours != nil && s.Hours.Timezone != "" {
		l, err := time.LoadLocation(s.Hours.Timezone)
		if err != nil {
			return false, fmt.Errorf("site %s: timezone %q: %w", s.ID, s.Hours.Timezone, err)
		}
		loc = l
	}
	local := t.In(loc)

	if len(s.OperationalDays) > 0 {
		open := false
		for _, d := range s.OperationalDays {
			if local.Weekday() == d {
				open = true
				break
			}
		}
		if !open {
			return false, nil
		}
	}

	if s.Hours != nil {
		h := local.Hour()
		if s.Hours.Start < s.Hours.End {
			if h < s.Hours.Start || h >= s.Hours.End {
				return false, nil
			}
		} else {
			// Overnight window, e.g. 22..6.
			if h < s.Hours.Start && h >= s.Hours.End {
				return false, nil
			}
		}
	}
	return true, nil
}
