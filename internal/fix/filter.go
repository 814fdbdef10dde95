package fix

import (
	"fmt"
	"strconv"
	"time"
)

// FilterConfig carries the quality policy. Rejected fixes are dropped,
// never stored with a low-confidence flag: the consuming analytics have no
// separate path for uncertain positions.
type FilterConfig struct {
	// MinSatellites is the satellite floor; the reference policy is 6.
	MinSatellites int
	// CenturyBase resolves the two-digit RMC year (default 2000).
	CenturyBase int
	// Location is the fixed offset assigned to device timestamps, which
	// carry no zone of their own.
	Location *time.Location
}

// QualityFilter decides whether a reconciled accumulator becomes a stored
// fix and assembles its absolute timestamp from the RMC date and the
// sentence time-of-day.
type QualityFilter struct {
	cfg FilterConfig
}

func NewQualityFilter(cfg FilterConfig) *QualityFilter {
	if cfg.MinSatellites <= 0 {
		cfg.MinSatellites = 6
	}
	if cfg.CenturyBase <= 0 {
		cfg.CenturyBase = 2000
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &QualityFilter{cfg: cfg}
}

// Accept validates one finalized accumulator. The reason names the first
// failed check for logging; it is empty when the fix is accepted.
func (f *QualityFilter) Accept(b *Builder) (Fix, bool, string) {
	switch {
	case !b.HasPosition:
		return Fix{}, false, "no_position"
	case b.Quality < 1:
		return Fix{}, false, "quality_invalid"
	case b.Satellites < f.cfg.MinSatellites:
		return Fix{}, false, fmt.Sprintf("sats_%d", b.Satellites)
	case !b.HasDate:
		return Fix{}, false, "no_date"
	}

	ts, err := f.timestamp(b.Date, b.TimeKey)
	if err != nil {
		return Fix{}, false, "bad_timestamp"
	}

	return Fix{
		Timestamp:  ts,
		DeviceID:   b.DeviceID,
		Latitude:   b.Latitude,
		Longitude:  b.Longitude,
		Altitude:   b.Altitude,
		Satellites: b.Satellites,
		HDOP:       b.HDOP,
		SpeedKmh:   b.SpeedKmh,
		Course:     b.Course,
		Quality:    b.Quality,
	}, true, ""
}

// timestamp combines a ddmmyy date with an hhmmss.ss time-of-day into an
// absolute timestamp in the configured zone.
func (f *QualityFilter) timestamp(date, tod string) (time.Time, error) {
	if len(date) < 6 || len(tod) < 6 {
		return time.Time{}, fmt.Errorf("short date %q or time %q", date, tod)
	}

	day, err1 := strconv.Atoi(date[0:2])
	month, err2 := strconv.Atoi(date[2:4])
	year, err3 := strconv.Atoi(date[4:6])
	hour, err4 := strconv.Atoi(tod[0:2])
	minute, err5 := strconv.Atoi(tod[2:4])
	second, err6 := strconv.Atoi(tod[4:6])
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return time.Time{}, err
		}
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 60 {
		return time.Time{}, fmt.Errorf("out of range date %q time %q", date, tod)
	}

	nanos := 0
	if len(tod) > 7 && tod[6] == '.' {
		frac := tod[7:]
		if v, err := strconv.Atoi(frac); err == nil {
			scale := 1
			for i := 0; i < len(frac); i++ {
				scale *= 10
			}
			nanos = int(int64(v) * int64(time.Second) / int64(scale))
		}
	}

	return time.Date(f.cfg.CenturyBase+year, time.Month(month), day, hour, minute, second, nanos, f.cfg.Location), nil
}
