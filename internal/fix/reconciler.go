package fix

import (
	"fieldtrack/internal/nmea"
)

// knotsToKmh converts the RMC ground speed unit.
const knotsToKmh = 1.852

// Builder accumulates the fields supplied so far by sentences sharing one
// timestamp key within a batch. It is finalized by the quality filter.
type Builder struct {
	TimeKey  string
	DeviceID int

	HasPosition bool
	Latitude    float64
	Longitude   float64

	Quality    int
	Satellites int
	HDOP       float64
	Altitude   float64

	SpeedKmh float64
	Course   float64
	Date     string
	HasDate  bool

	// positionFromGGA pins the position against RMC fallback overwrites.
	positionFromGGA bool
}

// Reconciler groups the sentences of one device's batch by their exact
// time-of-day string and fuses GGA/RMC pairs into a single accumulator per
// key. At most one accumulator exists per timestamp key; finalized output
// preserves first-seen order.
type Reconciler struct {
	deviceID int
	order    []string
	byTime   map[string]*Builder
}

func NewReconciler(deviceID int) *Reconciler {
	return &Reconciler{
		deviceID: deviceID,
		byTime:   make(map[string]*Builder),
	}
}

// Apply folds one parsed sentence into the accumulator for its timestamp
// key. Sentences without a time field are ignored.
func (r *Reconciler) Apply(s nmea.Sentence) {
	if s.Time == "" {
		return
	}

	b, ok := r.byTime[s.Time]
	if !ok {
		b = &Builder{TimeKey: s.Time, DeviceID: r.deviceID}
		r.byTime[s.Time] = b
		r.order = append(r.order, s.Time)
	}

	switch s.Type {
	case nmea.TypeGGA:
		b.Quality = s.Quality
		b.Satellites = s.Satellites
		b.HDOP = s.HDOP
		b.Altitude = s.Altitude

		lat, latOK := nmea.ToDecimal(s.Lat, s.LatHemi)
		lon, lonOK := nmea.ToDecimal(s.Lon, s.LonHemi)
		if latOK && lonOK {
			// GGA position always wins over an RMC fallback.
			b.Latitude = lat
			b.Longitude = lon
			b.HasPosition = true
			b.positionFromGGA = true
		}
	case nmea.TypeRMC:
		b.SpeedKmh = s.SpeedKnots * knotsToKmh
		b.Course = s.Course
		if s.Date != "" {
			b.Date = s.Date
			b.HasDate = true
		}

		if !b.positionFromGGA {
			lat, latOK := nmea.ToDecimal(s.Lat, s.LatHemi)
			lon, lonOK := nmea.ToDecimal(s.Lon, s.LonHemi)
			if latOK && lonOK {
				b.Latitude = lat
				b.Longitude = lon
				b.HasPosition = true
			}
		}
	}
}

// Finalize returns the accumulators in arrival order of their first
// sentence. The reconciler must not be used afterwards.
func (r *Reconciler) Finalize() []*Builder {
	out := make([]*Builder, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byTime[key])
	}
	return out
}
