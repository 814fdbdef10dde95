// Package analytics derives playback-ready point series from stored fixes.
// All passes are pure functions of their input, so re-running a query over
// an unchanged fix series yields identical output.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/golang/geo/s2"

	"fieldtrack/internal/fix"
)

// earthRadiusM matches the sphere radius used by the haversine step
// distance the viewer was calibrated against.
const earthRadiusM = 6371000.0

// BaseStrategy selects how base-station offsets are joined to player fixes.
type BaseStrategy string

const (
	// BaseOff disables base-error correction.
	BaseOff BaseStrategy = "off"
	// BaseExact joins base offsets on exact timestamps. Points with no
	// base fix at their instant are dropped from the output.
	BaseExact BaseStrategy = "exact"
	// BaseNearest applies the nearest-in-time base offset. No points are
	// dropped, at the cost of correction lag between base fixes.
	BaseNearest BaseStrategy = "nearest"
)

// LatLng is a bare WGS84 coordinate pair.
type LatLng struct {
	Lat float64
	Lng float64
}

// Options configures the correction passes of one derivation run.
type Options struct {
	// StaticHold freezes positions while the device reports a speed
	// below HoldThresholdKmh and clamps the reported speed to zero.
	StaticHold       bool
	HoldThresholdKmh float64

	// Smooth replaces each position with the mean of a centered window
	// (SmoothWindow points, odd; 5 by default) per device.
	Smooth       bool
	SmoothWindow int

	// MaxSpeedKmh clamps reported speeds; GPS multipath produces spikes
	// far above anything a player can run. Zero disables the cap.
	MaxSpeedKmh float64

	// Base selects the base-error correction strategy.
	Base BaseStrategy
	// BaseReference is the surveyed base-station position. When nil the
	// mean of the base station's fixes in the series is used instead.
	BaseReference *LatLng
}

// DerivedPoint is one playback-ready sample. Never persisted; recomputed
// from the raw fix series on every request.
type DerivedPoint struct {
	Timestamp time.Time `json:"timestamp"`
	DeviceID  int       `json:"player_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	SpeedKmh  float64   `json:"speed_kmh"`
	StepDist  float64   `json:"step_dist"`

	// held records that static-hold clamped this point, forcing its
	// step distance to zero.
	held bool
}

// Engine derives playback series from time-ordered fix slices.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Derive runs the configured passes over the fixes of one session window
// and returns the client-ready series, ascending by timestamp with ties
// broken by device id.
func (e *Engine) Derive(fixes []fix.Fix, opts Options) []DerivedPoint {
	points := make([]DerivedPoint, 0, len(fixes))
	for _, fx := range fixes {
		points = append(points, DerivedPoint{
			Timestamp: fx.Timestamp,
			DeviceID:  fx.DeviceID,
			Latitude:  fx.Latitude,
			Longitude: fx.Longitude,
			SpeedKmh:  fx.SpeedKmh,
		})
	}

	sort.SliceStable(points, func(i, j int) bool {
		if !points[i].Timestamp.Equal(points[j].Timestamp) {
			return points[i].Timestamp.Before(points[j].Timestamp)
		}
		return points[i].DeviceID < points[j].DeviceID
	})

	switch opts.Base {
	case BaseExact:
		points = applyBaseExact(points, opts.BaseReference)
	case BaseNearest:
		points = applyBaseNearest(points, opts.BaseReference)
	}

	if opts.Smooth {
		window := opts.SmoothWindow
		if window < 3 || window%2 == 0 {
			window = 5
		}
		applySmoothing(points, window)
	}

	if opts.MaxSpeedKmh > 0 {
		for i := range points {
			if points[i].SpeedKmh > opts.MaxSpeedKmh {
				points[i].SpeedKmh = opts.MaxSpeedKmh
			}
		}
	}

	if opts.StaticHold {
		applyStaticHold(points, opts.HoldThresholdKmh)
	}

	applyStepDistance(points)

	return points
}

// applyStaticHold replaces the position of any point slower than the
// threshold with the device's last above-threshold position and clamps its
// speed to zero. A stalled device with no moving history keeps its raw
// position.
func applyStaticHold(points []DerivedPoint, threshold float64) {
	if threshold <= 0 {
		threshold = 0.8
	}
	lastMoving := make(map[int]LatLng)
	for i := range points {
		p := &points[i]
		if p.SpeedKmh >= threshold {
			lastMoving[p.DeviceID] = LatLng{Lat: p.Latitude, Lng: p.Longitude}
			continue
		}
		if pos, ok := lastMoving[p.DeviceID]; ok {
			p.Latitude = pos.Lat
			p.Longitude = pos.Lng
		}
		p.SpeedKmh = 0
		p.held = true
	}
}

// applySmoothing runs a centered moving average over each device's
// positions. Windows are clamped at the ends of a device's series.
func applySmoothing(points []DerivedPoint, window int) {
	half := window / 2

	byDevice := make(map[int][]int)
	for i := range points {
		byDevice[points[i].DeviceID] = append(byDevice[points[i].DeviceID], i)
	}

	smoothed := make([]LatLng, len(points))
	for _, idxs := range byDevice {
		for pos, i := range idxs {
			lo := pos - half
			if lo < 0 {
				lo = 0
			}
			hi := pos + half
			if hi > len(idxs)-1 {
				hi = len(idxs) - 1
			}
			var latSum, lngSum float64
			for _, j := range idxs[lo : hi+1] {
				latSum += points[j].Latitude
				lngSum += points[j].Longitude
			}
			n := float64(hi - lo + 1)
			smoothed[i] = LatLng{Lat: latSum / n, Lng: lngSum / n}
		}
	}

	for i := range points {
		points[i].Latitude = smoothed[i].Lat
		points[i].Longitude = smoothed[i].Lng
	}
}

// baseOffsets collects, per base fix, the base station's deviation from the
// reference position at that instant. The reference is the surveyed base
// position when provided, otherwise the mean of the base fixes in the
// series.
func baseOffsets(points []DerivedPoint, ref *LatLng) map[int64]LatLng {
	var baseIdx []int
	for i := range points {
		if points[i].DeviceID == fix.BaseStationID {
			baseIdx = append(baseIdx, i)
		}
	}
	if len(baseIdx) == 0 {
		return nil
	}

	reference := LatLng{}
	if ref != nil {
		reference = *ref
	} else {
		for _, i := range baseIdx {
			reference.Lat += points[i].Latitude
			reference.Lng += points[i].Longitude
		}
		reference.Lat /= float64(len(baseIdx))
		reference.Lng /= float64(len(baseIdx))
	}

	offsets := make(map[int64]LatLng, len(baseIdx))
	for _, i := range baseIdx {
		key := points[i].Timestamp.UnixNano()
		if _, seen := offsets[key]; seen {
			continue
		}
		offsets[key] = LatLng{
			Lat: points[i].Latitude - reference.Lat,
			Lng: points[i].Longitude - reference.Lng,
		}
	}
	return offsets
}

// applyBaseExact subtracts the temporally matched base offset from every
// point. Points at instants without a base fix cannot be corrected and are
// dropped. With no base fixes in the series the pass is a no-op.
func applyBaseExact(points []DerivedPoint, ref *LatLng) []DerivedPoint {
	offsets := baseOffsets(points, ref)
	if offsets == nil {
		return points
	}

	kept := points[:0]
	for _, p := range points {
		off, ok := offsets[p.Timestamp.UnixNano()]
		if !ok {
			continue
		}
		p.Latitude -= off.Lat
		p.Longitude -= off.Lng
		kept = append(kept, p)
	}
	return kept
}

// applyBaseNearest subtracts the offset of the base fix closest in time to
// each point. Earlier wins on an exact tie.
func applyBaseNearest(points []DerivedPoint, ref *LatLng) []DerivedPoint {
	offsets := baseOffsets(points, ref)
	if offsets == nil {
		return points
	}

	keys := make([]int64, 0, len(offsets))
	for k := range offsets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for i := range points {
		t := points[i].Timestamp.UnixNano()
		pos := sort.Search(len(keys), func(j int) bool { return keys[j] >= t })
		best := pos
		if best == len(keys) {
			best = len(keys) - 1
		} else if pos > 0 {
			if t-keys[pos-1] <= keys[pos]-t {
				best = pos - 1
			}
		}
		off := offsets[keys[best]]
		points[i].Latitude -= off.Lat
		points[i].Longitude -= off.Lng
	}
	return points
}

// applyStepDistance fills the geodesic distance from each device's
// previous corrected position. First point of a device and held points
// report zero.
func applyStepDistance(points []DerivedPoint) {
	prev := make(map[int]LatLng)
	for i := range points {
		p := &points[i]
		last, ok := prev[p.DeviceID]
		if ok && !p.held {
			p.StepDist = DistanceMeters(last.Lat, last.Lng, p.Latitude, p.Longitude)
		}
		prev[p.DeviceID] = LatLng{Lat: p.Latitude, Lng: p.Longitude}
	}
}

// DistanceMeters is the great-circle distance between two WGS84 points,
// sub-meter accurate at the latitudes the trackers operate in.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}
	a := s2.LatLngFromDegrees(lat1, lng1)
	b := s2.LatLngFromDegrees(lat2, lng2)
	d := a.Distance(b).Radians() * earthRadiusM
	if math.IsNaN(d) {
		return 0
	}
	return d
}
