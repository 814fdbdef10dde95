package analytics

import (
	"math"
	"reflect"
	"testing"
	"time"

	"fieldtrack/internal/fix"
)

var t0 = time.Date(2025, 12, 17, 17, 21, 0, 0, time.UTC)

func fixAt(sec int, device int, lat, lng, speed float64) fix.Fix {
	return fix.Fix{
		Timestamp: t0.Add(time.Duration(sec) * time.Second),
		DeviceID:  device,
		Latitude:  lat,
		Longitude: lng,
		SpeedKmh:  speed,
		Quality:   1,
	}
}

func TestStaticHold(t *testing.T) {
	fixes := []fix.Fix{
		fixAt(0, 1, 50.0000, 18.0000, 0.5),
		fixAt(1, 1, 50.0001, 18.0001, 2.0),
		fixAt(2, 1, 50.0002, 18.0002, 0.3),
	}

	points := NewEngine().Derive(fixes, Options{StaticHold: true, HoldThresholdKmh: 1.0})

	// No preceding moving fix: position unchanged, speed clamped.
	if points[0].SpeedKmh != 0 || points[0].Latitude != 50.0000 {
		t.Errorf("first point: %+v", points[0])
	}
	// Moving fix passes through untouched.
	if points[1].SpeedKmh != 2.0 || points[1].Latitude != 50.0001 {
		t.Errorf("second point: %+v", points[1])
	}
	// Held to the last moving position, speed zero, no phantom step.
	if points[2].SpeedKmh != 0 || points[2].Latitude != 50.0001 || points[2].Longitude != 18.0001 {
		t.Errorf("third point: %+v", points[2])
	}
	if points[2].StepDist != 0 {
		t.Errorf("held point step = %f, want 0", points[2].StepDist)
	}
}

func TestStepDistanceFirstPointZero(t *testing.T) {
	fixes := []fix.Fix{
		fixAt(0, 1, 50.0000, 18.0000, 5),
		fixAt(1, 1, 50.0010, 18.0000, 5),
		fixAt(0, 2, 51.0000, 19.0000, 5),
	}

	points := NewEngine().Derive(fixes, Options{})

	for _, p := range points {
		if p.Timestamp.Equal(t0) && p.StepDist != 0 {
			t.Errorf("first point of device %d has step %f", p.DeviceID, p.StepDist)
		}
	}

	// 0.001 deg of latitude is ~111.2 m on the reference sphere.
	var second *DerivedPoint
	for i := range points {
		if points[i].DeviceID == 1 && !points[i].Timestamp.Equal(t0) {
			second = &points[i]
		}
	}
	if second == nil {
		t.Fatal("missing second point")
	}
	if math.Abs(second.StepDist-111.19) > 0.5 {
		t.Errorf("step = %f, want ~111.2m", second.StepDist)
	}
}

func TestBaseExactCorrection(t *testing.T) {
	// Base mean is (50, 18); at t+1 the base reads 0.0001 deg north of it.
	fixes := []fix.Fix{
		fixAt(0, fix.BaseStationID, 50.0000, 18.0000, 0),
		fixAt(1, fix.BaseStationID, 50.0001, 18.0000, 0),
		fixAt(0, 1, 50.1000, 18.1000, 5),
		fixAt(1, 1, 50.1000, 18.1000, 5),
		fixAt(2, 1, 50.2000, 18.2000, 5), // no base fix at t+2
	}

	points := NewEngine().Derive(fixes, Options{Base: BaseExact})

	// Base mean is (50.00005, 18); offsets are -0.00005 and +0.00005.
	var att0, att1 *DerivedPoint
	for i := range points {
		if points[i].DeviceID != 1 {
			continue
		}
		switch {
		case points[i].Timestamp.Equal(t0):
			att0 = &points[i]
		case points[i].Timestamp.Equal(t0.Add(time.Second)):
			att1 = &points[i]
		case points[i].Timestamp.Equal(t0.Add(2 * time.Second)):
			t.Errorf("point without matching base fix survived exact join")
		}
	}
	if att0 == nil || att1 == nil {
		t.Fatalf("missing corrected points")
	}
	if math.Abs(att0.Latitude-(50.1000+0.00005)) > 1e-9 {
		t.Errorf("t0 latitude = %.7f", att0.Latitude)
	}
	if math.Abs(att1.Latitude-(50.1000-0.00005)) > 1e-9 {
		t.Errorf("t1 latitude = %.7f", att1.Latitude)
	}
	if att0.Longitude != 18.1000 || att1.Longitude != 18.1000 {
		t.Errorf("longitude should be untouched")
	}
}

func TestBaseExactWithSurveyedReference(t *testing.T) {
	ref := &LatLng{Lat: 50.0000, Lng: 18.0000}
	fixes := []fix.Fix{
		fixAt(0, fix.BaseStationID, 50.0001, 18.0000, 0),
		fixAt(0, 1, 50.1000, 18.1000, 5),
	}

	points := NewEngine().Derive(fixes, Options{Base: BaseExact, BaseReference: ref})

	for _, p := range points {
		if p.DeviceID != 1 {
			continue
		}
		if math.Abs(p.Latitude-(50.1000-0.0001)) > 1e-9 {
			t.Errorf("player latitude = %.7f, want shifted by -0.0001", p.Latitude)
		}
	}
}

func TestBaseNearestNeverDrops(t *testing.T) {
	fixes := []fix.Fix{
		fixAt(0, fix.BaseStationID, 50.0001, 18.0000, 0),
		fixAt(10, fix.BaseStationID, 50.0003, 18.0000, 0),
		fixAt(2, 1, 50.1000, 18.1000, 5), // nearest base fix is t0
		fixAt(9, 1, 50.1000, 18.1000, 5), // nearest base fix is t+10
	}
	ref := &LatLng{Lat: 50.0000, Lng: 18.0000}

	points := NewEngine().Derive(fixes, Options{Base: BaseNearest, BaseReference: ref})
	if len(points) != 4 {
		t.Fatalf("nearest strategy dropped points: %d", len(points))
	}

	for _, p := range points {
		if p.DeviceID != 1 {
			continue
		}
		switch {
		case p.Timestamp.Equal(t0.Add(2 * time.Second)):
			if math.Abs(p.Latitude-(50.1000-0.0001)) > 1e-9 {
				t.Errorf("t+2 latitude = %.7f", p.Latitude)
			}
		case p.Timestamp.Equal(t0.Add(9 * time.Second)):
			if math.Abs(p.Latitude-(50.1000-0.0003)) > 1e-9 {
				t.Errorf("t+9 latitude = %.7f", p.Latitude)
			}
		}
	}
}

func TestSmoothingCenteredWindow(t *testing.T) {
	fixes := []fix.Fix{
		fixAt(0, 1, 50.0000, 18.0000, 5),
		fixAt(1, 1, 50.0010, 18.0000, 5),
		fixAt(2, 1, 50.0020, 18.0000, 5),
		fixAt(3, 1, 50.0030, 18.0000, 5),
		fixAt(4, 1, 50.0040, 18.0000, 5),
	}

	points := NewEngine().Derive(fixes, Options{Smooth: true, SmoothWindow: 5})

	// Center point averages the full window.
	if math.Abs(points[2].Latitude-50.0020) > 1e-9 {
		t.Errorf("center = %.7f", points[2].Latitude)
	}
	// Edge point averages the clamped window [0..2].
	if math.Abs(points[0].Latitude-50.0010) > 1e-9 {
		t.Errorf("edge = %.7f", points[0].Latitude)
	}
}

func TestOutputOrdering(t *testing.T) {
	fixes := []fix.Fix{
		fixAt(1, 2, 50, 18, 5),
		fixAt(0, 3, 50, 18, 5),
		fixAt(1, 1, 50, 18, 5),
		fixAt(0, 1, 50, 18, 5),
	}

	points := NewEngine().Derive(fixes, Options{})

	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		if cur.Timestamp.Before(prev.Timestamp) {
			t.Fatalf("timestamps out of order at %d", i)
		}
		if cur.Timestamp.Equal(prev.Timestamp) && cur.DeviceID < prev.DeviceID {
			t.Fatalf("device tiebreak violated at %d", i)
		}
	}
}

func TestSpeedCap(t *testing.T) {
	fixes := []fix.Fix{
		fixAt(0, 1, 50.1000, 18.1000, 12.0),
		fixAt(1, 1, 50.1001, 18.1001, 173.4),
	}

	points := NewEngine().Derive(fixes, Options{MaxSpeedKmh: 40})
	if points[0].SpeedKmh != 12.0 {
		t.Errorf("speed below cap changed: %f", points[0].SpeedKmh)
	}
	if points[1].SpeedKmh != 40.0 {
		t.Errorf("spike not clamped: %f", points[1].SpeedKmh)
	}

	uncapped := NewEngine().Derive(fixes, Options{})
	if uncapped[1].SpeedKmh != 173.4 {
		t.Errorf("zero cap must disable clamping: %f", uncapped[1].SpeedKmh)
	}
}

func TestDeriveIdempotent(t *testing.T) {
	fixes := []fix.Fix{
		fixAt(0, fix.BaseStationID, 50.0001, 18.0000, 0),
		fixAt(0, 1, 50.1000, 18.1000, 0.4),
		fixAt(1, 1, 50.1001, 18.1001, 3.0),
		fixAt(2, 1, 50.1002, 18.1002, 0.2),
	}
	opts := Options{
		StaticHold:       true,
		HoldThresholdKmh: 0.8,
		Smooth:           true,
		Base:             BaseNearest,
	}

	first := NewEngine().Derive(fixes, opts)
	second := NewEngine().Derive(fixes, opts)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("derivation is not deterministic")
	}
}
