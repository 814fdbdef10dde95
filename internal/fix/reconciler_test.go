package fix

import (
	"math"
	"testing"

	"fieldtrack/internal/nmea"
)

func mustParse(t *testing.T, line string) nmea.Sentence {
	t.Helper()
	s, err := nmea.ParseSentence(line)
	if err != nil {
		t.Fatalf("ParseSentence(%q): %v", line, err)
	}
	return s
}

func TestReconcilerFusesGGAAndRMC(t *testing.T) {
	r := NewReconciler(7)
	r.Apply(mustParse(t, "$GPGGA,120001.00,5015.5100,N,01857.9540,E,1,08,0.9,280.1,M,40.1,M,,*47"))
	r.Apply(mustParse(t, "$GPRMC,120001.00,A,5015.5200,N,01857.9600,E,2.0,084.4,170625,,*6A"))

	builders := r.Finalize()
	if len(builders) != 1 {
		t.Fatalf("expected one accumulator, got %d", len(builders))
	}

	b := builders[0]
	if b.DeviceID != 7 {
		t.Errorf("device = %d", b.DeviceID)
	}
	// GGA position wins even though RMC carried its own.
	if math.Abs(b.Latitude-50.2585) > 1e-9 {
		t.Errorf("latitude = %.7f, want GGA position 50.2585", b.Latitude)
	}
	if b.Quality != 1 || b.Satellites != 8 || b.HDOP != 0.9 || b.Altitude != 280.1 {
		t.Errorf("GGA fields not applied: %+v", b)
	}
	if math.Abs(b.SpeedKmh-2.0*1.852) > 1e-9 {
		t.Errorf("speed = %.4f, want knots x 1.852", b.SpeedKmh)
	}
	if b.Course != 84.4 || b.Date != "170625" {
		t.Errorf("RMC fields not applied: %+v", b)
	}
}

func TestReconcilerRMCPositionFallback(t *testing.T) {
	r := NewReconciler(3)
	// GGA without a usable position still contributes quality fields.
	r.Apply(mustParse(t, "$GPGGA,120001.00,,,,,1,08,0.9,280.1,M,40.1,M,,*47"))
	r.Apply(mustParse(t, "$GPRMC,120001.00,A,5015.5200,N,01857.9600,E,2.0,084.4,170625,,*6A"))

	b := r.Finalize()[0]
	if !b.HasPosition {
		t.Fatalf("expected RMC fallback position")
	}
	if math.Abs(b.Latitude-(50+15.52/60)) > 1e-9 {
		t.Errorf("latitude = %.7f, want RMC position", b.Latitude)
	}
	if b.Satellites != 8 {
		t.Errorf("satellites = %d, want GGA value", b.Satellites)
	}
}

func TestReconcilerGGAAfterRMCOverridesPosition(t *testing.T) {
	r := NewReconciler(3)
	r.Apply(mustParse(t, "$GPRMC,120001.00,A,5015.5200,N,01857.9600,E,2.0,084.4,170625,,*6A"))
	r.Apply(mustParse(t, "$GPGGA,120001.00,5015.5100,N,01857.9540,E,1,08,0.9,280.1,M,40.1,M,,*47"))

	b := r.Finalize()[0]
	if math.Abs(b.Latitude-50.2585) > 1e-9 {
		t.Errorf("latitude = %.7f, want GGA to override RMC", b.Latitude)
	}
}

func TestReconcilerKeepsArrivalOrder(t *testing.T) {
	r := NewReconciler(1)
	r.Apply(mustParse(t, "$GPGGA,120003.00,5015.5100,N,01857.9540,E,1,08,0.9,280.1,M,40.1,M,,*47"))
	r.Apply(mustParse(t, "$GPGGA,120001.00,5015.5100,N,01857.9540,E,1,08,0.9,280.1,M,40.1,M,,*47"))
	r.Apply(mustParse(t, "$GPRMC,120003.00,A,,,,,2.0,084.4,170625,,*6A"))

	builders := r.Finalize()
	if len(builders) != 2 {
		t.Fatalf("expected two accumulators, got %d", len(builders))
	}
	if builders[0].TimeKey != "120003.00" || builders[1].TimeKey != "120001.00" {
		t.Errorf("order = [%s %s], want first-seen order", builders[0].TimeKey, builders[1].TimeKey)
	}
}

func TestReconcilerIgnoresSentencesWithoutTime(t *testing.T) {
	r := NewReconciler(1)
	r.Apply(mustParse(t, "$GPGGA,,5015.5100,N,01857.9540,E,1,08,0.9,280.1,M,40.1,M,,*47"))
	if got := len(r.Finalize()); got != 0 {
		t.Errorf("expected no accumulators, got %d", got)
	}
}
