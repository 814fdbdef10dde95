package ingest

import (
	"math"
	"strings"
	"testing"
	"time"

	appconfig "fieldtrack/config"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := NewProcessor(appconfig.IngestConfig{
		MinSatellites: 6,
		CenturyBase:   2000,
		UTCOffset:     "+00:00",
		MaxBatchLines: 100,
	})
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	return p
}

func TestProcessBatchFusesPair(t *testing.T) {
	p := newTestProcessor(t)
	raw := strings.Join([]string{
		"$GPGGA,172113.00,5015.5100,N,01857.9540,E,1,08,0.9,280.1,M,40.1,M,,*47",
		"$GPRMC,172113.00,A,5015.5200,N,01857.9600,E,2.0,084.4,171225,,*6A",
	}, "\n")

	result := p.ProcessBatch(4, raw)

	if len(result.Accepted) != 1 {
		t.Fatalf("accepted = %d, want one fused fix", len(result.Accepted))
	}
	fx := result.Accepted[0]
	if fx.DeviceID != 4 {
		t.Errorf("device = %d", fx.DeviceID)
	}
	if math.Abs(fx.Latitude-50.2585) > 1e-9 {
		t.Errorf("latitude = %.7f, want GGA position", fx.Latitude)
	}
	if math.Abs(fx.SpeedKmh-2.0*1.852) > 1e-9 {
		t.Errorf("speed = %.4f", fx.SpeedKmh)
	}
	want := time.Date(2025, 12, 17, 17, 21, 13, 0, time.UTC)
	if !fx.Timestamp.Equal(want) {
		t.Errorf("timestamp = %s, want %s", fx.Timestamp, want)
	}
}

func TestProcessBatchSkipsBadLines(t *testing.T) {
	p := newTestProcessor(t)
	raw := strings.Join([]string{
		"$GPGSV,3,1,11,03,03,111,00*74", // unsupported type
		"garbage line",
		"", // blank lines do not count
		"$GPGGA,172113.00,5015.5100,N,01857.9540,E,1,08,0.9,280.1,M,40.1,M,,*47",
		"$GPRMC,172113.00,A,,,,,2.0,084.4,171225,,*6A",
	}, "\n")

	result := p.ProcessBatch(1, raw)

	if result.Lines != 4 || result.Skipped != 2 || result.Parsed != 2 {
		t.Errorf("lines=%d skipped=%d parsed=%d", result.Lines, result.Skipped, result.Parsed)
	}
	if len(result.Accepted) != 1 {
		t.Errorf("accepted = %d; bad lines must not poison the batch", len(result.Accepted))
	}
}

func TestProcessBatchQualityFloor(t *testing.T) {
	p := newTestProcessor(t)
	cases := []struct {
		name string
		raw  string
	}{
		{
			"five satellites",
			"$GPGGA,172113.00,5015.5100,N,01857.9540,E,1,05,0.9,280.1,M,40.1,M,,*47\n" +
				"$GPRMC,172113.00,A,,,,,2.0,084.4,171225,,*6A",
		},
		{
			"quality zero",
			"$GPGGA,172113.00,5015.5100,N,01857.9540,E,0,08,0.9,280.1,M,40.1,M,,*47\n" +
				"$GPRMC,172113.00,A,,,,,2.0,084.4,171225,,*6A",
		},
		{
			"no RMC date",
			"$GPGGA,172113.00,5015.5100,N,01857.9540,E,1,08,0.9,280.1,M,40.1,M,,*47",
		},
	}

	for _, tc := range cases {
		result := p.ProcessBatch(1, tc.raw)
		if len(result.Accepted) != 0 {
			t.Errorf("%s: accepted %d fixes, want rejection", tc.name, len(result.Accepted))
		}
		if result.Rejected != 1 {
			t.Errorf("%s: rejected = %d, want 1", tc.name, result.Rejected)
		}
	}
}

func TestProcessBatchEmptyInput(t *testing.T) {
	p := newTestProcessor(t)
	result := p.ProcessBatch(1, "\n\n  \n")
	if result.Lines != 0 || len(result.Accepted) != 0 {
		t.Errorf("empty batch: %+v", result)
	}
}
