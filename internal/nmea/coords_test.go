package nmea

import (
	"math"
	"testing"
)

func TestToDecimal(t *testing.T) {
	cases := []struct {
		coord      string
		hemisphere string
		want       float64
		ok         bool
	}{
		{"5015.5100", "N", 50.25850, true},
		{"01857.9540", "E", 18.96590, true},
		{"5015.5100", "S", -50.25850, true},
		{"01857.9540", "W", -18.96590, true},
		{"0955.1234", "N", 9 + 55.1234/60, true},
		{"", "N", 0, false},
		{"0000.0000", "N", 0, false},
		{"5015", "N", 0, false},
		{"garbage", "N", 0, false},
	}

	for _, tc := range cases {
		got, ok := ToDecimal(tc.coord, tc.hemisphere)
		if ok != tc.ok {
			t.Errorf("ToDecimal(%q,%q): ok=%v, want %v", tc.coord, tc.hemisphere, ok, tc.ok)
			continue
		}
		if ok && math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("ToDecimal(%q,%q) = %.7f, want %.7f", tc.coord, tc.hemisphere, got, tc.want)
		}
	}
}
