// Package nmea parses the two sentence types emitted by the tracker
// firmware, GGA and RMC. It is deliberately not a general NMEA parser:
// checksums are not enforced and unknown types are rejected so the
// ingestion path can skip them line by line.
package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SentenceType identifies the supported NMEA sentence kinds.
type SentenceType string

const (
	TypeGGA SentenceType = "GGA"
	TypeRMC SentenceType = "RMC"
)

// ErrMalformedSentence marks lines with an unknown type code or too few
// fields. Callers skip the line and continue with the rest of the batch.
var ErrMalformedSentence = errors.New("malformed sentence")

// minFields is the number of comma separated fields each supported type
// must carry for the positions we read to exist.
const minFields = 10

// Sentence holds the typed fields of one parsed GGA or RMC line. Only the
// fields belonging to the source type are populated; the rest stay zero.
type Sentence struct {
	Type SentenceType

	// Time is the raw hhmmss.ss time-of-day field. It doubles as the
	// fusion key downstream, so it is kept as the exact string the
	// device sent.
	Time string

	// GGA fields.
	Lat        string
	LatHemi    string
	Lon        string
	LonHemi    string
	Quality    int
	Satellites int
	HDOP       float64
	Altitude   float64

	// RMC fields.
	Status     string
	SpeedKnots float64
	Course     float64
	Date       string // ddmmyy
}

// ParseSentence parses one trimmed, non-empty NMEA line. The sentence type
// is the three characters at offset 3 of the first field ("$GPGGA" -> "GGA",
// talker prefix ignored).
func ParseSentence(line string) (Sentence, error) {
	parts := strings.Split(line, ",")
	if len(parts[0]) < 6 {
		return Sentence{}, fmt.Errorf("%w: short type field %q", ErrMalformedSentence, parts[0])
	}

	code := SentenceType(strings.ToUpper(parts[0][3:6]))
	switch code {
	case TypeGGA:
		if len(parts) < minFields {
			return Sentence{}, fmt.Errorf("%w: GGA needs %d fields, got %d", ErrMalformedSentence, minFields, len(parts))
		}
		return Sentence{
			Type:       TypeGGA,
			Time:       strings.TrimSpace(parts[1]),
			Lat:        strings.TrimSpace(parts[2]),
			LatHemi:    strings.TrimSpace(parts[3]),
			Lon:        strings.TrimSpace(parts[4]),
			LonHemi:    strings.TrimSpace(parts[5]),
			Quality:    parseIntField(parts[6]),
			Satellites: parseIntField(parts[7]),
			HDOP:       parseFloatField(parts[8]),
			Altitude:   parseFloatField(parts[9]),
		}, nil
	case TypeRMC:
		if len(parts) < minFields {
			return Sentence{}, fmt.Errorf("%w: RMC needs %d fields, got %d", ErrMalformedSentence, minFields, len(parts))
		}
		return Sentence{
			Type:       TypeRMC,
			Time:       strings.TrimSpace(parts[1]),
			Status:     strings.TrimSpace(parts[2]),
			Lat:        strings.TrimSpace(parts[3]),
			LatHemi:    strings.TrimSpace(parts[4]),
			Lon:        strings.TrimSpace(parts[5]),
			LonHemi:    strings.TrimSpace(parts[6]),
			SpeedKnots: parseFloatField(parts[7]),
			Course:     parseFloatField(parts[8]),
			Date:       strings.TrimSpace(parts[9]),
		}, nil
	default:
		return Sentence{}, fmt.Errorf("%w: unsupported type %q", ErrMalformedSentence, parts[0])
	}
}

// parseIntField parses an integer field, treating empty or garbage input
// as zero the way the receivers emit it.
func parseIntField(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}

func parseFloatField(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
