// Package fix turns parsed NMEA sentences into quality-filtered position
// fixes. Devices emit GGA and RMC for the same instant as separate lines,
// so a per-batch reconciler fuses them into one record per timestamp key
// before the quality policy decides whether the fix is stored at all.
package fix

import "time"

// BaseStationID is the reserved device id of the stationary reference
// receiver. Player devices are positive integers.
const BaseStationID = 0

// Fix is one persisted position record. Immutable once stored.
type Fix struct {
	Timestamp  time.Time `json:"timestamp"`
	DeviceID   int       `json:"player_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Altitude   float64   `json:"altitude"`
	Satellites int       `json:"num_satellites"`
	HDOP       float64   `json:"hdop"`
	SpeedKmh   float64   `json:"speed_kmh"`
	Course     float64   `json:"course"`
	Quality    int       `json:"quality"`
}
