// Package position holds the vessel coordinates decoded from live frames.
// One Cell is owned by the core and handed to readers such as the map
// endpoint; only the frame ingestion path writes to it.
package position

import (
	"encoding/binary"
	"sync"
	"time"

	"example.com/n2kgate/internal/canlog"
	"example.com/n2kgate/internal/n2k"
)

// PGNPositionRapid is "Position, Rapid Update".
const PGNPositionRapid = 129025

const (
	coordScale   = 1e-7
	notAvailable = 0x7FFFFFFF
)

// Fix is one coordinate pair.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Source    uint8     `json:"source"`
	Updated   time.Time `json:"updated"`
}

// Cell is ready for use as a zero value.
type Cell struct {
	mu    sync.RWMutex
	fix   Fix
	valid bool
	// now stamps fixes; nil means time.Now.
	now func() time.Time
}

func NewCell() *Cell {
	return &Cell{}
}

func (c *Cell) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// Set stores a fix.
func (c *Cell) Set(f Fix) {
	c.mu.Lock()
	c.fix = f
	c.valid = true
	c.mu.Unlock()
}

// Get returns the last fix and whether one was ever stored.
func (c *Cell) Get() (Fix, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fix, c.valid
}

// Observe updates the cell when r carries a valid position report. It
// reports whether the cell changed.
func (c *Cell) Observe(r canlog.Record) bool {
	addr := n2k.DecodeID(r.ID)
	if addr.PGN != PGNPositionRapid {
		return false
	}
	lat, lon, ok := Decode(r.Payload())
	if !ok {
		return false
	}
	c.Set(Fix{Latitude: lat, Longitude: lon, Source: addr.Source, Updated: c.clock().UTC()})
	return true
}

// Decode reads the latitude and longitude of a Position, Rapid Update
// payload. ok is false for short payloads and "not available" values.
func Decode(data []byte) (lat, lon float64, ok bool) {
	if len(data) < 8 {
		return 0, 0, false
	}
	rawLat := int32(binary.LittleEndian.Uint32(data[0:4]))
	rawLon := int32(binary.LittleEndian.Uint32(data[4:8]))
	if rawLat == notAvailable || rawLon == notAvailable {
		return 0, 0, false
	}
	lat = float64(rawLat) * coordScale
	lon = float64(rawLon) * coordScale
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}
