// Package product holds the records that every sink understands: the
// product header and the ground-pixel tile.
package product

import (
	"fmt"
	"strings"
	"time"
)

// Header is the per-file metadata written before tiles or records.
type Header struct {
	Name        string
	Family      string
	Orbit       int
	Start       time.Time
	Stop        time.Time
	ProcTime    time.Time
	SoftVersion string
	IngestID    string
}

// Tile is one ground pixel of a derived product.
type Tile struct {
	Time    time.Time
	Lat     float64
	Lon     float64
	Corners [4][2]float64 // lat, lon
	Values  map[string]float64
}

// EWKT returns the pixel footprint as an EWKT polygon in WGS84. The ring is
// closed by repeating the first corner.
func (t Tile) EWKT() string {
	var sb strings.Builder
	sb.WriteString("SRID=4326;POLYGON((")
	for i := 0; i <= 4; i++ {
		c := t.Corners[i%4]
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%.6f %.6f", c[1], c[0])
	}
	sb.WriteString("))")
	return sb.String()
}
