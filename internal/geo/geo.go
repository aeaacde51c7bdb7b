// Package geo holds the planar geometry and timing helpers shared by the
// trigger engine and the orchestrator.
package geo

import (
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Point is a position in the physics collaborator's planar frame, in metres.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Position is a geographic coordinate in degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Distance returns the Euclidean distance between two planar points.
func Distance(a, b Point) float64 {
	return planar.Distance(orb.Point{a.X, a.Y}, orb.Point{b.X, b.Y})
}

// HeadingDelta returns the smallest angle between two headings in degrees,
// always in [0, 180].
func HeadingDelta(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	return math.Min(d, 360-d)
}

// GenerationDeltaTime derives the 16-bit generation timestamp carried by every
// outgoing message from the wall clock and the simulation clock.
func GenerationDeltaTime(wall time.Time, simSeconds float64) int {
	ms := wall.UnixMilli() + int64(math.Round(simSeconds*1000))
	v := ms % 65536
	if v < 0 {
		v += 65536
	}
	return int(v)
}

const hashStationSpace = 100000

// StationID derives a numeric station id from a physics vehicle id. The digits
// of the id are used when present; otherwise the id is hashed.
func StationID(vehicleID string) int {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, vehicleID)
	if digits != "" {
		if n, err := strconv.Atoi(digits); err == nil {
			return n
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(vehicleID))
	return int(h.Sum32() % hashStationSpace)
}
