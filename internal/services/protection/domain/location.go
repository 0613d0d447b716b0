package domain

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// Location is the opaque composite key of a protected block.
type Location struct {
	World string
	X     int
	Y     int
	Z     int
}

// Key returns the spatial cache key `world:x:y:z`.
func (l Location) Key() string {
	return fmt.Sprintf("%s:%d:%d:%d", l.World, l.X, l.Y, l.Z)
}

func (l Location) String() string {
	return l.Key()
}

// Bounds is an inclusive axis-aligned box within one world.
type Bounds struct {
	World string
	MinX  int
	MaxX  int
	MinY  int
	MaxY  int
	MinZ  int
	MaxZ  int
}

// Around returns the cube of the given radius centred on loc.
func Around(loc Location, radius int) Bounds {
	if radius < 0 {
		radius = -radius
	}
	return Bounds{
		World: loc.World,
		MinX:  loc.X - radius,
		MaxX:  loc.X + radius,
		MinY:  loc.Y - radius,
		MaxY:  loc.Y + radius,
		MinZ:  loc.Z - radius,
		MaxZ:  loc.Z + radius,
	}
}

// Normalized returns b with each min/max pair ordered.
func (b Bounds) Normalized() Bounds {
	if b.MinX > b.MaxX {
		b.MinX, b.MaxX = b.MaxX, b.MinX
	}
	if b.MinY > b.MaxY {
		b.MinY, b.MaxY = b.MaxY, b.MinY
	}
	if b.MinZ > b.MaxZ {
		b.MinZ, b.MaxZ = b.MaxZ, b.MinZ
	}
	return b
}

// Contains reports whether loc lies inside b, world included.
func (b Bounds) Contains(loc Location) bool {
	return loc.World == b.World &&
		loc.X >= b.MinX && loc.X <= b.MaxX &&
		loc.Y >= b.MinY && loc.Y <= b.MaxY &&
		loc.Z >= b.MinZ && loc.Z <= b.MaxZ
}

// Volume returns the number of cells in normalized b, saturating at
// math.MaxInt64.
func (b Bounds) Volume() int64 {
	volume := uint64(1)
	for _, n := range [3]uint64{
		span(b.MinX, b.MaxX),
		span(b.MinY, b.MaxY),
		span(b.MinZ, b.MaxZ),
	} {
		hi, lo := bits.Mul64(volume, n)
		if hi != 0 || lo > math.MaxInt64 {
			return math.MaxInt64
		}
		volume = lo
	}
	return int64(volume)
}

// span counts the cells in [lo, hi]. A full-width range saturates.
func span(lo, hi int) uint64 {
	n := uint64(hi) - uint64(lo)
	if n == math.MaxUint64 {
		return n
	}
	return n + 1
}

// ParseKey is the inverse of Location.Key. World names may contain colons, so
// the coordinates are read from the right.
func ParseKey(key string) (Location, error) {
	parts := strings.Split(key, ":")
	if len(parts) < 4 {
		return Location{}, fmt.Errorf("location key %q: want world:x:y:z", key)
	}
	n := len(parts)
	coords := make([]int, 3)
	for i, raw := range parts[n-3:] {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Location{}, fmt.Errorf("location key %q: %w", key, err)
		}
		coords[i] = value
	}
	return Location{
		World: strings.Join(parts[:n-3], ":"),
		X:     coords[0],
		Y:     coords[1],
		Z:     coords[2],
	}, nil
}
