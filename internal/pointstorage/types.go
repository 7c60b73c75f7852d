// Package pointstorage implements the three interchangeable strategies
// for storing node coordinates: a dense on-disk array addressed by id
// (RawFile), a dense in-RAM array sized for the whole node-id space
// (RawMem), and a sparse on-disk-then-hash-map representation (MapFile).
// All three share the fixed-point coordinate encoding in
// osmcache/internal/geocoord and the zero-sentinel "absent" convention
// documented in the package comment below.
//
// (0,0) means "absent" in the dense strategies. This conflates with a
// real point on the equator at the prime meridian - a known, documented
// limitation carried over unchanged rather than silently fixed; see
// DESIGN.md.
package pointstorage

const (
	// latLonSize is the on-disk width of a LatLon record.
	latLonSize = 8
	// latLonPosSize is the on-disk width of a LatLonPos record.
	latLonPosSize = 16
)

// LatLon is a packed coordinate used by the dense storages: two int32
// fixed-point values, fixed size 8 bytes, host byte order.
type LatLon struct {
	Lat int32
	Lon int32
}

// IsAbsent reports whether l is the dense-storage zero sentinel.
func (l LatLon) IsAbsent() bool {
	return l.Lat == 0 && l.Lon == 0
}

// LatLonPos is the sparse coordinate record MapFilePointStorage appends:
// an id plus a LatLon, fixed size 16 bytes, host byte order.
type LatLonPos struct {
	Pos uint64
	Lat int32
	Lon int32
}
