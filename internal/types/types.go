// Package types holds the small configuration structs shared between a
// generator pass and the cache packages it drives, analogous to the
// schema-config type the storage layer this is adapted from passed down
// from its entrypoint.
package types

// PointStrategy names one of the three point storage implementations.
type PointStrategy string

const (
	StrategyRawFile PointStrategy = "rawfile"
	StrategyRawMem  PointStrategy = "rawmem"
	StrategyMapFile PointStrategy = "mapfile"
)

// CacheConfig configures a single elementcache instance.
type CacheConfig struct {
	Path    string
	Preload bool
}

// PointStorageConfig configures a single pointstorage instance. Capacity
// is only consulted by StrategyRawMem and, when zero, defaults to the
// full dense id space.
type PointStorageConfig struct {
	Path     string
	Strategy PointStrategy
	Capacity uint64
}
