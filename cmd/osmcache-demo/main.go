// Command osmcache-demo runs a single generator-style pass: it writes a
// handful of synthetic OSM elements and node coordinates through the
// cache packages, closes them, reopens them for reading, and reports
// what it finds. It exists to exercise elementcache, all three
// pointstorage strategies, and the osmpayload example codec end to end,
// the way a real importer would drive them across two passes over a
// planet extract.
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"

	"osmcache/examples/osmpayload"
	"osmcache/internal/elementcache"
	"osmcache/internal/logger"
	"osmcache/internal/pointstorage"
	"osmcache/internal/types"
)

func main() {
	dataDir := flag.String("data-dir", "./osmcache_data", "Directory to hold cache files")
	quiet := flag.Bool("quiet", false, "Disable info logging (log only warnings and errors)")
	preload := flag.Bool("preload", false, "Preload the element payload file into memory on read")
	strategy := flag.String("point-strategy", "rawfile", "Point storage strategy: rawfile, rawmem, or mapfile")
	memCapacity := flag.Uint64("rawmem-capacity", 1<<20, "Array capacity when -point-strategy=rawmem")
	flag.Parse()

	logFile, err := os.OpenFile("osmcache-demo.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	logger.Setup(io.MultiWriter(os.Stdout, logFile))
	if *quiet {
		logger.SetLevel(logger.LevelWarning)
	} else {
		logger.SetLevel(logger.LevelInfo)
	}

	logger.Info("----------------------------------------")
	logger.Info("osmcache demo pass starting")

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		logger.Critical("failed to create data dir %q: %v", *dataDir, err)
	}

	cacheCfg := types.CacheConfig{
		Path:    filepath.Join(*dataDir, "elements.cache"),
		Preload: *preload,
	}
	pointCfg := types.PointStorageConfig{
		Path:     filepath.Join(*dataDir, "points"),
		Strategy: types.PointStrategy(*strategy),
		Capacity: *memCapacity,
	}

	if err := runPass(cacheCfg, pointCfg); err != nil {
		logger.Critical("demo pass failed: %v", err)
	}

	logger.Info("osmcache demo pass complete")
}

// runPass writes a small fixed dataset, closes it, reopens it, and logs
// how many of the written ids are found again; the values read back are
// not compared with what was written. It returns an error rather than
// calling logger.Critical itself, so main is the only place that
// escalates a failure to process exit.
func runPass(cacheCfg types.CacheConfig, pointCfg types.PointStorageConfig) error {
	demoElements := map[uint64]osmpayload.Element{
		1: {Tags: map[string]string{"highway": "residential", "name": "Elm Street"}, NodeRefs: []int64{10, 11, 12}},
		2: {Tags: map[string]string{"building": "yes"}, NodeRefs: []int64{20, 21, 22, 23}},
		3: {Tags: map[string]string{"amenity": "cafe", "name": "Corner Cafe"}},
	}
	demoPoints := map[uint64][2]float64{
		10: {55.7558, 37.6173},
		20: {51.5074, -0.1278},
		30: {-33.8688, 151.2093},
	}

	if err := writeElements(cacheCfg, demoElements); err != nil {
		return err
	}
	if err := writePoints(pointCfg, demoPoints); err != nil {
		return err
	}

	if err := readElements(cacheCfg, demoElements); err != nil {
		return err
	}
	return readPoints(pointCfg, demoPoints)
}

func writeElements(cfg types.CacheConfig, elements map[uint64]osmpayload.Element) error {
	w, err := elementcache.NewWriter(cfg.Path, elementcache.Codec[osmpayload.Element]{
		Encode: osmpayload.Encode,
		Decode: osmpayload.Decode,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	for id, el := range elements {
		if err := w.Write(id, el); err != nil {
			return err
		}
	}
	if err := w.SaveOffsets(); err != nil {
		return err
	}
	logger.Info("wrote %d elements to %s", len(elements), cfg.Path)
	return w.Close()
}

func readElements(cfg types.CacheConfig, want map[uint64]osmpayload.Element) error {
	r, err := elementcache.NewReader(cfg.Path, elementcache.Codec[osmpayload.Element]{
		Encode: osmpayload.Encode,
		Decode: osmpayload.Decode,
	}, cfg.Preload)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.LoadOffsets(); err != nil {
		return err
	}

	found := 0
	for id := range want {
		if _, ok := r.Read(id); ok {
			found++
		}
	}
	logger.Info("read back %d/%d elements from %s (preload=%v)", found, len(want), cfg.Path, cfg.Preload)
	return nil
}

func writePoints(cfg types.PointStorageConfig, points map[uint64][2]float64) error {
	switch cfg.Strategy {
	case types.StrategyRawFile:
		w, err := pointstorage.NewRawFileWriter(cfg.Path)
		if err != nil {
			return err
		}
		defer w.Close()
		for id, p := range points {
			if err := w.AddPoint(id, p[0], p[1]); err != nil {
				return err
			}
		}
		logger.Info("wrote %d points (rawfile) to %s", w.ProcessedPoints(), cfg.Path)
		return w.Close()

	case types.StrategyRawMem:
		capacity := cfg.Capacity
		if capacity == 0 {
			capacity = pointstorage.MaxDenseID
		}
		w, err := pointstorage.NewRawMemWriterWithCapacity(cfg.Path, capacity)
		if err != nil {
			return err
		}
		defer w.Close()
		for id, p := range points {
			if err := w.AddPoint(id, p[0], p[1]); err != nil {
				return err
			}
		}
		logger.Info("wrote %d points (rawmem) to %s", w.ProcessedPoints(), cfg.Path)
		return w.Close()

	case types.StrategyMapFile:
		w, err := pointstorage.NewMapFileWriter(cfg.Path)
		if err != nil {
			return err
		}
		defer w.Close()
		for id, p := range points {
			if err := w.AddPoint(id, p[0], p[1]); err != nil {
				return err
			}
		}
		logger.Info("wrote %d points (mapfile) to %s", w.ProcessedPoints(), cfg.Path)
		return w.Close()

	default:
		logger.Critical("unknown point storage strategy %q", cfg.Strategy)
		return nil
	}
}

func readPoints(cfg types.PointStorageConfig, want map[uint64][2]float64) error {
	found := 0
	switch cfg.Strategy {
	case types.StrategyRawFile:
		r, err := pointstorage.NewRawFileReader(cfg.Path)
		if err != nil {
			return err
		}
		defer r.Close()
		for id := range want {
			if _, _, ok := r.GetPoint(id); ok {
				found++
			}
		}

	case types.StrategyRawMem:
		r, err := pointstorage.NewRawMemReader(cfg.Path)
		if err != nil {
			return err
		}
		for id := range want {
			if _, _, ok := r.GetPoint(id); ok {
				found++
			}
		}

	case types.StrategyMapFile:
		r, err := pointstorage.NewMapFileReader(cfg.Path)
		if err != nil {
			return err
		}
		for id := range want {
			if _, _, ok := r.GetPoint(id); ok {
				found++
			}
		}

	default:
		logger.Critical("unknown point storage strategy %q", cfg.Strategy)
		return nil
	}

	logger.Info("read back %d/%d points (%s) from %s", found, len(want), cfg.Strategy, cfg.Path)
	return nil
}
