package spatial

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dhconnelly/rtreego"

	"nearest-point-service/dataset"
	"nearest-point-service/geo"
	"nearest-point-service/models"
)

// MaxLimit caps how many results a single query may return, regardless of
// what was requested.
const MaxLimit = 50

// Bounding boxes for indexed points are degenerate; this tolerance keeps
// rtreego rectangles valid while staying far below meter scale on the
// unit sphere.
const pointTolerance = 1e-9

// Options configure an Index.
type Options struct {
	// OverridePath, when set, is the authoritative dataset location.
	OverridePath string
	// Candidates are the default locations probed when no override is set.
	Candidates []string
	// R-tree node fan-out; zero values fall back to 25/50.
	MinChildren int
	MaxChildren int
}

// Index owns the build-once point index and answers ranked
// nearest-neighbor queries. The build runs lazily on the first query and
// its outcome, success or failure, is memoized for the process lifetime.
//
// After a successful build the records and tree are read-only, so queries
// need no locking.
type Index struct {
	opts Options
	log  *slog.Logger

	once     sync.Once
	buildErr error
	records  []models.PointRecord
	tree     *rtreego.Rtree
	stats    atomic.Pointer[models.IndexStats]

	// Overridable in tests to count load passes or force tree failure.
	loadFn  func() (string, []models.PointRecord, dataset.Counts, error)
	newTree func([]models.PointRecord) (*rtreego.Rtree, error)
}

// treeEntry adapts a loaded record to the rtreego.Spatial interface.
type treeEntry struct {
	rec  *models.PointRecord
	rect rtreego.Rect
}

func (e *treeEntry) Bounds() rtreego.Rect { return e.rect }

// New constructs an unbuilt Index. Nothing is loaded until the first call
// to EnsureReady or FindNearest.
func New(opts Options, log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	if opts.MinChildren <= 0 {
		opts.MinChildren = 25
	}
	if opts.MaxChildren <= opts.MinChildren {
		opts.MaxChildren = 2 * opts.MinChildren
	}
	ix := &Index{opts: opts, log: log}
	ix.loadFn = ix.loadFromDisk
	ix.newTree = func(recs []models.PointRecord) (*rtreego.Rtree, error) {
		return buildTree(recs, opts.MinChildren, opts.MaxChildren)
	}
	return ix
}

// EnsureReady runs the single memoized build. Concurrent callers block on
// the same build; later callers observe the cached outcome, including a
// cached load failure.
func (ix *Index) EnsureReady() error {
	ix.once.Do(ix.build)
	return ix.buildErr
}

func (ix *Index) build() {
	start := time.Now()
	path, records, counts, err := ix.loadFn()
	if err != nil {
		ix.buildErr = err
		ix.stats.Store(&models.IndexStats{
			SourcePath:          path,
			TotalRowsSeen:       counts.Seen,
			TotalRowsSkipped:    counts.Skipped,
			BuildDurationMillis: time.Since(start).Milliseconds(),
			BuiltAt:             time.Now().UTC(),
		})
		ix.log.Error("point index build failed", "error", err)
		return
	}

	tree, err := ix.newTree(records)
	if err != nil {
		// Degraded but queryable: linear scans give the same results at a
		// performance cost.
		ix.log.Warn("spatial tree construction failed, falling back to linear scan",
			"error", err, "records", len(records))
		tree = nil
	}

	ix.records = records
	ix.tree = tree
	stats := &models.IndexStats{
		SourcePath:          path,
		TotalRowsSeen:       counts.Seen,
		TotalRowsIndexed:    counts.Kept,
		TotalRowsSkipped:    counts.Skipped,
		BuildDurationMillis: time.Since(start).Milliseconds(),
		BuiltAt:             time.Now().UTC(),
		UsingTreeIndex:      tree != nil,
	}
	ix.stats.Store(stats)
	ix.log.Info("point index built",
		"source", path,
		"indexed", counts.Kept,
		"skipped", counts.Skipped,
		"tree", tree != nil,
		"duration_ms", stats.BuildDurationMillis)
}

func (ix *Index) loadFromDisk() (string, []models.PointRecord, dataset.Counts, error) {
	path, err := dataset.ResolveSourcePath(ix.opts.OverridePath, ix.opts.Candidates)
	if err != nil {
		return "", nil, dataset.Counts{}, err
	}
	records, counts, err := dataset.LoadRecords(path)
	return path, records, counts, err
}

func buildTree(records []models.PointRecord, minChildren, maxChildren int) (t *rtreego.Rtree, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, fmt.Errorf("rtree construction: %v", r)
		}
	}()
	entries := make([]rtreego.Spatial, len(records))
	for i := range records {
		rec := &records[i]
		entries[i] = &treeEntry{
			rec:  rec,
			rect: geo.UnitVector(rec.Latitude, rec.Longitude).ToRect(pointTolerance),
		}
	}
	return rtreego.NewTree(3, minChildren, maxChildren, entries...), nil
}

// FindNearest returns up to limit records closest to (lat, lng) by
// great-circle distance, ascending. Inputs are normalized, never
// rejected: limit is clamped to [1, MaxLimit], latitude to [-90, 90],
// and longitude is wrapped into [-180, 180).
func (ix *Index) FindNearest(lat, lng float64, limit int) ([]models.NearestResult, error) {
	if err := ix.EnsureReady(); err != nil {
		return nil, err
	}

	lat = geo.ClampLatitude(lat)
	lng = geo.NormalizeLongitude(lng)
	limit = ClampLimit(limit)

	if len(ix.records) == 0 {
		return []models.NearestResult{}, nil
	}

	var candidates []*models.PointRecord
	if ix.tree != nil {
		for _, s := range ix.tree.NearestNeighbors(limit, geo.UnitVector(lat, lng)) {
			if s == nil {
				continue
			}
			candidates = append(candidates, s.(*treeEntry).rec)
		}
	} else {
		candidates = make([]*models.PointRecord, len(ix.records))
		for i := range ix.records {
			candidates[i] = &ix.records[i]
		}
	}

	type scored struct {
		rec  *models.PointRecord
		dist float64
	}
	ranked := make([]scored, len(candidates))
	for i, rec := range candidates {
		ranked[i] = scored{rec: rec, dist: geo.Haversine(lat, lng, rec.Latitude, rec.Longitude)}
	}
	// Stable sort on the exact distance keeps tie ordering deterministic
	// for a fixed dataset, on both the tree and the linear path.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	results := make([]models.NearestResult, len(ranked))
	for i, s := range ranked {
		results[i] = models.NearestResult{
			PointRecord:    *s.rec,
			DistanceMeters: math.Round(s.dist),
		}
	}
	return results, nil
}

// Stats returns the memoized build statistics, or nil while no build has
// been attempted.
func (ix *Index) Stats() *models.IndexStats {
	return ix.stats.Load()
}

// ClampLimit normalizes a requested result count into [1, MaxLimit].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
