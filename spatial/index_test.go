package spatial

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dhconnelly/rtreego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nearest-point-service/dataset"
	"nearest-point-service/geo"
	"nearest-point-service/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(id, name string, lat, lng float64) models.PointRecord {
	return models.PointRecord{ID: id, Name: name, Latitude: lat, Longitude: lng}
}

func newTestIndex(records []models.PointRecord) *Index {
	ix := New(Options{}, discardLogger())
	ix.loadFn = func() (string, []models.PointRecord, dataset.Counts, error) {
		return "fixture.csv", records, dataset.Counts{Seen: len(records), Kept: len(records)}, nil
	}
	return ix
}

func scenarioRecords() []models.PointRecord {
	return []models.PointRecord{
		record("1", "Alpha", 1.0, 1.0),
		record("2", "Beta", 1.05, 1.05),
		record("3", "Gamma", -9.5, 121.0),
	}
}

func ids(results []models.NearestResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestEnsureReadyBuildsOnce(t *testing.T) {
	var loads atomic.Int32
	ix := New(Options{}, discardLogger())
	ix.loadFn = func() (string, []models.PointRecord, dataset.Counts, error) {
		loads.Add(1)
		recs := scenarioRecords()
		return "fixture.csv", recs, dataset.Counts{Seen: 3, Kept: 3}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ix.FindNearest(1, 1, 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
}

func TestLoadFailureIsCached(t *testing.T) {
	var loads atomic.Int32
	ix := New(Options{}, discardLogger())
	ix.loadFn = func() (string, []models.PointRecord, dataset.Counts, error) {
		loads.Add(1)
		return "", nil, dataset.Counts{}, &dataset.ConfigError{Probed: []string{"/missing.csv"}}
	}

	for i := 0; i < 3; i++ {
		_, err := ix.FindNearest(1, 1, 1)
		var cfgErr *dataset.ConfigError
		require.ErrorAs(t, err, &cfgErr)
	}
	// No retry on subsequent queries; the failure is memoized.
	assert.Equal(t, int32(1), loads.Load())
	require.NotNil(t, ix.Stats())
	assert.False(t, ix.Stats().UsingTreeIndex)
}

func TestFindNearestScenario(t *testing.T) {
	ix := newTestIndex(scenarioRecords())

	results, err := ix.FindNearest(1, 1, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, []string{"1", "2"}, ids(results))
	assert.Equal(t, 0.0, results[0].DistanceMeters)
	assert.Greater(t, results[1].DistanceMeters, 0.0)
	assert.Less(t, results[1].DistanceMeters, geo.Haversine(1, 1, -9.5, 121))

	stats := ix.Stats()
	require.NotNil(t, stats)
	assert.True(t, stats.UsingTreeIndex)
	assert.Equal(t, 3, stats.TotalRowsIndexed)
	assert.Equal(t, "fixture.csv", stats.SourcePath)
}

func TestFindNearestDeterministic(t *testing.T) {
	ix := newTestIndex(scenarioRecords())

	first, err := ix.FindNearest(0.5, 0.5, 3)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ix.FindNearest(0.5, 0.5, 3)
		require.NoError(t, err)
		assert.Equal(t, ids(first), ids(again))
	}
}

func TestFindNearestDistanceConsistency(t *testing.T) {
	ix := newTestIndex(scenarioRecords())

	results, err := ix.FindNearest(3.25, -2.5, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		want := math.Round(geo.Haversine(3.25, -2.5, res.Latitude, res.Longitude))
		assert.Equal(t, want, res.DistanceMeters, "record %s", res.ID)
	}
}

func TestFindNearestRankingNonDecreasing(t *testing.T) {
	ix := newTestIndex(scenarioRecords())

	results, err := ix.FindNearest(40, 40, 3)
	require.NoError(t, err)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i].DistanceMeters, results[i-1].DistanceMeters)
	}
}

func TestFindNearestBounding(t *testing.T) {
	ix := newTestIndex(scenarioRecords())

	t.Run("LimitAboveDatasetSize", func(t *testing.T) {
		results, err := ix.FindNearest(1, 1, 10)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("NonPositiveLimitDefaultsToOne", func(t *testing.T) {
		for _, limit := range []int{0, -5} {
			results, err := ix.FindNearest(1, 1, limit)
			require.NoError(t, err)
			assert.Len(t, results, 1)
		}
	})

	t.Run("HardCapAtMaxLimit", func(t *testing.T) {
		records := make([]models.PointRecord, 80)
		for i := range records {
			records[i] = record(fmt.Sprintf("%d", i), "pt", float64(i%60), float64(i))
		}
		big := newTestIndex(records)

		results, err := big.FindNearest(0, 0, 500)
		require.NoError(t, err)
		assert.Len(t, results, MaxLimit)
	})
}

func TestFindNearestNormalization(t *testing.T) {
	ix := newTestIndex(scenarioRecords())

	wrapped, err := ix.FindNearest(95, 190, 1)
	require.NoError(t, err)
	require.Len(t, wrapped, 1)

	direct, err := ix.FindNearest(90, -170, 1)
	require.NoError(t, err)
	assert.Equal(t, ids(direct), ids(wrapped))
	assert.Equal(t, direct[0].DistanceMeters, wrapped[0].DistanceMeters)
}

func TestDegradedFallbackEquivalence(t *testing.T) {
	records := []models.PointRecord{
		record("1", "Alpha", 1.0, 1.0),
		record("2", "Beta", 1.05, 1.05),
		record("3", "Gamma", -9.5, 121.0),
		record("4", "Delta", 52.52, 13.405),
		record("5", "Epsilon", -33.9, 18.4),
		record("6", "Zeta", 1.0, 179.0),
	}

	tree := newTestIndex(records)
	degraded := newTestIndex(records)
	degraded.newTree = func([]models.PointRecord) (*rtreego.Rtree, error) {
		return nil, errors.New("forced construction failure")
	}

	queries := [][2]float64{{1, 1}, {0, 0}, {50, 10}, {-30, 20}, {1, -179.5}}
	for _, q := range queries {
		fromTree, err := tree.FindNearest(q[0], q[1], 4)
		require.NoError(t, err)
		fromScan, err := degraded.FindNearest(q[0], q[1], 4)
		require.NoError(t, err)

		assert.Equal(t, ids(fromTree), ids(fromScan), "query %v", q)
		for i := range fromTree {
			assert.Equal(t, fromTree[i].DistanceMeters, fromScan[i].DistanceMeters)
		}
	}

	require.True(t, tree.Stats().UsingTreeIndex)
	require.False(t, degraded.Stats().UsingTreeIndex)
}

func TestEmptyDataset(t *testing.T) {
	ix := newTestIndex(nil)

	results, err := ix.FindNearest(1, 1, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	stats := ix.Stats()
	require.NotNil(t, stats)
	assert.Equal(t, 0, stats.TotalRowsIndexed)
}

func TestStatsNilBeforeBuild(t *testing.T) {
	ix := newTestIndex(scenarioRecords())
	assert.Nil(t, ix.Stats())
}

func TestLoadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(path, []byte(`id,name,latitude,longitude
1,Alpha,1.0,1.0
2,Beta,1.05,1.05
3,Bad,abc,9
`), 0o644))

	ix := New(Options{OverridePath: path}, discardLogger())
	results, err := ix.FindNearest(1, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(results))

	stats := ix.Stats()
	require.NotNil(t, stats)
	assert.Equal(t, path, stats.SourcePath)
	assert.Equal(t, 3, stats.TotalRowsSeen)
	assert.Equal(t, 2, stats.TotalRowsIndexed)
	assert.Equal(t, 1, stats.TotalRowsSkipped)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 1, ClampLimit(0))
	assert.Equal(t, 1, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxLimit, ClampLimit(51))
}
