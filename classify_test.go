package orthoveg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComparator(t *testing.T) {
	for _, s := range []string{">", "<", ">=", "<=", " >= "} {
		c, err := ParseComparator(s)
		require.NoError(t, err)
		assert.True(t, c.Valid())
	}
	_, err := ParseComparator("==")
	assert.ErrorIs(t, err, ErrInvalidComparator)

	assert.True(t, OpGT.Apply(0.5, 0.4))
	assert.False(t, OpGT.Apply(0.4, 0.4))
	assert.True(t, OpGE.Apply(0.4, 0.4))
	assert.True(t, OpLT.Apply(0.3, 0.4))
	assert.False(t, OpLT.Apply(0.4, 0.4))
	assert.True(t, OpLE.Apply(0.4, 0.4))
	assert.False(t, Comparator("!").Apply(1, 0))
	assert.Equal(t, "NDVI > 0.4", ThresholdCondition{IdxNDVI, OpGT, 0.4}.String())
}

// 左半部分高植被，右半部分低植被
func writeHalfIndex(t *testing.T, path string, w, h int, left, right float32) string {
	data := make([]float32, w*h)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			if c < w/2 {
				data[r*w+c] = left
			} else {
				data[r*w+c] = right
			}
		}
	}
	return writeTif(t, path, w, h, godal.Float32, testGT, 0, data)
}

func TestClassifyZone(t *testing.T) {
	g := newTestToolbox(t)
	dir := t.TempDir()
	const w, h = 40, 20
	paths := IndexPaths(dir)
	writeHalfIndex(t, paths[IdxNDVI], w, h, 0.7, 0.1)
	writeHalfIndex(t, paths[IdxSAVI], w, h, 0.5, 0.5)
	outDir := filepath.Join(dir, THEMATIC_DIR)
	ctx := context.Background()

	veg := Zone{Name: "vegetation", Conditions: []ThresholdCondition{
		{IdxNDVI, OpGT, 0.4}, {IdxSAVI, OpGT, 0.3},
	}}
	out, err := g.ClassifyZone(ctx, veg, paths, outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "vegetation_map.tif"), out)
	data, _, _ := readBand[uint8](t, out, 0)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			want := uint8(0)
			if c < w/2 {
				want = 255
			}
			if data[r*w+c] != want {
				t.Fatalf("pixel (%d,%d) = %d, want %d", r, c, data[r*w+c], want)
			}
		}
	}

	// EVI缺失，条件被忽略，结果与仅NDVI条件一致
	withMissing := Zone{Name: "with_missing", Conditions: []ThresholdCondition{
		{IdxNDVI, OpGT, 0.4}, {IdxEVI, OpGT, 0.9},
	}}
	out, err = g.ClassifyZone(ctx, withMissing, paths, outDir)
	require.NoError(t, err)
	missing, _, _ := readBand[uint8](t, out, 0)
	assert.Equal(t, data, missing)

	// 单个条件为假则整体为0
	none := Zone{Name: "none", Conditions: []ThresholdCondition{
		{IdxNDVI, OpGT, 0.4}, {IdxSAVI, OpLT, 0.3},
	}}
	out, err = g.ClassifyZone(ctx, none, paths, outDir)
	require.NoError(t, err)
	zero, _, _ := readBand[uint8](t, out, 0)
	assert.Equal(t, make([]uint8, w*h), zero)
}

func TestClassifyZoneSkipped(t *testing.T) {
	g := newTestToolbox(t)
	dir := t.TempDir()
	paths := IndexPaths(dir)
	outDir := filepath.Join(dir, THEMATIC_DIR)
	zone := Zone{Name: "ghost", Conditions: []ThresholdCondition{{IdxBSI, OpGT, 0.1}, {"FOO", OpLT, 1}}}
	out, err := g.ClassifyZone(context.Background(), zone, paths, outDir)
	require.ErrorIs(t, err, ErrZoneSkipped)
	assert.Empty(t, out)
	_, statErr := os.Stat(filepath.Join(outDir, "ghost_map.tif"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestClassifyZoneMisaligned(t *testing.T) {
	g := newTestToolbox(t)
	dir := t.TempDir()
	paths := IndexPaths(dir)
	writeHalfIndex(t, paths[IdxNDVI], 32, 16, 0.7, 0.1)
	writeHalfIndex(t, paths[IdxSAVI], 16, 16, 0.5, 0.5)
	zone := Zone{Name: "veg", Conditions: []ThresholdCondition{{IdxNDVI, OpGT, 0.4}, {IdxSAVI, OpGT, 0.3}}}
	_, err := g.ClassifyZone(context.Background(), zone, paths, dir)
	assert.ErrorIs(t, err, ErrMisalignedRasters)
}

func TestClassifyZones(t *testing.T) {
	g := newTestToolbox(t)
	dir := t.TempDir()
	paths := IndexPaths(dir)
	writeHalfIndex(t, paths[IdxNDVI], 32, 16, 0.7, 0.1)
	zones := []Zone{
		{Name: "veg", Conditions: []ThresholdCondition{{IdxNDVI, OpGT, 0.4}}},
		{Name: "bare", Conditions: []ThresholdCondition{{IdxNDVI, OpLT, 0.2}}},
		{Name: "water", Conditions: []ThresholdCondition{{IdxRATIO, OpLT, 0.3}}},
	}
	maps, err := g.ClassifyZones(context.Background(), zones, paths, filepath.Join(dir, THEMATIC_DIR))
	require.NoError(t, err)
	assert.Len(t, maps, 2)
	assert.Contains(t, maps, "veg")
	assert.Contains(t, maps, "bare")
	assert.NotContains(t, maps, "water")
}
