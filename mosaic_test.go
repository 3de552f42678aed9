package orthoveg

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeBand(t *testing.T) {
	g := newTestToolbox(t)
	dir := t.TempDir()
	const w, h = 32, 16
	a := writeTif(t, filepath.Join(dir, "a_red.tif"), w, h, godal.UInt16, testGT, 0, filled(w*h, uint16(100)))
	// b右移16个像元，与a重叠一半；b的第一行为nodata
	gtB := testGT
	gtB[0] += 16 * testGT[1]
	bData := filled(w*h, uint16(200))
	for c := 0; c < w; c++ {
		bData[c] = 0
	}
	b := writeTif(t, filepath.Join(dir, "b_red.tif"), w, h, godal.UInt16, gtB, 0, bData)

	out := filepath.Join(dir, "merged_red.tif")
	require.NoError(t, g.MergeBand(context.Background(), []string{a, b}, out))
	data, mw, mh := readBand[uint16](t, out, 0)
	require.Equal(t, 48, mw)
	require.Equal(t, 16, mh)
	assert.Equal(t, uint16(100), data[0], "only a covers the left part")
	assert.Equal(t, uint16(100), data[20], "nodata row of b keeps a")
	assert.Equal(t, uint16(200), data[mw+20], "later input wins on overlap")
	assert.Equal(t, uint16(200), data[mw+40])
	assert.Equal(t, uint16(0), data[40], "uncovered stays nodata")

	ds, err := godal.Open(out)
	require.NoError(t, err)
	defer ds.Close()
	nd, ok := ds.Bands()[0].NoData()
	assert.True(t, ok)
	assert.Zero(t, nd)
}

func TestMergeBandNoInputs(t *testing.T) {
	g := newTestToolbox(t)
	err := g.MergeBand(context.Background(), nil, filepath.Join(t.TempDir(), "merged_nir.tif"))
	assert.ErrorIs(t, err, ErrNoInputs)
}

func TestMergeBands(t *testing.T) {
	g := newTestToolbox(t)
	dir := t.TempDir()
	n := 16 * 16
	byBand := map[Band][]string{}
	for i, b := range InputBands {
		p := writeTif(t, filepath.Join(dir, "s_"+string(b)+".tif"), 16, 16, godal.UInt16, testGT, 0, filled(n, uint16(10*(i+1))))
		byBand[b] = []string{p}
	}
	merged, err := g.MergeBands(context.Background(), byBand, dir)
	require.NoError(t, err)
	require.Len(t, merged, len(InputBands))
	for i, b := range InputBands {
		assert.Equal(t, filepath.Join(dir, "merged_"+string(b)+".tif"), merged[b])
		data, _, _ := readBand[uint16](t, merged[b], 0)
		assert.Equal(t, uint16(10*(i+1)), data[0])
	}
}
