package orthoveg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/lukeroth/gdal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBoundaryShp(t *testing.T, shp string, srid int, wkt string) string {
	t.Helper()
	ref := gdal.CreateSpatialReference("")
	defer ref.Destroy()
	require.NoError(t, ref.FromEPSG(srid))
	ds, ok := gdal.OGRDriverByName(SHP_DRIVER_NAME).Create(shp, nil)
	require.True(t, ok)
	defer ds.Destroy()
	layer := ds.CreateLayer("boundary", ref, gdal.GT_Polygon, nil)
	feature := layer.Definition().Create()
	defer feature.Destroy()
	geo, err := gdal.CreateFromWKT(wkt, ref)
	require.NoError(t, err)
	require.NoError(t, feature.SetGeometryDirectly(geo))
	require.NoError(t, layer.Create(feature))
	return shp
}

const leftHalfWkt = "POLYGON((700000 6600000,700064 6600000,700064 6599872,700000 6599872,700000 6600000))"

func TestClipRaster(t *testing.T) {
	g := newTestToolbox(t)
	dir := t.TempDir()
	n := 64 * 64
	src := writeScene(t, dir, "tile.tif", 64, 64, filled(n, uint16(3000)), filled(n, uint16(1000)),
		filled(n, uint16(1500)), filled(n, uint16(800)))
	shp := writeBoundaryShp(t, filepath.Join(dir, "boundary.shp"), 2154, leftHalfWkt)

	out, err := g.ClipFiles(context.Background(), []string{src, filepath.Join(dir, "nope.tif")}, shp, filepath.Join(dir, WORK_DIR))
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, WORK_DIR, "tile_cropped.tif")}, out)

	ds, err := godal.Open(out[0])
	require.NoError(t, err)
	defer ds.Close()
	st := ds.Structure()
	assert.Equal(t, 4, st.NBands)
	assert.Equal(t, 32, st.SizeX)
	assert.Equal(t, 64, st.SizeY)
	data, _, _ := readBand[uint16](t, out[0], 0)
	assert.Equal(t, uint16(3000), data[0])

	before, err := os.Stat(out[0])
	require.NoError(t, err)
	again, err := g.ClipFiles(context.Background(), []string{src}, shp, filepath.Join(dir, WORK_DIR))
	require.NoError(t, err)
	assert.Equal(t, out, again)
	after, err := os.Stat(out[0])
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime(), "existing crop is reused")
}

func TestClipRasterCRSMismatch(t *testing.T) {
	g := newTestToolbox(t)
	dir := t.TempDir()
	n := 16 * 16
	src := writeScene(t, dir, "tile.tif", 16, 16, filled(n, uint16(1)), filled(n, uint16(1)),
		filled(n, uint16(1)), filled(n, uint16(1)))
	shp := writeBoundaryShp(t, filepath.Join(dir, "wgs84.shp"), 4326,
		"POLYGON((2 48,3 48,3 49,2 49,2 48))")
	err := g.ClipRaster(context.Background(), src, shp, filepath.Join(dir, "tile_cropped.tif"))
	assert.ErrorIs(t, err, ErrCRSMismatch)
}

func TestClipFilesSameName(t *testing.T) {
	g := newTestToolbox(t)
	dir := t.TempDir()
	n := 64 * 64
	var srcs []string
	for i, sub := range []string{"a", "b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), os.ModePerm))
		v := uint16(1000 * (i + 1))
		srcs = append(srcs, writeScene(t, filepath.Join(dir, sub), "tile.tif", 64, 64,
			filled(n, v), filled(n, v), filled(n, v), filled(n, v)))
	}
	shp := writeBoundaryShp(t, filepath.Join(dir, "boundary.shp"), 2154, leftHalfWkt)
	work := filepath.Join(dir, WORK_DIR)

	out, err := g.ClipFiles(context.Background(), srcs, shp, work)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(work, "tile_cropped.tif"), filepath.Join(work, "tile_2_cropped.tif")}, out)
	first, _, _ := readBand[uint16](t, out[0], 0)
	second, _, _ := readBand[uint16](t, out[1], 0)
	assert.Equal(t, uint16(1000), first[0])
	assert.Equal(t, uint16(2000), second[0])
}
