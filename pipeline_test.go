package orthoveg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scenePatch struct {
	nir, red, green, blue uint16
}

// 500x500四象限场景：密植被、裸土、水体、稀疏植被
func writeFourZoneScene(t *testing.T, dir string) string {
	t.Helper()
	const size = 500
	patches := [4]scenePatch{
		{nir: 30000, red: 10000, green: 12000, blue: 8000}, // dense vegetation, top-left
		{nir: 18000, red: 20000, green: 19000, blue: 17000}, // bare soil, top-right
		{nir: 4000, red: 6000, green: 7000, blue: 9000},     // water, bottom-left
		{nir: 22000, red: 14000, green: 15000, blue: 11000}, // sparse vegetation, bottom-right
	}
	n := size * size
	nir, red, green, blue := make([]uint16, n), make([]uint16, n), make([]uint16, n), make([]uint16, n)
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			q := 0
			if c >= size/2 {
				q++
			}
			if r >= size/2 {
				q += 2
			}
			p := patches[q]
			i := r*size + c
			nir[i], red[i], green[i], blue[i] = p.nir, p.red, p.green, p.blue
		}
	}
	return writeScene(t, dir, "demo_scene.tif", size, size, nir, red, green, blue)
}

func TestRunFourZoneScene(t *testing.T) {
	g := newTestToolbox(t)
	dir := t.TempDir()
	scene := writeFourZoneScene(t, dir)
	cfg := RunConfig{
		Inputs:    []string{scene},
		OutputDir: filepath.Join(dir, "out"),
		Workers:   1,
		Zones: []Zone{
			{Name: "vegetation", Conditions: []ThresholdCondition{{IdxNDVI, OpGT, 0.4}, {IdxSAVI, OpGT, 0.3}}},
			{Name: "phantom", Conditions: []ThresholdCondition{{"NDWI", OpGT, 0.1}}},
		},
	}
	res, err := g.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, Range{Min: 4000, Max: 30000}, res.BandStats[BandNIR])
	assert.Equal(t, Range{Min: 6000, Max: 20000}, res.BandStats[BandRed])
	require.Len(t, res.IndexPaths, len(Indices))
	_, err = os.Stat(filepath.Join(cfg.IndicesDir(), COMPOSITE_FILE))
	require.NoError(t, err)

	require.Len(t, res.ZoneMaps, 1, "zone without usable condition is omitted")
	m := res.ZoneMaps["vegetation"]
	require.Equal(t, filepath.Join(cfg.ThematicDir(), "vegetation_map.tif"), m)
	data, w, _ := readBand[uint8](t, m, 0)
	assert.Equal(t, uint8(255), data[10*w+10], "dense vegetation")
	assert.Equal(t, uint8(255), data[249*w+249], "dense vegetation corner")
	assert.Equal(t, uint8(0), data[10*w+400], "bare soil")
	assert.Equal(t, uint8(0), data[400*w+10], "water")
	assert.Equal(t, uint8(0), data[400*w+400], "sparse vegetation")

	st := res.ZoneStats["vegetation"]
	assert.Equal(t, int64(250*250), st.DetectedPixels)
	assert.Equal(t, int64(500*500), st.TotalPixels)
	assert.InDelta(t, 25.0, st.Percentage, 1e-9)
	assert.InDelta(t, 25.0, st.AreaHa, 1e-9)

	report, err := os.ReadFile(res.Report)
	require.NoError(t, err)
	assert.Contains(t, string(report), "VEGETATION:\n  Condition 1: NDVI > 0.4\n  Condition 2: SAVI > 0.3\n")
	assert.Contains(t, string(report), "Detected pixels: 62,500 / 250,000")
	assert.Contains(t, string(report), "25.00 ha (250,000 m²)")

	// 再次运行复用已有的中间结果与指数
	again, err := g.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, res.ZoneStats, again.ZoneStats)
	assert.NotEqual(t, res.RunID, again.RunID)
}

func TestRunNoInputs(t *testing.T) {
	g := newTestToolbox(t)
	_, err := g.Run(context.Background(), RunConfig{OutputDir: t.TempDir()})
	assert.ErrorIs(t, err, ErrNoInputs)
}

func TestLoadRunConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "run.yaml")
	yml := strings.Join([]string{
		"inputs: [a.tif, b.tif]",
		"output_dir: /data/out",
		"workers: 3",
		"profiles: [water]",
		"zones:",
		"  - name: forest",
		"    conditions:",
		"      - {index: NDVI, operator: '>', threshold: 0.5}",
		"publish:",
		"  endpoint: localhost:9000",
		"  bucket: results",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(p, []byte(yml), 0o644))
	t.Setenv(ENV_S3_ACCESS_KEY, "ak")
	t.Setenv(ENV_S3_SECRET_KEY, "sk")
	t.Setenv(ENV_S3_BUCKET, "override")

	cfg, err := LoadRunConfig(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.tif", "b.tif"}, cfg.Inputs)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "ak", cfg.Publish.AccessKey)
	assert.Equal(t, "sk", cfg.Publish.SecretKey)
	assert.Equal(t, "override", cfg.Publish.Bucket)
	assert.Equal(t, "localhost:9000", cfg.Publish.Endpoint)
	assert.True(t, cfg.Publish.Enabled())
	assert.Equal(t, filepath.Join("/data/out", WORK_DIR), cfg.WorkDir())

	zones, warnings, err := cfg.ResolveZones()
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, zones, 2)
	assert.Equal(t, "forest", zones[0].Name)
	assert.Equal(t, "water", zones[1].Name)
}

func TestContextWithWorkers(t *testing.T) {
	g := newTestToolbox(t)
	ctx := context.Background()
	assert.Equal(t, 2, g.limit(ctx))
	assert.Equal(t, 2, g.limit(ContextWithWorkers(ctx, 0)))
	assert.Equal(t, 7, g.limit(ContextWithWorkers(ctx, 7)))
}

func TestArtifactsOrder(t *testing.T) {
	dir := t.TempDir()
	res := RunResult{
		IndexPaths: IndexPaths(dir),
		ZoneMaps: map[string]string{
			"water":        "thematic_maps/water_map.tif",
			"dense_forest": "thematic_maps/dense_forest_map.tif",
			"rocky_zone":   "thematic_maps/rocky_zone_map.tif",
		},
		Report: "thematic_analysis_report.txt",
	}
	files := res.artifacts()
	require.Len(t, files, len(Indices)+1+3+1)
	assert.Equal(t, filepath.Join(dir, COMPOSITE_FILE), files[len(Indices)])
	assert.Equal(t, []string{
		"thematic_maps/dense_forest_map.tif",
		"thematic_maps/rocky_zone_map.tif",
		"thematic_maps/water_map.tif",
		"thematic_analysis_report.txt",
	}, files[len(Indices)+1:])
	for i := 0; i < 5; i++ {
		assert.Equal(t, files, res.artifacts())
	}
}
