package orthoveg

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/wgdzlh/orthoveg/log"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// 由[0,1]反射率计算全部指数，顺序同Indices；分母为0时该像元输出0
func ComputeIndices(r, g, b, nir float64) (out [len(Indices)]float64) {
	out[0] = safeDiv(nir-r, nir+r)
	out[1] = safeDiv((1+SAVI_L)*(nir-r), nir+r+SAVI_L)
	out[2] = safeDiv(EVI_G*(nir-r), nir+EVI_C1*r-EVI_C2*b+EVI_L)
	out[3] = math.Cbrt(nir * (1 - r) * (nir - r))
	out[4] = (r + g + b + nir) / 4
	out[5] = safeDiv(nir, r+g+b)
	out[6] = safeDiv((r+g)+(nir+b), (r+g)-(nir+b))
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = 0
		}
	}
	return
}

// 指数影像的输出路径
func IndexPaths(outDir string) map[Index]string {
	paths := make(map[Index]string, len(Indices))
	for _, idx := range Indices {
		paths[idx] = filepath.Join(outDir, fmt.Sprintf(INDEX_FILE, idx))
	}
	return paths
}

// 由四个归一化镶嵌波段计算全部指数影像及7波段合成影像
func (g *GdalToolbox) ComputeIndexRasters(ctx context.Context, merged map[Band]string, outDir string) (paths map[Index]string, err error) {
	if err = os.MkdirAll(outDir, os.ModePerm); err != nil {
		return
	}
	order := []Band{BandRed, BandGreen, BandBlue, BandNIR}
	names := make([]string, len(order))
	dss := make([]*godal.Dataset, 0, len(order))
	defer func() {
		for _, ds := range dss {
			ds.Close()
		}
	}()
	for i, b := range order {
		names[i] = merged[b]
		if names[i] == "" {
			return nil, fmt.Errorf("%w: band %s", ErrNoInputs, b)
		}
		ds, e := g.openRaster(names[i])
		if e != nil {
			return nil, e
		}
		dss = append(dss, ds)
	}
	if err = g.checkAligned(names, dss); err != nil {
		return
	}
	red := dss[0]
	l := layoutOf(red)
	paths = IndexPaths(outDir)
	composite := filepath.Join(outDir, COMPOSITE_FILE)
	if g.indicesComplete(paths, composite, l) {
		log.Info(g.logTag+"index rasters exist, skip", zap.String("dir", outDir))
		return
	}

	outs := make([]pendingTif, 0, len(Indices)+1)
	for _, idx := range Indices {
		var p pendingTif
		if p, err = g.newPending(paths[idx], red, 1, godal.Float32, true); err != nil {
			g.commit(err, outs...)
			return nil, err
		}
		if err = p.ds.Bands()[0].SetDescription(string(idx)); err != nil {
			g.commit(err, append(outs, p)...)
			return nil, err
		}
		outs = append(outs, p)
	}
	comp, err := g.newPending(composite, red, len(Indices), godal.Float32, true)
	if err != nil {
		g.commit(err, outs...)
		return nil, err
	}
	outs = append(outs, comp)
	compBands := comp.ds.Bands()
	for i, idx := range Indices {
		if err = compBands[i].SetDescription(string(idx)); err != nil {
			g.commit(err, outs...)
			return nil, err
		}
	}

	size := l.MaxWindowSize()
	in := make([][]uint16, len(order))
	for i := range in {
		in[i] = make([]uint16, size)
	}
	res := make([][]float32, len(Indices))
	idxBands := make([]godal.Band, len(Indices))
	for i := range res {
		res[i] = make([]float32, size)
		idxBands[i] = outs[i].ds.Bands()[0]
	}
	srcBands := make([]godal.Band, len(dss))
	for i, ds := range dss {
		srcBands[i] = ds.Bands()[0]
	}
	tiles := make([][]uint16, len(order))
	log.Info(g.logTag+"compute indices", zap.Int("width", l.Width), zap.Int("height", l.Height), zap.Int("windows", l.Count()))
	err = l.walk(ctx, func(w Window) error {
		for i, b := range srcBands {
			t, e := readTile(b, w, in[i])
			if e != nil {
				return e
			}
			tiles[i] = t
		}
		n := w.Size()
		for p := 0; p < n; p++ {
			vals := ComputeIndices(
				float64(tiles[0][p])/NORM_RANGE,
				float64(tiles[1][p])/NORM_RANGE,
				float64(tiles[2][p])/NORM_RANGE,
				float64(tiles[3][p])/NORM_RANGE,
			)
			for i, v := range vals {
				res[i][p] = float32(v)
			}
		}
		for i := range Indices {
			tile := res[i][:n]
			if e := writeTile(idxBands[i], w, tile); e != nil {
				return e
			}
			if e := writeTile(compBands[i], w, tile); e != nil {
				return e
			}
		}
		return nil
	})
	if err = g.commit(err, outs...); err != nil {
		return nil, err
	}
	log.Info(g.logTag+"index rasters created", zap.String("dir", outDir))
	return
}

func (g *GdalToolbox) indicesComplete(paths map[Index]string, composite string, l Layout) bool {
	if !g.complete(composite, l.Width, l.Height, len(Indices)) {
		return false
	}
	for _, idx := range Indices {
		if !g.complete(paths[idx], l.Width, l.Height, 1) {
			return false
		}
	}
	return true
}
