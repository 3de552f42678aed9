package orthoveg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wgdzlh/orthoveg/log"
	"github.com/wgdzlh/orthoveg/utils"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// 将像元值按全局值域线性拉伸至[0,NORM_RANGE]，无效像元及退化值域输出0
func normalizeValue(v float64, r Range) uint16 {
	if !validPixel(v) || r.Max <= r.Min {
		return 0
	}
	n := (v - r.Min) / (r.Max - r.Min) * NORM_RANGE
	if n <= 0 {
		return 0
	}
	if n >= NORM_RANGE {
		return NORM_RANGE
	}
	return uint16(n)
}

func bandIndex(b Band) int {
	for i, v := range InputBands {
		if v == b {
			return i
		}
	}
	return -1
}

// 归一化单张影像的一个波段，输出单波段UInt16影像（nodata=0）
func (g *GdalToolbox) NormalizeBand(ctx context.Context, src string, band Band, r Range, dst string) (err error) {
	idx := bandIndex(band)
	if idx < 0 {
		return fmt.Errorf("%w: unknown band %q", ErrWrongTif, band)
	}
	sds, err := g.openRaster(src)
	if err != nil {
		return
	}
	defer sds.Close()
	bands := sds.Bands()
	if len(bands) <= idx {
		log.Error(g.logTag+"tif bands not enough", zap.String("tif", src), zap.Int("bands", len(bands)))
		return fmt.Errorf("%w: %s", ErrWrongTif, src)
	}
	l := layoutOf(sds)
	if g.complete(dst, l.Width, l.Height, 1) {
		log.Info(g.logTag+"normalized band exists, skip", zap.String("tif", dst))
		return
	}
	if r.Max <= r.Min {
		log.Warn(g.logTag+"degenerate band range, output all zero", zap.String("band", string(band)),
			zap.Float64("min", r.Min), zap.Float64("max", r.Max))
	}
	out, err := g.newPending(dst, sds, 1, godal.UInt16, true)
	if err != nil {
		return
	}
	var (
		in   = make([]float64, l.MaxWindowSize())
		norm = make([]uint16, l.MaxWindowSize())
		ob   = out.ds.Bands()[0]
	)
	err = l.walk(ctx, func(w Window) error {
		tile, e := readTile(bands[idx], w, in)
		if e != nil {
			return e
		}
		o := norm[:len(tile)]
		for i, v := range tile {
			o[i] = normalizeValue(v, r)
		}
		return writeTile(ob, w, o)
	})
	if err = g.commit(err, out); err == nil {
		log.Info(g.logTag+"band normalized", zap.String("src", src), zap.String("band", string(band)), zap.String("dst", dst))
	}
	return
}

// 归一化所有影像的全部波段，输出位于workDir，文件名为<stem>_<band>.tif，重名输入的stem加序号区分
func (g *GdalToolbox) NormalizeFiles(ctx context.Context, files []string, stats BandStats, workDir string) (out map[Band][]string, err error) {
	if err = os.MkdirAll(workDir, os.ModePerm); err != nil {
		return
	}
	var (
		mu      sync.Mutex
		results = make(map[Band][]string, len(InputBands))
		done    = make([][len(InputBands)]bool, len(files))
	)
	stems := utils.UniqueStems(files)
	eg, ctx := g.group(ctx)
	for fi, f := range files {
		if !utils.FileExists(f) {
			log.Warn(g.logTag+"skip missing tif", zap.String("tif", f))
			continue
		}
		stem := stems[fi]
		for bi, b := range InputBands {
			eg.Go(func() error {
				dst := filepath.Join(workDir, fmt.Sprintf(NORM_BAND_FILE, stem, b))
				if e := g.NormalizeBand(ctx, f, b, stats.Get(b), dst); e != nil {
					return e
				}
				mu.Lock()
				done[fi][bi] = true
				mu.Unlock()
				return nil
			})
		}
	}
	err = eg.Wait()
	// 保持输入顺序，镶嵌时靠后的影像优先
	for fi, stem := range stems {
		for bi, b := range InputBands {
			if done[fi][bi] {
				results[b] = append(results[b], filepath.Join(workDir, fmt.Sprintf(NORM_BAND_FILE, stem, b)))
			}
		}
	}
	out = results
	return
}
