package orthoveg

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/wgdzlh/orthoveg/log"
	"github.com/wgdzlh/orthoveg/utils"

	"go.uber.org/zap"
)

// 波段值域，空值域为{+Inf,-Inf}
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func EmptyRange() Range {
	return Range{Min: math.Inf(1), Max: math.Inf(-1)}
}

func (r Range) Valid() bool {
	return r.Min <= r.Max
}

func (r *Range) add(v float64) {
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
}

func (r Range) Merge(o Range) Range {
	return Range{Min: math.Min(r.Min, o.Min), Max: math.Max(r.Max, o.Max)}
}

// 所有输入影像上各逻辑波段的全局值域
type BandStats map[Band]Range

func NewBandStats() BandStats {
	s := make(BandStats, len(InputBands))
	for _, b := range InputBands {
		s[b] = EmptyRange()
	}
	return s
}

func (s BandStats) Get(b Band) Range {
	if r, ok := s[b]; ok {
		return r
	}
	return EmptyRange()
}

// 合并另一份统计（满足交换律与结合律）
func (s BandStats) Merge(o BandStats) {
	for b, r := range o {
		s[b] = s.Get(b).Merge(r)
	}
}

func validPixel(v float64) bool {
	return v > 0 && v < SATURATION_CEILING
}

// 统计所有影像各波段有效像元（0<v<饱和值）的全局最小最大值
func (g *GdalToolbox) AccumulateStats(ctx context.Context, files []string) (stats BandStats, err error) {
	stats = NewBandStats()
	var mu sync.Mutex
	eg, ctx := g.group(ctx)
	for _, f := range files {
		if !utils.FileExists(f) {
			log.Warn(g.logTag+"skip missing tif", zap.String("tif", f))
			continue
		}
		eg.Go(func() error {
			part, e := g.fileStats(ctx, f)
			if e != nil {
				return e
			}
			mu.Lock()
			stats.Merge(part)
			mu.Unlock()
			return nil
		})
	}
	if err = eg.Wait(); err != nil {
		return
	}
	for _, b := range InputBands {
		r := stats[b]
		log.Info(g.logTag+"band global range", zap.String("band", string(b)), zap.Float64("min", r.Min), zap.Float64("max", r.Max))
	}
	return
}

func (g *GdalToolbox) fileStats(ctx context.Context, file string) (stats BandStats, err error) {
	ds, err := g.openRaster(file)
	if err != nil {
		return
	}
	defer ds.Close()
	bands := ds.Bands()
	if bc := len(bands); bc < len(InputBands) {
		log.Error(g.logTag+"tif bands not enough", zap.String("tif", file), zap.Int("bands", bc))
		err = fmt.Errorf("%w: %s has %d bands", ErrWrongTif, file, bc)
		return
	}
	stats = NewBandStats()
	l := layoutOf(ds)
	buf := make([]float64, l.MaxWindowSize())
	log.Info(g.logTag+"scan tif", zap.String("tif", file), zap.Int("windows", l.Count()))
	err = l.walk(ctx, func(w Window) error {
		for i, b := range InputBands {
			tile, e := readTile(bands[i], w, buf)
			if e != nil {
				return e
			}
			r := stats[b]
			for _, v := range tile {
				if validPixel(v) {
					r.add(v)
				}
			}
			stats[b] = r
		}
		return nil
	})
	return
}
