package orthoveg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/wgdzlh/orthoveg/log"
	"github.com/wgdzlh/orthoveg/utils"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

var statsPercentiles = [...]float64{1, 5, 25, 75, 95, 99}

// 流式矩统计（Welford）
type moments struct {
	n        int64
	min, max float64
	mean, m2 float64
}

func newMoments() moments {
	return moments{min: math.Inf(1), max: math.Inf(-1)}
}

func (m *moments) add(v float64) {
	m.n++
	d := v - m.mean
	m.mean += d / float64(m.n)
	m.m2 += d * (v - m.mean)
	m.min = math.Min(m.min, v)
	m.max = math.Max(m.max, v)
}

// 固定分箱直方图，记录每箱像元数及箱内实际的最小、最大值
type histogram struct {
	lo, width  float64
	bins       []int64
	bmin, bmax []float64
}

func newHistogram(lo, hi float64, n int) *histogram {
	h := &histogram{lo: lo, bins: make([]int64, n), bmin: make([]float64, n), bmax: make([]float64, n)}
	if hi > lo {
		h.width = (hi - lo) / float64(n)
	}
	for i := range h.bmin {
		h.bmin[i], h.bmax[i] = math.Inf(1), math.Inf(-1)
	}
	return h
}

func (h *histogram) index(v float64) int {
	i := 0
	if h.width > 0 {
		i = int((v - h.lo) / h.width)
	}
	return min(max(i, 0), len(h.bins)-1)
}

func (h *histogram) add(v float64) {
	i := h.index(v)
	h.bins[i]++
	h.bmin[i] = math.Min(h.bmin[i], v)
	h.bmax[i] = math.Max(h.bmax[i], v)
}

// 第j个（从0起）有序值所在的箱及其在箱内的序号
func (h *histogram) locate(j int64) (bin int, off int64) {
	var cum int64
	for b, c := range h.bins {
		if j < cum+c {
			return b, j - cum
		}
		cum += c
	}
	last := len(h.bins) - 1
	return last, h.bins[last] - 1
}

type rankStep struct {
	h   *histogram
	bin int
}

// 单个有序值的求解状态：path为逐层所在的箱，j、n为其在当前子集中的序号与子集大小
type rankQuery struct {
	rank    int64
	j, n    int64
	lo, hi  float64
	path    []rankStep
	h       *histogram
	vals    []float64
	collect bool
	v       float64
	done    bool
}

func (q *rankQuery) contains(v float64) bool {
	for _, s := range q.path {
		if s.h.index(v) != s.bin {
			return false
		}
	}
	return true
}

// 精确求第j个有序值：逐遍细分目标所在的箱，子集不超过limit时收集原值排序
func selectRanks(walk func(fn func(v float64)) error, m moments, ranks []int64, limit int64) (vals map[int64]float64, err error) {
	vals = make(map[int64]float64, len(ranks))
	var pending []*rankQuery
	for _, j := range ranks {
		switch {
		case j <= 0:
			vals[j] = m.min
		case j >= m.n-1 || m.min == m.max:
			vals[j] = m.max
		default:
			pending = append(pending, &rankQuery{rank: j, j: j, n: m.n, lo: m.min, hi: m.max})
		}
	}
	for len(pending) > 0 {
		for _, q := range pending {
			if q.collect || q.n <= limit {
				q.vals = make([]float64, 0, q.n)
			} else {
				q.h = newHistogram(q.lo, q.hi, HIST_BINS)
			}
		}
		err = walk(func(v float64) {
			for _, q := range pending {
				if !q.contains(v) {
					continue
				}
				if q.h != nil {
					q.h.add(v)
				} else {
					q.vals = append(q.vals, v)
				}
			}
		})
		if err != nil {
			return
		}
		next := pending[:0]
		for _, q := range pending {
			if q.h == nil {
				slices.Sort(q.vals)
				q.v, q.done = q.vals[q.j], true
			} else {
				b, off := q.h.locate(q.j)
				c := q.h.bins[b]
				q.collect = c == q.n // 无法再细分
				q.path = append(q.path, rankStep{h: q.h, bin: b})
				q.j, q.n, q.lo, q.hi = off, c, q.h.bmin[b], q.h.bmax[b]
				q.h = nil
				if q.lo == q.hi {
					q.v, q.done = q.lo, true
				}
			}
			if q.done {
				vals[q.rank] = q.v
				continue
			}
			next = append(next, q)
		}
		pending = next
	}
	return
}

// 线性插值分位数所需的有序值序号，rank=p/100*(n-1)
func percentileRanks(n int64, ps []float64) (ranks []int64) {
	for _, p := range ps {
		rank := p / 100 * float64(n-1)
		lo := int64(math.Floor(rank))
		ranks = append(ranks, lo)
		if float64(lo) != rank {
			ranks = append(ranks, lo+1)
		}
	}
	slices.Sort(ranks)
	return slices.Compact(ranks)
}

func percentileOf(p float64, n int64, vals map[int64]float64) float64 {
	rank := p / 100 * float64(n-1)
	lo := math.Floor(rank)
	vLo := vals[int64(lo)]
	if rank == lo {
		return vLo
	}
	return vLo + (rank-lo)*(vals[int64(lo)+1]-vLo)
}

// 遍历掩膜内的有效像元（掩膜值>0且非NaN）
func (g *GdalToolbox) walkValid(ctx context.Context, band godal.Band, l Layout, fn func(v float64)) error {
	var (
		mask = band.MaskBand()
		vals = make([]float64, l.MaxWindowSize())
		mbuf = make([]uint8, l.MaxWindowSize())
	)
	return l.walk(ctx, func(w Window) error {
		tile, e := readTile(band, w, vals)
		if e != nil {
			return e
		}
		mt, e := readTile(mask, w, mbuf)
		if e != nil {
			return e
		}
		for i, v := range tile {
			if mt[i] > 0 && !math.IsNaN(v) {
				fn(v)
			}
		}
		return nil
	})
}

// 计算指数影像掩膜内像元的描述统计
func (g *GdalToolbox) IndexStatistics(ctx context.Context, path string) (st IndexStats, err error) {
	ds, err := g.openRaster(path)
	if err != nil {
		return
	}
	defer ds.Close()
	bands := ds.Bands()
	if len(bands) == 0 {
		err = fmt.Errorf("%w: %s", ErrEmptyTif, path)
		return
	}
	band := bands[0]
	l := layoutOf(ds)

	m := newMoments()
	if err = g.walkValid(ctx, band, l, m.add); err != nil {
		return
	}
	if m.n == 0 {
		log.Warn(g.logTag+"index raster has no valid pixel", zap.String("tif", path))
		err = fmt.Errorf("%w: %s", ErrNoValidPixels, path)
		return
	}
	walk := func(fn func(v float64)) error { return g.walkValid(ctx, band, l, fn) }
	vals, err := selectRanks(walk, m, percentileRanks(m.n, statsPercentiles[:]), EXACT_RANK_LIMIT)
	if err != nil {
		return
	}
	ps := make([]float64, len(statsPercentiles))
	for i, p := range statsPercentiles {
		ps[i] = percentileOf(p, m.n, vals)
	}
	st = IndexStats{
		Count: m.n,
		Min:   m.min,
		Max:   m.max,
		Mean:  m.mean,
		Std:   math.Sqrt(m.m2 / float64(m.n)),
		P1:    ps[0],
		P5:    ps[1],
		P25:   ps[2],
		P75:   ps[3],
		P95:   ps[4],
		P99:   ps[5],
	}
	log.Info(g.logTag+"index statistics", zap.String("tif", path), zap.Int64("count", st.Count),
		zap.Float64("min", st.Min), zap.Float64("max", st.Max), zap.Float64("mean", st.Mean), zap.Float64("std", st.Std))
	return
}

// 统计全部指数影像，缺失的影像跳过
func (g *GdalToolbox) AllIndexStatistics(ctx context.Context, paths map[Index]string) (stats map[Index]IndexStats, err error) {
	stats = make(map[Index]IndexStats, len(paths))
	results := make([]IndexStats, len(Indices))
	found := make([]bool, len(Indices))
	eg, ctx := g.group(ctx)
	for i, idx := range Indices {
		path, ok := paths[idx]
		if !ok {
			continue
		}
		if !utils.FileExists(path) {
			log.Warn(g.logTag+"index raster missing, skip", zap.String("index", string(idx)), zap.String("tif", path))
			continue
		}
		eg.Go(func() error {
			st, e := g.IndexStatistics(ctx, path)
			if errors.Is(e, ErrNoValidPixels) {
				return nil
			}
			if e != nil {
				return e
			}
			results[i], found[i] = st, true
			return nil
		})
	}
	if err = eg.Wait(); err != nil {
		return
	}
	for i, idx := range Indices {
		if found[i] {
			stats[idx] = results[i]
		}
	}
	return
}
