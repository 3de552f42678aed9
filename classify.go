package orthoveg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wgdzlh/orthoveg/log"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// 比较运算符
type Comparator string

const (
	OpGT Comparator = ">"
	OpLT Comparator = "<"
	OpGE Comparator = ">="
	OpLE Comparator = "<="
)

func ParseComparator(s string) (c Comparator, err error) {
	c = Comparator(strings.TrimSpace(s))
	if !c.Valid() {
		err = fmt.Errorf("%w: %q", ErrInvalidComparator, s)
	}
	return
}

func (c Comparator) Valid() bool {
	switch c {
	case OpGT, OpLT, OpGE, OpLE:
		return true
	}
	return false
}

func (c Comparator) Apply(v, threshold float64) bool {
	switch c {
	case OpGT:
		return v > threshold
	case OpLT:
		return v < threshold
	case OpGE:
		return v >= threshold
	case OpLE:
		return v <= threshold
	}
	return false
}

func (c ThresholdCondition) String() string {
	return fmt.Sprintf("%s %s %g", c.Index, c.Op, c.Threshold)
}

// 可用条件及其指数影像波段
type zoneInput struct {
	cond ThresholdCondition
	slot int
}

// 按区域条件（AND）生成专题图：满足全部可用条件的像元为255，否则为0
// 指数影像缺失的条件会被忽略；无可用条件时返回ErrZoneSkipped且不生成文件
func (g *GdalToolbox) ClassifyZone(ctx context.Context, zone Zone, indexPaths map[Index]string, outDir string) (out string, err error) {
	var (
		slots  = map[Index]int{}
		names  []string
		dss    []*godal.Dataset
		inputs []zoneInput
	)
	defer func() {
		for _, ds := range dss {
			ds.Close()
		}
	}()
	for _, c := range zone.Conditions {
		if !c.Op.Valid() {
			log.Warn(g.logTag+"invalid comparator, drop condition", zap.String("zone", zone.Name), zap.String("op", string(c.Op)))
			continue
		}
		slot, ok := slots[c.Index]
		if !ok {
			path := indexPaths[c.Index]
			if path == "" {
				log.Warn(g.logTag+"index raster not found, drop condition", zap.String("zone", zone.Name), zap.String("index", string(c.Index)))
				continue
			}
			if _, e := os.Stat(path); e != nil {
				log.Warn(g.logTag+"index raster not found, drop condition", zap.String("zone", zone.Name), zap.String("tif", path))
				continue
			}
			ds, e := godal.Open(path, godal.RasterOnly())
			if e != nil {
				log.Warn(g.logTag+"index raster unreadable, drop condition", zap.String("zone", zone.Name), zap.String("tif", path), zap.Error(e))
				continue
			}
			slot = len(dss)
			slots[c.Index] = slot
			names = append(names, path)
			dss = append(dss, ds)
		}
		inputs = append(inputs, zoneInput{cond: c, slot: slot})
	}
	if len(inputs) == 0 {
		log.Warn(g.logTag+"zone has no usable condition, skip", zap.String("zone", zone.Name))
		return "", fmt.Errorf("%w: %s", ErrZoneSkipped, zone.Name)
	}
	if err = g.checkAligned(names, dss); err != nil {
		return
	}
	if err = os.MkdirAll(outDir, os.ModePerm); err != nil {
		return
	}
	ref := dss[0]
	l := layoutOf(ref)
	out = filepath.Join(outDir, fmt.Sprintf(ZONE_MAP_FILE, zone.Name))
	p, err := g.newPending(out, ref, 1, godal.Byte, false)
	if err != nil {
		return "", err
	}
	var (
		size     = l.MaxWindowSize()
		bands    = make([]godal.Band, len(dss))
		bufs     = make([][]float32, len(dss))
		tiles    = make([][]float32, len(dss))
		zoneBuf  = make([]uint8, size)
		outBand  = p.ds.Bands()[0]
		detected int64
	)
	for i, ds := range dss {
		bands[i] = ds.Bands()[0]
		bufs[i] = make([]float32, size)
	}
	err = l.walk(ctx, func(w Window) error {
		for i, b := range bands {
			t, e := readTile(b, w, bufs[i])
			if e != nil {
				return e
			}
			tiles[i] = t
		}
		zt := zoneBuf[:w.Size()]
		for px := range zt {
			hit := true
			for _, in := range inputs {
				if !in.cond.Op.Apply(float64(tiles[in.slot][px]), in.cond.Threshold) {
					hit = false
					break
				}
			}
			if hit {
				zt[px] = ZONE_DETECTED
				detected++
			} else {
				zt[px] = 0
			}
		}
		return writeTile(outBand, w, zt)
	})
	if err = g.commit(err, p); err != nil {
		return "", err
	}
	log.Info(g.logTag+"zone map created", zap.String("zone", zone.Name), zap.Int("conditions", len(inputs)),
		zap.Int64("detected", detected), zap.String("tif", out))
	return
}

// 为每个区域生成专题图，返回区域名到专题图路径的映射（跳过的区域不在其中）
func (g *GdalToolbox) ClassifyZones(ctx context.Context, zones []Zone, indexPaths map[Index]string, outDir string) (maps map[string]string, err error) {
	var mu sync.Mutex
	maps = make(map[string]string, len(zones))
	eg, ctx := g.group(ctx)
	for _, z := range zones {
		eg.Go(func() error {
			out, e := g.ClassifyZone(ctx, z, indexPaths, outDir)
			if errors.Is(e, ErrZoneSkipped) {
				return nil
			}
			if e != nil {
				return e
			}
			mu.Lock()
			maps[z.Name] = out
			mu.Unlock()
			return nil
		})
	}
	err = eg.Wait()
	return
}
