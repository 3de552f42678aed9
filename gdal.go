package orthoveg

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/wgdzlh/orthoveg/log"

	"github.com/airbusgeo/godal"
	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type GdalToolbox struct {
	refMap  map[string]gdal.SpatialReference
	rLock   sync.Mutex
	tmpDir  string
	workers int
	logTag  string
}

type ToolboxOption func(*GdalToolbox)

var registerOnce sync.Once

// 并发处理单元（文件、波段、区域）的上限
func WithWorkers(n int) ToolboxOption {
	return func(g *GdalToolbox) {
		if n > 0 {
			g.workers = n
		}
	}
}

// 临时文件目录（未提供的话为输出文件所在目录）
func WithTmpDir(dir string) ToolboxOption {
	return func(g *GdalToolbox) {
		g.tmpDir = dir
	}
}

// 初始化GDAL工具箱
func NewGdalToolbox(opts ...ToolboxOption) *GdalToolbox {
	registerOnce.Do(godal.RegisterAll)
	g := &GdalToolbox{
		refMap:  map[string]gdal.SpatialReference{},
		workers: DEFAULT_WORKERS,
		logTag:  "GdalToolbox:",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// 释放缓存的坐标系对象
func (g *GdalToolbox) Close() {
	g.rLock.Lock()
	defer g.rLock.Unlock()
	for k, ref := range g.refMap {
		ref.Destroy()
		delete(g.refMap, k)
	}
}

type workersKey struct{}

// 在ctx上覆盖本次调用的并发上限，n<=0时不生效
func ContextWithWorkers(ctx context.Context, n int) context.Context {
	if n <= 0 {
		return ctx
	}
	return context.WithValue(ctx, workersKey{}, n)
}

func (g *GdalToolbox) limit(ctx context.Context) int {
	if n, ok := ctx.Value(workersKey{}).(int); ok {
		return n
	}
	return g.workers
}

func (g *GdalToolbox) group(ctx context.Context) (*errgroup.Group, context.Context) {
	n := g.limit(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(n)
	return eg, ctx
}

// 获取WKT对应的坐标系（可复用，故无需回收）
func (g *GdalToolbox) getWktRef(wkt string) (ref gdal.SpatialReference, err error) {
	g.rLock.Lock()
	defer g.rLock.Unlock()
	ref, ok := g.refMap[wkt]
	if ok {
		return
	}
	ref = gdal.CreateSpatialReference("")
	if err = ref.FromWKT(wkt); err != nil {
		log.Error(g.logTag+"parse raster crs failed", zap.Error(err))
		ref.Destroy()
		err = ErrVoidSrid
		return
	}
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	g.refMap[wkt] = ref
	return
}

func (g *GdalToolbox) getSrid(sp gdal.SpatialReference) (srid int, err error) {
	rawId, ok := sp.AttrValue("AUTHORITY", 1)
	if !ok {
		wkt, _ := sp.ToWKT()
		if strings.Contains(wkt, "CGCS_2000") {
			rawId = "4490"
		} else {
			err = ErrVoidSrid
			return
		}
	}
	srid, err = strconv.Atoi(rawId)
	return
}

// 检查shp与影像坐标系是否一致
func (g *GdalToolbox) checkShapefileCRS(shp, rasterWkt string) (err error) {
	if rasterWkt == "" {
		log.Error(g.logTag+"raster has no crs", zap.String("shp", shp))
		return ErrVoidSrid
	}
	rRef, err := g.getWktRef(rasterWkt)
	if err != nil {
		return
	}
	driver := gdal.OGRDriverByName(SHP_DRIVER_NAME)
	ds, ok := driver.Open(shp, 0)
	if !ok {
		err = ErrGdalDriverOpen
		return
	}
	defer ds.Destroy()
	if ds.LayerCount() == 0 {
		err = ErrGdalDriverOpen
		return
	}
	sRef := ds.LayerByIndex(0).SpatialReference()
	g.rLock.Lock()
	same := sRef.IsSame(rRef)
	g.rLock.Unlock()
	if !same {
		sSrid, _ := g.getSrid(sRef)
		rSrid, _ := g.getSrid(rRef)
		log.Error(g.logTag+"crs of boundary differs from raster", zap.String("shp", shp),
			zap.Int("shpSrid", sSrid), zap.Int("rasterSrid", rSrid))
		err = ErrCRSMismatch
	}
	return
}
