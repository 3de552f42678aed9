package orthoveg

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/wgdzlh/orthoveg/log"

	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// 影像网格：尺寸与仿射变换参数
type Grid struct {
	Width, Height int
	GeoTransform  [6]float64
	HasGT         bool
}

func gridOf(ds *godal.Dataset) (gr Grid) {
	st := ds.Structure()
	gr.Width, gr.Height = st.SizeX, st.SizeY
	gt, err := ds.GeoTransform()
	if err == nil {
		gr.GeoTransform, gr.HasGT = gt, true
	}
	return
}

// 像元面积（平方米），取|gt[1]*gt[5]|
func (gr Grid) PixelArea() float64 {
	if !gr.HasGT {
		return 0
	}
	return math.Abs(gr.GeoTransform[1] * gr.GeoTransform[5])
}

func (gr Grid) Same(o Grid) bool {
	if gr.Width != o.Width || gr.Height != o.Height || gr.HasGT != o.HasGT {
		return false
	}
	for i := range gr.GeoTransform {
		a, b := gr.GeoTransform[i], o.GeoTransform[i]
		if math.Abs(a-b) > 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b))) {
			return false
		}
	}
	return true
}

func (g *GdalToolbox) openRaster(path string) (ds *godal.Dataset, err error) {
	ds, err = godal.Open(path, godal.RasterOnly())
	if err != nil {
		log.Error(g.logTag+"open tif failed", zap.String("tif", path), zap.Error(err))
		err = fmt.Errorf("%w: %s", ErrInvalidTif, path)
	}
	return
}

// 同步遍历的多张影像必须网格一致
func (g *GdalToolbox) checkAligned(names []string, dss []*godal.Dataset) (err error) {
	if len(dss) < 2 {
		return
	}
	ref := gridOf(dss[0])
	for i, ds := range dss[1:] {
		if gr := gridOf(ds); !ref.Same(gr) {
			log.Error(g.logTag+"rasters not aligned", zap.String("ref", names[0]), zap.String("tif", names[i+1]),
				zap.Int("refWidth", ref.Width), zap.Int("refHeight", ref.Height),
				zap.Int("width", gr.Width), zap.Int("height", gr.Height))
			return fmt.Errorf("%w: %s vs %s", ErrMisalignedRasters, names[0], names[i+1])
		}
	}
	return
}

func blockOpts(bx, by int) []string {
	if bx <= 0 || by <= 0 || bx%16 != 0 || by%16 != 0 {
		bx, by = DEFAULT_BLOCK, DEFAULT_BLOCK
	}
	return []string{"BLOCKXSIZE=" + strconv.Itoa(bx), "BLOCKYSIZE=" + strconv.Itoa(by)}
}

// 创建输出GTiff，尺寸、分块与地理参考取自ref
func (g *GdalToolbox) createTif(name string, ref *godal.Dataset, nBands int, dt godal.DataType, nodata bool) (ds *godal.Dataset, err error) {
	st := ref.Structure()
	opts := append(slices.Clone(tifCreateOpts), blockOpts(st.BlockSizeX, st.BlockSizeY)...)
	ds, err = godal.Create(godal.GTiff, name, nBands, dt, st.SizeX, st.SizeY, godal.CreationOption(opts...))
	if err != nil {
		log.Error(g.logTag+"create tif failed", zap.String("tif", name), zap.Error(err))
		err = fmt.Errorf("%w: %w", ErrTifWriteFailed, err)
		return
	}
	defer func() {
		if err != nil {
			ds.Close()
			ds = nil
			os.Remove(name)
		}
	}()
	if gt, e := ref.GeoTransform(); e == nil {
		if err = ds.SetGeoTransform(gt); err != nil {
			return
		}
	}
	if wkt := ref.Projection(); wkt != "" {
		if err = ds.SetProjection(wkt); err != nil {
			return
		}
	}
	if nodata {
		for _, b := range ds.Bands() {
			if err = b.SetNoData(NODATA_VALUE); err != nil {
				return
			}
		}
	}
	return
}

// 输出先写入同目录下的临时文件，完成后改名
func tmpPathFor(out string) string {
	return filepath.Join(filepath.Dir(out), fmt.Sprintf(TMP_TIF, uuid.NewString(), filepath.Base(out)))
}

// 待落盘的输出
type pendingTif struct {
	ds       *godal.Dataset
	tmp, out string
}

func (g *GdalToolbox) newPending(out string, ref *godal.Dataset, nBands int, dt godal.DataType, nodata bool) (p pendingTif, err error) {
	p.tmp, p.out = tmpPathFor(out), out
	p.ds, err = g.createTif(p.tmp, ref, nBands, dt, nodata)
	return
}

// 关闭输出并落盘：成功时临时文件改名为目标文件，失败时删除临时文件
func (g *GdalToolbox) commit(err error, outs ...pendingTif) error {
	for _, o := range outs {
		if o.ds != nil {
			err = multierr.Append(err, o.ds.Close())
		}
	}
	if err == nil {
		for _, o := range outs {
			if err = os.Rename(o.tmp, o.out); err != nil {
				break
			}
		}
	}
	if err != nil {
		for _, o := range outs {
			os.Remove(o.tmp)
		}
		log.Error(g.logTag+"write output failed", zap.Int("files", len(outs)), zap.Error(err))
	}
	return err
}

// 已存在且结构完整的输出可直接复用（width<=0时不检查尺寸）
func (g *GdalToolbox) complete(path string, width, height, nBands int) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		log.Warn(g.logTag+"existing output unreadable, rebuild", zap.String("tif", path))
		return false
	}
	defer ds.Close()
	st := ds.Structure()
	if st.NBands != nBands || (width > 0 && (st.SizeX != width || st.SizeY != height)) {
		log.Warn(g.logTag+"existing output incomplete, rebuild", zap.String("tif", path))
		return false
	}
	return true
}

func readTile[T any](band godal.Band, w Window, buf []T) ([]T, error) {
	tile := buf[:w.Size()]
	if err := band.Read(w.Col, w.Row, tile, w.Width, w.Height); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTifReadFailed, err)
	}
	return tile, nil
}

func writeTile[T any](band godal.Band, w Window, tile []T) error {
	if err := band.Write(w.Col, w.Row, tile, w.Width, w.Height); err != nil {
		return fmt.Errorf("%w: %w", ErrTifWriteFailed, err)
	}
	return nil
}
