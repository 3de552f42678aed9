package orthoveg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/wgdzlh/orthoveg/log"
	"github.com/wgdzlh/orthoveg/utils"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// 按shp边界剪切影像，shp与影像坐标系须一致
func (g *GdalToolbox) ClipRaster(ctx context.Context, src, shp, dst string) (err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	sds, err := g.openRaster(src)
	if err != nil {
		return
	}
	defer sds.Close()
	nb := len(sds.Bands())
	if g.complete(dst, 0, 0, nb) {
		log.Info(g.logTag+"cropped tif exists, skip", zap.String("tif", dst))
		return
	}
	if err = g.checkShapefileCRS(shp, sds.Projection()); err != nil {
		return
	}
	tmp := tmpPathFor(dst)
	opts := []string{"-of", "GTiff", "-cutline", shp, "-crop_to_cutline", "-dstnodata", "0", "-overwrite"}
	for _, co := range tifCreateOpts {
		opts = append(opts, "-co", co)
	}
	ods, err := godal.Warp(tmp, []*godal.Dataset{sds}, opts) // 剪切影像
	if err != nil {
		log.Error(g.logTag+"failed to crop raster", zap.String("tif", src), zap.Error(err))
		os.Remove(tmp)
		return
	}
	if err = g.commit(nil, pendingTif{ds: ods, tmp: tmp, out: dst}); err == nil {
		log.Info(g.logTag+"raster cropped", zap.String("src", src), zap.String("dst", dst))
	}
	return
}

// 剪切全部输入影像，输出为workDir下的<stem>_cropped.tif，返回值保持输入顺序
func (g *GdalToolbox) ClipFiles(ctx context.Context, files []string, shp, workDir string) (out []string, err error) {
	if err = os.MkdirAll(workDir, os.ModePerm); err != nil {
		return
	}
	dsts := make([]string, len(files))
	stems := utils.UniqueStems(files)
	eg, ctx := g.group(ctx)
	for i, f := range files {
		if !utils.FileExists(f) {
			log.Warn(g.logTag+"skip missing tif", zap.String("tif", f))
			continue
		}
		eg.Go(func() error {
			dst := filepath.Join(workDir, fmt.Sprintf(CROPPED_FILE, stems[i]))
			if e := g.ClipRaster(ctx, f, shp, dst); e != nil {
				return e
			}
			dsts[i] = dst
			return nil
		})
	}
	if err = eg.Wait(); err != nil {
		return
	}
	out = slices.DeleteFunc(dsts, func(s string) bool { return s == "" })
	return
}
