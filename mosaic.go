package orthoveg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wgdzlh/orthoveg/log"

	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 镶嵌同一波段的多张归一化影像，排序靠后的影像优先显示，nodata像元不覆盖已有值
func (g *GdalToolbox) MergeBand(ctx context.Context, inputs []string, out string) (err error) {
	if len(inputs) == 0 {
		return ErrNoInputs
	}
	if err = ctx.Err(); err != nil {
		return
	}
	if g.complete(out, 0, 0, 1) {
		log.Info(g.logTag+"merged band exists, skip", zap.String("tif", out))
		return
	}
	tmpDir := g.tmpDir
	if tmpDir == "" {
		tmpDir = filepath.Dir(out)
	}
	var (
		tmpVrt = filepath.Join(tmpDir, fmt.Sprintf(TMP_VRT, uuid.NewString()))
		tmpTif = tmpPathFor(out)
	)
	defer os.Remove(tmpVrt)
	log.Info(g.logTag+"merge band", zap.Int("tif_cnt", len(inputs)), zap.String("out", out))
	// 将各景影像拼接成一个VRT
	vds, err := godal.BuildVRT(tmpVrt, inputs, []string{"-resolution", "highest", "-srcnodata", "0", "-vrtnodata", "0", "-overwrite"})
	if err != nil {
		log.Error(g.logTag+"failed to build vrt", zap.Error(err))
		return
	}
	defer vds.Close()
	// 将VRT转为最终GTiff
	fds, err := vds.Translate(tmpTif, tifTranslateOpts)
	if err != nil {
		log.Error(g.logTag+"failed to translate vrt", zap.Error(err))
		os.Remove(tmpTif)
		return
	}
	return g.commit(nil, pendingTif{ds: fds, tmp: tmpTif, out: out})
}

// 逐波段镶嵌，输出为workDir下的merged_<band>.tif
func (g *GdalToolbox) MergeBands(ctx context.Context, byBand map[Band][]string, workDir string) (merged map[Band]string, err error) {
	var mu sync.Mutex
	merged = make(map[Band]string, len(byBand))
	eg, ctx := g.group(ctx)
	for _, b := range InputBands {
		inputs := byBand[b]
		if len(inputs) == 0 {
			log.Warn(g.logTag+"no tif to merge", zap.String("band", string(b)))
			continue
		}
		eg.Go(func() error {
			out := filepath.Join(workDir, fmt.Sprintf(MERGED_BAND_FILE, b))
			if e := g.MergeBand(ctx, inputs, out); e != nil {
				return e
			}
			mu.Lock()
			merged[b] = out
			mu.Unlock()
			return nil
		})
	}
	err = eg.Wait()
	return
}
