package orthoveg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wgdzlh/orthoveg/log"
	"github.com/wgdzlh/orthoveg/utils"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// 统计单张专题图的检出像元数与面积
func (g *GdalToolbox) ZoneMapStatistics(ctx context.Context, zone, path string) (st ZoneStats, err error) {
	ds, err := g.openRaster(path)
	if err != nil {
		return
	}
	defer ds.Close()
	var (
		gr   = gridOf(ds)
		l    = layoutOf(ds)
		band = ds.Bands()[0]
		buf  = make([]uint8, l.MaxWindowSize())
	)
	st.Zone = zone
	st.TotalPixels = int64(gr.Width) * int64(gr.Height)
	err = l.walk(ctx, func(w Window) error {
		tile, e := readTile(band, w, buf)
		if e != nil {
			return e
		}
		for _, v := range tile {
			if v == ZONE_DETECTED {
				st.DetectedPixels++
			}
		}
		return nil
	})
	if err != nil {
		return
	}
	if st.TotalPixels > 0 {
		st.Percentage = float64(st.DetectedPixels) / float64(st.TotalPixels) * 100
	}
	st.AreaM2 = float64(st.DetectedPixels) * gr.PixelArea()
	st.AreaHa = st.AreaM2 / M2_PER_HA
	log.Info(g.logTag+"zone statistics", zap.String("zone", zone), zap.Int64("detected", st.DetectedPixels),
		zap.Int64("total", st.TotalPixels), zap.Float64("areaHa", st.AreaHa))
	return
}

// 统计全部专题图
func (g *GdalToolbox) ZoneStatistics(ctx context.Context, maps map[string]string) (stats map[string]ZoneStats, err error) {
	names := make([]string, 0, len(maps))
	for name := range maps {
		names = append(names, name)
	}
	sort.Strings(names)
	results := make([]ZoneStats, len(names))
	eg, ctx := g.group(ctx)
	for i, name := range names {
		eg.Go(func() (e error) {
			results[i], e = g.ZoneMapStatistics(ctx, name, maps[name])
			return
		})
	}
	if err = eg.Wait(); err != nil {
		return
	}
	stats = make(map[string]ZoneStats, len(names))
	for _, st := range results {
		stats[st.Zone] = st
	}
	return
}

// 输出文本报告：各区域阈值、区域统计及指数统计
func WriteReport(w io.Writer, zones []Zone, zoneStats map[string]ZoneStats, indexStats map[Index]IndexStats) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "THEMATIC ANALYSIS REPORT")
	fmt.Fprintln(bw, strings.Repeat("=", 50))
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "THRESHOLDS USED:")
	fmt.Fprintln(bw, strings.Repeat("-", 20))
	for _, z := range zones {
		fmt.Fprintf(bw, "\n%s:\n", utils.ZoneTitle(z.Name))
		for i, c := range z.Conditions {
			fmt.Fprintf(bw, "  Condition %d: %s\n", i+1, c)
		}
	}

	fmt.Fprintln(bw)
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "ZONE STATISTICS:")
	fmt.Fprintln(bw, strings.Repeat("-", 25))
	for _, z := range zones {
		st, ok := zoneStats[z.Name]
		if !ok {
			continue
		}
		fmt.Fprintf(bw, "\n%s:\n", utils.ZoneTitle(z.Name))
		fmt.Fprintf(bw, "  Detected pixels: %s / %s\n", utils.GroupInt(st.DetectedPixels), utils.GroupInt(st.TotalPixels))
		fmt.Fprintf(bw, "  Percentage:      %.2f%%\n", st.Percentage)
		fmt.Fprintf(bw, "  Area:            %s ha (%s m²)\n", utils.GroupFloat(st.AreaHa, 2), utils.GroupFloat(st.AreaM2, 0))
	}

	if len(indexStats) > 0 {
		fmt.Fprintln(bw)
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, "INDEX STATISTICS:")
		fmt.Fprintln(bw, strings.Repeat("-", 25))
		for _, idx := range Indices {
			st, ok := indexStats[idx]
			if !ok {
				continue
			}
			fmt.Fprintf(bw, "\n%s:\n", idx)
			fmt.Fprintf(bw, "  Min:       %.4f\n", st.Min)
			fmt.Fprintf(bw, "  Max:       %.4f\n", st.Max)
			fmt.Fprintf(bw, "  Mean:      %.4f\n", st.Mean)
			fmt.Fprintf(bw, "  Std:       %.4f\n", st.Std)
			fmt.Fprintf(bw, "  Percentiles: 1%%=%.4f 5%%=%.4f 25%%=%.4f 75%%=%.4f 95%%=%.4f 99%%=%.4f\n",
				st.P1, st.P5, st.P25, st.P75, st.P95, st.P99)
		}
	}
	return bw.Flush()
}

// 将报告写入outDir下的thematic_analysis_report.txt
func (g *GdalToolbox) WriteReportFile(outDir string, zones []Zone, zoneStats map[string]ZoneStats, indexStats map[Index]IndexStats) (path string, err error) {
	if err = os.MkdirAll(outDir, os.ModePerm); err != nil {
		return
	}
	path = filepath.Join(outDir, REPORT_FILE)
	tmp := tmpPathFor(path)
	f, err := os.Create(tmp)
	if err != nil {
		return
	}
	err = WriteReport(f, zones, zoneStats, indexStats)
	err = multierr.Append(err, f.Close())
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		log.Error(g.logTag+"write report failed", zap.String("path", path), zap.Error(err))
		return "", err
	}
	log.Info(g.logTag+"report saved", zap.String("path", path))
	return
}
