package orthoveg

import (
	"bytes"
	"context"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/wgdzlh/orthoveg/log"
	"github.com/wgdzlh/orthoveg/publish"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	ENV_S3_ENDPOINT   = "ORTHOVEG_S3_ENDPOINT"
	ENV_S3_ACCESS_KEY = "ORTHOVEG_S3_ACCESS_KEY"
	ENV_S3_SECRET_KEY = "ORTHOVEG_S3_SECRET_KEY"
	ENV_S3_BUCKET     = "ORTHOVEG_S3_BUCKET"
	ENV_S3_SECURE     = "ORTHOVEG_S3_SECURE"
)

// 一次完整处理的配置
type RunConfig struct {
	Inputs    []string       `yaml:"inputs"`
	OutputDir string         `yaml:"output_dir"`
	Boundary  string         `yaml:"boundary"` // 可选的shp边界
	Workers   int            `yaml:"workers"`
	Profiles  []string       `yaml:"profiles"`   // 预定义方案名
	ZonesFile string         `yaml:"zones_file"` // 区域定义YAML
	Zones     []Zone         `yaml:"zones"`
	LogLevel  string         `yaml:"log_level"`
	LogJSON   bool           `yaml:"log_json"`
	Publish   publish.Config `yaml:"publish"`
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// 读取YAML配置，对象存储参数可由环境变量覆盖
func LoadRunConfig(path string) (cfg RunConfig, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err = dec.Decode(&cfg); err != nil {
		return
	}
	cfg.ApplyEnv()
	return
}

func (c *RunConfig) ApplyEnv() {
	c.Publish.Endpoint = getEnvOrDefault(ENV_S3_ENDPOINT, c.Publish.Endpoint)
	c.Publish.AccessKey = getEnvOrDefault(ENV_S3_ACCESS_KEY, c.Publish.AccessKey)
	c.Publish.SecretKey = getEnvOrDefault(ENV_S3_SECRET_KEY, c.Publish.SecretKey)
	c.Publish.Bucket = getEnvOrDefault(ENV_S3_BUCKET, c.Publish.Bucket)
	if v, err := strconv.ParseBool(getEnvOrDefault(ENV_S3_SECURE, strconv.FormatBool(c.Publish.Secure))); err == nil {
		c.Publish.Secure = v
	}
}

// 汇总配置中的区域定义：内联定义、区域文件、预定义方案，并校验
func (c RunConfig) ResolveZones() (zones []Zone, warnings []string, err error) {
	zones = append(zones, c.Zones...)
	if c.ZonesFile != "" {
		var fz []Zone
		if fz, err = LoadZonesFile(c.ZonesFile); err != nil {
			return
		}
		zones = append(zones, fz...)
	}
	if len(c.Profiles) > 0 {
		var pz []Zone
		if pz, err = ProfilesByName(c.Profiles...); err != nil {
			return
		}
		zones = append(zones, pz...)
	}
	warnings, err = ValidateZones(zones)
	return
}

func (c RunConfig) WorkDir() string {
	return filepath.Join(c.OutputDir, WORK_DIR)
}

func (c RunConfig) IndicesDir() string {
	return filepath.Join(c.OutputDir, INDICES_DIR)
}

func (c RunConfig) ThematicDir() string {
	return filepath.Join(c.OutputDir, THEMATIC_DIR)
}

// 一次处理的全部产出
type RunResult struct {
	RunID      string
	Inputs     []string
	BandStats  BandStats
	Normalized map[Band][]string
	Merged     map[Band]string
	IndexPaths map[Index]string
	IndexStats map[Index]IndexStats
	ZoneMaps   map[string]string
	ZoneStats  map[string]ZoneStats
	Report     string
	Objects    []string
}

// 执行完整流程：剪切、全局统计、归一化、镶嵌、指数、指数统计、专题分类、区域统计、报告、上传
func (g *GdalToolbox) Run(ctx context.Context, cfg RunConfig) (res RunResult, err error) {
	start := time.Now()
	res.RunID = uuid.NewString()
	ctx = ContextWithWorkers(ctx, cfg.Workers)
	if len(cfg.Inputs) == 0 {
		err = ErrNoInputs
		return
	}
	zones, warnings, err := cfg.ResolveZones()
	if err != nil {
		return
	}
	for _, w := range warnings {
		log.Warn(g.logTag+"zone config warning", zap.String("warning", w))
	}
	log.Info(g.logTag+"start processing", zap.String("run", res.RunID), zap.Int("inputs", len(cfg.Inputs)),
		zap.Int("zones", len(zones)), zap.Int("workers", g.limit(ctx)), zap.String("out", cfg.OutputDir))

	res.Inputs = cfg.Inputs
	if cfg.Boundary != "" {
		if res.Inputs, err = g.ClipFiles(ctx, cfg.Inputs, cfg.Boundary, cfg.WorkDir()); err != nil {
			return
		}
	}
	if res.BandStats, err = g.AccumulateStats(ctx, res.Inputs); err != nil {
		return
	}
	if res.Normalized, err = g.NormalizeFiles(ctx, res.Inputs, res.BandStats, cfg.WorkDir()); err != nil {
		return
	}
	if res.Merged, err = g.MergeBands(ctx, res.Normalized, cfg.WorkDir()); err != nil {
		return
	}
	if res.IndexPaths, err = g.ComputeIndexRasters(ctx, res.Merged, cfg.IndicesDir()); err != nil {
		return
	}
	if res.IndexStats, err = g.AllIndexStatistics(ctx, res.IndexPaths); err != nil {
		return
	}
	if len(zones) > 0 {
		if res.ZoneMaps, err = g.ClassifyZones(ctx, zones, res.IndexPaths, cfg.ThematicDir()); err != nil {
			return
		}
		if res.ZoneStats, err = g.ZoneStatistics(ctx, res.ZoneMaps); err != nil {
			return
		}
	}
	if res.Report, err = g.WriteReportFile(cfg.OutputDir, zones, res.ZoneStats, res.IndexStats); err != nil {
		return
	}
	if cfg.Publish.Enabled() {
		var pub *publish.Publisher
		if pub, err = publish.New(cfg.Publish); err != nil {
			return
		}
		if res.Objects, err = pub.Upload(ctx, res.RunID, res.artifacts()...); err != nil {
			return
		}
	}
	log.Info(g.logTag+"processing done", zap.String("run", res.RunID), zap.Duration("elapsed", time.Since(start)))
	return
}

func (r RunResult) artifacts() (files []string) {
	for _, idx := range Indices {
		if p, ok := r.IndexPaths[idx]; ok {
			files = append(files, p)
		}
	}
	if len(r.IndexPaths) > 0 {
		files = append(files, filepath.Join(filepath.Dir(r.IndexPaths[IdxNDVI]), COMPOSITE_FILE))
	}
	for _, name := range slices.Sorted(maps.Keys(r.ZoneMaps)) {
		files = append(files, r.ZoneMaps[name])
	}
	if r.Report != "" {
		files = append(files, r.Report)
	}
	return
}
