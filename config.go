package orthoveg

const (
	SHP_DRIVER_NAME = "ESRI Shapefile"

	SATURATION_CEILING = 65535 // 16位影像饱和值，等于该值的像元视为无效
	NORM_RANGE         = 65535 // 归一化目标范围[0,NORM_RANGE]
	NODATA_VALUE       = 0

	SAVI_L = 0.5
	EVI_G  = 2.5
	EVI_C1 = 6.0
	EVI_C2 = 7.5
	EVI_L  = 1.0

	ZONE_DETECTED = 255
	M2_PER_HA     = 10000

	HIST_BINS        = 1 << 16
	EXACT_RANK_LIMIT = 1 << 18 // 分位数细分到不超过该像元数后直接排序
	DEFAULT_WORKERS  = 4
	DEFAULT_BLOCK    = 256

	WORK_DIR     = "temp_processing"
	INDICES_DIR  = "indices"
	THEMATIC_DIR = "thematic_maps"

	NORM_BAND_FILE   = "%s_%s.tif"
	MERGED_BAND_FILE = "merged_%s.tif"
	INDEX_FILE       = "%s.tif"
	COMPOSITE_FILE   = "vegetation_indices_composite.tif"
	ZONE_MAP_FILE    = "%s_map.tif"
	CROPPED_FILE     = "%s_cropped.tif"
	REPORT_FILE      = "thematic_analysis_report.txt"

	TMP_TIF = ".tmp_%s_%s"
	TMP_VRT = ".tmp_%s.vrt"
)

// 输出GTiff的创建参数
var tifCreateOpts = []string{"TILED=YES", "COMPRESS=LZW", "BIGTIFF=YES"}

// gdal_translate输出参数
var tifTranslateOpts = []string{"-of", "GTiff", "-co", "TILED=YES", "-co", "COMPRESS=LZW", "-co", "BIGTIFF=YES"}
