package orthoveg

// 逻辑波段，输入影像的波段顺序固定为 NIR,R,G,B
type Band string

const (
	BandNIR   Band = "nir"
	BandRed   Band = "red"
	BandGreen Band = "green"
	BandBlue  Band = "blue"
)

// 输入影像中第i+1个波段对应InputBands[i]
var InputBands = [...]Band{BandNIR, BandRed, BandGreen, BandBlue}

// 植被指数名称
type Index string

const (
	IdxNDVI  Index = "NDVI"
	IdxSAVI  Index = "SAVI"
	IdxEVI   Index = "EVI"
	IdxAVI   Index = "AVI"
	IdxBINIR Index = "BI_NIR"
	IdxRATIO Index = "RATIO"
	IdxBSI   Index = "BSI"
)

// 固定的指数顺序，同时是合成影像的波段顺序
var Indices = [...]Index{IdxNDVI, IdxSAVI, IdxEVI, IdxAVI, IdxBINIR, IdxRATIO, IdxBSI}

func (i Index) Known() bool {
	for _, v := range Indices {
		if v == i {
			return true
		}
	}
	return false
}

// 单个指数影像的描述统计
type IndexStats struct {
	Count int64   `json:"count" yaml:"count"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Mean  float64 `json:"mean" yaml:"mean"`
	Std   float64 `json:"std" yaml:"std"`
	P1    float64 `json:"percentile_1" yaml:"percentile_1"`
	P5    float64 `json:"percentile_5" yaml:"percentile_5"`
	P25   float64 `json:"percentile_25" yaml:"percentile_25"`
	P75   float64 `json:"percentile_75" yaml:"percentile_75"`
	P95   float64 `json:"percentile_95" yaml:"percentile_95"`
	P99   float64 `json:"percentile_99" yaml:"percentile_99"`
}

// 阈值条件
type ThresholdCondition struct {
	Index     Index      `json:"index" yaml:"index"`
	Op        Comparator `json:"operator" yaml:"operator"`
	Threshold float64    `json:"threshold" yaml:"threshold"`
}

// 专题区域：条件之间为AND关系
type Zone struct {
	Name        string               `json:"name" yaml:"name"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Conditions  []ThresholdCondition `json:"conditions" yaml:"conditions"`
}

// 专题区域统计
type ZoneStats struct {
	Zone           string  `json:"zone"`
	TotalPixels    int64   `json:"total_pixels"`
	DetectedPixels int64   `json:"detected_pixels"`
	Percentage     float64 `json:"percentage"`
	AreaM2         float64 `json:"area_m2"`
	AreaHa         float64 `json:"area_ha"`
}
