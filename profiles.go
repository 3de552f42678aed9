package orthoveg

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// 预定义阈值方案
func DefaultProfiles() []Zone {
	return []Zone{
		{
			Name:        "dense_forest",
			Description: "Dense forest (high vegetation cover)",
			Conditions: []ThresholdCondition{
				{Index: IdxNDVI, Op: OpGT, Threshold: 0.6},
				{Index: IdxSAVI, Op: OpGT, Threshold: 0.4},
			},
		},
		{
			Name:        "sparse_vegetation",
			Description: "Sparse vegetation (grassland, crops)",
			Conditions: []ThresholdCondition{
				{Index: IdxNDVI, Op: OpGT, Threshold: 0.2},
				{Index: IdxNDVI, Op: OpLE, Threshold: 0.6},
				{Index: IdxEVI, Op: OpGT, Threshold: 0.1},
			},
		},
		{
			Name:        "shadow_zone",
			Description: "Shadow zones (under forest canopy)",
			Conditions: []ThresholdCondition{
				{Index: IdxSAVI, Op: OpGT, Threshold: 0.3},
				{Index: IdxRATIO, Op: OpLT, Threshold: 0.8},
				{Index: IdxBINIR, Op: OpLT, Threshold: 0.4},
			},
		},
		{
			Name:        "rocky_zone",
			Description: "Rocky zones and bare soil",
			Conditions: []ThresholdCondition{
				{Index: IdxBSI, Op: OpGT, Threshold: 0.1},
				{Index: IdxNDVI, Op: OpLT, Threshold: 0.2},
			},
		},
		{
			Name:        "urban_zone",
			Description: "Urban and artificial surfaces",
			Conditions: []ThresholdCondition{
				{Index: IdxBINIR, Op: OpGT, Threshold: 0.6},
				{Index: IdxNDVI, Op: OpLT, Threshold: 0.3},
			},
		},
		{
			Name:        "water",
			Description: "Water bodies and wetlands",
			Conditions: []ThresholdCondition{
				{Index: IdxRATIO, Op: OpLT, Threshold: 0.3},
				{Index: IdxBINIR, Op: OpLT, Threshold: 0.2},
			},
		},
	}
}

// 按名称选取预定义方案
func ProfilesByName(names ...string) (zones []Zone, err error) {
	all := DefaultProfiles()
	for _, name := range names {
		found := false
		for _, z := range all {
			if z.Name == name {
				zones = append(zones, z)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
		}
	}
	return
}

type RangeHint struct {
	Label string
	Op    Comparator
	Value float64
}

// 指数的推荐取值范围
type RecommendedRange struct {
	Min, Max float64
	Hints    []RangeHint
}

var recommendedRanges = map[Index]RecommendedRange{
	IdxNDVI: {Min: -1, Max: 1, Hints: []RangeHint{
		{"Vegetation", OpGT, 0.2}, {"Dense vegetation", OpGT, 0.8}, {"Bare soil", OpLT, 0.2}, {"Water", OpLT, 0},
	}},
	IdxSAVI: {Min: -1.5, Max: 1.5, Hints: []RangeHint{
		{"Vegetation", OpGT, 0.2}, {"Dense vegetation", OpGT, 0.6}, {"Bare soil", OpLT, 0.1},
	}},
	IdxEVI: {Min: -1, Max: 1, Hints: []RangeHint{
		{"Vegetation", OpGT, 0.2}, {"Dense vegetation", OpGT, 0.8},
	}},
	IdxBSI: {Min: -1, Max: 1, Hints: []RangeHint{
		{"Bare soil", OpGT, 0.1},
	}},
	IdxRATIO: {Min: 0, Max: 10, Hints: []RangeHint{
		{"Vegetation", OpGT, 1}, {"Water", OpLT, 0.5},
	}},
	IdxBINIR: {Min: 0, Max: 1},
	IdxAVI: {Min: -2, Max: 2, Hints: []RangeHint{
		{"Vegetation", OpGT, 0.1},
	}},
}

func Recommended(idx Index) (r RecommendedRange, ok bool) {
	r, ok = recommendedRanges[idx]
	return
}

// 指数阈值设置建议
func Suggestions(idx Index) string {
	r, ok := recommendedRanges[idx]
	if !ok {
		return "No suggestion available"
	}
	parts := []string{fmt.Sprintf("General range: [%.1f, %.1f]", r.Min, r.Max)}
	for _, h := range r.Hints {
		parts = append(parts, fmt.Sprintf("%s %s %g", h.Label, h.Op, h.Value))
	}
	return strings.Join(parts, " | ")
}

type zoneFile struct {
	Zones []Zone `yaml:"zones"`
}

// 从YAML读取区域定义
func LoadZones(r io.Reader) (zones []Zone, err error) {
	var zf zoneFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err = dec.Decode(&zf); err != nil {
		if err == io.EOF {
			err = nil
		}
		return
	}
	zones = zf.Zones
	return
}

func LoadZonesFile(path string) (zones []Zone, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	return LoadZones(bytes.NewReader(data))
}

// 校验区域定义：结构错误返回error，未知指数等仅返回告警
func ValidateZones(zones []Zone) (warnings []string, err error) {
	seen := map[string]bool{}
	for i, z := range zones {
		name := strings.TrimSpace(z.Name)
		if name == "" || strings.ContainsAny(name, `/\`) {
			return warnings, fmt.Errorf("%w: zone #%d has invalid name %q", ErrInvalidZone, i+1, z.Name)
		}
		if seen[name] {
			return warnings, fmt.Errorf("%w: duplicate zone %q", ErrInvalidZone, name)
		}
		seen[name] = true
		if len(z.Conditions) == 0 {
			warnings = append(warnings, fmt.Sprintf("zone %s has no condition", name))
		}
		for j, c := range z.Conditions {
			if !c.Op.Valid() {
				return warnings, fmt.Errorf("%w: zone %s condition %d: %q", ErrInvalidComparator, name, j+1, c.Op)
			}
			if !c.Index.Known() {
				warnings = append(warnings, fmt.Sprintf("zone %s condition %d: unknown index %s", name, j+1, c.Index))
			}
		}
	}
	return
}
