package models

import "fmt"

// Feature 分类器输入特征，按固定顺序编号
type Feature int

const (
	FeatureTemperature Feature = iota
	FeatureHeartRate
	FeatureOxygenSaturation
	FeatureSystolic
	FeatureDiastolic
	FeatureSignalQuality
)

// FeatureCount 特征数量
const FeatureCount = 6

// AllFeatures 规范顺序
var AllFeatures = [FeatureCount]Feature{
	FeatureTemperature,
	FeatureHeartRate,
	FeatureOxygenSaturation,
	FeatureSystolic,
	FeatureDiastolic,
	FeatureSignalQuality,
}

var featureNames = [FeatureCount]string{
	"temperature",
	"heart_rate",
	"oxygen_saturation",
	"systolic",
	"diastolic",
	"signal_quality",
}

var featureDisplayNames = [FeatureCount]string{
	"Body Temperature (°C)",
	"Heart Rate (BPM)",
	"Oxygen Saturation (%)",
	"Systolic Pressure (mmHg)",
	"Diastolic Pressure (mmHg)",
	"Signal Quality (%)",
}

// String JSON 字段名
func (f Feature) String() string {
	if f < 0 || int(f) >= FeatureCount {
		return fmt.Sprintf("feature(%d)", int(f))
	}
	return featureNames[f]
}

// DisplayName 展示名称
func (f Feature) DisplayName() string {
	if f < 0 || int(f) >= FeatureCount {
		return f.String()
	}
	return featureDisplayNames[f]
}

// ParseFeature 按字段名解析
func ParseFeature(s string) (Feature, error) {
	for i, name := range featureNames {
		if name == s {
			return Feature(i), nil
		}
	}
	return 0, fmt.Errorf("unknown feature: %q", s)
}

// MarshalText 作为 JSON map key 使用
func (f Feature) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= FeatureCount {
		return nil, fmt.Errorf("unknown feature: %d", int(f))
	}
	return []byte(featureNames[f]), nil
}

// UnmarshalText 解析 JSON map key
func (f *Feature) UnmarshalText(text []byte) error {
	parsed, err := ParseFeature(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
