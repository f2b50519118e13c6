package models

import (
	"fmt"
	"math"
)

// VitalSigns 一次读数的 6 个标量
type VitalSigns struct {
	Temperature      float64 `json:"temperature"`       // °C
	HeartRate        float64 `json:"heart_rate"`        // BPM
	OxygenSaturation float64 `json:"oxygen_saturation"` // %
	Systolic         float64 `json:"systolic"`          // mmHg
	Diastolic        float64 `json:"diastolic"`         // mmHg
	SignalQuality    float64 `json:"signal_quality"`    // 0-100
}

// CalibratedVitalSigns 校准后的读数，分类器只接收该类型
type CalibratedVitalSigns struct {
	VitalSigns
}

// Vector 按 AllFeatures 顺序返回
func (v VitalSigns) Vector() [FeatureCount]float64 {
	return [FeatureCount]float64{
		v.Temperature,
		v.HeartRate,
		v.OxygenSaturation,
		v.Systolic,
		v.Diastolic,
		v.SignalQuality,
	}
}

// Value 取单个特征
func (v VitalSigns) Value(f Feature) float64 {
	return v.Vector()[f]
}

// Validate 所有字段必须是有限数
func (v VitalSigns) Validate() error {
	vec := v.Vector()
	for _, f := range AllFeatures {
		x := vec[f]
		switch {
		case math.IsNaN(x):
			return &ValidationError{Field: f.String(), Reason: "value is NaN"}
		case math.IsInf(x, 0):
			return &ValidationError{Field: f.String(), Reason: "value is infinite"}
		}
	}
	return nil
}

// ValidationError 输入不合法
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid vital sign %s: %s", e.Field, e.Reason)
}

// VitalSignsInput 外部 JSON 输入，缺失字段保持 nil
type VitalSignsInput struct {
	Temperature      *float64 `json:"temperature"`
	HeartRate        *float64 `json:"heart_rate"`
	OxygenSaturation *float64 `json:"oxygen_saturation"`
	Systolic         *float64 `json:"systolic"`
	Diastolic        *float64 `json:"diastolic"`
	SignalQuality    *float64 `json:"signal_quality"`
}

// ToVitalSigns 缺失字段返回 ValidationError
func (in VitalSignsInput) ToVitalSigns() (VitalSigns, error) {
	return assembleVitalSigns([FeatureCount]*float64{
		in.Temperature,
		in.HeartRate,
		in.OxygenSaturation,
		in.Systolic,
		in.Diastolic,
		in.SignalQuality,
	})
}

func assembleVitalSigns(fields [FeatureCount]*float64) (VitalSigns, error) {
	var vec [FeatureCount]float64
	for _, f := range AllFeatures {
		if fields[f] == nil {
			return VitalSigns{}, &ValidationError{Field: f.String(), Reason: "missing"}
		}
		vec[f] = *fields[f]
	}
	v := VitalSigns{
		Temperature:      vec[FeatureTemperature],
		HeartRate:        vec[FeatureHeartRate],
		OxygenSaturation: vec[FeatureOxygenSaturation],
		Systolic:         vec[FeatureSystolic],
		Diastolic:        vec[FeatureDiastolic],
		SignalQuality:    vec[FeatureSignalQuality],
	}
	if err := v.Validate(); err != nil {
		return VitalSigns{}, err
	}
	return v, nil
}

// TrainingExample 带标签的训练样本
type TrainingExample struct {
	Vitals VitalSigns `json:"vitals"`
	Label  RiskLabel  `json:"label"`
}
