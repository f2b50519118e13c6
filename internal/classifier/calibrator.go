package classifier

import (
	"fmt"
	"math"

	"wisefido-vitalrisk/internal/models"
)

// CalibrationOffsets ESP32 血压传感器的固定偏移（mmHg），从原始值中减去
type CalibrationOffsets struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

// DefaultCalibrationOffsets 收缩压 -15，舒张压 -10
func DefaultCalibrationOffsets() CalibrationOffsets {
	return CalibrationOffsets{Systolic: 15, Diastolic: 10}
}

// Validate 偏移必须是有限值
func (o CalibrationOffsets) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"systolic", o.Systolic},
		{"diastolic", o.Diastolic},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("calibration %s offset must be finite, got %v", f.name, f.value)
		}
	}
	return nil
}

// Calibrator 血压校准
type Calibrator struct {
	offsets CalibrationOffsets
}

// NewCalibrator 创建校准器
func NewCalibrator(offsets CalibrationOffsets) *Calibrator {
	return &Calibrator{offsets: offsets}
}

// Offsets 当前偏移配置
func (c *Calibrator) Offsets() CalibrationOffsets {
	return c.offsets
}

// Calibrate 只修改收缩压和舒张压
func (c *Calibrator) Calibrate(v models.VitalSigns) models.CalibratedVitalSigns {
	v.Systolic -= c.offsets.Systolic
	v.Diastolic -= c.offsets.Diastolic
	return models.CalibratedVitalSigns{VitalSigns: v}
}

// CalibrateExamples 训练样本同样来自设备原始读数
func (c *Calibrator) CalibrateExamples(examples []models.TrainingExample) []models.TrainingExample {
	out := make([]models.TrainingExample, len(examples))
	for i, ex := range examples {
		out[i] = models.TrainingExample{
			Vitals: c.Calibrate(ex.Vitals).VitalSigns,
			Label:  ex.Label,
		}
	}
	return out
}
