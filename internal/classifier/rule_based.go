package classifier

import (
	"fmt"
	"strings"

	"wisefido-vitalrisk/internal/models"
)

// Range 闭区间正常范围
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains 边界值视为正常
func (r Range) Contains(x float64) bool {
	return x >= r.Min && x <= r.Max
}

// NormalRanges 规则分类使用的正常范围（校准后数值）
type NormalRanges struct {
	Systolic         Range `json:"systolic"`
	Diastolic        Range `json:"diastolic"`
	HeartRate        Range `json:"heart_rate"`
	OxygenSaturation Range `json:"oxygen_saturation"`
	Temperature      Range `json:"temperature"`
}

// DefaultNormalRanges 成人静息参考范围
func DefaultNormalRanges() NormalRanges {
	return NormalRanges{
		Systolic:         Range{Min: 90, Max: 120},
		Diastolic:        Range{Min: 60, Max: 80},
		HeartRate:        Range{Min: 60, Max: 100},
		OxygenSaturation: Range{Min: 95, Max: 100},
		Temperature:      Range{Min: 36.1, Max: 37.2},
	}
}

const (
	abnormalWeight = 0.25
	baselineWeight = 0.1
)

// 概率只取决于最终等级，与异常项数量无关
var ruleProbabilities = [models.LabelCount]models.LabelProbabilities{
	models.RiskNormal:   {0.85, 0.10, 0.05},
	models.RiskReduced:  {0.15, 0.80, 0.05},
	models.RiskCritical: {0.05, 0.05, 0.90},
}

// RuleProbabilityTable 各等级对应的固定概率
func RuleProbabilityTable() [models.LabelCount]models.LabelProbabilities {
	return ruleProbabilities
}

// RuleBasedClassifier 统计血压、心率、血氧、体温中异常项的数量
// 信号质量不参与判断
type RuleBasedClassifier struct {
	ranges NormalRanges
}

// NewRuleBasedClassifier 创建规则分类器
func NewRuleBasedClassifier(ranges NormalRanges) *RuleBasedClassifier {
	return &RuleBasedClassifier{ranges: ranges}
}

// Ranges 当前正常范围
func (c *RuleBasedClassifier) Ranges() NormalRanges {
	return c.ranges
}

// Strategy 策略名
func (c *RuleBasedClassifier) Strategy() models.Strategy {
	return models.StrategyRuleBased
}

type ruleCheck struct {
	name     string
	abnormal bool
}

func (c *RuleBasedClassifier) check(v models.CalibratedVitalSigns) [4]ruleCheck {
	bpNormal := c.ranges.Systolic.Contains(v.Systolic) && c.ranges.Diastolic.Contains(v.Diastolic)
	return [4]ruleCheck{
		{name: "blood_pressure", abnormal: !bpNormal},
		{name: "heart_rate", abnormal: !c.ranges.HeartRate.Contains(v.HeartRate)},
		{name: "oxygen_saturation", abnormal: !c.ranges.OxygenSaturation.Contains(v.OxygenSaturation)},
		{name: "temperature", abnormal: !c.ranges.Temperature.Contains(v.Temperature)},
	}
}

// Classify 异常项 >=3 为 Critical，==2 为 Reduced，其余为 Normal
func (c *RuleBasedClassifier) Classify(v models.CalibratedVitalSigns) (*models.ClassificationResult, error) {
	checks := c.check(v)

	count := 0
	var abnormal []string
	for _, ch := range checks {
		if ch.abnormal {
			count++
			abnormal = append(abnormal, ch.name)
		}
	}

	label := labelForAbnormalCount(count)
	probs := ruleProbabilities[label]

	return &models.ClassificationResult{
		Strategy:             models.StrategyRuleBased,
		Label:                label,
		Confidence:           probs[label],
		Probabilities:        probs,
		FeatureContributions: ruleContributions(checks),
		Inputs:               v,
		AbnormalCount:        &count,
		ExplanationText:      ruleExplanation(label, count, abnormal),
	}, nil
}

func labelForAbnormalCount(count int) models.RiskLabel {
	switch {
	case count >= 3:
		return models.RiskCritical
	case count == 2:
		return models.RiskReduced
	default:
		return models.RiskNormal
	}
}

// 血压的权重记在收缩压上，舒张压与信号质量固定为基线权重
func ruleContributions(checks [4]ruleCheck) models.FeatureWeights {
	weight := func(abnormal bool) float64 {
		if abnormal {
			return abnormalWeight
		}
		return baselineWeight
	}

	var w models.FeatureWeights
	w[models.FeatureSystolic] = weight(checks[0].abnormal)
	w[models.FeatureHeartRate] = weight(checks[1].abnormal)
	w[models.FeatureOxygenSaturation] = weight(checks[2].abnormal)
	w[models.FeatureTemperature] = weight(checks[3].abnormal)
	w[models.FeatureDiastolic] = baselineWeight
	w[models.FeatureSignalQuality] = baselineWeight
	return normalizeWeights(w)
}

func ruleExplanation(label models.RiskLabel, count int, abnormal []string) string {
	if count == 0 {
		return fmt.Sprintf("%s: all 4 checked parameters within normal range", label)
	}
	return fmt.Sprintf("%s: %d of 4 checked parameters abnormal (%s)", label, count, strings.Join(abnormal, ", "))
}

// normalizeWeights 和为 0 时返回均匀分布
func normalizeWeights(w models.FeatureWeights) models.FeatureWeights {
	total := 0.0
	for _, x := range w {
		total += x
	}
	var out models.FeatureWeights
	if total == 0 {
		for i := range out {
			out[i] = 1.0 / models.FeatureCount
		}
		return out
	}
	for i, x := range w {
		out[i] = x / total
	}
	return out
}
