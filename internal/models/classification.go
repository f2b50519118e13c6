package models

import (
	"encoding/json"
	"fmt"
)

// Strategy 分类策略名称
type Strategy string

const (
	StrategyRuleBased  Strategy = "rule_based"
	StrategyGaussianNB Strategy = "gaussian_nb"
)

// LabelProbabilities 按 AllLabels 顺序的后验概率
type LabelProbabilities [LabelCount]float64

// MarshalJSON 输出 {"Normal":..,"Reduced":..,"Critical":..}
func (p LabelProbabilities) MarshalJSON() ([]byte, error) {
	m := make(map[RiskLabel]float64, LabelCount)
	for _, l := range AllLabels {
		m[l] = p[l]
	}
	return json.Marshal(m)
}

// UnmarshalJSON 缺少任一等级视为错误
func (p *LabelProbabilities) UnmarshalJSON(data []byte) error {
	var m map[RiskLabel]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out LabelProbabilities
	for _, l := range AllLabels {
		v, ok := m[l]
		if !ok {
			return fmt.Errorf("probabilities: missing label %s", l)
		}
		out[l] = v
	}
	*p = out
	return nil
}

// FeatureWeights 按 AllFeatures 顺序的特征贡献
type FeatureWeights [FeatureCount]float64

// MarshalJSON 输出 {feature_name: weight}
func (w FeatureWeights) MarshalJSON() ([]byte, error) {
	m := make(map[Feature]float64, FeatureCount)
	for _, f := range AllFeatures {
		m[f] = w[f]
	}
	return json.Marshal(m)
}

// UnmarshalJSON 缺少任一特征视为错误
func (w *FeatureWeights) UnmarshalJSON(data []byte) error {
	var m map[Feature]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out FeatureWeights
	for _, f := range AllFeatures {
		v, ok := m[f]
		if !ok {
			return fmt.Errorf("feature contributions: missing feature %s", f)
		}
		out[f] = v
	}
	*w = out
	return nil
}

// ClassificationResult 一次分类的完整结果
type ClassificationResult struct {
	Strategy             Strategy             `json:"strategy"`
	Label                RiskLabel            `json:"label"`
	Confidence           float64              `json:"confidence"`
	Probabilities        LabelProbabilities   `json:"probabilities"`
	FeatureContributions FeatureWeights       `json:"feature_contributions"`
	Inputs               CalibratedVitalSigns `json:"inputs"`
	AbnormalCount        *int                 `json:"abnormal_count,omitempty"` // 仅规则分类
	ExplanationText      string               `json:"explanation_text,omitempty"`
}
