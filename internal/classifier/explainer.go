package classifier

import (
	"sort"

	"wisefido-vitalrisk/internal/models"
)

// FeatureExplanation 单个特征的贡献说明
type FeatureExplanation struct {
	Feature             models.Feature `json:"feature"`
	DisplayName         string         `json:"display_name"`
	ContributionPercent float64        `json:"contribution_percent"`
	RawValue            float64        `json:"raw_value"`
}

// Explain 按贡献度降序排列，贡献相同时保持特征原顺序
// RawValue 为分类时使用的校准后数值
func Explain(result *models.ClassificationResult) []FeatureExplanation {
	values := result.Inputs.Vector()
	out := make([]FeatureExplanation, 0, models.FeatureCount)
	for _, f := range models.AllFeatures {
		out = append(out, FeatureExplanation{
			Feature:             f,
			DisplayName:         f.DisplayName(),
			ContributionPercent: result.FeatureContributions[f] * 100,
			RawValue:            values[f],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ContributionPercent > out[j].ContributionPercent
	})
	return out
}
