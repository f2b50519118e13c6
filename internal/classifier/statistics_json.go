package classifier

import (
	"encoding/json"
	"fmt"
	"time"

	"wisefido-vitalrisk/internal/models"
)

// 统计量文档格式，等级键接受英文名或设备端术语
type statisticsDocument struct {
	Prior       map[models.RiskLabel]float64                    `json:"prior"`
	Mean        map[models.RiskLabel]map[models.Feature]float64 `json:"mean"`
	Variance    map[models.RiskLabel]map[models.Feature]float64 `json:"variance"`
	SampleCount map[models.RiskLabel]int                        `json:"sample_count,omitempty"`
	TrainedAt   time.Time                                       `json:"trained_at"`
}

// MarshalJSON 输出统计量文档
func (s ClassStatistics) MarshalJSON() ([]byte, error) {
	doc := statisticsDocument{
		Prior:       make(map[models.RiskLabel]float64, models.LabelCount),
		Mean:        make(map[models.RiskLabel]map[models.Feature]float64, models.LabelCount),
		Variance:    make(map[models.RiskLabel]map[models.Feature]float64, models.LabelCount),
		SampleCount: make(map[models.RiskLabel]int, models.LabelCount),
		TrainedAt:   s.TrainedAt,
	}
	for _, l := range models.AllLabels {
		doc.Prior[l] = s.Prior[l]
		doc.SampleCount[l] = s.SampleCount[l]
		doc.Mean[l] = make(map[models.Feature]float64, models.FeatureCount)
		doc.Variance[l] = make(map[models.Feature]float64, models.FeatureCount)
		for _, f := range models.AllFeatures {
			doc.Mean[l][f] = s.Mean[l][f]
			doc.Variance[l][f] = s.Variance[l][f]
		}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON 每个等级、每个特征都必须出现；不做数值校验（见 Validate）
func (s *ClassStatistics) UnmarshalJSON(data []byte) error {
	var doc statisticsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	var out ClassStatistics
	out.TrainedAt = doc.TrainedAt
	for _, l := range models.AllLabels {
		p, ok := doc.Prior[l]
		if !ok {
			return fmt.Errorf("statistics: missing prior for %s", l)
		}
		out.Prior[l] = p
		out.SampleCount[l] = doc.SampleCount[l]

		mean, ok := doc.Mean[l]
		if !ok {
			return fmt.Errorf("statistics: missing mean for %s", l)
		}
		variance, ok := doc.Variance[l]
		if !ok {
			return fmt.Errorf("statistics: missing variance for %s", l)
		}
		for _, f := range models.AllFeatures {
			m, ok := mean[f]
			if !ok {
				return fmt.Errorf("statistics: missing mean %s/%s", l, f)
			}
			v, ok := variance[f]
			if !ok {
				return fmt.Errorf("statistics: missing variance %s/%s", l, f)
			}
			out.Mean[l][f] = m
			out.Variance[l][f] = v
		}
	}
	*s = out
	return nil
}
