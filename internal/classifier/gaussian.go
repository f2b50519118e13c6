package classifier

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"wisefido-vitalrisk/internal/models"
)

const (
	// VarianceFloor 方差下限，避免单样本或常量特征导致密度发散
	VarianceFloor = 0.01
	// DensityEpsilon 加在密度上，避免 ln(0)
	DensityEpsilon = 1e-10
	// MinTrainingExamples 最少训练样本数
	MinTrainingExamples = 2
)

// ClassStatistics 高斯朴素贝叶斯的每类统计量，构建后不再修改
type ClassStatistics struct {
	Prior       [models.LabelCount]float64
	Mean        [models.LabelCount][models.FeatureCount]float64
	Variance    [models.LabelCount][models.FeatureCount]float64
	SampleCount [models.LabelCount]int
	TrainedAt   time.Time
}

// Validate 校验外部加载的统计量
func (s *ClassStatistics) Validate() error {
	priorSum := 0.0
	for _, l := range models.AllLabels {
		p := s.Prior[l]
		if math.IsNaN(p) || p <= 0 || p > 1 {
			return fmt.Errorf("invalid prior for %s: %v", l, p)
		}
		priorSum += p
		for _, f := range models.AllFeatures {
			m, v := s.Mean[l][f], s.Variance[l][f]
			if math.IsNaN(m) || math.IsInf(m, 0) {
				return fmt.Errorf("invalid mean for %s/%s: %v", l, f, m)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return fmt.Errorf("invalid variance for %s/%s: %v", l, f, v)
			}
		}
	}
	if math.Abs(priorSum-1) > 1e-6 {
		return fmt.Errorf("priors sum to %v, expected 1", priorSum)
	}
	return nil
}

// TotalSamples 训练样本总数
func (s *ClassStatistics) TotalSamples() int {
	total := 0
	for _, n := range s.SampleCount {
		total += n
	}
	return total
}

// Train 计算先验、均值和总体方差（除以 n，再取 max(var, VarianceFloor)）
func Train(examples []models.TrainingExample) (*ClassStatistics, error) {
	var counts [models.LabelCount]int
	for i, ex := range examples {
		if int(ex.Label) < 0 || int(ex.Label) >= models.LabelCount {
			return nil, &models.ValidationError{Field: "label", Reason: fmt.Sprintf("example %d has unknown label %d", i, int(ex.Label))}
		}
		if err := ex.Vitals.Validate(); err != nil {
			return nil, fmt.Errorf("training example %d: %w", i, err)
		}
		counts[ex.Label]++
	}

	total := len(examples)
	insufficient := &InsufficientDataError{Total: total, Counts: counts}
	for _, l := range models.AllLabels {
		if counts[l] == 0 {
			insufficient.MissingLabels = append(insufficient.MissingLabels, l)
		}
	}
	if total < MinTrainingExamples || len(insufficient.MissingLabels) > 0 {
		return nil, insufficient
	}

	stats := &ClassStatistics{SampleCount: counts, TrainedAt: time.Now().UTC()}

	var sums [models.LabelCount][models.FeatureCount]float64
	for _, ex := range examples {
		vec := ex.Vitals.Vector()
		for _, f := range models.AllFeatures {
			sums[ex.Label][f] += vec[f]
		}
	}
	for _, l := range models.AllLabels {
		stats.Prior[l] = float64(counts[l]) / float64(total)
		for _, f := range models.AllFeatures {
			stats.Mean[l][f] = sums[l][f] / float64(counts[l])
		}
	}

	var sq [models.LabelCount][models.FeatureCount]float64
	for _, ex := range examples {
		vec := ex.Vitals.Vector()
		for _, f := range models.AllFeatures {
			d := vec[f] - stats.Mean[ex.Label][f]
			sq[ex.Label][f] += d * d
		}
	}
	for _, l := range models.AllLabels {
		for _, f := range models.AllFeatures {
			stats.Variance[l][f] = math.Max(sq[l][f]/float64(counts[l]), VarianceFloor)
		}
	}
	return stats, nil
}

func gaussianDensity(x, mean, variance float64) float64 {
	d := x - mean
	return math.Exp(-(d*d)/(2*variance)) / math.Sqrt(2*math.Pi*variance)
}

// ClassifyWithStatistics 对数空间计算后验，log-sum-exp 归一化
// 平局时取 AllLabels 中靠前（较轻）的等级
func ClassifyWithStatistics(v models.CalibratedVitalSigns, stats *ClassStatistics) *models.ClassificationResult {
	x := v.Vector()

	var logProb [models.LabelCount]float64
	var logTerms [models.LabelCount][models.FeatureCount]float64
	for _, l := range models.AllLabels {
		lp := math.Log(stats.Prior[l])
		for _, f := range models.AllFeatures {
			t := math.Log(gaussianDensity(x[f], stats.Mean[l][f], stats.Variance[l][f]) + DensityEpsilon)
			logTerms[l][f] = t
			lp += t
		}
		logProb[l] = lp
	}

	maxLP := logProb[0]
	for _, lp := range logProb[1:] {
		if lp > maxLP {
			maxLP = lp
		}
	}
	var probs models.LabelProbabilities
	sum := 0.0
	for i, lp := range logProb {
		probs[i] = math.Exp(lp - maxLP)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}

	winner := models.RiskNormal
	for _, l := range models.AllLabels[1:] {
		if probs[l] > probs[winner] {
			winner = l
		}
	}

	// 贡献度是证据强度 |ln p|，不区分方向
	var contrib models.FeatureWeights
	for _, f := range models.AllFeatures {
		contrib[f] = math.Abs(logTerms[winner][f])
	}
	contrib = normalizeWeights(contrib)

	return &models.ClassificationResult{
		Strategy:             models.StrategyGaussianNB,
		Label:                winner,
		Confidence:           probs[winner],
		Probabilities:        probs,
		FeatureContributions: contrib,
		Inputs:               v,
		ExplanationText:      gaussianExplanation(winner, probs[winner], contrib),
	}
}

func gaussianExplanation(label models.RiskLabel, p float64, contrib models.FeatureWeights) string {
	order := make([]models.Feature, 0, models.FeatureCount)
	order = append(order, models.AllFeatures[:]...)
	sort.SliceStable(order, func(i, j int) bool {
		return contrib[order[i]] > contrib[order[j]]
	})
	top := make([]string, 0, 2)
	for _, f := range order[:2] {
		top = append(top, f.String())
	}
	return fmt.Sprintf("%s: posterior %.3f, strongest evidence from %s", label, p, strings.Join(top, ", "))
}

// GaussianClassifier 持有当前统计量，重训时整体替换
type GaussianClassifier struct {
	stats atomic.Pointer[ClassStatistics]
}

// NewGaussianClassifier 创建未训练的分类器
func NewGaussianClassifier() *GaussianClassifier {
	return &GaussianClassifier{}
}

// Strategy 策略名
func (c *GaussianClassifier) Strategy() models.Strategy {
	return models.StrategyGaussianNB
}

// Classify 未训练时返回 ErrUntrainedModel
func (c *GaussianClassifier) Classify(v models.CalibratedVitalSigns) (*models.ClassificationResult, error) {
	stats := c.stats.Load()
	if stats == nil {
		return nil, ErrUntrainedModel
	}
	return ClassifyWithStatistics(v, stats), nil
}

// Retrain 训练成功后替换统计量，失败时保留旧统计量
func (c *GaussianClassifier) Retrain(examples []models.TrainingExample) (*ClassStatistics, error) {
	stats, err := Train(examples)
	if err != nil {
		return nil, err
	}
	c.stats.Store(stats)
	snapshot := *stats
	return &snapshot, nil
}

// SetStatistics 使用外部统计量（会复制一份）
func (c *GaussianClassifier) SetStatistics(stats *ClassStatistics) error {
	if stats == nil {
		return fmt.Errorf("statistics is nil")
	}
	if err := stats.Validate(); err != nil {
		return err
	}
	snapshot := *stats
	c.stats.Store(&snapshot)
	return nil
}

// Statistics 当前统计量的副本，未训练返回 nil
func (c *GaussianClassifier) Statistics() *ClassStatistics {
	stats := c.stats.Load()
	if stats == nil {
		return nil
	}
	snapshot := *stats
	return &snapshot
}

// Trained 是否已有统计量
func (c *GaussianClassifier) Trained() bool {
	return c.stats.Load() != nil
}
