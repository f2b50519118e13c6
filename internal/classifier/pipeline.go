package classifier

import (
	"fmt"

	"wisefido-vitalrisk/internal/models"
)

// Pipeline 校验 -> 校准 -> 分类
type Pipeline struct {
	calibrator      *Calibrator
	ruleBased       *RuleBasedClassifier
	gaussian        *GaussianClassifier
	classifiers     map[models.Strategy]Classifier
	defaultStrategy models.Strategy
}

// NewPipeline 创建分类流水线，默认策略必须是已注册策略，校准偏移必须有限
func NewPipeline(calibrator *Calibrator, ranges NormalRanges, defaultStrategy models.Strategy) (*Pipeline, error) {
	if err := calibrator.Offsets().Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		calibrator: calibrator,
		ruleBased:  NewRuleBasedClassifier(ranges),
		gaussian:   NewGaussianClassifier(),
	}
	p.classifiers = map[models.Strategy]Classifier{
		p.ruleBased.Strategy(): p.ruleBased,
		p.gaussian.Strategy():  p.gaussian,
	}
	if _, ok := p.classifiers[defaultStrategy]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, defaultStrategy)
	}
	p.defaultStrategy = defaultStrategy
	return p, nil
}

// Classify strategy 为空时使用默认策略
func (p *Pipeline) Classify(raw models.VitalSigns, strategy models.Strategy) (*models.ClassificationResult, error) {
	if strategy == "" {
		strategy = p.defaultStrategy
	}
	c, ok := p.classifiers[strategy]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	return c.Classify(p.calibrator.Calibrate(raw))
}

// Retrain 训练样本先校准，再训练并替换高斯统计量
func (p *Pipeline) Retrain(examples []models.TrainingExample) (*ClassStatistics, error) {
	return p.gaussian.Retrain(p.calibrator.CalibrateExamples(examples))
}

// Calibrator 校准器
func (p *Pipeline) Calibrator() *Calibrator {
	return p.calibrator
}

// RuleBased 规则分类器
func (p *Pipeline) RuleBased() *RuleBasedClassifier {
	return p.ruleBased
}

// Gaussian 高斯分类器
func (p *Pipeline) Gaussian() *GaussianClassifier {
	return p.gaussian
}

// DefaultStrategy 默认策略
func (p *Pipeline) DefaultStrategy() models.Strategy {
	return p.defaultStrategy
}

// Strategies 已注册策略
func (p *Pipeline) Strategies() []models.Strategy {
	return []models.Strategy{models.StrategyRuleBased, models.StrategyGaussianNB}
}
