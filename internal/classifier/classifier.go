package classifier

import (
	"fmt"
	"strings"

	"wisefido-vitalrisk/internal/models"
)

// Classifier 风险分类策略
type Classifier interface {
	Strategy() models.Strategy
	Classify(v models.CalibratedVitalSigns) (*models.ClassificationResult, error)
}

// ParseStrategy 解析策略名，空串返回 ("", nil) 由调用方使用默认策略
func ParseStrategy(s string) (models.Strategy, error) {
	switch models.Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case models.StrategyRuleBased:
		return models.StrategyRuleBased, nil
	case models.StrategyGaussianNB:
		return models.StrategyGaussianNB, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}
