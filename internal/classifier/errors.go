package classifier

import (
	"errors"
	"fmt"
	"strings"

	"wisefido-vitalrisk/internal/models"
)

// ErrUnknownStrategy 未注册的分类策略
var ErrUnknownStrategy = errors.New("unknown classifier strategy")

// UntrainedModelError 高斯分类器尚无统计量
type UntrainedModelError struct{}

func (e *UntrainedModelError) Error() string {
	return "gaussian classifier has no trained statistics"
}

// ErrUntrainedModel 唯一实例，可用 errors.Is 判断
var ErrUntrainedModel = &UntrainedModelError{}

// InsufficientDataError 训练数据不足
type InsufficientDataError struct {
	Total         int
	Counts        [models.LabelCount]int
	MissingLabels []models.RiskLabel
}

func (e *InsufficientDataError) Error() string {
	if len(e.MissingLabels) > 0 {
		names := make([]string, len(e.MissingLabels))
		for i, l := range e.MissingLabels {
			names[i] = l.String()
		}
		return fmt.Sprintf("insufficient training data: no examples for %s (total %d)", strings.Join(names, ", "), e.Total)
	}
	return fmt.Sprintf("insufficient training data: %d examples, need at least %d", e.Total, MinTrainingExamples)
}
