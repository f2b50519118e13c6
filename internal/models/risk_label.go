package models

import (
	"fmt"
	"strings"
)

// RiskLabel 风险等级，数值越大越严重
type RiskLabel int

const (
	RiskNormal RiskLabel = iota
	RiskReduced
	RiskCritical
)

// LabelCount 等级数量
const LabelCount = 3

// AllLabels 规范顺序（严重程度递增）
var AllLabels = [LabelCount]RiskLabel{RiskNormal, RiskReduced, RiskCritical}

var labelNames = [LabelCount]string{"Normal", "Reduced", "Critical"}

// 设备端与历史数据使用的印尼语术语
var labelSourceTerms = [LabelCount]string{"Normal", "Kurang Normal", "Berbahaya"}

func (l RiskLabel) valid() bool {
	return l >= 0 && int(l) < LabelCount
}

func (l RiskLabel) String() string {
	if !l.valid() {
		return fmt.Sprintf("RiskLabel(%d)", int(l))
	}
	return labelNames[l]
}

// SourceTerm 设备端术语，如 "Kurang Normal"
func (l RiskLabel) SourceTerm() string {
	if !l.valid() {
		return l.String()
	}
	return labelSourceTerms[l]
}

// ParseRiskLabel 接受英文名或设备端术语，不区分大小写
func ParseRiskLabel(s string) (RiskLabel, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "_", " ")
	for i := 0; i < LabelCount; i++ {
		if normalized == strings.ToLower(labelNames[i]) || normalized == strings.ToLower(labelSourceTerms[i]) {
			return RiskLabel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown risk label: %q", s)
}

// MarshalText JSON 输出英文名
func (l RiskLabel) MarshalText() ([]byte, error) {
	if !l.valid() {
		return nil, fmt.Errorf("unknown risk label: %d", int(l))
	}
	return []byte(labelNames[l]), nil
}

// UnmarshalText 见 ParseRiskLabel
func (l *RiskLabel) UnmarshalText(text []byte) error {
	parsed, err := ParseRiskLabel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
