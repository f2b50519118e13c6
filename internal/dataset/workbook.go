package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"wisefido-vitalrisk/internal/models"
)

// DefaultSheet 导出时使用的工作表名
const DefaultSheet = "training_examples"

const labelColumn = "label"

// 表头别名 -> 规范列名；同时兼容原始 EHR 数据集的印尼语列名
var headerAliases = map[string]string{
	"temperature":       "temperature",
	"suhu":              "temperature",
	"suhu tubuh (c)":    "temperature",
	"heart_rate":        "heart_rate",
	"bpm":               "heart_rate",
	"detak jantung":     "heart_rate",
	"oxygen_saturation": "oxygen_saturation",
	"spo2":              "oxygen_saturation",
	"saturasi oksigen":  "oxygen_saturation",
	"systolic":          "systolic",
	"tekanan_sys":       "systolic",
	"sistolik":          "systolic",
	"diastolic":         "diastolic",
	"tekanan_dia":       "diastolic",
	"diastolik":         "diastolic",
	"signal_quality":    "signal_quality",
	"kualitas sinyal":   "signal_quality",
	"label":             labelColumn,
	"kondisi":           labelColumn,
}

// RowError 某一行无法解析
type RowError struct {
	Row int // 1-based，含表头
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// LoadFile 按扩展名读取 .xlsx 或 .json 训练集
func LoadFile(path, sheet string) ([]models.TrainingExample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadWorkbook(f, sheet)
	case ".json":
		return ReadJSON(f)
	default:
		return nil, fmt.Errorf("unsupported dataset format: %s", filepath.Ext(path))
	}
}

// ReadWorkbook 读取工作表，sheet 为空时取第一个；空行跳过
func ReadWorkbook(r io.Reader, sheet string) ([]models.TrainingExample, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheet)
	}

	columns := make(map[string]int)
	for i, h := range rows[0] {
		if canonical, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			columns[canonical] = i
		}
	}
	required := append(featureColumns(), labelColumn)
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing column %s", name)
		}
	}

	examples := make([]models.TrainingExample, 0, len(rows)-1)
	for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
		row := rows[rowIdx]
		if isBlank(row) {
			continue
		}
		ex, err := parseRow(row, columns)
		if err != nil {
			return nil, &RowError{Row: rowIdx + 1, Err: err}
		}
		examples = append(examples, ex)
	}
	return examples, nil
}

func parseRow(row []string, columns map[string]int) (models.TrainingExample, error) {
	cell := func(name string) string {
		idx := columns[name]
		if idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var values [models.FeatureCount]*float64
	for _, f := range models.AllFeatures {
		raw := cell(f.String())
		if raw == "" {
			continue
		}
		// 兼容逗号小数
		x, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			return models.TrainingExample{}, &models.ValidationError{Field: f.String(), Reason: fmt.Sprintf("not a number: %q", raw)}
		}
		values[f] = &x
	}
	input := models.VitalSignsInput{
		Temperature:      values[models.FeatureTemperature],
		HeartRate:        values[models.FeatureHeartRate],
		OxygenSaturation: values[models.FeatureOxygenSaturation],
		Systolic:         values[models.FeatureSystolic],
		Diastolic:        values[models.FeatureDiastolic],
		SignalQuality:    values[models.FeatureSignalQuality],
	}
	vitals, err := input.ToVitalSigns()
	if err != nil {
		return models.TrainingExample{}, err
	}
	label, err := models.ParseRiskLabel(cell(labelColumn))
	if err != nil {
		return models.TrainingExample{}, err
	}
	return models.TrainingExample{Vitals: vitals, Label: label}, nil
}

// WriteWorkbook 按规范列名导出，可再由 ReadWorkbook 读回
func WriteWorkbook(w io.Writer, examples []models.TrainingExample) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), DefaultSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := append(featureColumns(), labelColumn)
	for col, name := range header {
		if err := setCell(f, col+1, 1, name); err != nil {
			return err
		}
	}
	for i, ex := range examples {
		row := i + 2
		vec := ex.Vitals.Vector()
		for _, feat := range models.AllFeatures {
			if err := setCell(f, int(feat)+1, row, vec[feat]); err != nil {
				return err
			}
		}
		if err := setCell(f, models.FeatureCount+1, row, ex.Label.String()); err != nil {
			return err
		}
	}

	if err := f.SetPanes(DefaultSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(DefaultSheet, cell, value)
}

// ReadJSON 读取 [{"vitals":{...},"label":"Normal"}, ...]
func ReadJSON(r io.Reader) ([]models.TrainingExample, error) {
	var raw []struct {
		Vitals models.VitalSignsInput `json:"vitals"`
		Label  models.RiskLabel       `json:"label"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}

	examples := make([]models.TrainingExample, 0, len(raw))
	for i, item := range raw {
		vitals, err := item.Vitals.ToVitalSigns()
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		examples = append(examples, models.TrainingExample{Vitals: vitals, Label: item.Label})
	}
	return examples, nil
}

func featureColumns() []string {
	cols := make([]string, 0, models.FeatureCount)
	for _, f := range models.AllFeatures {
		cols = append(cols, f.String())
	}
	return cols
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
