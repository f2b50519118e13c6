package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/cache"
	"wisefido-vitalrisk/internal/classifier"
	"wisefido-vitalrisk/internal/models"
	"wisefido-vitalrisk/internal/service"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxClassifyBody     = 64 << 10
)

// HistoryStore 设备分类历史（DB 未启用时为 nil）
type HistoryStore interface {
	ListRecentByDevice(ctx context.Context, deviceID string, limit int) ([]models.ClassificationRecord, error)
}

// VitalRiskHandler 分类与模型相关接口
type VitalRiskHandler struct {
	processor    *service.ReadingProcessor
	pipeline     *classifier.Pipeline
	modelManager *service.ModelManager
	resultCache  *cache.ResultCache
	history      HistoryStore
	logger       *zap.Logger
}

func NewVitalRiskHandler(
	processor *service.ReadingProcessor,
	pipeline *classifier.Pipeline,
	modelManager *service.ModelManager,
	resultCache *cache.ResultCache,
	history HistoryStore,
	logger *zap.Logger,
) *VitalRiskHandler {
	return &VitalRiskHandler{
		processor:    processor,
		pipeline:     pipeline,
		modelManager: modelManager,
		resultCache:  resultCache,
		history:      history,
		logger:       logger,
	}
}

// ClassifyResponse 分类结果 + 按贡献排序的解释
type ClassifyResponse struct {
	Result      *models.ClassificationResult    `json:"result"`
	Explanation []classifier.FeatureExplanation `json:"explanation"`
}

// Classify POST /api/v1/classify?strategy=
func (h *VitalRiskHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var in models.VitalSignsInput
	if err := readBodyJSON(r, maxClassifyBody, &in); err != nil {
		if errors.Is(err, errEmptyBody) {
			writeJSON(w, http.StatusBadRequest, Fail("request body is empty"))
			return
		}
		writeJSON(w, http.StatusBadRequest, Fail("invalid json body"))
		return
	}

	strategy, err := classifier.ParseStrategy(r.URL.Query().Get("strategy"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	raw, err := in.ToVitalSigns()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	result, err := h.processor.Classify(raw, strategy)
	if err != nil {
		writeJSON(w, classifyErrorStatus(err), Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(ClassifyResponse{
		Result:      result,
		Explanation: classifier.Explain(result),
	}))
}

func classifyErrorStatus(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, classifier.ErrUnknownStrategy):
		return http.StatusBadRequest
	case errors.Is(err, classifier.ErrUntrainedModel):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Health GET /api/v1/health
func (h *VitalRiskHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"status":           "ok",
		"strategies":       h.pipeline.Strategies(),
		"default_strategy": h.pipeline.DefaultStrategy(),
		"gaussian_trained": h.pipeline.Gaussian().Trained(),
	}))
}

// ModelInfo GET /api/v1/model-info
func (h *VitalRiskHandler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	table := classifier.RuleProbabilityTable()
	ruleProbabilities := make(map[string]models.LabelProbabilities, len(table))
	for _, l := range models.AllLabels {
		ruleProbabilities[l.String()] = table[l]
	}

	gaussian := map[string]any{"trained": false}
	if stats := h.pipeline.Gaussian().Statistics(); stats != nil {
		gaussian = map[string]any{
			"trained":    true,
			"statistics": stats,
		}
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"default_strategy":   h.pipeline.DefaultStrategy(),
		"calibration":        h.pipeline.Calibrator().Offsets(),
		"normal_ranges":      h.pipeline.RuleBased().Ranges(),
		"rule_probabilities": ruleProbabilities,
		"gaussian":           gaussian,
		"model_sources":      h.modelManager.Sources(),
	}))
}

// ReloadModel POST /api/v1/model/reload
func (h *VitalRiskHandler) ReloadModel(w http.ResponseWriter, r *http.Request) {
	source, err := h.modelManager.Reload(r.Context())
	if err != nil {
		h.logger.Warn("Model reload failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, Fail(fmt.Sprintf("model reload failed: %v", err)))
		return
	}
	stats := h.pipeline.Gaussian().Statistics()
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"source":     source,
		"samples":    stats.TotalSamples(),
		"trained_at": stats.TrainedAt,
	}))
}

// GetLatest GET /api/v1/devices/{device_id}/latest
func (h *VitalRiskHandler) GetLatest(w http.ResponseWriter, r *http.Request, deviceID string) {
	latest, err := h.resultCache.Get(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			writeJSON(w, http.StatusNotFound, Fail("no recent classification for device"))
			return
		}
		h.logger.Error("Failed to read latest result", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to read latest result"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(latest))
}

// GetHistory GET /api/v1/devices/{device_id}/history?limit=
func (h *VitalRiskHandler) GetHistory(w http.ResponseWriter, r *http.Request, deviceID string) {
	if h.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("database not enabled"))
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := h.history.ListRecentByDevice(r.Context(), deviceID, limit)
	if err != nil {
		h.logger.Error("Failed to list classification history", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list history"))
		return
	}
	if records == nil {
		records = []models.ClassificationRecord{}
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"device_id": deviceID,
		"items":     records,
		"total":     len(records),
	}))
}
