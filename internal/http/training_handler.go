package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/dataset"
	"wisefido-vitalrisk/internal/models"
	"wisefido-vitalrisk/internal/modelsource"
	"wisefido-vitalrisk/internal/service"
)

const maxUploadBytes = 10 << 20

// TrainingStore 训练样本表（DB 未启用时为 nil）
type TrainingStore interface {
	ListAll(ctx context.Context) ([]models.TrainingExample, error)
	InsertBatch(ctx context.Context, examples []models.TrainingExample, source string) error
}

// TrainingHandler 训练样本 Excel 导入导出
type TrainingHandler struct {
	store        TrainingStore
	modelManager *service.ModelManager
	logger       *zap.Logger
}

func NewTrainingHandler(store TrainingStore, modelManager *service.ModelManager, logger *zap.Logger) *TrainingHandler {
	return &TrainingHandler{
		store:        store,
		modelManager: modelManager,
		logger:       logger,
	}
}

// Export GET /api/v1/training-examples/export
func (h *TrainingHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("database not enabled"))
		return
	}

	examples, err := h.store.ListAll(r.Context())
	if err != nil {
		h.logger.Error("Failed to list training examples", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list training examples"))
		return
	}

	var buf bytes.Buffer
	if err := dataset.WriteWorkbook(&buf, examples); err != nil {
		h.logger.Error("WriteWorkbook failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(fmt.Sprintf("failed to generate export: %v", err)))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=training-examples.xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Import POST /api/v1/training-examples/import?retrain=true
// multipart 字段 file，支持 .xlsx 与 .json；整个文件在一个事务内写入
func (h *TrainingHandler) Import(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("database not enabled"))
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("failed to parse form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("file not found in request"))
		return
	}
	defer file.Close()

	var examples []models.TrainingExample
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".json":
		examples, err = dataset.ReadJSON(file)
	default:
		examples, err = dataset.ReadWorkbook(file, r.FormValue("sheet"))
	}
	if err != nil {
		var rowErr *dataset.RowError
		if errors.As(err, &rowErr) {
			writeJSON(w, http.StatusBadRequest, Fail(fmt.Sprintf("row %d: %v", rowErr.Row, rowErr.Err)))
			return
		}
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	if len(examples) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("no training examples in file"))
		return
	}

	source := "upload:" + header.Filename
	if err := h.store.InsertBatch(r.Context(), examples, source); err != nil {
		h.logger.Error("Failed to import training examples", zap.String("source", source), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to save training examples"))
		return
	}

	h.logger.Info("Imported training examples",
		zap.String("source", source),
		zap.Int("count", len(examples)),
	)

	resp := map[string]any{
		"imported": len(examples),
		"source":   source,
	}
	if r.URL.Query().Get("retrain") == "true" {
		// 刚导入的样本在数据库里，远程统计量不参与这次重训
		modelSource, err := h.modelManager.ReloadFrom(r.Context(), modelsource.DatabaseSourceName)
		if err != nil {
			resp["retrain_error"] = err.Error()
		} else {
			resp["model_source"] = modelSource
		}
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
