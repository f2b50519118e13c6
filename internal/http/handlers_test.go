package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/alerting"
	"wisefido-vitalrisk/internal/cache"
	"wisefido-vitalrisk/internal/classifier"
	"wisefido-vitalrisk/internal/dataset"
	"wisefido-vitalrisk/internal/metrics"
	"wisefido-vitalrisk/internal/models"
	"wisefido-vitalrisk/internal/modelsource"
	"wisefido-vitalrisk/internal/service"
)

type fakeHistory struct {
	records   []models.ClassificationRecord
	lastLimit int
}

func (f *fakeHistory) ListRecentByDevice(ctx context.Context, deviceID string, limit int) ([]models.ClassificationRecord, error) {
	f.lastLimit = limit
	return f.records, nil
}

type fakeTrainingStore struct {
	examples []models.TrainingExample
	source   string
}

func (f *fakeTrainingStore) ListAll(ctx context.Context) ([]models.TrainingExample, error) {
	return f.examples, nil
}

func (f *fakeTrainingStore) InsertBatch(ctx context.Context, examples []models.TrainingExample, source string) error {
	f.examples = append(f.examples, examples...)
	f.source = source
	return nil
}

// trainingSource 把训练样本表当作统计量来源
type trainingSource struct {
	store      *fakeTrainingStore
	calibrator *classifier.Calibrator
}

func (s *trainingSource) Name() string { return modelsource.DatabaseSourceName }

func (s *trainingSource) Load(ctx context.Context) (*classifier.ClassStatistics, error) {
	if len(s.store.examples) == 0 {
		return nil, errors.New("no examples")
	}
	return classifier.Train(s.calibrator.CalibrateExamples(s.store.examples))
}

type failingSource struct {
	calls int
}

func (s *failingSource) Name() string { return "remote" }

func (s *failingSource) Load(ctx context.Context) (*classifier.ClassStatistics, error) {
	s.calls++
	return nil, errors.New("remote unavailable")
}

type apiFixture struct {
	handler  http.Handler
	pipeline *classifier.Pipeline
	cache    *cache.ResultCache
	history  *fakeHistory
	training *fakeTrainingStore
	metrics  *metrics.Metrics
}

// newAPIFixture preferred 排在数据库来源之前
func newAPIFixture(t *testing.T, preferred ...service.StatisticsSource) *apiFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zap.NewNop()
	m := metrics.New()
	calibrator := classifier.NewCalibrator(classifier.DefaultCalibrationOffsets())
	pipeline, err := classifier.NewPipeline(calibrator, classifier.DefaultNormalRanges(), models.StrategyRuleBased)
	require.NoError(t, err)

	resultCache := cache.NewResultCache(cache.NewRedisKVStore(client), "vital-risk:device:", ":latest", time.Minute, logger)
	processor := service.NewReadingProcessor(pipeline, nil, nil, nil, resultCache, alerting.NewAlertBuilder(models.RiskCritical), m, logger)

	training := &fakeTrainingStore{}
	sources := append(preferred, &trainingSource{store: training, calibrator: calibrator})
	manager := service.NewModelManager(pipeline.Gaussian(), sources, m, logger)
	history := &fakeHistory{}

	router := NewRouter(logger)
	router.RegisterVitalRiskRoutes(NewVitalRiskHandler(processor, pipeline, manager, resultCache, history, logger))
	router.RegisterTrainingRoutes(NewTrainingHandler(training, manager, logger))
	router.HandleHandler("/metrics", m.Handler())

	return &apiFixture{
		handler:  m.Middleware(RouteLabel, router),
		pipeline: pipeline,
		cache:    resultCache,
		history:  history,
		training: training,
		metrics:  m,
	}
}

func (fx *apiFixture) do(t *testing.T, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	fx.handler.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) Result[json.RawMessage] {
	t.Helper()
	var res Result[json.RawMessage]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

const criticalBody = `{"temperature":39.5,"heart_rate":130,"oxygen_saturation":85,"systolic":125,"diastolic":80,"signal_quality":90}`

func sampleExamples() []models.TrainingExample {
	v := func(temp, hr, spo2, sys, dia, sq float64) models.VitalSigns {
		return models.VitalSigns{Temperature: temp, HeartRate: hr, OxygenSaturation: spo2, Systolic: sys, Diastolic: dia, SignalQuality: sq}
	}
	return []models.TrainingExample{
		{Vitals: v(36.8, 75, 98, 120, 80, 95), Label: models.RiskNormal},
		{Vitals: v(36.6, 70, 97, 115, 75, 92), Label: models.RiskNormal},
		{Vitals: v(37.8, 105, 94, 140, 90, 80), Label: models.RiskReduced},
		{Vitals: v(37.9, 110, 93, 145, 92, 78), Label: models.RiskReduced},
		{Vitals: v(39.5, 130, 86, 170, 105, 60), Label: models.RiskCritical},
		{Vitals: v(39.8, 135, 85, 175, 110, 55), Label: models.RiskCritical},
	}
}

func TestClassify_RuleBased(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.do(t, http.MethodPost, "/api/v1/classify", []byte(criticalBody), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	res := decodeResult(t, w)
	assert.Equal(t, ResultSuccess, res.Code)

	var payload ClassifyResponse
	require.NoError(t, json.Unmarshal(res.Result, &payload))
	assert.Equal(t, models.RiskCritical, payload.Result.Label)
	assert.Equal(t, models.StrategyRuleBased, payload.Result.Strategy)
	require.Len(t, payload.Explanation, models.FeatureCount)
	assert.GreaterOrEqual(t, payload.Explanation[0].ContributionPercent, payload.Explanation[models.FeatureCount-1].ContributionPercent)
}

func TestClassify_Errors(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.do(t, http.MethodPost, "/api/v1/classify", []byte(`{"temperature":36.8}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ResultError, decodeResult(t, w).Code)

	w = fx.do(t, http.MethodPost, "/api/v1/classify", []byte(`{`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = fx.do(t, http.MethodPost, "/api/v1/classify?strategy=knn", []byte(criticalBody), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = fx.do(t, http.MethodPost, "/api/v1/classify?strategy=gaussian_nb", []byte(criticalBody), "application/json")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = fx.do(t, http.MethodGet, "/api/v1/classify", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestClassify_EmptyBody(t *testing.T) {
	fx := newAPIFixture(t)

	for _, body := range []string{"", "  \n"} {
		w := fx.do(t, http.MethodPost, "/api/v1/classify", []byte(body), "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		res := decodeResult(t, w)
		assert.Equal(t, ResultError, res.Code)
		assert.Equal(t, "request body is empty", res.Message)
	}
}

func TestClassify_StrategyCaseInsensitive(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.do(t, http.MethodPost, "/api/v1/classify?strategy=Rule_Based", []byte(criticalBody), "application/json")
	assert.Equal(t, http.StatusOK, w.Code)

	// 模型未训练
	w = fx.do(t, http.MethodPost, "/api/v1/classify?strategy=Gaussian_NB", []byte(criticalBody), "application/json")
	assert.Equal(t, http.StatusConflict, w.Code)
}

// seriesCount 指标族当前的时间序列数
func seriesCount(t *testing.T, m *metrics.Metrics, name string) int {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return len(mf.GetMetric())
		}
	}
	return 0
}

func TestClassify_UnknownStrategyKeepsLabelsBounded(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.do(t, http.MethodPost, "/api/v1/classify?strategy=gaussian_nb", []byte(criticalBody), "application/json")
	require.Equal(t, http.StatusConflict, w.Code)
	before := seriesCount(t, fx.metrics, "vitalrisk_classification_errors_total")
	require.Equal(t, 1, before)

	for i := 0; i < 20; i++ {
		target := fmt.Sprintf("/api/v1/classify?strategy=junk%d", i)
		w := fx.do(t, http.MethodPost, target, []byte(criticalBody), "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	assert.Equal(t, before, seriesCount(t, fx.metrics, "vitalrisk_classification_errors_total"))
}

func TestHealthAndModelInfo(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.do(t, http.MethodGet, "/api/v1/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"gaussian_trained":false`)
	assert.Contains(t, w.Body.String(), `"default_strategy":"rule_based"`)

	w = fx.do(t, http.MethodGet, "/api/v1/model-info", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"calibration":{"systolic":15,"diastolic":10}`)
	assert.Contains(t, body, `"gaussian":{"trained":false}`)
	assert.Contains(t, body, `"Critical":{`)
}

func TestReloadModel(t *testing.T) {
	fx := newAPIFixture(t)

	w := fx.do(t, http.MethodPost, "/api/v1/model/reload", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	fx.training.examples = sampleExamples()
	w = fx.do(t, http.MethodPost, "/api/v1/model/reload", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source":"database"`)
	assert.True(t, fx.pipeline.Gaussian().Trained())

	w = fx.do(t, http.MethodPost, "/api/v1/classify?strategy=gaussian_nb", []byte(criticalBody), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	var payload ClassifyResponse
	require.NoError(t, json.Unmarshal(decodeResult(t, w).Result, &payload))
	assert.Equal(t, models.RiskCritical, payload.Result.Label)
}

func TestDeviceLatestAndHistory(t *testing.T) {
	fx := newAPIFixture(t)
	ctx := context.Background()

	w := fx.do(t, http.MethodGet, "/api/v1/devices/esp32-01/latest", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, fx.cache.Put(ctx, &cache.LatestResult{
		DeviceID: "esp32-01",
		Result:   models.ClassificationResult{Strategy: models.StrategyRuleBased, Label: models.RiskReduced, Confidence: 0.8},
	}))
	w = fx.do(t, http.MethodGet, "/api/v1/devices/esp32-01/latest", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"device_id":"esp32-01"`)

	fx.history.records = []models.ClassificationRecord{{ID: 7, DeviceID: "esp32-01"}}
	w = fx.do(t, http.MethodGet, "/api/v1/devices/esp32-01/history?limit=9999", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxHistoryLimit, fx.history.lastLimit)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = fx.do(t, http.MethodGet, "/api/v1/devices/esp32-01/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = fx.do(t, http.MethodGet, "/api/v1/devices/esp32-01", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func uploadRequest(t *testing.T, filename string, content []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestTrainingImportExport(t *testing.T) {
	fx := newAPIFixture(t)

	var wb bytes.Buffer
	require.NoError(t, dataset.WriteWorkbook(&wb, sampleExamples()))
	body, contentType := uploadRequest(t, "ward-a.xlsx", wb.Bytes())

	w := fx.do(t, http.MethodPost, "/api/v1/training-examples/import?retrain=true", body, contentType)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"imported":6`)
	assert.Contains(t, w.Body.String(), `"model_source":"database"`)
	assert.Equal(t, "upload:ward-a.xlsx", fx.training.source)
	assert.True(t, fx.pipeline.Gaussian().Trained())

	w = fx.do(t, http.MethodGet, "/api/v1/training-examples/export", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=training-examples.xlsx", w.Header().Get("Content-Disposition"))

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(dataset.DefaultSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 7)
}

func TestTrainingImport_RetrainUsesDatabase(t *testing.T) {
	remote := &failingSource{}
	fx := newAPIFixture(t, remote)

	var wb bytes.Buffer
	require.NoError(t, dataset.WriteWorkbook(&wb, sampleExamples()))
	body, contentType := uploadRequest(t, "ward-b.xlsx", wb.Bytes())

	w := fx.do(t, http.MethodPost, "/api/v1/training-examples/import?retrain=true", body, contentType)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"model_source":"database"`)
	assert.Zero(t, remote.calls)
	assert.True(t, fx.pipeline.Gaussian().Trained())
}

func TestTrainingImport_BadFile(t *testing.T) {
	fx := newAPIFixture(t)

	body, contentType := uploadRequest(t, "broken.xlsx", []byte("not a workbook"))
	w := fx.do(t, http.MethodPost, "/api/v1/training-examples/import", body, contentType)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fx.training.examples)

	w = fx.do(t, http.MethodPost, "/api/v1/training-examples/import", []byte("x"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	fx := newAPIFixture(t)

	fx.do(t, http.MethodPost, "/api/v1/classify", []byte(criticalBody), "application/json")
	fx.do(t, http.MethodGet, "/api/v1/devices/esp32-01/latest", nil, "")

	w := fx.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `vitalrisk_classifications_total{label="Critical",strategy="rule_based"} 1`)
	assert.Contains(t, body, `path="/api/v1/devices/:device_id/latest"`)
	assert.False(t, strings.Contains(body, "esp32-01"))
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/api/v1/classify":             "/api/v1/classify",
		"/api/v1/devices/abc/history":  "/api/v1/devices/:device_id/history",
		"/api/v1/devices/abc/anything": "/api/v1/devices/*",
		"/favicon.ico":                 "other",
	}
	for path, want := range cases {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		assert.Equal(t, want, RouteLabel(req), path)
	}
}
