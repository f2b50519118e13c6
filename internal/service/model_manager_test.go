package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/classifier"
	"wisefido-vitalrisk/internal/metrics"
	"wisefido-vitalrisk/internal/models"
)

type stubSource struct {
	name  string
	stats *classifier.ClassStatistics
	err   error
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Load(ctx context.Context) (*classifier.ClassStatistics, error) {
	s.calls++
	return s.stats, s.err
}

func trainedStatistics(t *testing.T) *classifier.ClassStatistics {
	t.Helper()
	v := func(temp, hr, spo2, sys, dia, sq float64) models.VitalSigns {
		return models.VitalSigns{Temperature: temp, HeartRate: hr, OxygenSaturation: spo2, Systolic: sys, Diastolic: dia, SignalQuality: sq}
	}
	stats, err := classifier.Train([]models.TrainingExample{
		{Vitals: v(36.8, 75, 98, 105, 70, 95), Label: models.RiskNormal},
		{Vitals: v(36.6, 70, 97, 100, 65, 92), Label: models.RiskNormal},
		{Vitals: v(37.8, 105, 94, 125, 80, 80), Label: models.RiskReduced},
		{Vitals: v(37.9, 110, 93, 130, 82, 78), Label: models.RiskReduced},
		{Vitals: v(39.5, 130, 86, 155, 95, 60), Label: models.RiskCritical},
		{Vitals: v(39.8, 135, 85, 160, 100, 55), Label: models.RiskCritical},
	})
	require.NoError(t, err)
	return stats
}

func TestModelManager_Reload_FallsThrough(t *testing.T) {
	gaussian := classifier.NewGaussianClassifier()
	remote := &stubSource{name: "remote", err: errors.New("503")}
	db := &stubSource{name: "database", stats: trainedStatistics(t)}
	file := &stubSource{name: "dataset", stats: trainedStatistics(t)}

	m := NewModelManager(gaussian, []StatisticsSource{remote, db, file}, metrics.New(), zap.NewNop())
	assert.Equal(t, []string{"remote", "database", "dataset"}, m.Sources())

	source, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "database", source)
	assert.True(t, gaussian.Trained())
	assert.Equal(t, 1, remote.calls)
	assert.Zero(t, file.calls)
}

func TestModelManager_Reload_AllFail(t *testing.T) {
	gaussian := classifier.NewGaussianClassifier()
	invalid := &classifier.ClassStatistics{}
	m := NewModelManager(gaussian, []StatisticsSource{
		&stubSource{name: "remote", stats: invalid},
		&stubSource{name: "dataset", err: errors.New("no such file")},
	}, metrics.New(), zap.NewNop())

	_, err := m.Reload(context.Background())
	assert.ErrorContains(t, err, "dataset: no such file")
	assert.False(t, gaussian.Trained())
}

func TestModelManager_Reload_KeepsPreviousOnFailure(t *testing.T) {
	gaussian := classifier.NewGaussianClassifier()
	require.NoError(t, gaussian.SetStatistics(trainedStatistics(t)))

	m := NewModelManager(gaussian, []StatisticsSource{
		&stubSource{name: "remote", err: errors.New("timeout")},
	}, metrics.New(), zap.NewNop())

	_, err := m.Reload(context.Background())
	assert.Error(t, err)
	assert.True(t, gaussian.Trained())
}

func TestModelManager_NoSources(t *testing.T) {
	m := NewModelManager(classifier.NewGaussianClassifier(), nil, metrics.New(), zap.NewNop())
	_, err := m.Reload(context.Background())
	assert.ErrorIs(t, err, ErrNoModelSource)
}

func TestModelManager_ReloadFrom(t *testing.T) {
	remote := &stubSource{name: "remote", stats: trainedStatistics(t)}
	db := &stubSource{name: "database", err: errors.New("no rows")}
	gaussian := classifier.NewGaussianClassifier()
	m := NewModelManager(gaussian, []StatisticsSource{remote, db}, metrics.New(), zap.NewNop())

	_, err := m.ReloadFrom(context.Background(), "database")
	require.Error(t, err)
	assert.Zero(t, remote.calls)
	assert.False(t, gaussian.Trained())

	db.stats, db.err = trainedStatistics(t), nil
	source, err := m.ReloadFrom(context.Background(), "database")
	require.NoError(t, err)
	assert.Equal(t, "database", source)
	assert.Zero(t, remote.calls)
	assert.True(t, gaussian.Trained())

	_, err = m.ReloadFrom(context.Background(), "dataset")
	assert.ErrorIs(t, err, ErrNoModelSource)
}
