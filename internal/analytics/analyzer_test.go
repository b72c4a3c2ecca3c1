package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vertigrow/internal/models"
)

func warmUp(a *Analyzer, towerID string, n int) {
	for i := 0; i < n; i++ {
		temp := 20.0
		humidity := 60.0
		if i%2 == 1 {
			temp = 20.2
			humidity = 61
		}
		a.Analyze(models.SensorData{TowerID: towerID, Temperature: temp, Humidity: humidity})
	}
}

func TestAnalyze_StableReadingsAreNotAnomalies(t *testing.T) {
	a := NewAnalyzer(50, 2.5)
	warmUp(a, "t1", 20)

	result := a.Analyze(models.SensorData{TowerID: "t1", Temperature: 20.1, Humidity: 60.5})
	assert.False(t, result.IsAnomaly)
	assert.Empty(t, result.AnomalyType)
	assert.InDelta(t, 20.1, result.RollingAvgTemp, 0.01)
	assert.InDelta(t, 60.5, result.RollingAvgHumidity, 0.05)
	assert.False(t, result.Timestamp.IsZero())
}

func TestAnalyze_AnomalyTypes(t *testing.T) {
	tests := []struct {
		name     string
		temp     float64
		humidity float64
		want     string
	}{
		{"temperature spike", 30, 60.5, AnomalyTempSpike},
		{"temperature drop", 10, 60.5, AnomalyTempDrop},
		{"humidity spike", 20.1, 90, AnomalyHumiditySpike},
		{"humidity drop", 20.1, 35, AnomalyHumidityDrop},
		{"both", 30, 90, AnomalyMultiple},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(50, 2.5)
			warmUp(a, "t1", 20)

			result := a.Analyze(models.SensorData{TowerID: "t1", Temperature: tt.temp, Humidity: tt.humidity})
			assert.True(t, result.IsAnomaly)
			assert.Equal(t, tt.want, result.AnomalyType)
			assert.Greater(t, result.AnomalyScore, 2.5)
		})
	}
}

func TestAnalyze_WindowIsBoundedPerTower(t *testing.T) {
	a := NewAnalyzer(5, 2.5)
	for i := 0; i < 20; i++ {
		a.Analyze(models.SensorData{TowerID: "t1", Temperature: float64(i), Humidity: 50})
	}
	a.Analyze(models.SensorData{TowerID: "t2", Temperature: 100, Humidity: 50})

	result := a.Analyze(models.SensorData{TowerID: "t1", Temperature: 20, Humidity: 50})
	// окно содержит 16..20
	assert.InDelta(t, 18, result.RollingAvgTemp, 1e-9)
	assert.Equal(t, 2, a.Stats()["towers_tracked"])

	a.Forget("t2")
	assert.Equal(t, 1, a.Stats()["towers_tracked"])
}

func TestSummary(t *testing.T) {
	a := NewAnalyzer(5, 2.5)
	_, ok := a.Summary("t1")
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		a.Analyze(models.SensorData{TowerID: "t1", Temperature: float64(20 + i), Humidity: 60})
	}

	summary, ok := a.Summary("t1")
	require.True(t, ok)
	assert.Equal(t, "t1", summary.TowerID)
	assert.InDelta(t, 22, summary.RollingAvgTemp, 1e-9)
	assert.InDelta(t, 60, summary.RollingAvgHumidity, 1e-9)
	assert.False(t, summary.IsAnomaly)

	// окно не меняется
	again, _ := a.Summary("t1")
	assert.Equal(t, summary.RollingAvgTemp, again.RollingAvgTemp)

	a.Forget("t1")
	_, ok = a.Summary("t1")
	assert.False(t, ok)
}

func TestAnalyzer_WorkersProduceResults(t *testing.T) {
	a := NewAnalyzer(10, 2.0)
	a.Start(2)

	require.True(t, a.AddReading(models.SensorData{TowerID: "t1", Temperature: 21, Humidity: 55, Timestamp: time.Now()}))

	select {
	case result := <-a.Results():
		assert.Equal(t, "t1", result.TowerID)
		assert.InDelta(t, 21, result.RollingAvgTemp, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("no analysis result")
	}

	a.Stop()
	a.Stop()
	assert.False(t, a.AddReading(models.SensorData{TowerID: "t1"}), "stopped analyzer rejects readings")

	_, open := <-a.Results()
	assert.False(t, open)
}

func TestAnalyzer_DropsWhenQueueFull(t *testing.T) {
	a := NewAnalyzer(10, 2.0)
	for i := 0; i < cap(a.readingsChan); i++ {
		require.True(t, a.AddReading(models.SensorData{TowerID: "t1"}))
	}
	assert.False(t, a.AddReading(models.SensorData{TowerID: "t1"}))
	assert.Equal(t, uint64(1), a.Stats()["dropped"])
	assert.Equal(t, cap(a.readingsChan), a.QueueSize())
}
