package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vertigrow/internal/alerts"
	"vertigrow/internal/analytics"
	"vertigrow/internal/cache"
	"vertigrow/internal/hub"
	"vertigrow/internal/metrics"
	"vertigrow/internal/models"
	"vertigrow/internal/simulation"
)

type recorder struct {
	mu       sync.Mutex
	messages []models.Message
}

func (r *recorder) Broadcast(msgType string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, models.Message{Type: msgType, Data: data})
}

func (r *recorder) ofType(msgType string) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.Message
	for _, m := range r.messages {
		if m.Type == msgType {
			result = append(result, m)
		}
	}
	return result
}

type fixture struct {
	engine   *simulation.Engine
	store    *cache.MemoryStore
	analyzer *analytics.Analyzer
	out      *recorder
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		engine:   simulation.NewEngine(11, 5*time.Second),
		store:    cache.NewMemoryStore(100),
		analyzer: analytics.NewAnalyzer(20, 2.5),
		out:      &recorder{},
	}
	f.pipeline = NewPipeline(f.engine, f.store, f.analyzer, alerts.NewEvaluator(alerts.DefaultRules, time.Minute), f.out)
	require.NoError(t, SeedTowers(f.engine, 3))
	return f
}

func TestSeedTowers(t *testing.T) {
	engine := simulation.NewEngine(1, time.Second)
	require.NoError(t, SeedTowers(engine, 7))

	towers := engine.Towers()
	require.Len(t, towers, 7)
	assert.Equal(t, "Tower 1", towers[0].Name)
	assert.Equal(t, "Rack A", towers[0].Location)
	assert.Equal(t, "Rack B", towers[4].Location)
	assert.NotEqual(t, towers[0].PlantType, towers[1].PlantType)
	assert.Equal(t, towers[0].PlantType, towers[6].PlantType)
}

func TestHandleTick_StoresAnalyzesAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.engine.Step(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	f.pipeline.HandleTick(result)

	for _, r := range result.Readings {
		latest, err := f.store.LatestReading(ctx, r.TowerID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, latest.ID)
	}
	facility, err := f.store.LatestFacility(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, facility.ActiveTowers)

	ticks, err := f.store.Counter(ctx, "ticks")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ticks)

	assert.Equal(t, 3, f.analyzer.QueueSize())

	updates := f.out.ofType(models.MessageSensorUpdate)
	require.Len(t, updates, 1)
	update := updates[0].Data.(models.SensorUpdate)
	assert.Len(t, update.Readings, 3)
}

func TestHandleTick_RaisesAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.engine.Step(time.Now())
	result.Readings[0].Temperature = 2
	result.Readings[0].WaterLevel = 10

	f.pipeline.HandleTick(result)

	alertMsgs := f.out.ofType(models.MessageAlert)
	require.Len(t, alertMsgs, 2)

	stored, err := f.store.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, a := range stored {
		assert.Equal(t, result.Readings[0].TowerID, a.TowerID)
	}

	// повтор в пределах cooldown подавляется
	f.pipeline.HandleTick(result)
	assert.Len(t, f.out.ofType(models.MessageAlert), 2)
}

func TestConsumeAnalysis_StoresAndBroadcastsAnomalies(t *testing.T) {
	f := newFixture(t)
	towerID := f.engine.Towers()[0].ID
	f.analyzer.Start(1)

	done := make(chan struct{})
	go func() {
		f.pipeline.ConsumeAnalysis()
		close(done)
	}()

	for i := 0; i < 20; i++ {
		temp := 20.0
		if i%2 == 1 {
			temp = 20.2
		}
		f.analyzer.AddReading(models.SensorData{TowerID: towerID, Temperature: temp, Humidity: 60})
	}
	f.analyzer.AddReading(models.SensorData{TowerID: towerID, Temperature: 35, Humidity: 60})

	require.Eventually(t, func() bool {
		return len(f.out.ofType(models.MessageAnomaly)) == 1
	}, time.Second, 5*time.Millisecond)

	f.analyzer.Stop()
	<-done

	anomaly := f.out.ofType(models.MessageAnomaly)[0].Data.(models.AnalyticsResult)
	assert.Equal(t, analytics.AnomalyTempSpike, anomaly.AnomalyType)

	stored, err := f.store.RecentAnomalies(context.Background(), towerID, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, analytics.AnomalyTempSpike, stored[0].AnomalyType)

	assert.Greater(t, testutil.ToFloat64(metrics.RollingAverage.WithLabelValues(towerID, "temperature")), 20.0)
}

func TestConsumeAnalysis_IgnoresRemovedTowers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	towerID := f.engine.Towers()[0].ID
	require.NoError(t, f.pipeline.RemoveTower(ctx, towerID))

	// результат из очереди, поставленный до удаления
	f.analyzer.Analyze(models.SensorData{TowerID: towerID, Temperature: 20, Humidity: 60})
	f.pipeline.handleAnalysis(models.AnalyticsResult{TowerID: towerID, IsAnomaly: true, AnomalyType: analytics.AnomalyTempSpike})

	assert.Empty(t, f.out.ofType(models.MessageAnomaly))
	stored, err := f.store.RecentAnomalies(ctx, towerID, 10)
	require.NoError(t, err)
	assert.Empty(t, stored)
	_, ok := f.analyzer.Summary(towerID)
	assert.False(t, ok)
}

func TestHandleCommand(t *testing.T) {
	f := newFixture(t)
	towerID := f.engine.Towers()[0].ID

	msgType, data, err := f.pipeline.HandleCommand(hub.Command{Type: hub.CommandSetPlant, TowerID: towerID, PlantType: "strawberry"})
	require.NoError(t, err)
	assert.Equal(t, MessageTowerUpdated, msgType)
	assert.Equal(t, "strawberry", data.(models.Tower).PlantType)
	assert.Len(t, f.out.ofType(MessageTowerUpdated), 1)

	_, _, err = f.pipeline.HandleCommand(hub.Command{Type: hub.CommandSetPlant, TowerID: towerID})
	assert.Error(t, err)

	_, _, err = f.pipeline.HandleCommand(hub.Command{Type: hub.CommandSetPlant, TowerID: "missing", PlantType: "kale"})
	assert.ErrorIs(t, err, simulation.ErrTowerNotFound)

	_, _, err = f.pipeline.HandleCommand(hub.Command{Type: "reboot"})
	assert.Error(t, err)
}

func TestRemoveTower(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	towerID := f.engine.Towers()[0].ID

	f.pipeline.HandleTick(f.engine.Step(time.Now()))
	require.NoError(t, f.pipeline.RemoveTower(ctx, towerID))

	_, err := f.store.LatestReading(ctx, towerID)
	assert.ErrorIs(t, err, cache.ErrNotFound)
	assert.Len(t, f.engine.Towers(), 2)

	assert.ErrorIs(t, f.pipeline.RemoveTower(ctx, towerID), simulation.ErrTowerNotFound)
}

func TestHandleTick_SkipsTowerRemovedAfterStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	towerID := f.engine.Towers()[0].ID

	result := f.engine.Step(time.Now())
	for i := range result.Readings {
		if result.Readings[i].TowerID == towerID {
			result.Readings[i].WaterLevel = 5
		}
	}
	require.NoError(t, f.pipeline.RemoveTower(ctx, towerID))
	f.pipeline.HandleTick(result)

	recent, err := f.store.RecentReadings(ctx, towerID, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
	_, err = f.store.LatestReading(ctx, towerID)
	assert.ErrorIs(t, err, cache.ErrNotFound)

	assert.Empty(t, f.out.ofType(models.MessageAlert))
	assert.Equal(t, 2, f.analyzer.QueueSize())
	assert.False(t, metrics.SensorValue.DeleteLabelValues(towerID, "temperature"), "gauge series recreated")

	update := f.out.ofType(models.MessageSensorUpdate)[0].Data.(models.SensorUpdate)
	assert.Len(t, update.Readings, 2)
	for _, r := range update.Readings {
		assert.NotEqual(t, towerID, r.TowerID)
	}
}
