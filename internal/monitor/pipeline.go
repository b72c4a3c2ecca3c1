package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"vertigrow/internal/alerts"
	"vertigrow/internal/analytics"
	"vertigrow/internal/cache"
	"vertigrow/internal/hub"
	"vertigrow/internal/metrics"
	"vertigrow/internal/models"
	"vertigrow/internal/simulation"
)

// MessageTowerUpdated ответ на изменение башни
const MessageTowerUpdated = "tower_updated"

const storeTimeout = 2 * time.Second

// Broadcaster рассылка сообщений клиентам
type Broadcaster interface {
	Broadcast(msgType string, data interface{})
}

// Pipeline связывает шаг симуляции с хранилищем, оповещениями,
// анализатором и рассылкой. Удаление башни не пересекается с обработкой
// тика, поэтому данные удаленной башни не записываются повторно.
type Pipeline struct {
	mu       sync.Mutex
	engine   *simulation.Engine
	store    cache.Store
	analyzer *analytics.Analyzer
	alerts   *alerts.Evaluator
	out      Broadcaster
}

// NewPipeline создает конвейер обработки тиков
func NewPipeline(engine *simulation.Engine, store cache.Store, analyzer *analytics.Analyzer, evaluator *alerts.Evaluator, out Broadcaster) *Pipeline {
	return &Pipeline{
		engine:   engine,
		store:    store,
		analyzer: analyzer,
		alerts:   evaluator,
		out:      out,
	}
}

// HandleTick обрабатывает результат шага симуляции
func (p *Pipeline) HandleTick(result simulation.TickResult) {
	start := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()
	metrics.TicksTotal.Inc()

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	// Башня могла быть удалена между шагом и доставкой
	readings := make([]models.SensorData, 0, len(result.Readings))
	for _, r := range result.Readings {
		if p.exists(r.TowerID) {
			readings = append(readings, r)
		}
	}

	for _, r := range readings {
		metrics.ObserveReading(r)

		err := p.store.SaveReading(ctx, r)
		metrics.StoreResult("save_reading", err)
		if err != nil {
			log.Printf("Failed to store reading for tower %s: %v", r.TowerID, err)
		}

		p.analyzer.AddReading(r)
	}

	metrics.ObserveFacility(result.Facility)
	err := p.store.SaveFacility(ctx, result.Facility)
	metrics.StoreResult("save_facility", err)
	if err != nil {
		log.Printf("Failed to store facility snapshot: %v", err)
	}
	metrics.StoreResult("increment_counter", p.store.IncrementCounter(ctx, "ticks"))

	raised := p.alerts.EvaluateTick(readings, alerts.ProfileLookup(p.engine))
	for _, alert := range raised {
		metrics.AlertsRaised.WithLabelValues(alert.Type, alert.Severity).Inc()

		err := p.store.SaveAlert(ctx, alert)
		metrics.StoreResult("save_alert", err)
		if err != nil {
			log.Printf("Failed to store alert %s: %v", alert.ID, err)
		}
		p.out.Broadcast(models.MessageAlert, alert)
	}

	p.out.Broadcast(models.MessageSensorUpdate, models.SensorUpdate{
		Readings: readings,
		Facility: result.Facility,
	})
}

func (p *Pipeline) exists(towerID string) bool {
	_, _, err := p.engine.Tower(towerID)
	return err == nil
}

// ConsumeAnalysis читает результаты анализатора до закрытия канала
func (p *Pipeline) ConsumeAnalysis() {
	for result := range p.analyzer.Results() {
		start := time.Now()
		p.handleAnalysis(result)
		metrics.AnalysisLatency.Observe(time.Since(start).Seconds())
	}
}

func (p *Pipeline) handleAnalysis(result models.AnalyticsResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Показание из очереди удаленной башни
	if !p.exists(result.TowerID) {
		p.analyzer.Forget(result.TowerID)
		return
	}

	metrics.ObserveAnalysis(result)
	if !result.IsAnomaly {
		return
	}

	metrics.AnomaliesDetected.WithLabelValues(result.AnomalyType, result.TowerID).Inc()
	log.Printf("ANOMALY DETECTED: Tower=%s, Type=%s, Score=%.2f, Temp=%.2f, Humidity=%.2f",
		result.TowerID, result.AnomalyType, result.AnomalyScore, result.RollingAvgTemp, result.RollingAvgHumidity)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	err := p.store.SaveAnomaly(ctx, result)
	metrics.StoreResult("save_anomaly", err)
	if err != nil {
		log.Printf("Failed to store anomaly for tower %s: %v", result.TowerID, err)
	}

	p.out.Broadcast(models.MessageAnomaly, result)
}

// HandleCommand выполняет команды клиентов WebSocket
func (p *Pipeline) HandleCommand(cmd hub.Command) (string, interface{}, error) {
	switch cmd.Type {
	case hub.CommandSetPlant:
		if cmd.TowerID == "" || cmd.PlantType == "" {
			return "", nil, errors.New("towerId and plantType are required")
		}
		tower, err := p.engine.SetPlantType(cmd.TowerID, cmd.PlantType)
		if err != nil {
			return "", nil, err
		}
		log.Printf("Tower %s switched to %s", tower.ID, tower.PlantType)
		p.out.Broadcast(MessageTowerUpdated, tower)
		return MessageTowerUpdated, tower, nil
	default:
		return "", nil, fmt.Errorf("unknown command %q", cmd.Type)
	}
}

// RemoveTower удаляет башню из симуляции и ее историю
func (p *Pipeline) RemoveTower(ctx context.Context, towerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.engine.RemoveTower(towerID); err != nil {
		return err
	}
	p.analyzer.Forget(towerID)
	p.alerts.Forget(towerID)
	metrics.ForgetTower(towerID)

	err := p.store.DeleteTower(ctx, towerID)
	metrics.StoreResult("delete_tower", err)
	if err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

// RefreshGauges периодически обновляет метрики очередей
func (p *Pipeline) RefreshGauges(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.QueueSize.Set(float64(p.analyzer.QueueSize()))
		}
	}
}

// SeedTowers создает n демонстрационных башен с разными культурами
func SeedTowers(engine *simulation.Engine, n int) error {
	profiles := simulation.Profiles()
	for i := 0; i < n; i++ {
		profile := profiles[i%len(profiles)]
		_, err := engine.AddTower(models.Tower{
			Name:      fmt.Sprintf("Tower %d", i+1),
			Location:  fmt.Sprintf("Rack %c", 'A'+rune(i/4)),
			PlantType: profile.Name,
			Capacity:  48,
		})
		if err != nil {
			return fmt.Errorf("seed tower %d: %w", i+1, err)
		}
	}
	return nil
}
