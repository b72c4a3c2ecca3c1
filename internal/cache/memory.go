package cache

import (
	"context"
	"sort"
	"sync"

	"vertigrow/internal/models"
)

// MemoryStore хранилище в памяти процесса. Используется без Redis.
type MemoryStore struct {
	mu           sync.RWMutex
	historyLimit int
	readings     map[string][]models.SensorData
	alerts       []models.Alert
	anomalies    map[string][]models.AnalyticsResult
	facility     *models.FacilityEnvironment
	counters     map[string]int64
	ops          int64
}

// NewMemoryStore создает хранилище с ограничением истории на башню
func NewMemoryStore(historyLimit int) *MemoryStore {
	return &MemoryStore{
		historyLimit: historyLimit,
		readings:     make(map[string][]models.SensorData),
		anomalies:    make(map[string][]models.AnalyticsResult),
		counters:     make(map[string]int64),
	}
}

// SaveReading добавляет показание, вытесняя самые старые
func (m *MemoryStore) SaveReading(_ context.Context, data models.SensorData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++

	history := append(m.readings[data.TowerID], data)
	if len(history) > m.historyLimit {
		history = history[len(history)-m.historyLimit:]
	}
	m.readings[data.TowerID] = history
	return nil
}

// LatestReading последнее показание башни
func (m *MemoryStore) LatestReading(_ context.Context, towerID string) (models.SensorData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.readings[towerID]
	if len(history) == 0 {
		return models.SensorData{}, ErrNotFound
	}
	return history[len(history)-1], nil
}

// RecentReadings последние limit показаний, от новых к старым
func (m *MemoryStore) RecentReadings(_ context.Context, towerID string, limit int) ([]models.SensorData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.readings[towerID]
	if limit > len(history) {
		limit = len(history)
	}
	if limit < 0 {
		limit = 0
	}

	result := make([]models.SensorData, 0, limit)
	for i := len(history) - 1; i >= len(history)-limit; i-- {
		result = append(result, history[i])
	}
	return result, nil
}

// DeleteTower удаляет историю и аномалии башни
func (m *MemoryStore) DeleteTower(_ context.Context, towerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.readings, towerID)
	delete(m.anomalies, towerID)
	return nil
}

// SaveAlert сохраняет оповещение
func (m *MemoryStore) SaveAlert(_ context.Context, alert models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++

	m.alerts = append(m.alerts, alert)
	sort.SliceStable(m.alerts, func(i, j int) bool {
		return m.alerts[i].Timestamp.Before(m.alerts[j].Timestamp)
	})
	if len(m.alerts) > m.historyLimit {
		m.alerts = m.alerts[len(m.alerts)-m.historyLimit:]
	}
	return nil
}

// RecentAlerts последние оповещения, от новых к старым
func (m *MemoryStore) RecentAlerts(_ context.Context, limit int) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit > len(m.alerts) {
		limit = len(m.alerts)
	}
	if limit < 0 {
		limit = 0
	}

	result := make([]models.Alert, 0, limit)
	for i := len(m.alerts) - 1; i >= len(m.alerts)-limit; i-- {
		result = append(result, m.alerts[i])
	}
	return result, nil
}

// AcknowledgeAlert помечает оповещение прочитанным
func (m *MemoryStore) AcknowledgeAlert(_ context.Context, id string) (models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Acknowledged = true
			return m.alerts[i], nil
		}
	}
	return models.Alert{}, ErrNotFound
}

// SaveAnomaly сохраняет аномалию, вытесняя самые старые
func (m *MemoryStore) SaveAnomaly(_ context.Context, result models.AnalyticsResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++

	list := append(m.anomalies[result.TowerID], result)
	if len(list) > m.historyLimit {
		list = list[len(list)-m.historyLimit:]
	}
	m.anomalies[result.TowerID] = list
	return nil
}

// RecentAnomalies последние аномалии башни, от новых к старым
func (m *MemoryStore) RecentAnomalies(_ context.Context, towerID string, limit int) ([]models.AnalyticsResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.anomalies[towerID]
	if limit > len(list) {
		limit = len(list)
	}
	if limit < 0 {
		limit = 0
	}

	result := make([]models.AnalyticsResult, 0, limit)
	for i := len(list) - 1; i >= len(list)-limit; i-- {
		result = append(result, list[i])
	}
	return result, nil
}

// SaveFacility сохраняет снимок помещения
func (m *MemoryStore) SaveFacility(_ context.Context, env models.FacilityEnvironment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	m.facility = &env
	return nil
}

// LatestFacility последний снимок помещения
func (m *MemoryStore) LatestFacility(_ context.Context) (models.FacilityEnvironment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.facility == nil {
		return models.FacilityEnvironment{}, ErrNotFound
	}
	return *m.facility, nil
}

// IncrementCounter увеличивает счетчик
func (m *MemoryStore) IncrementCounter(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return nil
}

// Counter получает значение счетчика
func (m *MemoryStore) Counter(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[key], nil
}

// Ping всегда успешен
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Stats возвращает статистику хранилища
func (m *MemoryStore) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	readings := 0
	for _, h := range m.readings {
		readings += len(h)
	}
	anomalies := 0
	for _, l := range m.anomalies {
		anomalies += len(l)
	}
	return map[string]interface{}{
		"backend":   "memory",
		"towers":    len(m.readings),
		"readings":  readings,
		"alerts":    len(m.alerts),
		"anomalies": anomalies,
		"writes":    m.ops,
	}
}

// Close ничего не делает
func (m *MemoryStore) Close() error {
	return nil
}
