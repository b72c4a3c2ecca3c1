package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vertigrow/internal/models"
)

var (
	// ErrTowerNotFound башня не найдена
	ErrTowerNotFound = errors.New("tower not found")
	// ErrUnknownPlant неизвестная культура
	ErrUnknownPlant = errors.New("unknown plant type")
	// ErrInvalidTower некорректные данные башни
	ErrInvalidTower = errors.New("invalid tower")
)

// Sink получатель результатов тика
type Sink func(TickResult)

// TickResult результат одного шага симуляции
type TickResult struct {
	Tick     uint64
	Readings []models.SensorData
	Facility models.FacilityEnvironment
}

// TowerUpdate частичное обновление башни
type TowerUpdate struct {
	Name      *string `json:"name,omitempty"`
	Location  *string `json:"location,omitempty"`
	PlantType *string `json:"plantType,omitempty"`
	Status    *string `json:"status,omitempty"`
	Capacity  *int    `json:"capacity,omitempty"`
}

type towerState struct {
	tower  models.Tower
	latest models.SensorData
}

// Engine контур моделирования среды для набора башен
type Engine struct {
	mu        sync.RWMutex
	towers    map[string]*towerState
	order     []string
	rng       *rand.Rand
	interval  time.Duration
	timeScale float64
	facility  models.FacilityEnvironment
	tick      uint64
	sinks     []Sink
	now       func() time.Time
}

// NewEngine создает движок симуляции. interval задает dt одного тика.
func NewEngine(seed int64, interval time.Duration) *Engine {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		towers:    make(map[string]*towerState),
		rng:       rand.New(rand.NewSource(seed)),
		interval:  interval,
		timeScale: 1,
		facility:  models.FacilityEnvironment{Status: models.FacilityOptimal},
		now:       time.Now,
	}
}

// SetTimeScale задает ускорение модельного времени: за тик проходит
// interval*scale расхода воды, раствора и энергии. Значения <= 0 игнорируются.
func (e *Engine) SetTimeScale(scale float64) {
	if scale <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeScale = scale
}

// OnTick регистрирует получателя результатов. Вызывать до Run.
func (e *Engine) OnTick(sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

func validStatus(status string) bool {
	switch status {
	case models.TowerActive, models.TowerMaintenance, models.TowerOffline:
		return true
	}
	return false
}

// AddTower добавляет башню и инициализирует ее показания
func (e *Engine) AddTower(t models.Tower) (models.Tower, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return models.Tower{}, fmt.Errorf("%w: name is required", ErrInvalidTower)
	}
	if t.PlantType == "" {
		t.PlantType = DefaultPlant
	}
	profile, ok := LookupProfile(t.PlantType)
	if !ok {
		return models.Tower{}, fmt.Errorf("%w: %q", ErrUnknownPlant, t.PlantType)
	}
	t.PlantType = profile.Name
	if t.Status == "" {
		t.Status = models.TowerActive
	}
	if !validStatus(t.Status) {
		return models.Tower{}, fmt.Errorf("%w: status %q", ErrInvalidTower, t.Status)
	}
	if t.Capacity < 0 {
		return models.Tower{}, fmt.Errorf("%w: negative capacity", ErrInvalidTower)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	now := e.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.towers[t.ID]; exists {
		return models.Tower{}, fmt.Errorf("%w: duplicate id %s", ErrInvalidTower, t.ID)
	}

	latest := InitialReading(t.ID, profile, now)
	latest.ID = uuid.NewString()
	e.towers[t.ID] = &towerState{tower: t, latest: latest}
	e.order = append(e.order, t.ID)

	return t, nil
}

// UpdateTower применяет частичное обновление
func (e *Engine) UpdateTower(id string, upd TowerUpdate) (models.Tower, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.towers[id]
	if !ok {
		return models.Tower{}, ErrTowerNotFound
	}

	t := state.tower
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return models.Tower{}, fmt.Errorf("%w: name is required", ErrInvalidTower)
		}
		t.Name = name
	}
	if upd.Location != nil {
		t.Location = *upd.Location
	}
	if upd.PlantType != nil {
		profile, ok := LookupProfile(*upd.PlantType)
		if !ok {
			return models.Tower{}, fmt.Errorf("%w: %q", ErrUnknownPlant, *upd.PlantType)
		}
		t.PlantType = profile.Name
	}
	if upd.Status != nil {
		if !validStatus(*upd.Status) {
			return models.Tower{}, fmt.Errorf("%w: status %q", ErrInvalidTower, *upd.Status)
		}
		t.Status = *upd.Status
	}
	if upd.Capacity != nil {
		if *upd.Capacity < 0 {
			return models.Tower{}, fmt.Errorf("%w: negative capacity", ErrInvalidTower)
		}
		t.Capacity = *upd.Capacity
	}

	state.tower = t
	return t, nil
}

// SetPlantType меняет культуру башни
func (e *Engine) SetPlantType(id, plantType string) (models.Tower, error) {
	return e.UpdateTower(id, TowerUpdate{PlantType: &plantType})
}

// RemoveTower удаляет башню
func (e *Engine) RemoveTower(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.towers[id]; !ok {
		return ErrTowerNotFound
	}
	delete(e.towers, id)
	for i, tid := range e.order {
		if tid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return nil
}

// Tower возвращает башню и ее последние показания
func (e *Engine) Tower(id string) (models.Tower, models.SensorData, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	state, ok := e.towers[id]
	if !ok {
		return models.Tower{}, models.SensorData{}, ErrTowerNotFound
	}
	return state.tower, state.latest, nil
}

// Towers возвращает башни в порядке добавления
func (e *Engine) Towers() []models.Tower {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]models.Tower, 0, len(e.order))
	for _, id := range e.order {
		result = append(result, e.towers[id].tower)
	}
	return result
}

// Latest возвращает последние показания всех башен
func (e *Engine) Latest() []models.SensorData {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]models.SensorData, 0, len(e.order))
	for _, id := range e.order {
		result = append(result, e.towers[id].latest)
	}
	return result
}

// Facility возвращает последний снимок помещения
func (e *Engine) Facility() models.FacilityEnvironment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.facility
}

// Snapshot текущее состояние в формате sensor_update
func (e *Engine) Snapshot() models.SensorUpdate {
	return models.SensorUpdate{Readings: e.Latest(), Facility: e.Facility()}
}

// Stats статистика движка
func (e *Engine) Stats() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	active := 0
	for _, state := range e.towers {
		if state.tower.Status == models.TowerActive {
			active++
		}
	}
	return map[string]interface{}{
		"towers":        len(e.towers),
		"active_towers": active,
		"ticks":         e.tick,
		"interval":      e.interval.String(),
		"time_scale":    e.timeScale,
	}
}

// Step выполняет один шаг контура для всех активных башен
func (e *Engine) Step(now time.Time) TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	hour := float64(now.Hour()) + float64(now.Minute())/60
	dt := time.Duration(float64(e.interval) * e.timeScale)
	readings := make([]TowerReading, 0, len(e.order))

	for _, id := range e.order {
		state := e.towers[id]
		if state.tower.Status != models.TowerActive {
			continue
		}
		profile := Profile(state.tower.PlantType)

		data := UpdateSensorData(state.latest, profile, e.rng)
		data = CalculateWaterUsage(data, profile, dt)
		data = AdjustLighting(data, profile, hour, dt)
		data = CheckTemperature(data, profile, dt)
		data.ID = uuid.NewString()
		data.TowerID = id
		data.Timestamp = now

		state.latest = data
		readings = append(readings, TowerReading{Tower: state.tower, Profile: profile, Data: data})
	}

	e.tick++
	e.facility = CalculateFacilityEnvironment(readings, len(e.towers), now)

	result := TickResult{
		Tick:     e.tick,
		Readings: make([]models.SensorData, len(readings)),
		Facility: e.facility,
	}
	for i, r := range readings {
		result.Readings[i] = r.Data
	}
	return result
}

// Run запускает контур с периодом interval до отмены контекста
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			result := e.Step(now)

			e.mu.RLock()
			sinks := e.sinks
			e.mu.RUnlock()

			for _, sink := range sinks {
				sink(result)
			}
		}
	}
}
