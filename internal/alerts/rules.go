package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"vertigrow/internal/models"
	"vertigrow/internal/simulation"
)

// Типы оповещений
const (
	TypeTemperatureHigh = "TEMPERATURE_HIGH"
	TypeTemperatureLow  = "TEMPERATURE_LOW"
	TypeHumidity        = "HUMIDITY_OUT_OF_RANGE"
	TypeLowWater        = "LOW_WATER"
	TypeLowNutrients    = "LOW_NUTRIENTS"
	TypePH              = "PH_OUT_OF_RANGE"
)

const (
	lowWaterThreshold    = 25.0
	lowNutrientThreshold = 20.0
	phMin                = 5.8
	phMax                = 6.8
	criticalTempDelta    = 3.0
)

// Check результат срабатывания правила
type Check struct {
	Severity  string
	Message   string
	Value     float64
	Threshold float64
}

// Rule правило проверки показаний
type Rule struct {
	Type      string
	Evaluator func(data models.SensorData, profile models.PlantProfile) (Check, bool)
}

// DefaultRules стандартный набор правил
var DefaultRules = []Rule{
	{
		Type: TypeTemperatureHigh,
		Evaluator: func(d models.SensorData, p models.PlantProfile) (Check, bool) {
			if d.Temperature <= p.TempMax {
				return Check{}, false
			}
			return Check{
				Severity:  tempSeverity(d.Temperature - p.TempMax),
				Message:   fmt.Sprintf("temperature %.1f°C above %s maximum %.1f°C", d.Temperature, p.Name, p.TempMax),
				Value:     d.Temperature,
				Threshold: p.TempMax,
			}, true
		},
	},
	{
		Type: TypeTemperatureLow,
		Evaluator: func(d models.SensorData, p models.PlantProfile) (Check, bool) {
			if d.Temperature >= p.TempMin {
				return Check{}, false
			}
			return Check{
				Severity:  tempSeverity(p.TempMin - d.Temperature),
				Message:   fmt.Sprintf("temperature %.1f°C below %s minimum %.1f°C", d.Temperature, p.Name, p.TempMin),
				Value:     d.Temperature,
				Threshold: p.TempMin,
			}, true
		},
	},
	{
		Type: TypeHumidity,
		Evaluator: func(d models.SensorData, p models.PlantProfile) (Check, bool) {
			switch {
			case d.Humidity > p.HumidityMax:
				return Check{
					Severity:  models.SeverityWarning,
					Message:   fmt.Sprintf("humidity %.0f%% above %.0f%%", d.Humidity, p.HumidityMax),
					Value:     d.Humidity,
					Threshold: p.HumidityMax,
				}, true
			case d.Humidity < p.HumidityMin:
				return Check{
					Severity:  models.SeverityWarning,
					Message:   fmt.Sprintf("humidity %.0f%% below %.0f%%", d.Humidity, p.HumidityMin),
					Value:     d.Humidity,
					Threshold: p.HumidityMin,
				}, true
			}
			return Check{}, false
		},
	},
	{
		Type: TypeLowWater,
		Evaluator: func(d models.SensorData, _ models.PlantProfile) (Check, bool) {
			if d.WaterLevel >= lowWaterThreshold {
				return Check{}, false
			}
			return Check{
				Severity:  models.SeverityWarning,
				Message:   fmt.Sprintf("water level %.0f%% is low", d.WaterLevel),
				Value:     d.WaterLevel,
				Threshold: lowWaterThreshold,
			}, true
		},
	},
	{
		Type: TypeLowNutrients,
		Evaluator: func(d models.SensorData, _ models.PlantProfile) (Check, bool) {
			if d.NutrientLevel >= lowNutrientThreshold {
				return Check{}, false
			}
			return Check{
				Severity:  models.SeverityInfo,
				Message:   fmt.Sprintf("nutrient level %.0f%% is low", d.NutrientLevel),
				Value:     d.NutrientLevel,
				Threshold: lowNutrientThreshold,
			}, true
		},
	},
	{
		Type: TypePH,
		Evaluator: func(d models.SensorData, _ models.PlantProfile) (Check, bool) {
			switch {
			case d.PH < phMin:
				return Check{Severity: models.SeverityWarning, Message: fmt.Sprintf("pH %.2f below %.1f", d.PH, phMin), Value: d.PH, Threshold: phMin}, true
			case d.PH > phMax:
				return Check{Severity: models.SeverityWarning, Message: fmt.Sprintf("pH %.2f above %.1f", d.PH, phMax), Value: d.PH, Threshold: phMax}, true
			}
			return Check{}, false
		},
	},
}

func tempSeverity(delta float64) string {
	if delta > criticalTempDelta {
		return models.SeverityCritical
	}
	return models.SeverityWarning
}

// Evaluator проверяет показания по правилам с подавлением повторов
type Evaluator struct {
	rules    []Rule
	cooldown time.Duration
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewEvaluator создает проверку правил. cooldown подавляет повторы
// одного типа оповещения по одной башне.
func NewEvaluator(rules []Rule, cooldown time.Duration) *Evaluator {
	return &Evaluator{
		rules:    rules,
		cooldown: cooldown,
		lastSeen: make(map[string]time.Time),
	}
}

// Evaluate возвращает новые оповещения по показанию
func (e *Evaluator) Evaluate(data models.SensorData, profile models.PlantProfile) []models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result []models.Alert
	for _, rule := range e.rules {
		check, fired := rule.Evaluator(data, profile)
		if !fired {
			continue
		}
		key := data.TowerID + "|" + rule.Type
		if last, ok := e.lastSeen[key]; ok && data.Timestamp.Sub(last) < e.cooldown {
			continue
		}
		e.lastSeen[key] = data.Timestamp

		result = append(result, models.Alert{
			ID:        uuid.NewString(),
			TowerID:   data.TowerID,
			Type:      rule.Type,
			Severity:  check.Severity,
			Message:   check.Message,
			Value:     check.Value,
			Threshold: check.Threshold,
			Timestamp: data.Timestamp,
		})
	}
	return result
}

// EvaluateTick проверяет все показания тика
func (e *Evaluator) EvaluateTick(readings []models.SensorData, profileOf func(towerID string) models.PlantProfile) []models.Alert {
	var result []models.Alert
	for _, r := range readings {
		result = append(result, e.Evaluate(r, profileOf(r.TowerID))...)
	}
	return result
}

// Forget сбрасывает состояние подавления для удаленной башни
func (e *Evaluator) Forget(towerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rule := range e.rules {
		delete(e.lastSeen, towerID+"|"+rule.Type)
	}
}

// ProfileLookup возвращает функцию поиска профиля по башне через движок
func ProfileLookup(engine *simulation.Engine) func(string) models.PlantProfile {
	return func(towerID string) models.PlantProfile {
		tower, _, err := engine.Tower(towerID)
		if err != nil {
			return simulation.Profile(simulation.DefaultPlant)
		}
		return simulation.Profile(tower.PlantType)
	}
}
