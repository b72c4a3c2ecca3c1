package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vertigrow/internal/models"
	"vertigrow/internal/simulation"
)

func healthyReading(now time.Time) models.SensorData {
	return models.SensorData{
		TowerID:       "t1",
		Timestamp:     now,
		Temperature:   20,
		Humidity:      60,
		WaterLevel:    80,
		NutrientLevel: 80,
		PH:            6.2,
	}
}

func types(alerts []models.Alert) []string {
	result := make([]string, 0, len(alerts))
	for _, a := range alerts {
		result = append(result, a.Type)
	}
	return result
}

func TestEvaluate_HealthyReadingRaisesNothing(t *testing.T) {
	e := NewEvaluator(DefaultRules, time.Minute)
	assert.Empty(t, e.Evaluate(healthyReading(time.Now()), simulation.Profile("lettuce")))
}

func TestEvaluate_Rules(t *testing.T) {
	lettuce := simulation.Profile("lettuce")
	now := time.Now()

	tests := []struct {
		name         string
		mutate       func(d *models.SensorData)
		wantType     string
		wantSeverity string
	}{
		{"slightly hot", func(d *models.SensorData) { d.Temperature = lettuce.TempMax + 1 }, TypeTemperatureHigh, models.SeverityWarning},
		{"very hot", func(d *models.SensorData) { d.Temperature = lettuce.TempMax + 4 }, TypeTemperatureHigh, models.SeverityCritical},
		{"very cold", func(d *models.SensorData) { d.Temperature = lettuce.TempMin - 5 }, TypeTemperatureLow, models.SeverityCritical},
		{"dry", func(d *models.SensorData) { d.Humidity = lettuce.HumidityMin - 1 }, TypeHumidity, models.SeverityWarning},
		{"humid", func(d *models.SensorData) { d.Humidity = lettuce.HumidityMax + 1 }, TypeHumidity, models.SeverityWarning},
		{"low water", func(d *models.SensorData) { d.WaterLevel = 10 }, TypeLowWater, models.SeverityWarning},
		{"low nutrients", func(d *models.SensorData) { d.NutrientLevel = 10 }, TypeLowNutrients, models.SeverityInfo},
		{"acidic", func(d *models.SensorData) { d.PH = 5.6 }, TypePH, models.SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(DefaultRules, time.Minute)
			d := healthyReading(now)
			tt.mutate(&d)

			got := e.Evaluate(d, lettuce)
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantType, got[0].Type)
			assert.Equal(t, tt.wantSeverity, got[0].Severity)
			assert.Equal(t, "t1", got[0].TowerID)
			assert.NotEmpty(t, got[0].ID)
			assert.NotEmpty(t, got[0].Message)
			assert.False(t, got[0].Acknowledged)
		})
	}
}

func TestEvaluate_Cooldown(t *testing.T) {
	lettuce := simulation.Profile("lettuce")
	e := NewEvaluator(DefaultRules, time.Minute)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	d := healthyReading(start)
	d.WaterLevel = 5
	require.Len(t, e.Evaluate(d, lettuce), 1)

	d.Timestamp = start.Add(30 * time.Second)
	assert.Empty(t, e.Evaluate(d, lettuce), "suppressed inside cooldown")

	d.Timestamp = start.Add(30 * time.Second)
	d.TowerID = "t2"
	assert.Len(t, e.Evaluate(d, lettuce), 1, "cooldown is per tower")

	d.TowerID = "t1"
	d.Timestamp = start.Add(61 * time.Second)
	assert.Len(t, e.Evaluate(d, lettuce), 1)

	e.Forget("t1")
	d.Timestamp = start.Add(62 * time.Second)
	assert.Len(t, e.Evaluate(d, lettuce), 1)
}

func TestEvaluateTick_UsesTowerProfile(t *testing.T) {
	engine := simulation.NewEngine(1, time.Second)
	_, err := engine.AddTower(models.Tower{ID: "basil-1", Name: "B", PlantType: "basil"})
	require.NoError(t, err)

	e := NewEvaluator(DefaultRules, time.Minute)
	d := healthyReading(time.Now())
	d.TowerID = "basil-1"
	d.Temperature = 18
	d.Humidity = 50

	// 18 °C нормально для салата, но холодно для базилика
	got := e.EvaluateTick([]models.SensorData{d}, ProfileLookup(engine))
	assert.Equal(t, []string{TypeTemperatureLow}, types(got))
}
