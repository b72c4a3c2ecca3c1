package simulation

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vertigrow/internal/models"
)

func TestSaturationVaporPressure_KnownPoints(t *testing.T) {
	// Табличные значения: 0 °C ≈ 0.611 кПа, 20 °C ≈ 2.338 кПа, 25 °C ≈ 3.168 кПа
	assert.InDelta(t, 0.6108, SaturationVaporPressure(0), 1e-4)
	assert.InDelta(t, 2.338, SaturationVaporPressure(20), 0.01)
	assert.InDelta(t, 3.168, SaturationVaporPressure(25), 0.01)
}

func TestVaporPressureDeficit(t *testing.T) {
	assert.InDelta(t, SaturationVaporPressure(22)*0.4, VaporPressureDeficit(22, 60), 1e-9)
	assert.Equal(t, 0.0, VaporPressureDeficit(22, 100))
	assert.Equal(t, 0.0, VaporPressureDeficit(22, 120), "humidity above 100% must not go negative")
}

func TestUpdateSensorData_StaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	profile := Profile("basil")
	data := InitialReading("t1", profile, time.Now())
	data.Temperature = MaxTemperature
	data.Humidity = MinHumidity
	data.PH = MaxPH

	for i := 0; i < 10000; i++ {
		data = UpdateSensorData(data, profile, rng)
		require.GreaterOrEqual(t, data.Temperature, MinTemperature)
		require.LessOrEqual(t, data.Temperature, MaxTemperature)
		require.GreaterOrEqual(t, data.Humidity, MinHumidity)
		require.LessOrEqual(t, data.Humidity, MaxHumidity)
		require.GreaterOrEqual(t, data.PH, MinPH)
		require.LessOrEqual(t, data.PH, MaxPH)
	}
}

func TestUpdateSensorData_PullsTowardMidpoint(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	profile := Profile("lettuce")
	data := InitialReading("t1", profile, time.Now())
	data.Temperature = 35

	for i := 0; i < 200; i++ {
		data = UpdateSensorData(data, profile, rng)
	}

	mid := (profile.TempMin + profile.TempMax) / 2
	assert.InDelta(t, mid, data.Temperature, 3)
}

func TestCalculateWaterUsage_MovesFlowTowardTarget(t *testing.T) {
	profile := Profile("strawberry")
	data := InitialReading("t1", profile, time.Now())
	data.FlowRate = MinFlowRate

	target := TargetFlowRate(profile, VaporPressureDeficit(data.Temperature, data.Humidity))
	require.Greater(t, target, MinFlowRate+maxFlowChange)

	next := CalculateWaterUsage(data, profile, 5*time.Second)
	assert.InDelta(t, MinFlowRate+maxFlowChange, next.FlowRate, 1e-9, "flow change is rate limited")

	for i := 0; i < 50; i++ {
		next = CalculateWaterUsage(next, profile, 5*time.Second)
	}
	assert.InDelta(t, target, next.FlowRate, 1e-9)
}

func TestCalculateWaterUsage_DrainsAndRefills(t *testing.T) {
	profile := Profile("lettuce")
	data := InitialReading("t1", profile, time.Now())

	next := CalculateWaterUsage(data, profile, time.Hour)
	assert.Greater(t, next.WaterUsage, 0.0)
	assert.Greater(t, next.Evaporation, 0.0)
	assert.Less(t, next.WaterLevel, data.WaterLevel)
	assert.Less(t, next.NutrientLevel, data.NutrientLevel)

	waterDrop := data.WaterLevel - next.WaterLevel
	nutrientDrop := data.NutrientLevel - next.NutrientLevel
	assert.InDelta(t, waterDrop*nutrientRatio, nutrientDrop, 1e-9)

	next.WaterLevel = refillThreshold + 0.0001
	next.NutrientLevel = 5
	refilled := CalculateWaterUsage(next, profile, time.Hour)
	assert.Equal(t, MaxLevel, refilled.WaterLevel)
	assert.Equal(t, MaxLevel, refilled.NutrientLevel)
}

func TestInPhotoperiod(t *testing.T) {
	tests := []struct {
		name   string
		hour   float64
		period float64
		want   bool
	}{
		{"before start", 5.9, 16, false},
		{"at start", 6, 16, true},
		{"last hour", 21.5, 16, true},
		{"after end", 22, 16, false},
		{"wraps past midnight", 1, 20, true},
		{"wrapped end", 2, 20, false},
		{"always on", 3, 24, true},
		{"never on", 12, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InPhotoperiod(tt.hour, tt.period))
		})
	}
}

func TestAdjustLighting_RampsAndSnaps(t *testing.T) {
	profile := Profile("basil")
	data := models.SensorData{}

	data = AdjustLighting(data, profile, 12, time.Hour)
	assert.InDelta(t, profile.LightIntensity*lightRamp, data.LightIntensity, 1e-9)
	assert.InDelta(t, data.LightIntensity*ledEfficacy, data.EnergyUsage, 1e-9)

	for i := 0; i < 100; i++ {
		data = AdjustLighting(data, profile, 12, time.Hour)
	}
	assert.Equal(t, profile.LightIntensity, data.LightIntensity)

	for i := 0; i < 100; i++ {
		data = AdjustLighting(data, profile, 23, time.Hour)
	}
	assert.Equal(t, 0.0, data.LightIntensity)
	assert.Equal(t, 0.0, data.EnergyUsage)
}

func TestCheckTemperature(t *testing.T) {
	profile := Profile("lettuce")

	tests := []struct {
		name       string
		temp       float64
		wantStatus string
		wantAction string
		wantTemp   float64
	}{
		{"cold", 12, models.TempLow, models.HVACHeating, 12.3},
		{"hot", 30, models.TempHigh, models.HVACCooling, 29.7},
		{"optimal", 20, models.TempOptimal, models.HVACIdle, 20},
		{"at lower bound", profile.TempMin, models.TempOptimal, models.HVACIdle, profile.TempMin},
		{"near upper range", 39.9, models.TempHigh, models.HVACCooling, 39.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckTemperature(models.SensorData{Temperature: tt.temp}, profile, time.Hour)
			assert.Equal(t, tt.wantStatus, got.TempStatus)
			assert.Equal(t, tt.wantAction, got.HVACAction)
			assert.InDelta(t, tt.wantTemp, got.Temperature, 1e-9)
			if tt.wantAction == models.HVACIdle {
				assert.Equal(t, 0.0, got.EnergyUsage)
			} else {
				assert.InDelta(t, hvacPower, got.EnergyUsage, 1e-9)
			}
		})
	}
}

func TestCalculateFacilityEnvironment(t *testing.T) {
	now := time.Now()
	lettuce := Profile("lettuce")

	empty := CalculateFacilityEnvironment(nil, 2, now)
	assert.Equal(t, models.FacilityOptimal, empty.Status)
	assert.Equal(t, 0, empty.ActiveTowers)
	assert.Equal(t, 2, empty.Towers)

	readings := []TowerReading{
		{Profile: lettuce, Data: models.SensorData{Temperature: 20, Humidity: 60, VPD: 1, WaterUsage: 0.5, EnergyUsage: 1}},
		{Profile: lettuce, Data: models.SensorData{Temperature: 22, Humidity: 50, VPD: 2, WaterUsage: 0.25, EnergyUsage: 2}},
	}
	env := CalculateFacilityEnvironment(readings, 3, now)
	assert.InDelta(t, 21, env.AvgTemperature, 1e-9)
	assert.InDelta(t, 55, env.AvgHumidity, 1e-9)
	assert.InDelta(t, 1.5, env.AvgVPD, 1e-9)
	assert.InDelta(t, 0.75, env.TotalWaterUsage, 1e-9)
	assert.InDelta(t, 3, env.TotalEnergyUsage, 1e-9)
	assert.Equal(t, 2, env.ActiveTowers)
	assert.Equal(t, 3, env.Towers)
	assert.Equal(t, models.FacilityOptimal, env.Status)

	readings[1].Data.Temperature = lettuce.TempMax + 1
	assert.Equal(t, models.FacilityWarning, CalculateFacilityEnvironment(readings, 2, now).Status)

	readings[1].Data.Temperature = lettuce.TempMax + 3.5
	assert.Equal(t, models.FacilityCritical, CalculateFacilityEnvironment(readings, 2, now).Status)
}

func TestProfiles(t *testing.T) {
	p, ok := LookupProfile("  Basil ")
	require.True(t, ok)
	assert.Equal(t, "basil", p.Name)

	_, ok = LookupProfile("cactus")
	assert.False(t, ok)
	assert.Equal(t, DefaultPlant, Profile("cactus").Name)

	all := Profiles()
	require.Len(t, all, len(plantProfiles))
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Name, all[i].Name)
	}
	for _, p := range all {
		assert.Less(t, p.TempMin, p.TempMax, p.Name)
		assert.False(t, math.IsNaN(p.LightIntensity))
	}
}
