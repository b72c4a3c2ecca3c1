package simulation

import (
	"math"
	"math/rand"
	"time"

	"vertigrow/internal/models"
)

// Допустимые диапазоны показаний
const (
	MinTemperature = 10.0
	MaxTemperature = 40.0
	MinHumidity    = 30.0
	MaxHumidity    = 95.0
	MinFlowRate    = 0.5
	MaxFlowRate    = 5.0
	MinLight       = 0.0
	MaxLight       = 1000.0
	MinLevel       = 0.0
	MaxLevel       = 100.0
	MinPH          = 5.5
	MaxPH          = 7.0
)

const (
	tempStep     = 0.5  // °C за тик
	humidityStep = 2.0  // % за тик
	phStep       = 0.05 // за тик
	setpointPull = 0.1
	targetPH     = 6.2
	initialFlow  = 1.0

	baseEvaporation = 0.05  // л/ч
	reservoirLiters = 200.0 // объем резервуара
	nutrientRatio   = 1.6   // раствор убывает быстрее воды
	refillThreshold = 20.0
	maxFlowChange   = 0.25 // л/мин за тик

	lightRamp        = 0.2
	lightSnap        = 1.0
	photoperiodStart = 6.0    // 06:00
	ledEfficacy      = 0.0005 // кВт на µmol/m²/s

	hvacStep  = 0.3 // °C коррекции за тик
	hvacPower = 1.5 // кВт

	criticalDeviation = 3.0 // °C
)

// TowerReading показание башни вместе с ее профилем
type TowerReading struct {
	Tower   models.Tower
	Profile models.PlantProfile
	Data    models.SensorData
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// jitter равномерный шум в диапазоне [-step, step]
func jitter(rng *rand.Rand, step float64) float64 {
	return (rng.Float64()*2 - 1) * step
}

// InitialReading стартовые показания для новой башни
func InitialReading(towerID string, profile models.PlantProfile, now time.Time) models.SensorData {
	data := models.SensorData{
		TowerID:       towerID,
		Timestamp:     now,
		Temperature:   (profile.TempMin + profile.TempMax) / 2,
		Humidity:      (profile.HumidityMin + profile.HumidityMax) / 2,
		WaterLevel:    MaxLevel,
		NutrientLevel: MaxLevel,
		PH:            targetPH,
		FlowRate:      initialFlow,
		TempStatus:    models.TempOptimal,
		HVACAction:    models.HVACIdle,
	}
	data.VPD = VaporPressureDeficit(data.Temperature, data.Humidity)
	return data
}

// UpdateSensorData случайное блуждание температуры, влажности и pH
// с притяжением к середине диапазона культуры
func UpdateSensorData(prev models.SensorData, profile models.PlantProfile, rng *rand.Rand) models.SensorData {
	next := prev

	tempMid := (profile.TempMin + profile.TempMax) / 2
	next.Temperature = clamp(
		prev.Temperature+jitter(rng, tempStep)+(tempMid-prev.Temperature)*setpointPull,
		MinTemperature, MaxTemperature,
	)

	humidityMid := (profile.HumidityMin + profile.HumidityMax) / 2
	next.Humidity = clamp(
		prev.Humidity+jitter(rng, humidityStep)+(humidityMid-prev.Humidity)*setpointPull,
		MinHumidity, MaxHumidity,
	)

	next.PH = clamp(prev.PH+jitter(rng, phStep)+(targetPH-prev.PH)*setpointPull, MinPH, MaxPH)

	return next
}

// SaturationVaporPressure давление насыщенного пара (кПа), формула Магнуса-Тетенса
func SaturationVaporPressure(tempC float64) float64 {
	return 0.6108 * math.Exp(17.27*tempC/(tempC+237.3))
}

// VaporPressureDeficit дефицит давления пара (кПа)
func VaporPressureDeficit(tempC, humidity float64) float64 {
	rh := clamp(humidity, 0, 100)
	return math.Max(0, SaturationVaporPressure(tempC)*(1-rh/100))
}

// TargetFlowRate целевой расход насоса по суточной потребности культуры и VPD
func TargetFlowRate(profile models.PlantProfile, vpd float64) float64 {
	return clamp(profile.WaterPerDay/4*(1+vpd/2), MinFlowRate, MaxFlowRate)
}

// CalculateWaterUsage рассчитывает испарение, регулирует насос и расход воды
// и питательного раствора за интервал dt
func CalculateWaterUsage(data models.SensorData, profile models.PlantProfile, dt time.Duration) models.SensorData {
	hours := dt.Hours()
	vpd := VaporPressureDeficit(data.Temperature, data.Humidity)
	data.VPD = vpd

	// Насос плавно догоняет целевой расход
	target := TargetFlowRate(profile, vpd)
	change := clamp(target-data.FlowRate, -maxFlowChange, maxFlowChange)
	data.FlowRate = clamp(data.FlowRate+change, MinFlowRate, MaxFlowRate)

	data.Evaporation = baseEvaporation * (1 + vpd) * (data.FlowRate / 2)

	used := data.Evaporation*hours + profile.WaterPerDay*hours/24
	data.WaterUsage = used

	drop := used / reservoirLiters * 100
	data.WaterLevel = clamp(data.WaterLevel-drop, MinLevel, MaxLevel)
	data.NutrientLevel = clamp(data.NutrientLevel-drop*nutrientRatio, MinLevel, MaxLevel)

	// Автодолив резервуара
	if data.WaterLevel < refillThreshold {
		data.WaterLevel = MaxLevel
		data.NutrientLevel = MaxLevel
	}

	return data
}

// InPhotoperiod проверяет, включен ли свет в данный час суток
func InPhotoperiod(hour, photoperiodHours float64) bool {
	if photoperiodHours <= 0 {
		return false
	}
	if photoperiodHours >= 24 {
		return true
	}
	end := photoperiodStart + photoperiodHours
	if end <= 24 {
		return hour >= photoperiodStart && hour < end
	}
	return hour >= photoperiodStart || hour < end-24
}

// AdjustLighting ведет интенсивность света к уставке культуры и считает
// энергопотребление освещения за dt
func AdjustLighting(data models.SensorData, profile models.PlantProfile, hour float64, dt time.Duration) models.SensorData {
	target := 0.0
	if InPhotoperiod(hour, profile.PhotoperiodHours) {
		target = profile.LightIntensity
	}

	gap := target - data.LightIntensity
	if math.Abs(gap) <= lightSnap {
		data.LightIntensity = target
	} else {
		data.LightIntensity += gap * lightRamp
	}
	data.LightIntensity = clamp(data.LightIntensity, MinLight, MaxLight)

	data.EnergyUsage = data.LightIntensity * ledEfficacy * dt.Hours()
	return data
}

// CheckTemperature классифицирует температуру и включает обогрев или охлаждение
func CheckTemperature(data models.SensorData, profile models.PlantProfile, dt time.Duration) models.SensorData {
	switch {
	case data.Temperature < profile.TempMin:
		data.TempStatus = models.TempLow
		data.HVACAction = models.HVACHeating
		data.Temperature += hvacStep
	case data.Temperature > profile.TempMax:
		data.TempStatus = models.TempHigh
		data.HVACAction = models.HVACCooling
		data.Temperature -= hvacStep
	default:
		data.TempStatus = models.TempOptimal
		data.HVACAction = models.HVACIdle
	}

	if data.HVACAction != models.HVACIdle {
		data.EnergyUsage += hvacPower * dt.Hours()
	}
	data.Temperature = clamp(data.Temperature, MinTemperature, MaxTemperature)

	return data
}

// TemperatureDeviation насколько температура вышла за диапазон культуры
func TemperatureDeviation(tempC float64, profile models.PlantProfile) float64 {
	return math.Max(0, math.Max(profile.TempMin-tempC, tempC-profile.TempMax))
}

// CalculateFacilityEnvironment агрегирует показания активных башен
func CalculateFacilityEnvironment(readings []TowerReading, totalTowers int, now time.Time) models.FacilityEnvironment {
	env := models.FacilityEnvironment{
		Timestamp:    now,
		ActiveTowers: len(readings),
		Towers:       totalTowers,
		Status:       models.FacilityOptimal,
	}
	if len(readings) == 0 {
		return env
	}

	maxDeviation := 0.0
	for _, r := range readings {
		env.AvgTemperature += r.Data.Temperature
		env.AvgHumidity += r.Data.Humidity
		env.AvgVPD += r.Data.VPD
		env.TotalWaterUsage += r.Data.WaterUsage
		env.TotalEnergyUsage += r.Data.EnergyUsage
		maxDeviation = math.Max(maxDeviation, TemperatureDeviation(r.Data.Temperature, r.Profile))
	}

	n := float64(len(readings))
	env.AvgTemperature /= n
	env.AvgHumidity /= n
	env.AvgVPD /= n

	switch {
	case maxDeviation > criticalDeviation:
		env.Status = models.FacilityCritical
	case maxDeviation > 0:
		env.Status = models.FacilityWarning
	}

	return env
}
