package models

import "time"

// Статусы башни
const (
	TowerActive      = "active"
	TowerMaintenance = "maintenance"
	TowerOffline     = "offline"
)

// Классификация температуры
const (
	TempOptimal = "optimal"
	TempLow     = "low"
	TempHigh    = "high"
)

// Действия климат-контроля
const (
	HVACIdle    = "idle"
	HVACHeating = "heating"
	HVACCooling = "cooling"
)

// Статусы помещения
const (
	FacilityOptimal  = "optimal"
	FacilityWarning  = "warning"
	FacilityCritical = "critical"
)

// Уровни важности оповещений
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// PlantProfile параметры выращивания культуры
type PlantProfile struct {
	Name             string  `json:"name"`
	TempMin          float64 `json:"tempMin"`
	TempMax          float64 `json:"tempMax"`
	HumidityMin      float64 `json:"humidityMin"`
	HumidityMax      float64 `json:"humidityMax"`
	LightIntensity   float64 `json:"lightIntensity"`
	PhotoperiodHours float64 `json:"photoperiodHours"`
	WaterPerDay      float64 `json:"waterPerDay"`
	NutrientEC       float64 `json:"nutrientEc"`
}

// Tower вертикальная гидропонная башня
type Tower struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	PlantType string    `json:"plantType"`
	Status    string    `json:"status"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"createdAt"`
}

// SensorData снимок показаний датчиков башни
type SensorData struct {
	ID             string    `json:"id"`
	TowerID        string    `json:"towerId"`
	Timestamp      time.Time `json:"timestamp"`
	Temperature    float64   `json:"temperature"`
	Humidity       float64   `json:"humidity"`
	WaterLevel     float64   `json:"waterLevel"`
	NutrientLevel  float64   `json:"nutrientLevel"`
	PH             float64   `json:"ph"`
	LightIntensity float64   `json:"lightIntensity"`
	FlowRate       float64   `json:"flowRate"`
	Evaporation    float64   `json:"evaporation"`
	VPD            float64   `json:"vpd"`
	WaterUsage     float64   `json:"waterUsage"`
	EnergyUsage    float64   `json:"energyUsage"`
	TempStatus     string    `json:"tempStatus"`
	HVACAction     string    `json:"hvacAction"`
}

// FacilityEnvironment агрегированное состояние помещения
type FacilityEnvironment struct {
	Timestamp        time.Time `json:"timestamp"`
	AvgTemperature   float64   `json:"avgTemperature"`
	AvgHumidity      float64   `json:"avgHumidity"`
	AvgVPD           float64   `json:"avgVpd"`
	TotalWaterUsage  float64   `json:"totalWaterUsage"`
	TotalEnergyUsage float64   `json:"totalEnergyUsage"`
	ActiveTowers     int       `json:"activeTowers"`
	Towers           int       `json:"towers"`
	Status           string    `json:"status"`
}

// Alert оповещение о выходе показаний за пределы
type Alert struct {
	ID           string    `json:"id"`
	TowerID      string    `json:"towerId"`
	Type         string    `json:"type"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
	Value        float64   `json:"value"`
	Threshold    float64   `json:"threshold"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// AnalyticsResult результат анализа показаний
type AnalyticsResult struct {
	TowerID            string    `json:"towerId"`
	Timestamp          time.Time `json:"timestamp"`
	RollingAvgTemp     float64   `json:"rollingAvgTemp"`
	RollingAvgHumidity float64   `json:"rollingAvgHumidity"`
	IsAnomaly          bool      `json:"isAnomaly"`
	AnomalyScore       float64   `json:"anomalyScore"`
	AnomalyType        string    `json:"anomalyType,omitempty"`
	StandardDev        float64   `json:"standardDev"`
}

// Типы сообщений WebSocket
const (
	MessageSensorUpdate = "sensor_update"
	MessageSnapshot     = "snapshot"
	MessageAlert        = "alert"
	MessageAnomaly      = "anomaly"
	MessagePong         = "pong"
	MessageError        = "error"
)

// Message конверт сообщения WebSocket
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SensorUpdate полезная нагрузка сообщения sensor_update
type SensorUpdate struct {
	Readings []SensorData        `json:"readings"`
	Facility FacilityEnvironment `json:"facility"`
}
