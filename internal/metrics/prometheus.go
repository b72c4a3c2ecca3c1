package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vertigrow/internal/models"
)

var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration продолжительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// SensorValue последние показания датчиков башни
	SensorValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vertigrow_sensor_value",
			Help: "Latest simulated sensor value per tower",
		},
		[]string{"tower_id", "sensor"},
	)

	// FacilityValue агрегаты помещения
	FacilityValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vertigrow_facility_value",
			Help: "Latest facility environment aggregate",
		},
		[]string{"metric"},
	)

	// TickDuration длительность шага симуляции
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vertigrow_tick_duration_seconds",
			Help:    "Simulation tick processing time in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// TicksTotal количество шагов симуляции
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vertigrow_ticks_total",
			Help: "Total number of simulation ticks",
		},
	)

	// AlertsRaised поднятые оповещения
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vertigrow_alerts_total",
			Help: "Total number of alerts raised",
		},
		[]string{"type", "severity"},
	)

	// AnomaliesDetected обнаруженные аномалии
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of anomalies detected",
		},
		[]string{"type", "tower_id"},
	)

	// CurrentZScore текущий z-score (gauge)
	CurrentZScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "current_zscore",
			Help: "Current z-score for towers",
		},
		[]string{"tower_id", "metric_type"},
	)

	// RollingAverage текущее скользящее среднее
	RollingAverage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rolling_average",
			Help: "Current rolling average for tower sensors",
		},
		[]string{"tower_id", "metric_type"},
	)

	// AnalysisLatency задержка обработки результата анализа
	AnalysisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_latency_seconds",
			Help:    "Analysis processing latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// WebSocketClients подключенные клиенты
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vertigrow_websocket_clients",
			Help: "Number of connected WebSocket clients",
		},
	)

	// BroadcastMessages отправленные сообщения
	BroadcastMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vertigrow_broadcast_messages_total",
			Help: "WebSocket messages by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// ActiveTowers активные башни
	ActiveTowers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_towers",
			Help: "Number of currently active towers",
		},
	)

	// QueueSize размер очереди анализа
	QueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "processing_queue_size",
			Help: "Current size of the analysis queue",
		},
	)

	// StoreOperations операции с хранилищем
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)
)

// ObserveReading обновляет датчики башни
func ObserveReading(d models.SensorData) {
	SensorValue.WithLabelValues(d.TowerID, "temperature").Set(d.Temperature)
	SensorValue.WithLabelValues(d.TowerID, "humidity").Set(d.Humidity)
	SensorValue.WithLabelValues(d.TowerID, "water_level").Set(d.WaterLevel)
	SensorValue.WithLabelValues(d.TowerID, "nutrient_level").Set(d.NutrientLevel)
	SensorValue.WithLabelValues(d.TowerID, "ph").Set(d.PH)
	SensorValue.WithLabelValues(d.TowerID, "light_intensity").Set(d.LightIntensity)
	SensorValue.WithLabelValues(d.TowerID, "flow_rate").Set(d.FlowRate)
	SensorValue.WithLabelValues(d.TowerID, "vpd").Set(d.VPD)
}

// ObserveAnalysis обновляет скользящие средние и z-score башни
func ObserveAnalysis(r models.AnalyticsResult) {
	RollingAverage.WithLabelValues(r.TowerID, "temperature").Set(r.RollingAvgTemp)
	RollingAverage.WithLabelValues(r.TowerID, "humidity").Set(r.RollingAvgHumidity)
	CurrentZScore.WithLabelValues(r.TowerID, "combined").Set(r.AnomalyScore)
}

// ForgetTower удаляет серии удаленной башни
func ForgetTower(towerID string) {
	labels := prometheus.Labels{"tower_id": towerID}
	SensorValue.DeletePartialMatch(labels)
	RollingAverage.DeletePartialMatch(labels)
	CurrentZScore.DeletePartialMatch(labels)
}

// ObserveFacility обновляет агрегаты помещения
func ObserveFacility(env models.FacilityEnvironment) {
	FacilityValue.WithLabelValues("avg_temperature").Set(env.AvgTemperature)
	FacilityValue.WithLabelValues("avg_humidity").Set(env.AvgHumidity)
	FacilityValue.WithLabelValues("avg_vpd").Set(env.AvgVPD)
	FacilityValue.WithLabelValues("water_usage").Set(env.TotalWaterUsage)
	FacilityValue.WithLabelValues("energy_usage").Set(env.TotalEnergyUsage)
	ActiveTowers.Set(float64(env.ActiveTowers))
}

// StoreResult учитывает результат операции с хранилищем
func StoreResult(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreOperations.WithLabelValues(operation, status).Inc()
}
