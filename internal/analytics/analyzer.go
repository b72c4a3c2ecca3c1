package analytics

import (
	"math"
	"sync"
	"time"

	"vertigrow/internal/models"
)

// Типы аномалий
const (
	AnomalyTempSpike     = "TEMP_SPIKE"
	AnomalyTempDrop      = "TEMP_DROP"
	AnomalyHumiditySpike = "HUMIDITY_SPIKE"
	AnomalyHumidityDrop  = "HUMIDITY_DROP"
	AnomalyMultiple      = "MULTIPLE_ANOMALY"
)

// ReadingWindow хранит скользящее окно показаний башни
type ReadingWindow struct {
	tempValues     []float64
	humidityValues []float64
	mu             sync.Mutex
	maxSize        int
}

// Analyzer анализатор показаний с rolling average и z-score
type Analyzer struct {
	windows          map[string]*ReadingWindow
	mu               sync.RWMutex
	windowSize       int
	anomalyThreshold float64
	readingsChan     chan models.SensorData
	resultsChan      chan models.AnalyticsResult
	stopChan         chan struct{}
	wg               sync.WaitGroup
	dropped          uint64
	stopOnce         sync.Once
}

// NewAnalyzer создает новый анализатор
func NewAnalyzer(windowSize int, anomalyThreshold float64) *Analyzer {
	return &Analyzer{
		windows:          make(map[string]*ReadingWindow),
		windowSize:       windowSize,
		anomalyThreshold: anomalyThreshold,
		readingsChan:     make(chan models.SensorData, 1000),
		resultsChan:      make(chan models.AnalyticsResult, 1000),
		stopChan:         make(chan struct{}),
	}
}

// Start запускает обработчики в goroutines
func (a *Analyzer) Start(workers int) {
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.processReadings()
	}
}

// Stop останавливает анализатор и закрывает канал результатов
func (a *Analyzer) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopChan)
		a.wg.Wait()
		close(a.resultsChan)
	})
}

// AddReading добавляет показание для анализа. Не блокирует: при
// заполненной очереди показание отбрасывается.
func (a *Analyzer) AddReading(data models.SensorData) bool {
	select {
	case <-a.stopChan:
		return false
	default:
	}

	select {
	case a.readingsChan <- data:
		return true
	default:
		a.mu.Lock()
		a.dropped++
		a.mu.Unlock()
		return false
	}
}

// Results возвращает канал с результатами
func (a *Analyzer) Results() <-chan models.AnalyticsResult {
	return a.resultsChan
}

// processReadings обрабатывает показания из канала
func (a *Analyzer) processReadings() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopChan:
			return
		case data := <-a.readingsChan:
			result := a.Analyze(data)
			select {
			case a.resultsChan <- result:
			default:
				// Канал результатов полон
			}
		}
	}
}

func (a *Analyzer) window(towerID string) *ReadingWindow {
	a.mu.Lock()
	defer a.mu.Unlock()

	window, exists := a.windows[towerID]
	if !exists {
		window = &ReadingWindow{
			tempValues:     make([]float64, 0, a.windowSize),
			humidityValues: make([]float64, 0, a.windowSize),
			maxSize:        a.windowSize,
		}
		a.windows[towerID] = window
	}
	return window
}

// Analyze добавляет показание в окно башни и оценивает аномальность
func (a *Analyzer) Analyze(data models.SensorData) models.AnalyticsResult {
	window := a.window(data.TowerID)

	window.mu.Lock()
	defer window.mu.Unlock()

	window.tempValues = append(window.tempValues, data.Temperature)
	window.humidityValues = append(window.humidityValues, data.Humidity)

	// Ограничиваем размер окна
	if len(window.tempValues) > window.maxSize {
		window.tempValues = window.tempValues[1:]
		window.humidityValues = window.humidityValues[1:]
	}

	avgTemp := calculateAverage(window.tempValues)
	avgHumidity := calculateAverage(window.humidityValues)

	stdDevTemp := calculateStdDev(window.tempValues, avgTemp)
	stdDevHumidity := calculateStdDev(window.humidityValues, avgHumidity)

	var zTemp, zHumidity float64
	if stdDevTemp > 0 {
		zTemp = (data.Temperature - avgTemp) / stdDevTemp
	}
	if stdDevHumidity > 0 {
		zHumidity = (data.Humidity - avgHumidity) / stdDevHumidity
	}

	isAnomaly := false
	anomalyType := ""

	if math.Abs(zTemp) > a.anomalyThreshold {
		isAnomaly = true
		if zTemp > 0 {
			anomalyType = AnomalyTempSpike
		} else {
			anomalyType = AnomalyTempDrop
		}
	}

	if math.Abs(zHumidity) > a.anomalyThreshold {
		isAnomaly = true
		if anomalyType != "" {
			anomalyType = AnomalyMultiple
		} else if zHumidity > 0 {
			anomalyType = AnomalyHumiditySpike
		} else {
			anomalyType = AnomalyHumidityDrop
		}
	}

	timestamp := data.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return models.AnalyticsResult{
		TowerID:            data.TowerID,
		Timestamp:          timestamp,
		RollingAvgTemp:     avgTemp,
		RollingAvgHumidity: avgHumidity,
		IsAnomaly:          isAnomaly,
		AnomalyScore:       math.Max(math.Abs(zTemp), math.Abs(zHumidity)),
		AnomalyType:        anomalyType,
		StandardDev:        math.Max(stdDevTemp, stdDevHumidity),
	}
}

// Summary скользящие средние по текущему окну башни без добавления показания
func (a *Analyzer) Summary(towerID string) (models.AnalyticsResult, bool) {
	a.mu.RLock()
	window, exists := a.windows[towerID]
	a.mu.RUnlock()
	if !exists {
		return models.AnalyticsResult{}, false
	}

	window.mu.Lock()
	defer window.mu.Unlock()
	if len(window.tempValues) == 0 {
		return models.AnalyticsResult{}, false
	}

	avgTemp := calculateAverage(window.tempValues)
	avgHumidity := calculateAverage(window.humidityValues)
	return models.AnalyticsResult{
		TowerID:            towerID,
		Timestamp:          time.Now(),
		RollingAvgTemp:     avgTemp,
		RollingAvgHumidity: avgHumidity,
		StandardDev: math.Max(
			calculateStdDev(window.tempValues, avgTemp),
			calculateStdDev(window.humidityValues, avgHumidity),
		),
	}, true
}

// Forget удаляет окно башни
func (a *Analyzer) Forget(towerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.windows, towerID)
}

// calculateAverage вычисляет среднее значение
func calculateAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateStdDev вычисляет стандартное отклонение
func calculateStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))

	return math.Sqrt(variance)
}

// Stats возвращает статистику анализатора
func (a *Analyzer) Stats() map[string]interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return map[string]interface{}{
		"towers_tracked": len(a.windows),
		"window_size":    a.windowSize,
		"threshold":      a.anomalyThreshold,
		"queue_size":     len(a.readingsChan),
		"dropped":        a.dropped,
	}
}

// QueueSize текущий размер очереди
func (a *Analyzer) QueueSize() int {
	return len(a.readingsChan)
}
