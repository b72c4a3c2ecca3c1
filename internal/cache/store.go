package cache

import (
	"context"
	"errors"

	"vertigrow/internal/models"
)

// ErrNotFound запись не найдена
var ErrNotFound = errors.New("not found")

// Store хранилище показаний, оповещений, аномалий и снимков помещения
type Store interface {
	SaveReading(ctx context.Context, data models.SensorData) error
	LatestReading(ctx context.Context, towerID string) (models.SensorData, error)
	RecentReadings(ctx context.Context, towerID string, limit int) ([]models.SensorData, error)
	DeleteTower(ctx context.Context, towerID string) error

	SaveAlert(ctx context.Context, alert models.Alert) error
	RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error)
	AcknowledgeAlert(ctx context.Context, id string) (models.Alert, error)

	SaveAnomaly(ctx context.Context, result models.AnalyticsResult) error
	RecentAnomalies(ctx context.Context, towerID string, limit int) ([]models.AnalyticsResult, error)

	SaveFacility(ctx context.Context, env models.FacilityEnvironment) error
	LatestFacility(ctx context.Context) (models.FacilityEnvironment, error)

	IncrementCounter(ctx context.Context, key string) error
	Counter(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
	Stats() map[string]interface{}
	Close() error
}
