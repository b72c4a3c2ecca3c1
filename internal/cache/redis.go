package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vertigrow/internal/models"
)

const alertIndexKey = "alerts"

// RedisStore хранилище на Redis
type RedisStore struct {
	client       *redis.Client
	ttl          time.Duration
	historyLimit int
}

// NewRedisStore подключается к Redis и проверяет соединение
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration, historyLimit int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, ttl, historyLimit), nil
}

// NewRedisStoreFromClient оборачивает готовый клиент
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration, historyLimit int) *RedisStore {
	return &RedisStore{
		client:       client,
		ttl:          ttl,
		historyLimit: historyLimit,
	}
}

func readingKey(towerID string, ts time.Time) string {
	return fmt.Sprintf("reading:%s:%d", towerID, ts.UnixMilli())
}

func latestReadingKey(towerID string) string {
	return fmt.Sprintf("reading:%s:latest", towerID)
}

func readingIndexKey(towerID string) string {
	return fmt.Sprintf("readings:%s", towerID)
}

func alertKey(id string) string {
	return fmt.Sprintf("alert:%s", id)
}

func anomalyKey(towerID string, ts time.Time) string {
	return fmt.Sprintf("anomaly:%s:%d", towerID, ts.UnixMilli())
}

func anomalyIndexKey(towerID string) string {
	return fmt.Sprintf("anomaly_list:%s", towerID)
}

// SaveReading сохраняет показание и индексирует его в sorted set башни
func (r *RedisStore) SaveReading(ctx context.Context, data models.SensorData) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	key := readingKey(data.TowerID, data.Timestamp)
	indexKey := readingIndexKey(data.TowerID)

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, jsonData, r.ttl)
	pipe.Set(ctx, latestReadingKey(data.TowerID), jsonData, r.ttl)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(data.Timestamp.UnixMilli()), Member: key})
	// Оставляем только последние historyLimit записей
	pipe.ZRemRangeByRank(ctx, indexKey, 0, int64(-r.historyLimit-1))
	pipe.Expire(ctx, indexKey, r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store reading: %w", err)
	}
	return nil
}

// LatestReading последнее показание башни
func (r *RedisStore) LatestReading(ctx context.Context, towerID string) (models.SensorData, error) {
	var data models.SensorData
	raw, err := r.client.Get(ctx, latestReadingKey(towerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return data, ErrNotFound
	}
	if err != nil {
		return data, fmt.Errorf("failed to get latest reading: %w", err)
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal reading: %w", err)
	}
	return data, nil
}

// RecentReadings последние limit показаний башни, от новых к старым.
// Истекшие по TTL записи пропускаются.
func (r *RedisStore) RecentReadings(ctx context.Context, towerID string, limit int) ([]models.SensorData, error) {
	if limit <= 0 {
		return []models.SensorData{}, nil
	}

	keys, err := r.client.ZRevRange(ctx, readingIndexKey(towerID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get reading index: %w", err)
	}
	if len(keys) == 0 {
		return []models.SensorData{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get readings: %w", err)
	}

	result := make([]models.SensorData, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var data models.SensorData
		if err := json.Unmarshal([]byte(s), &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reading: %w", err)
		}
		result = append(result, data)
	}
	return result, nil
}

// DeleteTower удаляет историю и аномалии башни
func (r *RedisStore) DeleteTower(ctx context.Context, towerID string) error {
	indexKey := readingIndexKey(towerID)
	keys, err := r.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to get reading index: %w", err)
	}
	anomalies, err := r.client.ZRange(ctx, anomalyIndexKey(towerID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to get anomaly index: %w", err)
	}
	keys = append(keys, anomalies...)
	keys = append(keys, indexKey, anomalyIndexKey(towerID), latestReadingKey(towerID))
	return r.client.Del(ctx, keys...).Err()
}

// SaveAlert сохраняет оповещение (с более длительным TTL)
func (r *RedisStore) SaveAlert(ctx context.Context, alert models.Alert) error {
	jsonData, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	// Оповещения хранятся дольше
	alertTTL := r.ttl * 24

	pipe := r.client.Pipeline()
	pipe.Set(ctx, alertKey(alert.ID), jsonData, alertTTL)
	pipe.ZAdd(ctx, alertIndexKey, redis.Z{Score: float64(alert.Timestamp.UnixMilli()), Member: alert.ID})
	pipe.ZRemRangeByRank(ctx, alertIndexKey, 0, int64(-r.historyLimit-1))
	pipe.Expire(ctx, alertIndexKey, alertTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store alert: %w", err)
	}
	return nil
}

// RecentAlerts последние оповещения, от новых к старым
func (r *RedisStore) RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		return []models.Alert{}, nil
	}

	ids, err := r.client.ZRevRange(ctx, alertIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}
	if len(ids) == 0 {
		return []models.Alert{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = alertKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}

	result := make([]models.Alert, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var alert models.Alert
		if err := json.Unmarshal([]byte(s), &alert); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
		}
		result = append(result, alert)
	}
	return result, nil
}

// AcknowledgeAlert помечает оповещение прочитанным
func (r *RedisStore) AcknowledgeAlert(ctx context.Context, id string) (models.Alert, error) {
	var alert models.Alert
	key := alertKey(id)

	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return alert, ErrNotFound
	}
	if err != nil {
		return alert, fmt.Errorf("failed to get alert: %w", err)
	}
	if err := json.Unmarshal(raw, &alert); err != nil {
		return alert, fmt.Errorf("failed to unmarshal alert: %w", err)
	}

	alert.Acknowledged = true
	jsonData, err := json.Marshal(alert)
	if err != nil {
		return alert, fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := r.client.Set(ctx, key, jsonData, redis.KeepTTL).Err(); err != nil {
		return alert, fmt.Errorf("failed to store alert: %w", err)
	}
	return alert, nil
}

// SaveAnomaly сохраняет аномалию (с более длительным TTL)
func (r *RedisStore) SaveAnomaly(ctx context.Context, result models.AnalyticsResult) error {
	jsonData, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal anomaly: %w", err)
	}

	key := anomalyKey(result.TowerID, result.Timestamp)
	listKey := anomalyIndexKey(result.TowerID)
	anomalyTTL := r.ttl * 24

	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, jsonData, anomalyTTL)
	pipe.ZAdd(ctx, listKey, redis.Z{Score: float64(result.Timestamp.UnixMilli()), Member: key})
	pipe.ZRemRangeByRank(ctx, listKey, 0, int64(-r.historyLimit-1))
	pipe.Expire(ctx, listKey, anomalyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store anomaly: %w", err)
	}
	return nil
}

// RecentAnomalies последние аномалии башни, от новых к старым
func (r *RedisStore) RecentAnomalies(ctx context.Context, towerID string, limit int) ([]models.AnalyticsResult, error) {
	if limit <= 0 {
		return []models.AnalyticsResult{}, nil
	}

	keys, err := r.client.ZRevRange(ctx, anomalyIndexKey(towerID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get anomalies: %w", err)
	}
	if len(keys) == 0 {
		return []models.AnalyticsResult{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get anomalies: %w", err)
	}

	result := make([]models.AnalyticsResult, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var anomaly models.AnalyticsResult
		if err := json.Unmarshal([]byte(s), &anomaly); err != nil {
			return nil, fmt.Errorf("failed to unmarshal anomaly: %w", err)
		}
		result = append(result, anomaly)
	}
	return result, nil
}

// SaveFacility сохраняет последний снимок помещения
func (r *RedisStore) SaveFacility(ctx context.Context, env models.FacilityEnvironment) error {
	jsonData, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal facility: %w", err)
	}
	return r.client.Set(ctx, "facility:latest", jsonData, r.ttl).Err()
}

// LatestFacility последний снимок помещения
func (r *RedisStore) LatestFacility(ctx context.Context) (models.FacilityEnvironment, error) {
	var env models.FacilityEnvironment
	raw, err := r.client.Get(ctx, "facility:latest").Bytes()
	if errors.Is(err, redis.Nil) {
		return env, ErrNotFound
	}
	if err != nil {
		return env, fmt.Errorf("failed to get facility: %w", err)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("failed to unmarshal facility: %w", err)
	}
	return env, nil
}

// IncrementCounter увеличивает счетчик
func (r *RedisStore) IncrementCounter(ctx context.Context, key string) error {
	return r.client.Incr(ctx, "counter:"+key).Err()
}

// Counter получает значение счетчика
func (r *RedisStore) Counter(ctx context.Context, key string) (int64, error) {
	val, err := r.client.Get(ctx, "counter:"+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

// Ping проверяет доступность Redis
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Stats возвращает статистику пула соединений
func (r *RedisStore) Stats() map[string]interface{} {
	stats := r.client.PoolStats()

	return map[string]interface{}{
		"backend":     "redis",
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}

// Close закрывает соединение с Redis
func (r *RedisStore) Close() error {
	return r.client.Close()
}
