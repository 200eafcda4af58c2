package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"btc-signal-sentry/pkg/types"
)

const (
	keyPrefix        = "sentry"
	defaultWindow    = 500
	defaultClaimTTL  = time.Hour
	redisCallTimeout = 3 * time.Second
)

// KLineWindow 按开盘时间排序的有界K线窗口，同一开盘时间的K线会被覆盖（实时推送未收盘K线）
type KLineWindow struct {
	data    []*types.KLine
	maxSize int
	mutex   sync.RWMutex
}

func NewKLineWindow(maxSize int) *KLineWindow {
	if maxSize <= 0 {
		maxSize = defaultWindow
	}
	return &KLineWindow{
		data:    make([]*types.KLine, 0, maxSize),
		maxSize: maxSize,
	}
}

func (w *KLineWindow) Add(k *types.KLine) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	n := len(w.data)
	switch {
	case n > 0 && w.data[n-1].OpenTime.Equal(k.OpenTime):
		w.data[n-1] = k
	case n == 0 || w.data[n-1].OpenTime.Before(k.OpenTime):
		w.data = append(w.data, k)
	default:
		// 乱序到达，插入到正确位置
		i := sort.Search(n, func(i int) bool { return !w.data[i].OpenTime.Before(k.OpenTime) })
		if i < n && w.data[i].OpenTime.Equal(k.OpenTime) {
			w.data[i] = k
		} else {
			w.data = append(w.data, nil)
			copy(w.data[i+1:], w.data[i:])
			w.data[i] = k
		}
	}

	if len(w.data) > w.maxSize {
		w.data = w.data[len(w.data)-w.maxSize:]
	}
}

// Latest 最近 n 根K线（按时间升序），n<=0 返回全部
func (w *KLineWindow) Latest(n int) []*types.KLine {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	if n <= 0 || n > len(w.data) {
		n = len(w.data)
	}
	out := make([]*types.KLine, n)
	copy(out, w.data[len(w.data)-n:])
	return out
}

// Closed 仅返回已收盘的K线
func (w *KLineWindow) Closed() []*types.KLine {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	out := make([]*types.KLine, 0, len(w.data))
	for _, k := range w.data {
		if k.Closed {
			out = append(out, k)
		}
	}
	return out
}

func (w *KLineWindow) Length() int {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return len(w.data)
}

// claim 幂等键占用记录
type claim struct {
	at     time.Time // 信号检测时间
	expiry time.Time // 内存过期时间
}

// StateManager 状态管理器：信号幂等缓存 + K线窗口缓存，Redis不可用时退化为纯内存
type StateManager struct {
	windows     map[string]*KLineWindow
	claims      map[string]claim
	mutex       sync.RWMutex
	windowSize  int
	claimTTL    time.Duration
	redisClient *redis.Client
	useRedis    bool
	now         func() time.Time
}

func NewStateManager(redisConfig types.RedisConfig, claimTTL time.Duration, windowSize int) *StateManager {
	if claimTTL <= 0 {
		claimTTL = defaultClaimTTL
	}
	if windowSize <= 0 {
		windowSize = defaultWindow
	}
	sm := &StateManager{
		windows:    make(map[string]*KLineWindow),
		claims:     make(map[string]claim),
		windowSize: windowSize,
		claimTTL:   claimTTL,
		now:        time.Now,
	}

	// 尝试连接Redis
	if redisConfig.URL != "" {
		sm.redisClient = redis.NewClient(&redis.Options{
			Addr:     redisConfig.URL,
			Password: redisConfig.Password,
			DB:       redisConfig.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := sm.redisClient.Ping(ctx).Result(); err != nil {
			zap.L().Warn("⚠️ Redis连接失败，使用纯内存模式", zap.Error(err))
			sm.useRedis = false
		} else {
			zap.L().Info("✅ Redis连接成功", zap.String("addr", redisConfig.URL))
			sm.useRedis = true
		}
	} else {
		zap.L().Info("🔧 未配置Redis，使用纯内存模式")
	}

	return sm
}

func claimKey(key string) string {
	return fmt.Sprintf("%s:claim:%s", keyPrefix, key)
}

func klineKey(symbol, interval string) string {
	return fmt.Sprintf("%s:kline:%s:%s", keyPrefix, symbol, interval)
}

// Claim 原子占用幂等键，at 为信号检测时间。
// 同一键上一次占用的检测时间与 at 相差不足 claimTTL 时返回 false，否则覆盖并返回 true
func (sm *StateManager) Claim(ctx context.Context, key string, at time.Time) (bool, error) {
	if sm.useRedis {
		ok, err := sm.claimRedis(ctx, key, at)
		if err == nil {
			return ok, nil
		}
		zap.L().Warn("⚠️ Redis幂等键写入失败，退化为内存", zap.String("key", key), zap.Error(err))
	}

	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	now := sm.now()
	if prev, ok := sm.claims[key]; ok && now.Before(prev.expiry) && sm.withinTTL(prev.at, at) {
		return false, nil
	}
	sm.claims[key] = claim{at: at, expiry: now.Add(sm.claimTTL)}
	return true, nil
}

// claimRedis WATCH 事务内读取上一次占用的检测时间并决定是否覆盖
func (sm *StateManager) claimRedis(ctx context.Context, key string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()

	rkey := claimKey(key)
	claimed := false
	err := sm.redisClient.Watch(ctx, func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, rkey).Int64()
		switch {
		case err == redis.Nil:
		case err != nil:
			return err
		case sm.withinTTL(time.UnixMilli(prev), at):
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, at.UnixMilli(), sm.claimTTL)
			return nil
		})
		if err == nil {
			claimed = true
		}
		return err
	}, rkey)

	if err == redis.TxFailedErr {
		// 并发占用者先写入
		return false, nil
	}
	return claimed, err
}

func (sm *StateManager) withinTTL(prev, at time.Time) bool {
	d := at.Sub(prev)
	if d < 0 {
		d = -d
	}
	return d < sm.claimTTL
}

// Release 释放幂等键（入库失败时回滚占用）
func (sm *StateManager) Release(ctx context.Context, key string) {
	if sm.useRedis {
		ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
		defer cancel()
		if err := sm.redisClient.Del(ctx, claimKey(key)).Err(); err != nil {
			zap.L().Warn("⚠️ Redis幂等键释放失败", zap.String("key", key), zap.Error(err))
		}
	}

	sm.mutex.Lock()
	delete(sm.claims, key)
	sm.mutex.Unlock()
}

// Evict 清理内存中过期的幂等键，返回清理数量
func (sm *StateManager) Evict() int {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	now := sm.now()
	evicted := 0
	for key, c := range sm.claims {
		if !now.Before(c.expiry) {
			delete(sm.claims, key)
			evicted++
		}
	}
	return evicted
}

func (sm *StateManager) window(symbol, interval string) *KLineWindow {
	key := symbol + ":" + interval

	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if sm.windows[key] == nil {
		sm.windows[key] = NewKLineWindow(sm.windowSize)
	}
	return sm.windows[key]
}

// StoreKLines 写入K线窗口，Redis可用时异步备份
func (sm *StateManager) StoreKLines(klines []*types.KLine) {
	if len(klines) == 0 {
		return
	}
	w := sm.window(klines[0].Symbol, klines[0].Interval)
	for _, k := range klines {
		w.Add(k)
	}

	if sm.useRedis {
		backup := append([]*types.KLine{}, klines...)
		go sm.backupToRedis(backup)
	}
}

// StoreKLine 写入单根K线
func (sm *StateManager) StoreKLine(k *types.KLine) {
	sm.StoreKLines([]*types.KLine{k})
}

// backupToRedis 备份K线到Redis有序集合，以开盘时间为分数
func (sm *StateManager) backupToRedis(klines []*types.KLine) {
	ctx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
	defer cancel()

	key := klineKey(klines[0].Symbol, klines[0].Interval)
	pipe := sm.redisClient.TxPipeline()
	for _, k := range klines {
		value, err := sonic.Marshal(k)
		if err != nil {
			zap.L().Warn("序列化K线失败", zap.Error(err))
			continue
		}
		score := float64(k.TimeMillis())
		scoreStr := fmt.Sprintf("%.0f", score)
		// 同一开盘时间只保留最新一条
		pipe.ZRemRangeByScore(ctx, key, scoreStr, scoreStr)
		pipe.ZAdd(ctx, key, &redis.Z{Score: score, Member: value})
	}
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-sm.windowSize-1))
	pipe.Expire(ctx, key, 24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		zap.L().Warn("Redis备份K线失败", zap.String("key", key), zap.Error(err))
	}
}

// LatestKLines 读取缓存的最近 n 根K线，内存为空时尝试从Redis恢复
func (sm *StateManager) LatestKLines(ctx context.Context, symbol, interval string, n int) []*types.KLine {
	w := sm.window(symbol, interval)
	if w.Length() > 0 || !sm.useRedis {
		return w.Latest(n)
	}

	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()

	values, err := sm.redisClient.ZRange(ctx, klineKey(symbol, interval), 0, -1).Result()
	if err != nil {
		zap.L().Warn("Redis读取K线失败", zap.Error(err))
		return nil
	}
	for _, v := range values {
		var k types.KLine
		if err := sonic.UnmarshalString(v, &k); err != nil {
			continue
		}
		w.Add(&k)
	}
	zap.L().Info("♻️ 从Redis恢复K线窗口", zap.String("symbol", symbol), zap.Int("count", w.Length()))
	return w.Latest(n)
}

// GetRedisStats 获取缓存统计信息
func (sm *StateManager) GetRedisStats() map[string]interface{} {
	sm.mutex.RLock()
	stats := map[string]interface{}{
		"redis_enabled":  sm.useRedis,
		"memory_windows": len(sm.windows),
		"memory_claims":  len(sm.claims),
	}
	sm.mutex.RUnlock()

	if sm.useRedis {
		ctx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
		defer cancel()

		keys, err := sm.redisClient.Keys(ctx, keyPrefix+":*").Result()
		if err == nil {
			stats["redis_keys"] = len(keys)
		} else {
			stats["redis_error"] = err.Error()
		}
	}

	return stats
}

// Close 关闭Redis连接
func (sm *StateManager) Close() error {
	if sm.redisClient != nil {
		return sm.redisClient.Close()
	}
	return nil
}
