package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"btc-signal-sentry/internal/strategy/dedup"
	"btc-signal-sentry/pkg/types"
)

// Manager 数据库管理器
type Manager struct {
	db     *gorm.DB
	config types.MySQLConfig
}

// KLine 数据库K线模型
type KLine struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Symbol    string          `gorm:"type:varchar(20);not null;uniqueIndex:uk_symbol_tf_time" json:"symbol"`
	Timeframe string          `gorm:"column:timeframe;type:varchar(10);not null;uniqueIndex:uk_symbol_tf_time" json:"timeframe"`
	OpenTime  int64           `gorm:"not null;uniqueIndex:uk_symbol_tf_time" json:"open_time"` // 毫秒
	CloseTime int64           `gorm:"not null" json:"close_time"`
	Open      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"open"`
	High      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"high"`
	Low       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"low"`
	Close     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"close"`
	Volume    decimal.Decimal `gorm:"type:decimal(28,8);not null" json:"volume"`
	CreatedAt time.Time       `json:"created_at"`
}

// TradeSignal 交易信号模型
type TradeSignal struct {
	ID                string              `gorm:"type:varchar(36);primaryKey" json:"id"`
	Symbol            string              `gorm:"type:varchar(20);not null;index:idx_lookup" json:"symbol"`
	Strategy          string              `gorm:"type:varchar(32);not null;index:idx_lookup" json:"strategy"`
	Direction         string              `gorm:"type:varchar(8);not null;index:idx_lookup" json:"direction"`
	Confidence        int                 `gorm:"not null" json:"confidence"`
	EntryPrice        decimal.Decimal     `gorm:"type:decimal(20,8);not null" json:"entry_price"`
	StopLoss          decimal.Decimal     `gorm:"type:decimal(20,8);not null" json:"stop_loss"`
	TakeProfit        decimal.Decimal     `gorm:"type:decimal(20,8);not null" json:"take_profit"`
	RiskReward        decimal.Decimal     `gorm:"type:decimal(10,4);not null" json:"risk_reward"`
	Rationale         string              `gorm:"type:text" json:"rationale"`
	Timeframe         string              `gorm:"type:varchar(10);not null" json:"timeframe"`
	Status            string              `gorm:"type:varchar(16);not null;index:idx_status" json:"status"`
	ConfluenceLevel   string              `gorm:"type:varchar(16)" json:"confluence_level"`
	AlignedStrategies string              `gorm:"type:varchar(128)" json:"aligned_strategies"` // 逗号分隔
	DetectedAt        time.Time           `gorm:"not null;index:idx_lookup" json:"detected_at"`
	TriggeredAt       *time.Time          `json:"triggered_at"`
	ClosedAt          *time.Time          `json:"closed_at"`
	ClosePrice        decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"close_price"`
	PnLPercent        decimal.NullDecimal `gorm:"column:pnl_percent;type:decimal(10,4)" json:"pnl_percent"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// ScanRecord 扫描历史模型
type ScanRecord struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ScanType          string    `gorm:"type:varchar(16);not null" json:"scan_type"`
	Symbol            string    `gorm:"type:varchar(20);not null" json:"symbol"`
	Timeframe         string    `gorm:"type:varchar(10);not null" json:"timeframe"`
	CandlesAnalyzed   int       `json:"candles_analyzed"`
	SignalsDetected   int       `json:"signals_detected"`
	Duplicates        int       `json:"duplicates"`
	SignalsSaved      int       `json:"signals_saved"`
	NotificationsSent int       `json:"notifications_sent"`
	PositionsClosed   int       `json:"positions_closed"`
	Outcome           string    `gorm:"type:varchar(20)" json:"outcome"`
	Status            string    `gorm:"type:varchar(10);not null" json:"status"`
	ErrorMessage      string    `gorm:"type:text" json:"error_message"`
	DurationMs        int64     `json:"duration_ms"`
	CreatedAt         time.Time `gorm:"index" json:"created_at"`
}

// StrategyPerformance 策略每日信号统计
type StrategyPerformance struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Symbol        string          `gorm:"type:varchar(20);not null;uniqueIndex:uk_symbol_strategy_date" json:"symbol"`
	Strategy      string          `gorm:"type:varchar(32);not null;uniqueIndex:uk_symbol_strategy_date" json:"strategy"`
	Date          time.Time       `gorm:"type:date;not null;uniqueIndex:uk_symbol_strategy_date" json:"date"`
	TotalSignals  int             `gorm:"default:0" json:"total_signals"`
	LongSignals   int             `gorm:"default:0" json:"long_signals"`
	ShortSignals  int             `gorm:"default:0" json:"short_signals"`
	AvgConfidence decimal.Decimal `gorm:"type:decimal(5,2)" json:"avg_confidence"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (ScanRecord) TableName() string {
	return "scan_history"
}

func (TradeSignal) TableName() string {
	return "trade_signals"
}

// NewManager 创建数据库管理器
func NewManager(config types.MySQLConfig) (*Manager, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 生产环境使用Silent
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, errors.Wrap(err, "连接MySQL失败")
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "获取数据库实例失败")
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	manager := &Manager{
		db:     db,
		config: config,
	}

	if err := manager.AutoMigrate(); err != nil {
		return nil, errors.Wrap(err, "数据库迁移失败")
	}

	zap.L().Info("✅ MySQL数据库连接成功",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))

	return manager, nil
}

// AutoMigrate 自动迁移表结构
func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(
		&KLine{},
		&TradeSignal{},
		&ScanRecord{},
		&StrategyPerformance{},
	)
}

func toModel(s *types.Signal) *TradeSignal {
	aligned := make([]string, len(s.AlignedStrategies))
	for i, a := range s.AlignedStrategies {
		aligned[i] = string(a)
	}
	row := &TradeSignal{
		ID:                s.ID,
		Symbol:            s.Symbol,
		Strategy:          string(s.Strategy),
		Direction:         string(s.Direction),
		Confidence:        s.Confidence,
		EntryPrice:        decimal.NewFromFloat(s.EntryPrice),
		StopLoss:          decimal.NewFromFloat(s.StopLoss),
		TakeProfit:        decimal.NewFromFloat(s.TakeProfit),
		RiskReward:        decimal.NewFromFloat(s.RiskReward),
		Rationale:         s.Rationale,
		Timeframe:         s.Timeframe,
		Status:            string(s.Status),
		ConfluenceLevel:   string(s.ConfluenceLevel),
		AlignedStrategies: strings.Join(aligned, ","),
		DetectedAt:        s.DetectedAt,
		TriggeredAt:       s.TriggeredAt,
		ClosedAt:          s.ClosedAt,
	}
	if s.ClosePrice != nil {
		row.ClosePrice = decimal.NewNullDecimal(decimal.NewFromFloat(*s.ClosePrice))
	}
	if s.PnLPercent != nil {
		row.PnLPercent = decimal.NewNullDecimal(decimal.NewFromFloat(*s.PnLPercent))
	}
	return row
}

func (row *TradeSignal) toSignal() *types.Signal {
	s := &types.Signal{
		ID:              row.ID,
		Symbol:          row.Symbol,
		Strategy:        types.StrategyType(row.Strategy),
		Direction:       types.Direction(row.Direction),
		Confidence:      row.Confidence,
		EntryPrice:      row.EntryPrice.InexactFloat64(),
		StopLoss:        row.StopLoss.InexactFloat64(),
		TakeProfit:      row.TakeProfit.InexactFloat64(),
		RiskReward:      row.RiskReward.InexactFloat64(),
		Rationale:       row.Rationale,
		Timeframe:       row.Timeframe,
		Status:          types.SignalStatus(row.Status),
		ConfluenceLevel: types.ConfluenceLevel(row.ConfluenceLevel),
		DetectedAt:      row.DetectedAt,
		TriggeredAt:     row.TriggeredAt,
		ClosedAt:        row.ClosedAt,
	}
	if row.AlignedStrategies != "" {
		for _, a := range strings.Split(row.AlignedStrategies, ",") {
			s.AlignedStrategies = append(s.AlignedStrategies, types.StrategyType(a))
		}
	}
	if row.ClosePrice.Valid {
		v := row.ClosePrice.Decimal.InexactFloat64()
		s.ClosePrice = &v
	}
	if row.PnLPercent.Valid {
		v := row.PnLPercent.Decimal.InexactFloat64()
		s.PnLPercent = &v
	}
	return s
}

func toSignals(rows []TradeSignal) []*types.Signal {
	signals := make([]*types.Signal, 0, len(rows))
	for i := range rows {
		signals = append(signals, rows[i].toSignal())
	}
	return signals
}

// InsertIfNotDuplicate 事务内加锁读取窗口内同策略同方向记录，判重后插入
func (m *Manager) InsertIfNotDuplicate(ctx context.Context, signal *types.Signal, guard *dedup.Guard) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []TradeSignal
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("symbol = ? AND strategy = ? AND direction = ? AND detected_at > ?",
				signal.Symbol, string(signal.Strategy), string(signal.Direction), guard.Since(signal.DetectedAt)).
			Find(&rows).Error
		if err != nil {
			return errors.Wrap(err, "查询近期信号失败")
		}

		if guard.IsDuplicate(signal, toSignals(rows)) {
			return dedup.ErrDuplicate
		}

		if err := tx.Create(toModel(signal)).Error; err != nil {
			return errors.Wrapf(err, "保存信号失败 id=%s", signal.ID)
		}
		return nil
	})
	if errors.Is(err, dedup.ErrDuplicate) {
		return dedup.ErrDuplicate
	}
	return err
}

// ActiveSignals 查询活跃信号
func (m *Manager) ActiveSignals(ctx context.Context, symbol string) ([]*types.Signal, error) {
	var rows []TradeSignal
	err := m.db.WithContext(ctx).
		Where("symbol = ? AND status = ?", symbol, string(types.SignalActive)).
		Order("detected_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询活跃信号失败")
	}
	return toSignals(rows), nil
}

// RecentSignals 查询 since 之后的信号
func (m *Manager) RecentSignals(ctx context.Context, symbol string, since time.Time) ([]*types.Signal, error) {
	var rows []TradeSignal
	err := m.db.WithContext(ctx).
		Where("symbol = ? AND detected_at > ?", symbol, since).
		Order("detected_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询近期信号失败")
	}
	return toSignals(rows), nil
}

// ListSignals 最新信号列表
func (m *Manager) ListSignals(ctx context.Context, symbol string, limit int) ([]*types.Signal, error) {
	var rows []TradeSignal
	err := m.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("detected_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询信号列表失败")
	}
	return toSignals(rows), nil
}

// UpdateResolution 条件更新，只有 active 状态的信号会被结算
func (m *Manager) UpdateResolution(ctx context.Context, res *types.Resolution) (bool, error) {
	closedAt := res.ClosedAt
	status := res.Reason.Status()
	updates := map[string]interface{}{
		"status":      string(status),
		"closed_at":   &closedAt,
		"close_price": decimal.NewFromFloat(res.ExitPrice),
		"pnl_percent": decimal.NewFromFloat(res.PnLPercent),
	}
	if status == types.SignalTriggered {
		updates["triggered_at"] = &closedAt
	}

	result := m.db.WithContext(ctx).Model(&TradeSignal{}).
		Where("id = ? AND status = ?", res.SignalID, string(types.SignalActive)).
		Updates(updates)
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "更新信号结算失败 id=%s", res.SignalID)
	}
	return result.RowsAffected > 0, nil
}

// SignalStats 信号统计
func (m *Manager) SignalStats(ctx context.Context, symbol string) (*types.SignalStats, error) {
	var rows []TradeSignal
	if err := m.db.WithContext(ctx).Where("symbol = ?", symbol).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "查询信号统计失败")
	}
	return ComputeStats(toSignals(rows)), nil
}

// UpdateStrategyPerformance 更新策略每日统计
func (m *Manager) UpdateStrategyPerformance(ctx context.Context, signal *types.Signal) error {
	today := signal.DetectedAt.UTC().Truncate(24 * time.Hour)
	confidence := decimal.NewFromInt(int64(signal.Confidence))

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var performance StrategyPerformance
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("symbol = ? AND strategy = ? AND date = ?", signal.Symbol, string(signal.Strategy), today).
			First(&performance)

		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			performance = StrategyPerformance{
				Symbol:        signal.Symbol,
				Strategy:      string(signal.Strategy),
				Date:          today,
				TotalSignals:  1,
				AvgConfidence: confidence,
			}
			if signal.Direction == types.DirectionLong {
				performance.LongSignals = 1
			} else {
				performance.ShortSignals = 1
			}
			return errors.Wrap(tx.Create(&performance).Error, "创建策略统计失败")
		} else if result.Error != nil {
			return errors.Wrap(result.Error, "查询策略统计失败")
		}

		total := decimal.NewFromInt(int64(performance.TotalSignals))
		updates := map[string]interface{}{
			"total_signals":  performance.TotalSignals + 1,
			"avg_confidence": performance.AvgConfidence.Mul(total).Add(confidence).Div(total.Add(decimal.NewFromInt(1))).Round(2),
		}
		if signal.Direction == types.DirectionLong {
			updates["long_signals"] = performance.LongSignals + 1
		} else {
			updates["short_signals"] = performance.ShortSignals + 1
		}

		return errors.Wrap(tx.Model(&performance).Where("id = ?", performance.ID).Updates(updates).Error, "更新策略统计失败")
	})
}

// GetStrategyPerformance 获取策略统计
func (m *Manager) GetStrategyPerformance(ctx context.Context, symbol string, days int) ([]StrategyPerformance, error) {
	var performances []StrategyPerformance
	startDate := time.Now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)

	err := m.db.WithContext(ctx).Where("symbol = ? AND date >= ?", symbol, startDate).
		Order("date DESC").
		Find(&performances).Error

	return performances, errors.Wrap(err, "查询策略统计失败")
}

// SaveScanHistory 写入扫描历史
func (m *Manager) SaveScanHistory(ctx context.Context, h *types.ScanHistory) error {
	record := &ScanRecord{
		ScanType:          string(h.ScanType),
		Symbol:            h.Symbol,
		Timeframe:         h.Timeframe,
		CandlesAnalyzed:   h.CandlesAnalyzed,
		SignalsDetected:   h.SignalsDetected,
		Duplicates:        h.Duplicates,
		SignalsSaved:      h.SignalsSaved,
		NotificationsSent: h.NotificationsSent,
		PositionsClosed:   h.PositionsClosed,
		Outcome:           string(h.Outcome),
		Status:            h.Status,
		ErrorMessage:      h.ErrorMessage,
		DurationMs:        h.DurationMs,
		CreatedAt:         h.CreatedAt,
	}
	if err := m.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(err, "保存扫描历史失败")
	}
	h.ID = record.ID
	return nil
}

// ScanHistory 最近的扫描历史
func (m *Manager) ScanHistory(ctx context.Context, limit int) ([]*types.ScanHistory, error) {
	var records []ScanRecord
	err := m.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询扫描历史失败")
	}

	history := make([]*types.ScanHistory, 0, len(records))
	for _, r := range records {
		history = append(history, &types.ScanHistory{
			ID:                r.ID,
			ScanType:          types.ScanType(r.ScanType),
			Symbol:            r.Symbol,
			Timeframe:         r.Timeframe,
			CandlesAnalyzed:   r.CandlesAnalyzed,
			SignalsDetected:   r.SignalsDetected,
			Duplicates:        r.Duplicates,
			SignalsSaved:      r.SignalsSaved,
			NotificationsSent: r.NotificationsSent,
			PositionsClosed:   r.PositionsClosed,
			Outcome:           types.ScanOutcome(r.Outcome),
			Status:            r.Status,
			ErrorMessage:      r.ErrorMessage,
			DurationMs:        r.DurationMs,
			CreatedAt:         r.CreatedAt,
		})
	}
	return history, nil
}

// BatchSaveKlines 批量保存K线，已存在的K线按唯一键更新
func (m *Manager) BatchSaveKlines(ctx context.Context, klines []*types.KLine) error {
	if len(klines) == 0 {
		return nil
	}

	dbKlines := make([]KLine, 0, len(klines))
	for _, kline := range klines {
		dbKlines = append(dbKlines, KLine{
			Symbol:    kline.Symbol,
			Timeframe: kline.Interval,
			OpenTime:  kline.OpenTime.UnixMilli(),
			CloseTime: kline.CloseTime.UnixMilli(),
			Open:      decimal.NewFromFloat(kline.Open),
			High:      decimal.NewFromFloat(kline.High),
			Low:       decimal.NewFromFloat(kline.Low),
			Close:     decimal.NewFromFloat(kline.Close),
			Volume:    decimal.NewFromFloat(kline.Volume),
			CreatedAt: time.Now(),
		})
	}

	err := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			DoUpdates: clause.AssignmentColumns([]string{"close_time", "open", "high", "low", "close", "volume"}),
		}).
		CreateInBatches(dbKlines, 100).Error
	if err != nil {
		return errors.Wrap(err, "批量保存K线数据失败")
	}

	zap.L().Debug("✅ 批量保存K线数据完成",
		zap.Int("count", len(klines)),
		zap.String("symbol", klines[0].Symbol))

	return nil
}

// GetKLines 获取最近的K线数据（按时间升序）
func (m *Manager) GetKLines(ctx context.Context, symbol, interval string, limit int) ([]*types.KLine, error) {
	var dbKlines []KLine
	err := m.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, interval).
		Order("open_time DESC").
		Limit(limit).
		Find(&dbKlines).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询K线数据失败")
	}

	klines := make([]*types.KLine, len(dbKlines))
	for i, k := range dbKlines {
		klines[len(dbKlines)-1-i] = &types.KLine{
			Symbol:    k.Symbol,
			Interval:  k.Timeframe,
			OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
			CloseTime: time.UnixMilli(k.CloseTime).UTC(),
			Open:      k.Open.InexactFloat64(),
			High:      k.High.InexactFloat64(),
			Low:       k.Low.InexactFloat64(),
			Close:     k.Close.InexactFloat64(),
			Volume:    k.Volume.InexactFloat64(),
			Closed:    true,
		}
	}
	return klines, nil
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态
func (m *Manager) Health() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
