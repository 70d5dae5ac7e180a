// Package journal persists the outbound order event stream and periodic
// position snapshots to postgres. Writes are best-effort and happen off the
// engine's critical path, on the event queue consumer.
package journal

import (
	"context"
	"time"

	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"tradecore/internal/bus"
	"tradecore/internal/ledger"
	"tradecore/internal/schema"
)

// OrderEventRecord is one order status transition.
type OrderEventRecord struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	OrderID    uint64    `gorm:"index"`
	Symbol     string    `gorm:"size:64;index"`
	FromStatus string    `gorm:"size:24"`
	ToStatus   string    `gorm:"size:24"`
	Reason     string    `gorm:"size:40"`
	Note       string
	Ts         time.Time `gorm:"index"`
}

// PositionRecord is one position snapshot row.
type PositionRecord struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	Symbol        string    `gorm:"size:64;index"`
	Qty           int64
	AvgPrice      string    `gorm:"size:40"`
	LastPrice     string    `gorm:"size:40"`
	RealizedPnL   string    `gorm:"size:40"`
	UnrealizedPnL string    `gorm:"size:40"`
	SnapshotAt    time.Time `gorm:"index"`
}

// Journal writes order events and position snapshots.
type Journal struct {
	db *gorm.DB
}

// Open connects to postgres and migrates the journal tables.
func Open(opt Option) (*Journal, error) {
	db, err := open(opt)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&OrderEventRecord{}, &PositionRecord{}); err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

// RecordEvent persists one order status transition.
func (j *Journal) RecordEvent(e schema.OrderEvent) error {
	record := OrderEventRecord{
		OrderID:    uint64(e.OrderID),
		Symbol:     e.Symbol,
		FromStatus: e.From.String(),
		ToStatus:   e.To.String(),
		Reason:     e.Reason.String(),
		Note:       e.Note,
		Ts:         e.Ts,
	}
	return j.db.Create(&record).Error
}

// RecordPositions persists a full position snapshot.
func (j *Journal) RecordPositions(positions []ledger.Position, at time.Time) error {
	if len(positions) == 0 {
		return nil
	}
	records := make([]PositionRecord, 0, len(positions))
	for _, p := range positions {
		records = append(records, PositionRecord{
			Symbol:        p.Symbol,
			Qty:           p.Qty,
			AvgPrice:      p.AvgPrice.String(),
			LastPrice:     p.LastPrice.String(),
			RealizedPnL:   p.RealizedPnL.String(),
			UnrealizedPnL: p.UnrealizedPnL.String(),
			SnapshotAt:    at,
		})
	}
	return j.db.Create(&records).Error
}

// Run consumes the event queue until the context is done, writing every
// event. Write failures are logged and dropped, never retried.
func (j *Journal) Run(ctx context.Context, events *bus.Queue) {
	events.Run(ctx, func(e schema.OrderEvent) {
		if err := j.RecordEvent(e); err != nil {
			logs.Errorf("journal write failed, order %d: %+v", e.OrderID, err)
		}
	})
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
