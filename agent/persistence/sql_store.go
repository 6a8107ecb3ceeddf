package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/types"
)

// CheckpointRecord is the row layout of the checkpoints table. The schema
// is owned by internal/migration; AutoMigrate exists for tests and sqlite.
type CheckpointRecord struct {
	ID        uint   `gorm:"primaryKey"`
	ThreadID  string `gorm:"size:64;not null;uniqueIndex:idx_checkpoints_thread_step,priority:1"`
	Step      int    `gorm:"not null;uniqueIndex:idx_checkpoints_thread_step,priority:2"`
	Status    string `gorm:"size:32;not null"`
	Payload   string `gorm:"type:text;not null"`
	CreatedAt int64  `gorm:"not null;autoCreateTime:milli"`
}

// TableName implements gorm's tabler.
func (CheckpointRecord) TableName() string { return "checkpoints" }

// SQLStore is a gorm-based implementation of CheckpointStore. It works with
// any dialect gorm supports; the caller owns the *gorm.DB.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps db.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil database", ErrInvalidInput)
	}
	return &SQLStore{db: db}, nil
}

// AutoMigrate creates the checkpoints table from the model.
func (s *SQLStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&CheckpointRecord{})
}

// Close is a no-op: the database handle belongs to the caller.
func (s *SQLStore) Close() error { return nil }

// Ping checks the underlying connection
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Save upserts one checkpoint row
func (s *SQLStore) Save(ctx context.Context, threadID string, step int, state *agent.WorkflowState) error {
	if err := validateKey(threadID, step); err != nil {
		return err
	}
	data, err := encodeState(state)
	if err != nil {
		return err
	}

	rec := CheckpointRecord{
		ThreadID:  threadID,
		Step:      step,
		Status:    string(state.Status),
		Payload:   string(data),
		CreatedAt: types.Now().UnixMilli(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "thread_id"}, {Name: "step"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "payload", "created_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadHistory returns the checkpoints of threadID in step order
func (s *SQLStore) LoadHistory(ctx context.Context, threadID string) ([]*agent.WorkflowState, error) {
	var recs []CheckpointRecord
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("step ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}

	history := make([]*agent.WorkflowState, 0, len(recs))
	for _, r := range recs {
		st, err := agent.UnmarshalState([]byte(r.Payload))
		if err != nil {
			return nil, err
		}
		history = append(history, st)
	}
	return history, nil
}

type threadRow struct {
	ThreadID  string
	Steps     int
	LastStep  int
	UpdatedAt int64
}

// ListThreads aggregates checkpoints per thread
func (s *SQLStore) ListThreads(ctx context.Context) ([]ThreadInfo, error) {
	var rows []threadRow
	err := s.db.WithContext(ctx).
		Model(&CheckpointRecord{}).
		Select("thread_id, COUNT(*) AS steps, MAX(step) AS last_step, MAX(created_at) AS updated_at").
		Group("thread_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	infos := make([]ThreadInfo, 0, len(rows))
	for _, row := range rows {
		var last CheckpointRecord
		err := s.db.WithContext(ctx).
			Select("status").
			Where("thread_id = ? AND step = ?", row.ThreadID, row.LastStep).
			Take(&last).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		infos = append(infos, ThreadInfo{
			ThreadID:  row.ThreadID,
			Status:    agent.Status(last.Status),
			Steps:     row.Steps,
			UpdatedAt: unixMilli(row.UpdatedAt),
		})
	}
	sortThreads(infos)
	return infos, nil
}

// DeleteThread removes every checkpoint row of threadID
func (s *SQLStore) DeleteThread(ctx context.Context, threadID string) error {
	res := s.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&CheckpointRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
