package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"restock-notify/internal/notify"
)

// 查询默认值
const defaultRoundQueryLimit = 20

// SQL 语句常量
const (
	insertRoundSQL = `
		INSERT INTO notification_rounds (product_id, restock_round, last_user_id, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	updateRoundSQL = `
		UPDATE notification_rounds
		SET last_user_id = ?, status = ?
		WHERE id = ?
	`
	selectMostRecentRoundSQL = `
		SELECT id, product_id, restock_round, last_user_id, status, created_at
		FROM notification_rounds
		WHERE product_id = ?
		ORDER BY id DESC
		LIMIT 1
	`
	selectRecentRoundsSQL = `
		SELECT id, product_id, restock_round, last_user_id, status, created_at
		FROM notification_rounds
		WHERE product_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	insertDeliverySQL = `
		INSERT INTO delivery_records (product_id, restock_round, user_id, created_at)
		VALUES (?, ?, ?, ?)
	`
)

// Store 调度历史存储
// 实现 notify.RoundStore 与 notify.DeliveryStore;
// 两张表都只追加,回次行仅在所属调度存活期间被状态更新,从不删除
type Store struct {
	db *sql.DB
}

// NewStore 创建调度历史存储
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ==================== 回次记录 ====================

// CreateRound 追加一条回次记录并回填自增ID
func (store *Store) CreateRound(ctx context.Context, round notify.Round) (notify.Round, error) {
	result, err := store.db.ExecContext(ctx, insertRoundSQL,
		round.ProductID, round.RestockRound, round.LastNotifiedUserID, string(round.Status), round.CreatedAt)
	if err != nil {
		return notify.Round{}, fmt.Errorf("写入回次记录失败: %w", err)
	}

	roundID, err := result.LastInsertId()
	if err != nil {
		return notify.Round{}, fmt.Errorf("读取回次自增ID失败: %w", err)
	}

	round.ID = roundID
	return round, nil
}

// UpdateRound 更新回次的状态与最后通知用户
func (store *Store) UpdateRound(ctx context.Context, round notify.Round) error {
	if _, err := store.db.ExecContext(ctx, updateRoundSQL,
		round.LastNotifiedUserID, string(round.Status), round.ID); err != nil {
		return fmt.Errorf("更新回次记录失败: %w", err)
	}
	return nil
}

// MostRecentRound 返回商品按创建顺序最新的一条回次
func (store *Store) MostRecentRound(ctx context.Context, productID int64) (notify.Round, bool, error) {
	row := store.db.QueryRowContext(ctx, selectMostRecentRoundSQL, productID)

	round, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return notify.Round{}, false, nil
	}
	if err != nil {
		return notify.Round{}, false, fmt.Errorf("查询最近回次失败: %w", err)
	}
	return round, true, nil
}

// RecentRounds 返回商品最近的若干条回次记录(审计接口使用)
func (store *Store) RecentRounds(ctx context.Context, productID int64, limit int) ([]notify.Round, error) {
	if limit <= 0 {
		limit = defaultRoundQueryLimit
	}

	rows, err := store.db.QueryContext(ctx, selectRecentRoundsSQL, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询回次历史失败: %w", err)
	}
	defer rows.Close()

	var rounds []notify.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("读取回次行失败: %w", err)
		}
		rounds = append(rounds, round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历回次历史失败: %w", err)
	}
	return rounds, nil
}

// ==================== 送达记录 ====================

// SaveDelivery 追加一条用户送达记录
func (store *Store) SaveDelivery(ctx context.Context, record notify.DeliveryRecord) error {
	if _, err := store.db.ExecContext(ctx, insertDeliverySQL,
		record.ProductID, record.RestockRound, record.UserID, record.CreatedAt); err != nil {
		return fmt.Errorf("写入送达记录失败: %w", err)
	}
	return nil
}

// ==================== 私有辅助方法 ====================

// rowScanner 兼容 *sql.Row 与 *sql.Rows 的扫描接口
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(scanner rowScanner) (notify.Round, error) {
	var round notify.Round
	var status string

	if err := scanner.Scan(&round.ID, &round.ProductID, &round.RestockRound,
		&round.LastNotifiedUserID, &status, &round.CreatedAt); err != nil {
		return notify.Round{}, err
	}

	round.Status = notify.RoundStatus(status)
	return round, nil
}
