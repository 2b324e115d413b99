package subscription

import (
	"context"
	"database/sql"
	"fmt"
)

// SQL 语句常量
const (
	selectSubscriberIDsSQL = `
		SELECT user_id
		FROM product_subscriptions
		WHERE product_id = ?
		ORDER BY user_id ASC
	`
	insertSubscriptionSQL = `
		INSERT IGNORE INTO product_subscriptions (product_id, user_id)
		VALUES (?, ?)
	`
)

// Store 补货订阅存储
// 实现 notify.SubscriptionStore;订阅关系创建后不可变,引擎侧只读,
// Subscribe 仅供管理接口使用
type Store struct {
	db *sql.DB
}

// NewStore 创建订阅存储
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SubscriberIDs 返回商品的全部订阅用户ID,按用户ID升序
func (store *Store) SubscriberIDs(ctx context.Context, productID int64) ([]int64, error) {
	rows, err := store.db.QueryContext(ctx, selectSubscriberIDsSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("查询订阅用户失败: %w", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("读取订阅用户行失败: %w", err)
		}
		userIDs = append(userIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历订阅用户失败: %w", err)
	}
	return userIDs, nil
}

// Subscribe 建立订阅关系(管理接口使用)
// 重复订阅静默成功
func (store *Store) Subscribe(ctx context.Context, productID int64, userID int64) error {
	if _, err := store.db.ExecContext(ctx, insertSubscriptionSQL, productID, userID); err != nil {
		return fmt.Errorf("写入订阅关系失败: %w", err)
	}
	return nil
}
