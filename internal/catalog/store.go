package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"restock-notify/internal/notify"
)

// SQL 语句常量
const (
	selectProductSQL = `
		SELECT id, name, stock, restock_round
		FROM products
		WHERE id = ?
	`
	insertProductSQL      = `INSERT INTO products (name, stock, restock_round) VALUES (?, ?, 0)`
	updateRestockRoundSQL = `UPDATE products SET restock_round = ? WHERE id = ?`
	updateProductStockSQL = `UPDATE products SET stock = ? WHERE id = ?`
)

// Store 商品持久化存储
// 实现 notify.ProductStore;引擎只读 stock、只增 restock_round,
// stock 的写入口仅供管理接口模拟外部补货/扣减流程
type Store struct {
	db *sql.DB
}

// NewStore 创建商品存储
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetProduct 按 ID 查询商品
func (store *Store) GetProduct(ctx context.Context, productID int64) (notify.Product, bool, error) {
	var product notify.Product

	row := store.db.QueryRowContext(ctx, selectProductSQL, productID)
	err := row.Scan(&product.ID, &product.Name, &product.Stock, &product.RestockRound)
	if errors.Is(err, sql.ErrNoRows) {
		return notify.Product{}, false, nil
	}
	if err != nil {
		return notify.Product{}, false, fmt.Errorf("查询商品行失败: %w", err)
	}
	return product, true, nil
}

// UpdateRestockRound 持久化递增后的补货回次
func (store *Store) UpdateRestockRound(ctx context.Context, productID int64, restockRound int) error {
	if _, err := store.db.ExecContext(ctx, updateRestockRoundSQL, restockRound, productID); err != nil {
		return fmt.Errorf("更新补货回次失败: %w", err)
	}
	return nil
}

// CreateProduct 创建商品(管理接口使用)
func (store *Store) CreateProduct(ctx context.Context, name string, stock int) (notify.Product, error) {
	result, err := store.db.ExecContext(ctx, insertProductSQL, name, stock)
	if err != nil {
		return notify.Product{}, fmt.Errorf("创建商品失败: %w", err)
	}

	productID, err := result.LastInsertId()
	if err != nil {
		return notify.Product{}, fmt.Errorf("读取商品自增ID失败: %w", err)
	}

	return notify.Product{ID: productID, Name: name, Stock: stock}, nil
}

// UpdateStock 调整库存行(管理接口使用,模拟外部库存写入方)
func (store *Store) UpdateStock(ctx context.Context, productID int64, stock int) error {
	if _, err := store.db.ExecContext(ctx, updateProductStockSQL, stock, productID); err != nil {
		return fmt.Errorf("更新库存失败: %w", err)
	}
	return nil
}
