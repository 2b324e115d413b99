package database

import (
	"database/sql"
	"fmt"
	"log"

	"restock-notify/internal/config"

	_ "github.com/go-sql-driver/mysql"
)

// 表名常量
const (
	TableProducts             = "products"
	TableProductSubscriptions = "product_subscriptions"
	TableNotificationRounds   = "notification_rounds"
	TableDeliveryRecords      = "delivery_records"
)

// SQL 建表语句常量
// 使用 InnoDB 引擎支持事务,utf8mb4 支持完整 Unicode 字符集
const (
	// createProductsTableSQL 商品表
	// stock 由外部补货/扣减流程写入,本服务只读 stock、只增 restock_round
	createProductsTableSQL = `
		CREATE TABLE IF NOT EXISTS products (
			id BIGINT AUTO_INCREMENT PRIMARY KEY COMMENT '商品ID',
			name VARCHAR(255) NOT NULL COMMENT '商品名称',
			stock INT NOT NULL DEFAULT 0 COMMENT '当前库存',
			restock_round INT NOT NULL DEFAULT 0 COMMENT '补货通知回次',
			INDEX idx_name (name)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
		COMMENT='商品表'
	`

	// createProductSubscriptionsTableSQL 补货订阅表
	// (product_id, user_id) 唯一,创建后不可变,本服务只读
	createProductSubscriptionsTableSQL = `
		CREATE TABLE IF NOT EXISTS product_subscriptions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY COMMENT '自增ID',
			product_id BIGINT NOT NULL COMMENT '商品ID',
			user_id BIGINT NOT NULL COMMENT '用户ID',
			UNIQUE KEY uq_product_user (product_id, user_id),
			INDEX idx_product_user (product_id, user_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
		COMMENT='补货通知订阅表'
	`

	// createNotificationRoundsTableSQL 通知回次表
	// 追加写入,每次调度(全新或续传)一行;按 id 倒序的首行即最近一次调度
	createNotificationRoundsTableSQL = `
		CREATE TABLE IF NOT EXISTS notification_rounds (
			id BIGINT AUTO_INCREMENT PRIMARY KEY COMMENT '回次记录ID',
			product_id BIGINT NOT NULL COMMENT '商品ID',
			restock_round INT NOT NULL COMMENT '补货回次',
			last_user_id BIGINT NOT NULL DEFAULT 0 COMMENT '最后成功通知的用户ID,0表示尚无',
			status VARCHAR(32) NOT NULL COMMENT '回次状态',
			created_at BIGINT NOT NULL COMMENT '创建时间戳',
			INDEX idx_product_id (product_id, id DESC),
			INDEX idx_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
		COMMENT='补货通知回次表'
	`

	// createDeliveryRecordsTableSQL 用户送达记录表
	// 每个回次内每成功通知一个用户写入一行,仅追加,用于审计
	createDeliveryRecordsTableSQL = `
		CREATE TABLE IF NOT EXISTS delivery_records (
			id BIGINT AUTO_INCREMENT PRIMARY KEY COMMENT '送达记录ID',
			product_id BIGINT NOT NULL COMMENT '商品ID',
			restock_round INT NOT NULL COMMENT '补货回次',
			user_id BIGINT NOT NULL COMMENT '用户ID',
			created_at BIGINT NOT NULL COMMENT '送达时间戳',
			INDEX idx_product_round (product_id, restock_round),
			INDEX idx_user_id (user_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
		COMMENT='用户送达记录表'
	`
)

// MySQLDB MySQL 数据库连接管理器
// 封装连接池和表初始化逻辑
type MySQLDB struct {
	*sql.DB
}

// NewMySQLDB 创建 MySQL 数据库连接
// 自动配置连接池参数并测试连接可用性
func NewMySQLDB(mysqlConfig config.MySQLConfig) (*MySQLDB, error) {
	database, err := sql.Open("mysql", mysqlConfig.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	database.SetMaxOpenConns(mysqlConfig.MaxOpenConns)
	database.SetMaxIdleConns(mysqlConfig.MaxIdleConns)
	database.SetConnMaxLifetime(mysqlConfig.ConnMaxLifetime)

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("[MYSQL] 数据库连接成功")
	return &MySQLDB{DB: database}, nil
}

// InitTables 初始化数据库表结构
// 幂等操作,多次执行不会产生副作用
func (database *MySQLDB) InitTables() error {
	tables := []tableDefinition{
		{name: TableProducts, sql: createProductsTableSQL},
		{name: TableProductSubscriptions, sql: createProductSubscriptionsTableSQL},
		{name: TableNotificationRounds, sql: createNotificationRoundsTableSQL},
		{name: TableDeliveryRecords, sql: createDeliveryRecordsTableSQL},
	}

	for _, table := range tables {
		if _, err := database.Exec(table.sql); err != nil {
			log.Printf("[MYSQL] 创建表 %s 失败: %v", table.name, err)
			return fmt.Errorf("failed to create table %s: %w", table.name, err)
		}
	}

	log.Printf("[MYSQL] 数据库表初始化完成")
	return nil
}

// tableDefinition 表定义结构
type tableDefinition struct {
	name string
	sql  string
}
