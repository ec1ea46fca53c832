package config

import (
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// Database 配置数据库
// system_config表保存扁平的 key/value 配置（全局开关 + 每币种参数），
// orders表保存已执行的订单记录。
type Database struct {
	db *sql.DB
}

// OrderRecord 已执行订单记录
type OrderRecord struct {
	ID             int64
	OrderID        int64
	Symbol         string
	Side           string
	PositionSide   string
	Quantity       float64
	Price          float64
	TPPrice        float64
	SLPrice        float64
	TrailingStopID int64
	Status         string
	CreatedAt      time.Time
}

// NewDatabase 创建配置数据库（SQLite文件路径）
func NewDatabase(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开SQLite数据库失败: %w", err)
	}

	// 🔒 启用 WAL 模式，提高并发性能和崩溃恢复能力
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("启用WAL模式失败: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置synchronous失败: %w", err)
	}

	d := &Database{db: db}
	if err := d.initTables(); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("✅ 配置数据库已就绪: %s", dbPath)
	return d, nil
}

func (d *Database) initTables() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS system_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			position_side TEXT,
			quantity REAL NOT NULL,
			price REAL,
			tp_price REAL,
			sl_price REAL,
			trailing_stop_id INTEGER,
			status TEXT,
			created_at TIMESTAMP DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol, created_at)`,
	}
	for _, stmt := range schema {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("初始化表失败: %w", err)
		}
	}
	return nil
}

// GetSystemConfig 读取单个配置项，不存在返回空字符串
func (d *Database) GetSystemConfig(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM system_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("读取配置 %s 失败: %w", key, err)
	}
	return value, nil
}

// SetSystemConfig 写入单个配置项
func (d *Database) SetSystemConfig(key, value string) error {
	_, err := d.db.Exec(`
		INSERT INTO system_config (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')`,
		key, value)
	if err != nil {
		return fmt.Errorf("写入配置 %s 失败: %w", key, err)
	}
	return nil
}

// Snapshot 读取全部配置项的快照（币种配置解析在快照上进行）
func (d *Database) Snapshot() map[string]string {
	snap := make(map[string]string)
	rows, err := d.db.Query("SELECT key, value FROM system_config")
	if err != nil {
		log.Printf("⚠️ 读取配置快照失败: %v", err)
		return snap
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			continue
		}
		snap[k] = v
	}
	return snap
}

// GetBool 读取布尔配置，缺失或非法时返回默认值
func (d *Database) GetBool(key string, def bool) bool {
	v, err := d.GetSystemConfig(key)
	if err != nil || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetInt 读取整数配置，缺失或非法时返回默认值
func (d *Database) GetInt(key string, def int) int {
	v, err := d.GetSystemConfig(key)
	if err != nil || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// TradingEnabled 全局交易开关
func (d *Database) TradingEnabled() bool {
	return d.GetBool("enable_trading", false)
}

// AutoPositionSwitch 自动换向开关
func (d *Database) AutoPositionSwitch() bool {
	return d.GetBool("auto_position_switch", true)
}

// MaxOpenPositions 最大同时持仓数
func (d *Database) MaxOpenPositions() int {
	return d.GetInt("max_open_positions", 5)
}

// RecordOrder 保存已执行订单
func (d *Database) RecordOrder(rec *OrderRecord) error {
	_, err := d.db.Exec(`
		INSERT INTO orders (order_id, symbol, side, position_side, quantity, price, tp_price, sl_price, trailing_stop_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OrderID, rec.Symbol, rec.Side, rec.PositionSide,
		rec.Quantity, rec.Price, rec.TPPrice, rec.SLPrice, rec.TrailingStopID, rec.Status)
	if err != nil {
		return fmt.Errorf("保存订单记录失败: %w", err)
	}
	return nil
}

// ListOrders 读取最近的订单记录
func (d *Database) ListOrders(limit int) ([]*OrderRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(`
		SELECT id, order_id, symbol, side, position_side, quantity, price, tp_price, sl_price, trailing_stop_id, status, created_at
		FROM orders ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("读取订单记录失败: %w", err)
	}
	defer rows.Close()

	var records []*OrderRecord
	for rows.Next() {
		rec := &OrderRecord{}
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.Symbol, &rec.Side, &rec.PositionSide,
			&rec.Quantity, &rec.Price, &rec.TPPrice, &rec.SLPrice, &rec.TrailingStopID,
			&rec.Status, &createdAt); err != nil {
			return nil, err
		}
		if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			rec.CreatedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	return d.db.Close()
}
