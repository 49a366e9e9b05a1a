package common

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate 行级悲观锁 Scope（SELECT ... FOR UPDATE）
// SQLite 不支持 FOR UPDATE，测试环境下退化为普通查询（单连接内存库本身串行）
// 使用方法：db.Scopes(common.ForUpdate()).First(&account)
func ForUpdate() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if db.Dialector.Name() == "sqlite" {
			return db
		}
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
}

// ByOrder 按订单ID过滤（账务、退款查询通用Scope）
// 使用方法：db.Scopes(common.ByOrder(orderID)).Find(&txs)
func ByOrder(orderID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("order_id = ?", orderID)
	}
}
