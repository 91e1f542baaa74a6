package database

import (
	"gorm.io/gorm"

	"github.com/yukikurage/task-tracker-api/internal/utils"
)

// Paginate limits a query to one page. A non-positive limit leaves the query unbounded.
func Paginate(params utils.PaginationParams) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if params.Limit <= 0 {
			return db
		}
		return db.Offset(params.Offset).Limit(params.Limit)
	}
}

// Chronological orders rows of table by creation time, ties broken by id.
func Chronological(table string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(table + ".created_at ASC").Order(table + ".id ASC")
	}
}
