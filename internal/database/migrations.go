package database

import (
	"fmt"
	"strings"

	"github.com/yukikurage/task-tracker-api/internal/logger"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"gorm.io/gorm"
)

type index struct {
	model   interface{}
	name    string
	columns []string
}

// Secondary indexes backing the task list filters.
var indexes = []index{
	{&models.Task{}, "idx_tasks_author_id", []string{"author_id"}},
	{&models.Task{}, "idx_tasks_assignee_id", []string{"assignee_id"}},
	{&models.Task{}, "idx_tasks_status", []string{"status"}},
	{&models.Task{}, "idx_tasks_priority", []string{"priority"}},
	{&models.Task{}, "idx_tasks_deadline", []string{"deadline"}},
}

// AddIndexes creates any missing secondary indexes. It is safe to call on
// every start.
func AddIndexes(db *gorm.DB) error {
	migrator := db.Migrator()
	log := logger.Get()

	for _, idx := range indexes {
		if migrator.HasIndex(idx.model, idx.name) {
			continue
		}

		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(idx.model); err != nil {
			return fmt.Errorf("failed to parse model for index %s: %w", idx.name, err)
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, stmt.Schema.Table, strings.Join(idx.columns, ", "))
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}

		log.Info().Str("index", idx.name).Str("table", stmt.Schema.Table).Msg("created index")
	}

	return nil
}
