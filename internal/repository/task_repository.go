package repository

import (
	"github.com/yukikurage/task-tracker-api/internal/database"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTaskRepository is a GORM implementation of TaskRepository
type GormTaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &GormTaskRepository{db: db}
}

// Create creates a new task
func (r *GormTaskRepository) Create(task *models.Task) error {
	return translateWriteError(r.db.Omit(clause.Associations).Create(task).Error)
}

// FindByID finds a task by ID
func (r *GormTaskRepository) FindByID(id uint64) (*models.Task, error) {
	var task models.Task
	if err := r.db.First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// List retrieves tasks with filtering and optional pagination
func (r *GormTaskRepository) List(filter TaskFilter) ([]models.Task, int64, error) {
	var total int64
	if err := r.db.Model(&models.Task{}).Scopes(filterTasks(filter)).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.db.Scopes(filterTasks(filter)).Order("tasks.id ASC")
	if filter.Pagination != nil {
		query = query.Scopes(database.Paginate(*filter.Pagination))
	}

	var tasks []models.Task
	if err := query.Find(&tasks).Error; err != nil {
		return nil, 0, err
	}

	return tasks, total, nil
}

func filterTasks(filter TaskFilter) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if filter.AuthorID != nil {
			db = db.Where("tasks.author_id = ?", *filter.AuthorID)
		}
		if filter.Status != nil {
			db = db.Where("tasks.status = ?", *filter.Status)
		}
		if filter.Priority != nil {
			db = db.Where("tasks.priority = ?", *filter.Priority)
		}
		if filter.DeadlineBefore != nil {
			db = db.Where("tasks.deadline <= ?", *filter.DeadlineBefore)
		}
		if filter.DeadlineAfter != nil {
			db = db.Where("tasks.deadline >= ?", *filter.DeadlineAfter)
		}
		return db
	}
}

// Update updates a task
func (r *GormTaskRepository) Update(task *models.Task) error {
	return translateWriteError(r.db.Omit(clause.Associations).Save(task).Error)
}

// Delete removes a task and its comments in one transaction
func (r *GormTaskRepository) Delete(id uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}

		res := tx.Delete(&models.Task{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
