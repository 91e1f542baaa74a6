package repository

import (
	"github.com/yukikurage/task-tracker-api/internal/database"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCommentRepository is a GORM implementation of CommentRepository
type GormCommentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &GormCommentRepository{db: db}
}

// Create stores a comment
func (r *GormCommentRepository) Create(comment *models.Comment) error {
	return r.db.Omit(clause.Associations).Create(comment).Error
}

// ListByTask returns the comments of a task, oldest first
func (r *GormCommentRepository) ListByTask(taskID uint64) ([]models.Comment, error) {
	var comments []models.Comment
	if err := r.db.Preload("Author").
		Where("task_id = ?", taskID).
		Scopes(database.Chronological("comments")).
		Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}
