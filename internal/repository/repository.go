package repository

import (
	"errors"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"github.com/yukikurage/task-tracker-api/internal/utils"
	"gorm.io/gorm"
)

// ErrDuplicateKey is returned when a write violates a unique constraint
// (email, username, task title).
var ErrDuplicateKey = errors.New("repository: duplicate key")

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create inserts a user; uniqueness violations yield ErrDuplicateKey
	Create(user *models.User) error

	// FindByID finds a user by ID
	FindByID(id uint64) (*models.User, error)

	// FindByEmail finds a user by email
	FindByEmail(email string) (*models.User, error)

	// FindByUsername finds a user by username
	FindByUsername(username string) (*models.User, error)

	// Exists reports whether a user with the given ID is registered
	Exists(id uint64) (bool, error)

	// Update saves all fields of a user; uniqueness violations yield ErrDuplicateKey
	Update(user *models.User) error

	// Delete removes a user
	Delete(id uint64) error
}

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// Create creates a new task
	Create(task *models.Task) error

	// FindByID finds a task by ID
	FindByID(id uint64) (*models.Task, error)

	// List retrieves tasks matching the filter
	List(filter TaskFilter) ([]models.Task, int64, error)

	// Update updates a task
	Update(task *models.Task) error

	// Delete removes a task together with its comments
	Delete(id uint64) error
}

// TaskFilter holds filtering options for listing tasks. Nil fields are ignored.
type TaskFilter struct {
	AuthorID       *uint64
	Status         *models.TaskStatus
	Priority       *models.TaskPriority
	DeadlineBefore *time.Time
	DeadlineAfter  *time.Time
	Pagination     *utils.PaginationParams
}

// CommentRepository defines the interface for comment data access
type CommentRepository interface {
	// Create stores a comment on a task
	Create(comment *models.Comment) error

	// ListByTask returns the comments of a task, oldest first
	ListByTask(taskID uint64) ([]models.Comment, error)
}

// translateWriteError maps driver-specific unique violations onto ErrDuplicateKey.
func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	if isDuplicateKey(err) {
		return errors.Join(ErrDuplicateKey, err)
	}
	return err
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}

	// Fallback for drivers without error translation
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry")
}
