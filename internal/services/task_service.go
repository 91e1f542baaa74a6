package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yukikurage/task-tracker-api/internal/models"
	"github.com/yukikurage/task-tracker-api/internal/policy"
	"github.com/yukikurage/task-tracker-api/internal/repository"
	"github.com/yukikurage/task-tracker-api/internal/utils"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrNoTasksFound     = errors.New("no tasks found")
	ErrAssigneeNotFound = errors.New("assignee user doesn't exist")
	ErrTaskTitleTaken   = errors.New("task title already exists")
	ErrTitleRequired    = errors.New("title is required")
)

// TaskService handles task and comment business logic
type TaskService struct {
	taskRepo    repository.TaskRepository
	userRepo    repository.UserRepository
	commentRepo repository.CommentRepository
}

// NewTaskService creates a new TaskService
func NewTaskService(taskRepo repository.TaskRepository, userRepo repository.UserRepository, commentRepo repository.CommentRepository) *TaskService {
	return &TaskService{
		taskRepo:    taskRepo,
		userRepo:    userRepo,
		commentRepo: commentRepo,
	}
}

// ListTasksInput represents filters for listing tasks
type ListTasksInput struct {
	AuthorID       *uint64
	Status         *models.TaskStatus
	Priority       *models.TaskPriority
	DeadlineBefore *time.Time
	DeadlineAfter  *time.Time
	Pagination     *utils.PaginationParams
}

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	Title       string
	Description string
	Status      models.TaskStatus
	Priority    models.TaskPriority
	Deadline    *time.Time
	AssigneeID  *uint64
}

// UpdateTaskInput represents a partial task update; unset fields are left alone
type UpdateTaskInput struct {
	Title       utils.Optional[string]
	Description utils.Optional[string]
	Status      utils.Optional[models.TaskStatus]
	Priority    utils.Optional[models.TaskPriority]
	Deadline    utils.Optional[*time.Time]
	AssigneeID  utils.Optional[*uint64]
}

// ListTasks returns the tasks matching the filters. An empty result is
// reported as ErrNoTasksFound.
func (s *TaskService) ListTasks(input ListTasksInput) ([]models.Task, int64, error) {
	tasks, total, err := s.taskRepo.List(repository.TaskFilter{
		AuthorID:       input.AuthorID,
		Status:         input.Status,
		Priority:       input.Priority,
		DeadlineBefore: input.DeadlineBefore,
		DeadlineAfter:  input.DeadlineAfter,
		Pagination:     input.Pagination,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}

	if len(tasks) == 0 {
		return nil, total, ErrNoTasksFound
	}

	return tasks, total, nil
}

// GetTask returns a task by ID
func (s *TaskService) GetTask(id uint64) (*models.Task, error) {
	task, err := s.taskRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

// CreateTask creates a task authored by actor. The assignee must be a
// registered user.
func (s *TaskService) CreateTask(actor *models.User, input CreateTaskInput) (*models.Task, error) {
	if err := authorize(policy.ActionCreateTask, actor, nil); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	if input.AssigneeID == nil {
		return nil, ErrAssigneeNotFound
	}
	if err := s.requireAssignee(*input.AssigneeID); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = models.TaskStatusTodo
	}
	priority := input.Priority
	if priority == "" {
		priority = models.TaskPriorityMedium
	}

	task := &models.Task{
		Title:       title,
		Description: input.Description,
		Status:      status,
		Priority:    priority,
		Deadline:    input.Deadline,
		AuthorID:    actor.ID,
		AssigneeID:  input.AssigneeID,
	}

	if err := s.taskRepo.Create(task); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrTaskTitleTaken
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return task, nil
}

// UpdateTask applies a partial update. Admins may only touch tasks they
// authored.
func (s *TaskService) UpdateTask(actor *models.User, taskID uint64, input UpdateTaskInput) (*models.Task, error) {
	task, err := s.loadForMutation(policy.ActionUpdateTask, actor, taskID)
	if err != nil {
		return nil, err
	}

	if input.Title.Set {
		title := strings.TrimSpace(input.Title.Value)
		if title == "" {
			return nil, ErrTitleRequired
		}
		task.Title = title
	}
	if input.Description.Set {
		task.Description = input.Description.Value
	}
	if input.Status.Set {
		task.Status = input.Status.Value
	}
	if input.Priority.Set {
		task.Priority = input.Priority.Value
	}
	if input.Deadline.Set {
		task.Deadline = input.Deadline.Value
	}
	if input.AssigneeID.Set {
		if input.AssigneeID.Value != nil {
			if err := s.requireAssignee(*input.AssigneeID.Value); err != nil {
				return nil, err
			}
		}
		task.AssigneeID = input.AssigneeID.Value
	}

	if err := s.taskRepo.Update(task); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrTaskTitleTaken
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	return task, nil
}

// DeleteTask removes a task and its comments.
func (s *TaskService) DeleteTask(actor *models.User, taskID uint64) error {
	if _, err := s.loadForMutation(policy.ActionDeleteTask, actor, taskID); err != nil {
		return err
	}

	if err := s.taskRepo.Delete(taskID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// AddComment attaches a comment by actor to an existing task.
func (s *TaskService) AddComment(actor *models.User, taskID uint64, text string) (*models.Comment, error) {
	if err := authorize(policy.ActionCreateComment, actor, nil); err != nil {
		return nil, err
	}

	if _, err := s.GetTask(taskID); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		Text:     text,
		TaskID:   taskID,
		AuthorID: actor.ID,
	}
	if err := s.commentRepo.Create(comment); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	comment.Author = *actor
	return comment, nil
}

// ListComments returns the comments of an existing task, oldest first.
func (s *TaskService) ListComments(taskID uint64) ([]models.Comment, error) {
	if _, err := s.GetTask(taskID); err != nil {
		return nil, err
	}

	comments, err := s.commentRepo.ListByTask(taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// loadForMutation checks the role gate, then existence, then ownership, so
// a plain user gets 403 even for a task that does not exist.
func (s *TaskService) loadForMutation(action policy.Action, actor *models.User, taskID uint64) (*models.Task, error) {
	if err := authorize(action, actor, nil); err != nil {
		return nil, err
	}

	task, err := s.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	if err := authorize(action, actor, &policy.Resource{OwnerID: task.AuthorID}); err != nil {
		return nil, err
	}

	return task, nil
}

func (s *TaskService) requireAssignee(id uint64) error {
	ok, err := s.userRepo.Exists(id)
	if err != nil {
		return fmt.Errorf("failed to check assignee: %w", err)
	}
	if !ok {
		return ErrAssigneeNotFound
	}
	return nil
}
