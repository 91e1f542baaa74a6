package dto

import (
	"time"

	"github.com/yukikurage/task-tracker-api/internal/models"
)

// TaskDTO represents a task in API responses
type TaskDTO struct {
	ID          uint64              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Status      models.TaskStatus   `json:"status"`
	Priority    models.TaskPriority `json:"priority"`
	Deadline    *time.Time          `json:"deadline"`
	AuthorID    uint64              `json:"author_id"`
	AssigneeID  *uint64             `json:"assignee_id"`
	CreatedAt   time.Time           `json:"created_at"`
}

// CommentDTO represents a comment; author is the commenter's username.
type CommentDTO struct {
	TaskID    uint64    `json:"task_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Author    string    `json:"author"`
}

// ToTaskDTO converts a Task model to TaskDTO
func ToTaskDTO(task models.Task) TaskDTO {
	return TaskDTO{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		Priority:    task.Priority,
		Deadline:    task.Deadline,
		AuthorID:    task.AuthorID,
		AssigneeID:  task.AssigneeID,
		CreatedAt:   task.CreatedAt,
	}
}

// ToTaskDTOs converts a slice of tasks
func ToTaskDTOs(tasks []models.Task) []TaskDTO {
	out := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		out[i] = ToTaskDTO(t)
	}
	return out
}

// ToCommentDTO converts a Comment model; Author must be loaded.
func ToCommentDTO(comment models.Comment) CommentDTO {
	return CommentDTO{
		TaskID:    comment.TaskID,
		Text:      comment.Text,
		CreatedAt: comment.CreatedAt,
		Author:    comment.Author.Username,
	}
}
