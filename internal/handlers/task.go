package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/task-tracker-api/internal/constants"
	"github.com/yukikurage/task-tracker-api/internal/dto"
	apierrors "github.com/yukikurage/task-tracker-api/internal/errors"
	"github.com/yukikurage/task-tracker-api/internal/middleware"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"github.com/yukikurage/task-tracker-api/internal/services"
	"github.com/yukikurage/task-tracker-api/internal/utils"
)

type TaskHandler struct {
	taskService *services.TaskService
}

func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
	}
}

// ListTasks returns all tasks matching the query filters. deadline_before
// and deadline_after are inclusive bounds. The unpaginated count is sent in
// X-Total-Count.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	var query struct {
		AuthorID       *uint64              `form:"author_id"`
		Status         *models.TaskStatus   `form:"status" binding:"omitempty,taskstatus"`
		Priority       *models.TaskPriority `form:"priority" binding:"omitempty,taskpriority"`
		DeadlineBefore *time.Time           `form:"deadline_before"`
		DeadlineAfter  *time.Time           `form:"deadline_after"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		apierrors.BadRequestWithDetails(c, "Invalid query parameters", validationDetails(err))
		return
	}

	tasks, total, err := h.taskService.ListTasks(services.ListTasksInput{
		AuthorID:       query.AuthorID,
		Status:         query.Status,
		Priority:       query.Priority,
		DeadlineBefore: query.DeadlineBefore,
		DeadlineAfter:  query.DeadlineAfter,
		Pagination:     utils.OptionalPaginationParams(c),
	})
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.Header(constants.TotalCountHeader, strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, dto.ToTaskDTOs(tasks))
}

// GetTask returns the task loaded by middleware.LoadTask.
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, ok := middleware.CurrentTask(c)
	if !ok {
		apierrors.NotFound(c, "Task doesn't exist")
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// CreateTask creates a task authored by the caller.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req struct {
		Title       string              `json:"title" binding:"required,max=200"`
		Description string              `json:"description"`
		Status      models.TaskStatus   `json:"status" binding:"omitempty,taskstatus"`
		Priority    models.TaskPriority `json:"priority" binding:"omitempty,taskpriority"`
		Deadline    *time.Time          `json:"deadline"`
		AssigneeID  *uint64             `json:"assignee_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	actor, _ := middleware.CurrentUser(c)
	task, err := h.taskService.CreateTask(actor, services.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Deadline:    req.Deadline,
		AssigneeID:  req.AssigneeID,
	})
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTaskDTO(*task))
}

// UpdateTask applies the fields present in the body.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Title       utils.Optional[string]              `json:"title" binding:"-"`
		Description utils.Optional[*string]             `json:"description" binding:"-"`
		Status      utils.Optional[models.TaskStatus]   `json:"status" binding:"-"`
		Priority    utils.Optional[models.TaskPriority] `json:"priority" binding:"-"`
		Deadline    utils.Optional[*time.Time]          `json:"deadline" binding:"-"`
		AssigneeID  utils.Optional[*uint64]             `json:"assignee_id" binding:"-"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	details := map[string]string{}
	if req.Title.Set {
		if err := validateVar(req.Title.Value, "required,max=200"); err != nil {
			details["title"] = "required"
		}
	}
	if req.Status.Set && !req.Status.Value.Valid() {
		details["status"] = "taskstatus"
	}
	if req.Priority.Set && !req.Priority.Value.Valid() {
		details["priority"] = "taskpriority"
	}
	if len(details) > 0 {
		apierrors.BadRequestWithDetails(c, "Invalid request body", details)
		return
	}

	input := services.UpdateTaskInput{
		Title:      req.Title,
		Status:     req.Status,
		Priority:   req.Priority,
		Deadline:   req.Deadline,
		AssigneeID: req.AssigneeID,
	}
	if req.Description.Set {
		description := ""
		if req.Description.Value != nil {
			description = *req.Description.Value
		}
		input.Description = utils.Some(description)
	}

	actor, _ := middleware.CurrentUser(c)
	task, err := h.taskService.UpdateTask(actor, taskID, input)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// DeleteTask removes a task and its comments.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	actor, _ := middleware.CurrentUser(c)
	if err := h.taskService.DeleteTask(actor, taskID); err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
	})
}

// AddComment posts a comment on the task loaded by middleware.LoadTask.
func (h *TaskHandler) AddComment(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	task, ok := middleware.CurrentTask(c)
	if !ok {
		apierrors.NotFound(c, "Task doesn't exist")
		return
	}

	actor, _ := middleware.CurrentUser(c)
	comment, err := h.taskService.AddComment(actor, task.ID, req.Text)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToCommentDTO(*comment))
}

// ListComments returns the comments of a task, oldest first.
func (h *TaskHandler) ListComments(c *gin.Context) {
	task, ok := middleware.CurrentTask(c)
	if !ok {
		apierrors.NotFound(c, "Task doesn't exist")
		return
	}

	comments, err := h.taskService.ListComments(task.ID)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	out := make([]dto.CommentDTO, len(comments))
	for i, comment := range comments {
		out[i] = dto.ToCommentDTO(comment)
	}
	c.JSON(http.StatusOK, out)
}

func taskIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apierrors.BadRequest(c, "Invalid task ID")
		return 0, false
	}
	return id, true
}
