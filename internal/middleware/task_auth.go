package middleware

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/task-tracker-api/internal/constants"
	apierrors "github.com/yukikurage/task-tracker-api/internal/errors"
	"github.com/yukikurage/task-tracker-api/internal/logger"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"github.com/yukikurage/task-tracker-api/internal/services"
)

// LoadTask resolves the :id path parameter to a task, answering 404 when
// it does not exist. It carries no permission check of its own.
func LoadTask(tasks *services.TaskService) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			apierrors.BadRequest(c, "Invalid task ID")
			return
		}

		task, err := tasks.GetTask(taskID)
		if err != nil {
			if errors.Is(err, services.ErrTaskNotFound) {
				apierrors.NotFound(c, "Task doesn't exist")
				return
			}
			logger.Get().Error().Err(err).Uint64("task_id", taskID).Msg("failed to load task")
			apierrors.InternalError(c, "")
			return
		}

		c.Set(constants.ContextKeyTask, task)
		c.Next()
	}
}

// CurrentTask returns the task stored by LoadTask.
func CurrentTask(c *gin.Context) (*models.Task, bool) {
	v, exists := c.Get(constants.ContextKeyTask)
	if !exists {
		return nil, false
	}
	task, ok := v.(*models.Task)
	return task, ok
}
