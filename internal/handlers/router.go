package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/yukikurage/task-tracker-api/internal/auth"
	"github.com/yukikurage/task-tracker-api/internal/constants"
	"github.com/yukikurage/task-tracker-api/internal/middleware"
	"github.com/yukikurage/task-tracker-api/internal/repository"
	"github.com/yukikurage/task-tracker-api/internal/services"
	"gorm.io/gorm"
)

// RouterDeps holds everything the HTTP layer needs. Denylist and Redis may be nil.
type RouterDeps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Denylist auth.Denylist
	Tokens   *auth.TokenService
	UserRepo repository.UserRepository

	AuthService *services.AuthService
	UserService *services.UserService
	TaskService *services.TaskService

	Cookies        CookieConfig
	AllowedOrigins []string
}

// NewRouter builds the gin engine with every route of the API.
func NewRouter(deps RouterDeps) (*gin.Engine, error) {
	if err := RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())

	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     deps.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", constants.RequestIDHeader},
			ExposeHeaders:    []string{constants.RequestIDHeader, constants.TotalCountHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Cookies)
	userHandler := NewUserHandler(deps.UserService, deps.Cookies)
	taskHandler := NewTaskHandler(deps.TaskService)
	healthHandler := NewHealthHandler(deps.DB, deps.Redis)

	requireAuth := middleware.RequireAuth(deps.Tokens, deps.UserRepo, deps.Denylist)
	loadTask := middleware.LoadTask(deps.TaskService)

	r.GET("/health", healthHandler.Live)
	r.GET("/health/ready", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.POST("/refresh", authHandler.Refresh)
		authRoutes.POST("/logout", authHandler.Logout)
	}

	users := r.Group("/users")
	users.Use(requireAuth)
	{
		users.GET("/me", authHandler.GetCurrentUser)
		users.PUT("/me", userHandler.UpdateMe)
		users.PUT("/:id", userHandler.UpdateUser)
	}

	tasks := r.Group("/tasks")
	tasks.Use(requireAuth)
	{
		tasks.GET("/", taskHandler.ListTasks)
		tasks.GET("", taskHandler.ListTasks)
		tasks.POST("/", taskHandler.CreateTask)
		tasks.POST("", taskHandler.CreateTask)
		tasks.GET("/:id", loadTask, taskHandler.GetTask)
		tasks.PUT("/:id", taskHandler.UpdateTask)
		tasks.DELETE("/:id", taskHandler.DeleteTask)
		tasks.POST("/:id/comments", loadTask, taskHandler.AddComment)
		tasks.GET("/:id/comments", loadTask, taskHandler.ListComments)
	}

	return r, nil
}
