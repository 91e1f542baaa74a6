package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/task-tracker-api/internal/auth"
	"github.com/yukikurage/task-tracker-api/internal/config"
	"github.com/yukikurage/task-tracker-api/internal/constants"
	"github.com/yukikurage/task-tracker-api/internal/database"
	"github.com/yukikurage/task-tracker-api/internal/dto"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"github.com/yukikurage/task-tracker-api/internal/repository"
	"github.com/yukikurage/task-tracker-api/internal/services"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type memoryDenylist struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (d *memoryDenylist) Revoke(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked[id] = true
	return nil
}

func (d *memoryDenylist) IsRevoked(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revoked[id], nil
}

// APITestSuite drives the full router against an in-memory database.
type APITestSuite struct {
	suite.Suite
	db     *gorm.DB
	router *gin.Engine
	tokens *auth.TokenService
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (suite *APITestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), database.NewGormConfig())
	suite.Require().NoError(err)
	sqlDB, err := db.DB()
	suite.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	suite.Require().NoError(database.Migrate(db))

	hasher := auth.SHA256Hasher{}
	suite.Require().NoError(database.SeedSuperadmin(db, config.SuperadminConfig{
		Email:    "root@x.com",
		Username: "root",
		Password: "rootpw",
	}, hasher))

	userRepo := repository.NewUserRepository(db)
	denylist := &memoryDenylist{revoked: map[string]bool{}}
	suite.tokens = auth.NewTokenService([]byte("handler-secret"), time.Hour)

	authService := services.NewAuthService(userRepo, hasher, suite.tokens, services.WithDenylist(denylist))
	userService := services.NewUserService(userRepo, hasher, authService)
	taskService := services.NewTaskService(repository.NewTaskRepository(db), userRepo, repository.NewCommentRepository(db))

	suite.router, err = NewRouter(RouterDeps{
		DB:          db,
		Denylist:    denylist,
		Tokens:      suite.tokens,
		UserRepo:    userRepo,
		AuthService: authService,
		UserService: userService,
		TaskService: taskService,
	})
	suite.Require().NoError(err)
	suite.db = db
}

func (suite *APITestSuite) TearDownTest() {
	if sqlDB, err := suite.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (suite *APITestSuite) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: constants.AccessTokenCookieName, Value: token})
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *APITestSuite) decode(w *httptest.ResponseRecorder, out interface{}) {
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func (suite *APITestSuite) cookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == constants.AccessTokenCookieName {
			return c
		}
	}
	return nil
}

func (suite *APITestSuite) register(email, username, password string) dto.UserDTO {
	w := suite.do(http.MethodPost, "/auth/register", gin.H{"email": email, "username": username, "password": password}, "")
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var user dto.UserDTO
	suite.decode(w, &user)
	return user
}

func (suite *APITestSuite) login(email, password string) string {
	w := suite.do(http.MethodPost, "/auth/login", gin.H{"email": email, "password": password}, "")
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var tok dto.TokenResponse
	suite.decode(w, &tok)
	return tok.AccessToken
}

func (suite *APITestSuite) errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	suite.decode(w, &body)
	return body.Code
}

func (suite *APITestSuite) TestRegisterAndLogin() {
	user := suite.register("alice@x.com", "alice", "pw1")
	suite.Equal(models.RoleUser, user.Role)

	w := suite.do(http.MethodPost, "/auth/login", gin.H{"email": "alice@x.com", "password": "pw1"}, "")
	suite.Require().Equal(http.StatusOK, w.Code)

	c := suite.cookie(w)
	suite.Require().NotNil(c)
	suite.True(c.HttpOnly)
	suite.Equal(int(time.Hour.Seconds()), c.MaxAge)

	var tok dto.TokenResponse
	suite.decode(w, &tok)
	suite.Equal(c.Value, tok.AccessToken)

	claims, err := suite.tokens.Verify(tok.AccessToken)
	suite.Require().NoError(err)
	id, _ := claims.SubjectID()
	suite.Equal(user.ID, id)

	me := suite.do(http.MethodGet, "/users/me", nil, tok.AccessToken)
	suite.Require().Equal(http.StatusOK, me.Code)
	suite.NotContains(me.Body.String(), "password")
	suite.Contains(me.Body.String(), `"email":"alice@x.com"`)
}

func (suite *APITestSuite) TestRegisterValidationAndDuplicates() {
	suite.register("alice@x.com", "alice", "pw1")

	w := suite.do(http.MethodPost, "/auth/register", gin.H{"email": "alice@x.com", "username": "other", "password": "pw"}, "")
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("EMAIL_TAKEN", suite.errorCode(w))

	w = suite.do(http.MethodPost, "/auth/register", gin.H{"email": "not-an-email", "username": "x", "password": "pw"}, "")
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.do(http.MethodPost, "/auth/register", gin.H{"email": "b@x.com", "username": "b", "password": ""}, "")
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.do(http.MethodPost, "/auth/register", gin.H{"email": "b@x.com", "username": "b", "password": "pw", "role": "superadmin"}, "")
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Equal("ROLE_NOT_SELECTABLE", suite.errorCode(w))

	w = suite.do(http.MethodPost, "/auth/register", gin.H{"email": "b@x.com", "username": "b", "password": "pw", "role": "root"}, "")
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *APITestSuite) TestLoginFailuresAreIndistinguishable() {
	suite.register("alice@x.com", "alice", "pw1")

	wrong := suite.do(http.MethodPost, "/auth/login", gin.H{"email": "alice@x.com", "password": "bad"}, "")
	unknown := suite.do(http.MethodPost, "/auth/login", gin.H{"email": "ghost@x.com", "password": "pw1"}, "")

	suite.Equal(http.StatusUnauthorized, wrong.Code)
	suite.Equal(wrong.Code, unknown.Code)
	suite.Equal(wrong.Body.String(), unknown.Body.String())
	suite.Nil(suite.cookie(wrong))
}

func (suite *APITestSuite) TestRefreshAndLogout() {
	suite.register("alice@x.com", "alice", "pw1")
	token := suite.login("alice@x.com", "pw1")

	suite.Equal(http.StatusUnauthorized, suite.do(http.MethodPost, "/auth/refresh", nil, "").Code)
	suite.Equal(http.StatusUnauthorized, suite.do(http.MethodPost, "/auth/refresh", nil, "forged").Code)

	w := suite.do(http.MethodPost, "/auth/refresh", nil, token)
	suite.Require().Equal(http.StatusOK, w.Code)
	var tok dto.TokenResponse
	suite.decode(w, &tok)
	suite.NotEqual(token, tok.AccessToken)
	suite.Equal(tok.AccessToken, suite.cookie(w).Value)

	w = suite.do(http.MethodPost, "/auth/logout", nil, tok.AccessToken)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Equal(-1, suite.cookie(w).MaxAge)

	suite.Equal(http.StatusUnauthorized, suite.do(http.MethodGet, "/users/me", nil, tok.AccessToken).Code)
	suite.Equal(http.StatusUnauthorized, suite.do(http.MethodPost, "/auth/refresh", nil, tok.AccessToken).Code)

	// the older token was never revoked
	suite.Equal(http.StatusOK, suite.do(http.MethodGet, "/users/me", nil, token).Code)
}

func (suite *APITestSuite) TestRefreshAcceptsExpiredCookie() {
	alice := suite.register("alice@x.com", "alice", "pw1")

	w := suite.do(http.MethodPost, "/auth/login", gin.H{"email": "alice@x.com", "password": "pw1"}, "")
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Zero(suite.cookie(w).MaxAge)
	suite.True(suite.cookie(w).Expires.IsZero())

	past := time.Now().Add(-3 * time.Hour)
	expired, _, err := auth.NewTokenService([]byte("handler-secret"), time.Hour, auth.WithClock(func() time.Time { return past })).
		Issue(alice.ID, models.RoleUser)
	suite.Require().NoError(err)

	suite.Equal(http.StatusUnauthorized, suite.do(http.MethodGet, "/users/me", nil, expired).Code)

	w = suite.do(http.MethodPost, "/auth/refresh", nil, expired)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	renewed := suite.cookie(w)
	suite.Require().NotNil(renewed)
	suite.Zero(renewed.MaxAge)

	suite.Equal(http.StatusOK, suite.do(http.MethodGet, "/users/me", nil, renewed.Value).Code)

	// once logged out, the expired token cannot be renewed either
	suite.Equal(http.StatusOK, suite.do(http.MethodPost, "/auth/logout", nil, expired).Code)
	suite.Equal(http.StatusUnauthorized, suite.do(http.MethodPost, "/auth/refresh", nil, expired).Code)
}

func (suite *APITestSuite) TestPasswordLengthCountsBytes() {
	w := suite.do(http.MethodPost, "/auth/register", gin.H{
		"email": "a@x.com", "username": "a", "password": strings.Repeat("é", 72),
	}, "")
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Contains(w.Body.String(), `"password"`)

	suite.register("b@x.com", "b", strings.Repeat("p", 72))
	suite.register("c@x.com", "c", strings.Repeat("é", 36))

	w = suite.do(http.MethodPost, "/auth/register", gin.H{
		"email": "d@x.com", "username": "d", "password": strings.Repeat("p", 73),
	}, "")
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *APITestSuite) TestProtectedRoutesRequireToken() {
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/users/me"},
		{http.MethodPut, "/users/me"},
		{http.MethodPut, "/users/1"},
		{http.MethodGet, "/tasks/"},
		{http.MethodPost, "/tasks/"},
		{http.MethodGet, "/tasks/1"},
		{http.MethodPut, "/tasks/1"},
		{http.MethodDelete, "/tasks/1"},
		{http.MethodPost, "/tasks/1/comments"},
	} {
		w := suite.do(route.method, route.path, gin.H{}, "")
		suite.Equal(http.StatusUnauthorized, w.Code, route.method+" "+route.path)
	}
}

func (suite *APITestSuite) TestUpdateMeClearsSession() {
	suite.register("alice@x.com", "alice", "pw1")
	suite.register("bob@x.com", "bob", "pw2")
	token := suite.login("alice@x.com", "pw1")

	w := suite.do(http.MethodPut, "/users/me", gin.H{"email": "bob@x.com"}, token)
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("EMAIL_TAKEN", suite.errorCode(w))

	w = suite.do(http.MethodPut, "/users/me", gin.H{"email": "broken"}, token)
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.do(http.MethodPut, "/users/me", gin.H{"username": "alicia"}, token)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var user dto.UserDTO
	suite.decode(w, &user)
	suite.Equal("alicia", user.Username)
	suite.Equal("alice@x.com", user.Email)
	suite.Equal(-1, suite.cookie(w).MaxAge)

	suite.Equal(http.StatusUnauthorized, suite.do(http.MethodGet, "/users/me", nil, token).Code)
}

func (suite *APITestSuite) TestPrivilegedUpdate() {
	alice := suite.register("alice@x.com", "alice", "pw1")
	aliceToken := suite.login("alice@x.com", "pw1")
	rootToken := suite.login("root@x.com", "rootpw")

	var root dto.UserDTO
	suite.decode(suite.do(http.MethodGet, "/users/me", nil, rootToken), &root)
	rootPath := fmt.Sprintf("/users/%d", root.ID)
	alicePath := fmt.Sprintf("/users/%d", alice.ID)

	w := suite.do(http.MethodPut, alicePath, gin.H{"role": "admin"}, aliceToken)
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Equal("SUPERADMIN_ROLE_REQUIRED", suite.errorCode(w))

	suite.Equal(http.StatusNotFound, suite.do(http.MethodPut, "/users/9999", gin.H{}, rootToken).Code)

	w = suite.do(http.MethodPut, rootPath, gin.H{"role": "user"}, rootToken)
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Equal("OWN_ROLE_CHANGE", suite.errorCode(w))

	w = suite.do(http.MethodPut, alicePath, gin.H{"password": gin.H{"current_password": "pw1", "new_password": "x"}}, rootToken)
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Equal("FOREIGN_PASSWORD_CHANGE", suite.errorCode(w))

	w = suite.do(http.MethodPut, rootPath, gin.H{"password": gin.H{"current_password": "nope", "new_password": "x"}}, rootToken)
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("CURRENT_PASSWORD_INCORRECT", suite.errorCode(w))

	w = suite.do(http.MethodPut, alicePath, gin.H{"email": "root@x.com"}, rootToken)
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("EMAIL_TAKEN", suite.errorCode(w))

	w = suite.do(http.MethodPut, alicePath, gin.H{"role": "overlord"}, rootToken)
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.do(http.MethodPut, rootPath, gin.H{"password": gin.H{"current_password": "rootpw", "new_password": "newroot"}}, rootToken)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.login("root@x.com", "newroot")
}

// register → 403 on task creation → promotion → task creation succeeds
func (suite *APITestSuite) TestPromotionScenario() {
	alice := suite.register("alice@x.com", "alice", "pw1")
	aliceToken := suite.login("alice@x.com", "pw1")
	rootToken := suite.login("root@x.com", "rootpw")

	task := gin.H{"title": "write docs", "assignee_id": alice.ID}

	w := suite.do(http.MethodPost, "/tasks/", task, aliceToken)
	suite.Require().Equal(http.StatusForbidden, w.Code)
	suite.Equal("ADMIN_ROLE_REQUIRED", suite.errorCode(w))

	w = suite.do(http.MethodPut, fmt.Sprintf("/users/%d", alice.ID), gin.H{"role": "admin"}, rootToken)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = suite.do(http.MethodPost, "/tasks/", task, aliceToken)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var created dto.TaskDTO
	suite.decode(w, &created)
	suite.Equal(alice.ID, created.AuthorID)
	suite.Equal(models.TaskStatusTodo, created.Status)
	suite.Equal(models.TaskPriorityMedium, created.Priority)
}

func (suite *APITestSuite) TestTaskEndpoints() {
	rootToken := suite.login("root@x.com", "rootpw")
	admin := suite.register("admin@x.com", "admin", "pw")
	other := suite.register("other@x.com", "other", "pw")
	for _, id := range []uint64{admin.ID, other.ID} {
		w := suite.do(http.MethodPut, fmt.Sprintf("/users/%d", id), gin.H{"role": "admin"}, rootToken)
		suite.Require().Equal(http.StatusOK, w.Code)
	}
	adminToken := suite.login("admin@x.com", "pw")
	otherToken := suite.login("other@x.com", "pw")

	w := suite.do(http.MethodGet, "/tasks/", nil, adminToken)
	suite.Equal(http.StatusNotFound, w.Code)

	w = suite.do(http.MethodPost, "/tasks/", gin.H{"title": "t", "assignee_id": 9999}, adminToken)
	suite.Equal(http.StatusUnprocessableEntity, w.Code)

	w = suite.do(http.MethodPost, "/tasks/", gin.H{"title": "t", "assignee_id": other.ID, "status": "bogus"}, adminToken)
	suite.Equal(http.StatusBadRequest, w.Code)

	w = suite.do(http.MethodPost, "/tasks/", gin.H{
		"title":       "t",
		"assignee_id": other.ID,
		"priority":    "high",
		"deadline":    "2030-01-10T12:00:00Z",
	}, adminToken)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var task dto.TaskDTO
	suite.decode(w, &task)
	taskPath := fmt.Sprintf("/tasks/%d", task.ID)

	w = suite.do(http.MethodPost, "/tasks/", gin.H{"title": "t", "assignee_id": other.ID}, adminToken)
	suite.Equal(http.StatusConflict, w.Code)

	w = suite.do(http.MethodGet, "/tasks/?priority=high&deadline_before=2030-01-10T12:00:00Z", nil, otherToken)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal("1", w.Header().Get(constants.TotalCountHeader))

	suite.Equal(http.StatusNotFound, suite.do(http.MethodGet, "/tasks/?deadline_after=2030-02-01T00:00:00Z", nil, otherToken).Code)
	suite.Equal(http.StatusBadRequest, suite.do(http.MethodGet, "/tasks/?status=nope", nil, otherToken).Code)

	suite.Equal(http.StatusOK, suite.do(http.MethodGet, taskPath, nil, otherToken).Code)
	suite.Equal(http.StatusNotFound, suite.do(http.MethodGet, "/tasks/9999", nil, otherToken).Code)

	w = suite.do(http.MethodPut, taskPath, gin.H{"status": "done"}, otherToken)
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Equal("NOT_TASK_AUTHOR", suite.errorCode(w))
	suite.Equal(http.StatusNotFound, suite.do(http.MethodPut, "/tasks/9999", gin.H{"status": "done"}, otherToken).Code)

	w = suite.do(http.MethodPut, taskPath, gin.H{"status": "done", "deadline": nil}, adminToken)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var updated dto.TaskDTO
	suite.decode(w, &updated)
	suite.Equal(models.TaskStatusDone, updated.Status)
	suite.Nil(updated.Deadline)
	suite.Equal("t", updated.Title)

	w = suite.do(http.MethodPost, taskPath+"/comments", gin.H{"text": "nice"}, otherToken)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var comment dto.CommentDTO
	suite.decode(w, &comment)
	suite.Equal("other", comment.Author)
	suite.Equal(task.ID, comment.TaskID)

	suite.Equal(http.StatusNotFound, suite.do(http.MethodPost, "/tasks/9999/comments", gin.H{"text": "x"}, otherToken).Code)

	w = suite.do(http.MethodGet, taskPath+"/comments", nil, adminToken)
	suite.Require().Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"author":"other"`)

	suite.Equal(http.StatusForbidden, suite.do(http.MethodDelete, taskPath, nil, otherToken).Code)
	suite.Equal(http.StatusOK, suite.do(http.MethodDelete, taskPath, nil, rootToken).Code)
	suite.Equal(http.StatusNotFound, suite.do(http.MethodDelete, taskPath, nil, rootToken).Code)

	var comments int64
	suite.Require().NoError(suite.db.Model(&models.Comment{}).Count(&comments).Error)
	suite.Zero(comments)
}

func (suite *APITestSuite) TestConcurrentRegistration() {
	const attempts = 8

	var wg sync.WaitGroup
	codes := make([]int, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, _ := json.Marshal(gin.H{
				"email":    "race@x.com",
				"username": fmt.Sprintf("racer%d", i),
				"password": "pw",
			})
			req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(raw))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			suite.router.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	created, conflicts := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusBadRequest:
			conflicts++
		}
	}
	suite.Equal(1, created)
	suite.Equal(attempts-1, conflicts)
}

func (suite *APITestSuite) TestHealth() {
	suite.Equal(http.StatusOK, suite.do(http.MethodGet, "/health", nil, "").Code)

	w := suite.do(http.MethodGet, "/health/ready", nil, "")
	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), `"database":"ok"`)

	suite.Equal(http.StatusOK, suite.do(http.MethodGet, "/metrics", nil, "").Code)
}
