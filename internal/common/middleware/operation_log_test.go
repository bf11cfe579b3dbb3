package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/tour-booking-backend/internal/models"
)

type chanWriter struct {
	ch chan *models.OperationLog
}

func (w *chanWriter) Create(_ context.Context, log *models.OperationLog) error {
	w.ch <- log
	return nil
}

func newAuditRouter(writer OperationLogWriter, role string, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Set("user_id", int64(7))
		c.Set("role", role)
	})
	api.Use(NewOperationLogger(writer, "/api/v1").Log())
	api.PUT("/tours/:id", func(c *gin.Context) { c.Status(status) })
	api.GET("/tours/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	api.POST("/bookings", func(c *gin.Context) { c.Status(http.StatusCreated) })
	return r
}

func waitLog(t *testing.T, ch chan *models.OperationLog) *models.OperationLog {
	t.Helper()
	select {
	case l := <-ch:
		return l
	case <-time.After(2 * time.Second):
		t.Fatal("operation log not written")
		return nil
	}
}

func assertNoLog(t *testing.T, ch chan *models.OperationLog) {
	t.Helper()
	select {
	case l := <-ch:
		t.Fatalf("unexpected operation log: %+v", l)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOperationLogger_RecordsAdminMutation(t *testing.T) {
	w := &chanWriter{ch: make(chan *models.OperationLog, 1)}
	r := newAuditRouter(w, models.RoleAdmin, http.StatusOK)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/tours/12",
		strings.NewReader(`{"title":"Alps","price":900,"api_secret":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "admin-console")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	log := waitLog(t, w.ch)
	assert.Equal(t, int64(7), log.AdminID)
	assert.Equal(t, "tour", log.Module)
	assert.Equal(t, "update", log.Action)
	require.NotNil(t, log.TargetID)
	assert.Equal(t, int64(12), *log.TargetID)
	require.NotNil(t, log.UserAgent)
	assert.Equal(t, "admin-console", *log.UserAgent)
	assert.Equal(t, "Alps", log.RequestData["title"])
	assert.Equal(t, "***", log.RequestData["api_secret"])
}

func TestOperationLogger_Skips(t *testing.T) {
	t.Run("普通用户", func(t *testing.T) {
		w := &chanWriter{ch: make(chan *models.OperationLog, 1)}
		r := newAuditRouter(w, models.RoleUser, http.StatusOK)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/v1/tours/1", nil))
		assertNoLog(t, w.ch)
	})

	t.Run("请求失败", func(t *testing.T) {
		w := &chanWriter{ch: make(chan *models.OperationLog, 1)}
		r := newAuditRouter(w, models.RoleAdmin, http.StatusConflict)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/v1/tours/1", nil))
		assertNoLog(t, w.ch)
	})

	t.Run("读操作", func(t *testing.T) {
		w := &chanWriter{ch: make(chan *models.OperationLog, 1)}
		r := newAuditRouter(w, models.RoleAdmin, http.StatusOK)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/tours/1", nil))
		assertNoLog(t, w.ch)
	})

	t.Run("未登记的路由", func(t *testing.T) {
		w := &chanWriter{ch: make(chan *models.OperationLog, 1)}
		r := newAuditRouter(w, models.RoleAdmin, http.StatusOK)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil))
		assertNoLog(t, w.ch)
	})
}

func TestFilterSensitiveData(t *testing.T) {
	in := map[string]interface{}{
		"password": "p",
		"nested":   map[string]interface{}{"refresh_token": "t", "keep": 1.0},
		"list":     []interface{}{map[string]interface{}{"card_number": "4242"}},
	}
	out := filterSensitiveData(in).(map[string]interface{})

	assert.Equal(t, "***", out["password"])
	nested := out["nested"].(map[string]interface{})
	assert.Equal(t, "***", nested["refresh_token"])
	assert.Equal(t, 1.0, nested["keep"])
	assert.Equal(t, "***", out["list"].([]interface{})[0].(map[string]interface{})["card_number"])
}
