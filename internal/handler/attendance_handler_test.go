package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/classtrack-api/internal/middleware"
	"github.com/classtrack/classtrack-api/internal/models"
	"github.com/classtrack/classtrack-api/internal/service"
)

type fakeAttendanceRepo struct {
	summary models.UpsertSummary
	found   []models.AttendanceRecordDetail
	total   int
}

func (f *fakeAttendanceRepo) UpsertBatch(ctx context.Context, entries []models.AttendanceEntry) (models.UpsertSummary, error) {
	return f.summary, nil
}

func (f *fakeAttendanceRepo) Find(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, error) {
	return f.found, nil
}

func (f *fakeAttendanceRepo) Count(ctx context.Context, filter models.AttendanceFilter) (int, error) {
	return f.total, nil
}

type fakeClassReader struct {
	classes map[string]*models.ClassDetail
}

func (f *fakeClassReader) FindDetail(ctx context.Context, id string) (*models.ClassDetail, error) {
	if class, ok := f.classes[id]; ok {
		return class, nil
	}
	return nil, sql.ErrNoRows
}

func newAttendanceHandler(repo *fakeAttendanceRepo) *AttendanceHandler {
	classes := &fakeClassReader{classes: map[string]*models.ClassDetail{
		"c1": {
			Class: models.Class{ID: "c1", Name: "Algebra", TeacherID: "t1"},
			Students: []models.UserInfo{
				{ID: "s1", FullName: "Alice"},
				{ID: "s2", FullName: "Bob"},
			},
		},
	}}
	svc := service.NewAttendanceService(repo, classes, service.NewAuthorizationGuard(), nil, nil, nil)
	return NewAttendanceHandler(svc)
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}
}

func TestAttendanceHandlerMark(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAttendanceHandler(&fakeAttendanceRepo{summary: models.UpsertSummary{Created: 2}})

	body := `{"classId":"c1","date":"2026-03-15","attendanceData":[{"studentId":"s1","status":"present"},{"studentId":"s2","status":"absent"}]}`
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/attendance/mark", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, teacherClaims())

	handler.Mark(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "attendance marked successfully")
}

func TestAttendanceHandlerMarkForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAttendanceHandler(&fakeAttendanceRepo{})

	body := `{"classId":"c1","date":"2026-03-15","attendanceData":[{"studentId":"s1","status":"present"}]}`
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/attendance/mark", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t2", Role: models.RoleTeacher})

	handler.Mark(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAttendanceHandlerMarkUnknownClass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAttendanceHandler(&fakeAttendanceRepo{})

	body := `{"classId":"missing","date":"2026-03-15","attendanceData":[{"studentId":"s1","status":"present"}]}`
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/attendance/mark", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, teacherClaims())

	handler.Mark(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAttendanceHandlerClassDayInvalidDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAttendanceHandler(&fakeAttendanceRepo{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/classes/c1/attendance?date=15-03-2026", nil)
	c.Params = gin.Params{{Key: "classId", Value: "c1"}}
	c.Set(middleware.ContextUserKey, teacherClaims())

	handler.ClassDay(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAttendanceHandlerRecordsPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAttendanceHandler(&fakeAttendanceRepo{total: 45})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/classes/c1/attendance-records?page=2&limit=20", nil)
	c.Params = gin.Params{{Key: "classId", Value: "c1"}}
	c.Set(middleware.ContextUserKey, teacherClaims())

	handler.Records(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Pagination *models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, models.Pagination{Total: 45, Page: 2, Limit: 20, Pages: 3}, *envelope.Pagination)
}

func TestAttendanceHandlerMyAttendanceStudentOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAttendanceHandler(&fakeAttendanceRepo{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/attendance/my-attendance", nil)
	c.Set(middleware.ContextUserKey, teacherClaims())

	handler.MyAttendance(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAttendanceHandlerExportCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAttendanceHandler(&fakeAttendanceRepo{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/classes/c1/attendance/export?format=csv", nil)
	c.Params = gin.Params{{Key: "classId", Value: "c1"}}
	c.Set(middleware.ContextUserKey, teacherClaims())

	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attendance-c1.csv")
}
