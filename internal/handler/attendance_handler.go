package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classtrack/classtrack-api/internal/service"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
	"github.com/classtrack/classtrack-api/pkg/response"
)

// AttendanceHandler wires HTTP endpoints to the attendance service.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler creates a new handler.
func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Mark godoc
// @Summary Mark attendance
// @Description Record or overwrite attendance for a class on one date
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkAttendanceRequest true "Attendance payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/mark [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.service.Mark(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ClassDay godoc
// @Summary Class attendance
// @Description Attendance records for a class, optionally for one date
// @Tags Attendance
// @Produce json
// @Param classId path string true "Class ID"
// @Param date query string false "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{classId}/attendance [get]
func (h *AttendanceHandler) ClassDay(c *gin.Context) {
	date, err := parseDateParam(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}

	records, err := h.service.ClassDay(c.Request.Context(), claimsFromContext(c), c.Param("classId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"attendance": records}, nil)
}

// StudentHistory godoc
// @Summary Student attendance history
// @Description One student's attendance in a class over a date window (default trailing 30 days)
// @Tags Attendance
// @Produce json
// @Param classId path string true "Class ID"
// @Param studentId path string true "Student ID"
// @Param startDate query string false "Window start (YYYY-MM-DD)"
// @Param endDate query string false "Window end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{classId}/student-attendance/{studentId} [get]
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	from, err := parseDateParam(c, "startDate")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := parseDateParam(c, "endDate")
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.service.StudentHistory(c.Request.Context(), claimsFromContext(c), c.Param("classId"), c.Param("studentId"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// ClassDetails godoc
// @Summary Class details with statistics
// @Description Class info, roster, and 30-day attendance rollup
// @Tags Attendance
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{classId}/details [get]
func (h *AttendanceHandler) ClassDetails(c *gin.Context) {
	result, err := h.service.ClassDetails(c.Request.Context(), claimsFromContext(c), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Records godoc
// @Summary Paginated attendance records
// @Description Page through a class's attendance records with optional filters
// @Tags Attendance
// @Produce json
// @Param classId path string true "Class ID"
// @Param startDate query string false "Filter start (YYYY-MM-DD)"
// @Param endDate query string false "Filter end (YYYY-MM-DD)"
// @Param studentId query string false "Filter by student"
// @Param page query int false "Page (1-indexed)"
// @Param limit query int false "Page size (default 20)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{classId}/attendance-records [get]
func (h *AttendanceHandler) Records(c *gin.Context) {
	startDate, err := parseDateParam(c, "startDate")
	if err != nil {
		response.Error(c, err)
		return
	}
	endDate, err := parseDateParam(c, "endDate")
	if err != nil {
		response.Error(c, err)
		return
	}

	query := service.RecordsQuery{
		StartDate: startDate,
		EndDate:   endDate,
		StudentID: c.Query("studentId"),
		Page:      parseQueryInt(c, "page", 1),
		Limit:     parseQueryInt(c, "limit", 20),
	}

	result, err := h.service.Records(c.Request.Context(), claimsFromContext(c), c.Param("classId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result.Attendance, &result.Pagination)
}

// MyAttendance godoc
// @Summary My attendance
// @Description Every attendance record for the calling student, newest first
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/my-attendance [get]
func (h *AttendanceHandler) MyAttendance(c *gin.Context) {
	records, err := h.service.MyAttendance(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"attendance": records}, nil)
}

// Export godoc
// @Summary Export class attendance report
// @Description Download the per-student attendance rollup as CSV or PDF
// @Tags Attendance
// @Produce octet-stream
// @Param classId path string true "Class ID"
// @Param format query string false "csv or pdf (default csv)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /classes/{classId}/attendance/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	result, err := h.service.ExportClassReport(c.Request.Context(), claimsFromContext(c), c.Param("classId"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

func parseDateParam(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid %s, expected YYYY-MM-DD", name))
	}
	return &parsed, nil
}

func parseQueryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
