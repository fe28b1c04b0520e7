package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classtrack/classtrack-api/internal/models"
	"github.com/classtrack/classtrack-api/internal/repository"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
	"github.com/classtrack/classtrack-api/pkg/export"
)

type attendanceRepository interface {
	UpsertBatch(ctx context.Context, entries []models.AttendanceEntry) (models.UpsertSummary, error)
	Find(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, error)
	Count(ctx context.Context, filter models.AttendanceFilter) (int, error)
}

type classDetailReader interface {
	FindDetail(ctx context.Context, id string) (*models.ClassDetail, error)
}

// AttendanceService is the single entry point for attendance reads and
// writes. Every operation resolves the class, evaluates the authorization
// guard, and only then touches the record store.
type AttendanceService struct {
	records   attendanceRepository
	classes   classDetailReader
	guard     *AuthorizationGuard
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(records attendanceRepository, classes classDetailReader, guard *AuthorizationGuard, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = NewAuthorizationGuard()
	}
	svc := &AttendanceService{
		records:   records,
		classes:   classes,
		guard:     guard,
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	return svc
}

// MarkAttendanceItem holds one student's status in a mark request.
type MarkAttendanceItem struct {
	StudentID string `json:"studentId" validate:"required"`
	Status    string `json:"status" validate:"required,attendance_status"`
}

// MarkAttendanceRequest describes the mark-attendance payload.
type MarkAttendanceRequest struct {
	ClassID        string               `json:"classId" validate:"required"`
	Date           string               `json:"date" validate:"required"`
	AttendanceData []MarkAttendanceItem `json:"attendanceData" validate:"required,min=1,dive"`
}

// MarkAttendanceResult is returned after a successful mark call.
type MarkAttendanceResult struct {
	Message    string                          `json:"message"`
	Attendance []models.AttendanceRecordDetail `json:"attendance"`
	Summary    models.MarkSummary              `json:"summary"`
}

// StudentHistoryResult carries a student's history, rate and window.
type StudentHistoryResult struct {
	History    []models.AttendanceRecordDetail `json:"history"`
	Statistics models.StudentStatistics        `json:"statistics"`
	DateRange  models.DateRange                `json:"dateRange"`
}

// ClassDetailsResult carries the resolved class and its rollup.
type ClassDetailsResult struct {
	Class      *models.ClassDetail    `json:"class"`
	Statistics models.ClassStatistics `json:"statistics"`
}

// RecordsQuery scopes the paginated records listing.
type RecordsQuery struct {
	StartDate *time.Time
	EndDate   *time.Time
	StudentID string
	Page      int
	Limit     int
}

// RecordsResult is one page of records plus pagination metadata.
type RecordsResult struct {
	Attendance []models.AttendanceRecordDetail `json:"attendance"`
	Pagination models.Pagination               `json:"pagination"`
}

// ExportResult carries a rendered report document.
type ExportResult struct {
	FileName    string
	ContentType string
	Content     []byte
}

// Mark validates the batch against the roster, upserts every entry, then
// re-reads and returns the day's records with a same-day summary. Marking
// the same day twice overwrites statuses; it never creates duplicates.
func (s *AttendanceService) Mark(ctx context.Context, principal *models.JWTClaims, req MarkAttendanceRequest) (*MarkAttendanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	date, err := time.Parse(dayFormat, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}

	class, err := s.loadClass(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}
	if !s.guard.CanWriteClassAttendance(principal, class) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to mark attendance")
	}

	seen := map[string]struct{}{}
	entries := make([]models.AttendanceEntry, len(req.AttendanceData))
	for i, item := range req.AttendanceData {
		if !class.HasStudent(item.StudentID) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s not part of this class", item.StudentID))
		}
		if _, ok := seen[item.StudentID]; ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate student %s in payload", item.StudentID))
		}
		seen[item.StudentID] = struct{}{}
		entries[i] = models.AttendanceEntry{
			StudentID: item.StudentID,
			ClassID:   req.ClassID,
			Date:      date,
			Status:    models.AttendanceStatus(strings.ToLower(item.Status)),
		}
	}

	summary, err := s.records.UpsertBatch(ctx, entries)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "duplicate attendance record detected, please try again")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}

	if err := s.cache.Invalidate(ctx, classCachePattern(req.ClassID)); err != nil {
		s.logger.Warn("failed to invalidate class stats cache", zap.String("class_id", req.ClassID), zap.Error(err))
	}

	stored, err := s.records.Find(ctx, models.AttendanceFilter{ClassID: req.ClassID, ExactDate: &date})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload attendance")
	}

	message := "attendance marked successfully"
	if summary.Created > 0 || summary.Updated > 0 {
		message = fmt.Sprintf("attendance marked successfully (%d new records, %d updated records)", summary.Created, summary.Updated)
	}

	present := 0
	for _, item := range req.AttendanceData {
		if models.AttendanceStatus(strings.ToLower(item.Status)) == models.AttendanceStatusPresent {
			present++
		}
	}

	return &MarkAttendanceResult{
		Message:    message,
		Attendance: stored,
		Summary: models.MarkSummary{
			Date:          req.Date,
			TotalStudents: len(req.AttendanceData),
			Present:       present,
			Absent:        len(req.AttendanceData) - present,
		},
	}, nil
}

// ClassDay returns a class's records, optionally restricted to one calendar day.
func (s *AttendanceService) ClassDay(ctx context.Context, principal *models.JWTClaims, classID string, date *time.Time) ([]models.AttendanceRecordDetail, error) {
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if !s.guard.CanReadClassAttendance(principal, class) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to view attendance")
	}

	records, err := s.records.Find(ctx, models.AttendanceFilter{ClassID: classID, ExactDate: date})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch attendance")
	}
	return records, nil
}

// StudentHistory returns one student's records in a class over a window
// (default trailing 30 days) together with their attendance rate.
func (s *AttendanceService) StudentHistory(ctx context.Context, principal *models.JWTClaims, classID, studentID string, from, to *time.Time) (*StudentHistoryResult, error) {
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if !s.guard.CanReadStudentHistory(principal, class, studentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this student's history")
	}
	if !class.HasStudent(studentID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student not enrolled in this class")
	}

	windowFrom, windowTo := DefaultWindow(s.now())
	if from != nil {
		windowFrom = *from
	}
	if to != nil {
		windowTo = *to
	}

	history, err := s.records.Find(ctx, models.AttendanceFilter{
		ClassID:   classID,
		StudentID: studentID,
		DateFrom:  &windowFrom,
		DateTo:    &windowTo,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch attendance history")
	}

	var student *models.UserInfo
	for i := range class.Students {
		if class.Students[i].ID == studentID {
			student = &class.Students[i]
			break
		}
	}

	return &StudentHistoryResult{
		History:    history,
		Statistics: BuildStudentStatistics(history, &class.Class, student),
		DateRange:  FormatDateRange(windowFrom, windowTo),
	}, nil
}

// ClassDetails returns the resolved class with its 30-day statistics rollup.
func (s *AttendanceService) ClassDetails(ctx context.Context, principal *models.JWTClaims, classID string) (*ClassDetailsResult, error) {
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if !s.guard.CanReadClassAttendance(principal, class) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to view class details")
	}

	cacheKey := classStatsCacheKey(classID)
	var stats models.ClassStatistics
	hit, _ := s.cache.Get(ctx, cacheKey, &stats)
	if !hit {
		from, to := DefaultWindow(s.now())
		records, err := s.records.Find(ctx, models.AttendanceFilter{ClassID: classID, DateFrom: &from, DateTo: &to})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class statistics")
		}
		stats = BuildClassStatistics(records, len(class.Students), from, to)
		if err := s.cache.Set(ctx, cacheKey, stats, 0); err != nil {
			s.logger.Warn("failed to cache class stats", zap.String("class_id", classID), zap.Error(err))
		}
	}

	return &ClassDetailsResult{Class: class, Statistics: stats}, nil
}

// Records returns one page of a class's records with pagination metadata.
// Pages are 1-indexed; the default page size is 20.
func (s *AttendanceService) Records(ctx context.Context, principal *models.JWTClaims, classID string, query RecordsQuery) (*RecordsResult, error) {
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if !s.guard.CanReadClassAttendance(principal, class) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to view attendance records")
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	filter := models.AttendanceFilter{
		ClassID:   classID,
		StudentID: query.StudentID,
		DateFrom:  query.StartDate,
		DateTo:    query.EndDate,
		Offset:    (page - 1) * limit,
		Limit:     limit,
	}

	records, err := s.records.Find(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch attendance records")
	}
	total, err := s.records.Count(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attendance records")
	}

	return &RecordsResult{
		Attendance: records,
		Pagination: models.Pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

// MyAttendance returns every record for the calling student, newest first,
// with class display info resolved per record.
func (s *AttendanceService) MyAttendance(ctx context.Context, principal *models.JWTClaims) ([]models.AttendanceRecordDetail, error) {
	if principal == nil || principal.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students have personal attendance")
	}
	records, err := s.records.Find(ctx, models.AttendanceFilter{StudentID: principal.UserID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch attendance")
	}
	return records, nil
}

// ExportClassReport renders the class's per-student rollup as CSV or PDF.
func (s *AttendanceService) ExportClassReport(ctx context.Context, principal *models.JWTClaims, classID, format string) (*ExportResult, error) {
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if !s.guard.CanWriteClassAttendance(principal, class) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not authorized to export this class")
	}

	from, to := DefaultWindow(s.now())
	records, err := s.records.Find(ctx, models.AttendanceFilter{ClassID: classID, DateFrom: &from, DateTo: &to})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class statistics")
	}
	stats := BuildClassStatistics(records, len(class.Students), from, to)

	dataset := export.Dataset{
		Title:   fmt.Sprintf("%s attendance %s to %s", class.Name, stats.DateRange.From, stats.DateRange.To),
		Headers: []string{"Student", "Email", "Present Days", "Total Days", "Attendance %"},
	}
	for _, bucket := range stats.StudentAttendance {
		dataset.Rows = append(dataset.Rows, []string{
			bucket.Name,
			bucket.Email,
			fmt.Sprintf("%d", bucket.PresentDays),
			fmt.Sprintf("%d", bucket.TotalDays),
			fmt.Sprintf("%d", bucket.AttendancePercentage),
		})
	}

	switch strings.ToLower(format) {
	case "csv", "":
		content, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("attendance-%s.csv", classID),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	case "pdf":
		content, err := export.NewPDFExporter().Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("attendance-%s.pdf", classID),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format, expected csv or pdf")
	}
}

func (s *AttendanceService) loadClass(ctx context.Context, classID string) (*models.ClassDetail, error) {
	class, err := s.classes.FindDetail(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

func classStatsCacheKey(classID string) string {
	return fmt.Sprintf("class:%s:stats", classID)
}

func classCachePattern(classID string) string {
	return fmt.Sprintf("class:%s:*", classID)
}
