package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/classtrack-api/internal/models"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
)

type mockAttendanceRepo struct {
	upserted   []models.AttendanceEntry
	summary    models.UpsertSummary
	upsertErr  error
	found      []models.AttendanceRecordDetail
	findErr    error
	lastFilter models.AttendanceFilter
	total      int
}

func (m *mockAttendanceRepo) UpsertBatch(ctx context.Context, entries []models.AttendanceEntry) (models.UpsertSummary, error) {
	if m.upsertErr != nil {
		return models.UpsertSummary{}, m.upsertErr
	}
	m.upserted = entries
	return m.summary, nil
}

func (m *mockAttendanceRepo) Find(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, error) {
	m.lastFilter = filter
	return m.found, m.findErr
}

func (m *mockAttendanceRepo) Count(ctx context.Context, filter models.AttendanceFilter) (int, error) {
	return m.total, nil
}

type mockClassDetailReader struct {
	classes map[string]*models.ClassDetail
}

func (m *mockClassDetailReader) FindDetail(ctx context.Context, id string) (*models.ClassDetail, error) {
	if class, ok := m.classes[id]; ok {
		return class, nil
	}
	return nil, sql.ErrNoRows
}

func newAttendanceFixture() (*AttendanceService, *mockAttendanceRepo) {
	repo := &mockAttendanceRepo{}
	classes := &mockClassDetailReader{classes: map[string]*models.ClassDetail{
		"c1": {
			Class: models.Class{ID: "c1", Name: "Math", TeacherID: "t1"},
			Students: []models.UserInfo{
				{ID: "s1", FullName: "Alice", Email: "alice@example.com"},
				{ID: "s2", FullName: "Bob", Email: "bob@example.com"},
			},
		},
	}}
	svc := NewAttendanceService(repo, classes, NewAuthorizationGuard(), nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.Local) }
	return svc, repo
}

func markRequest() MarkAttendanceRequest {
	return MarkAttendanceRequest{
		ClassID: "c1",
		Date:    "2026-03-15",
		AttendanceData: []MarkAttendanceItem{
			{StudentID: "s1", Status: "present"},
			{StudentID: "s2", Status: "absent"},
		},
	}
}

func TestMarkAttendance(t *testing.T) {
	svc, repo := newAttendanceFixture()
	repo.summary = models.UpsertSummary{Created: 2}

	result, err := svc.Mark(context.Background(), claims("t1", models.RoleTeacher), markRequest())
	require.NoError(t, err)

	assert.Len(t, repo.upserted, 2)
	assert.Equal(t, models.AttendanceStatusPresent, repo.upserted[0].Status)
	assert.Equal(t, "attendance marked successfully (2 new records, 0 updated records)", result.Message)
	assert.Equal(t, models.MarkSummary{Date: "2026-03-15", TotalStudents: 2, Present: 1, Absent: 1}, result.Summary)
	// The reload is pinned to the marked calendar day.
	require.NotNil(t, repo.lastFilter.ExactDate)
	assert.Equal(t, "c1", repo.lastFilter.ClassID)
}

func TestMarkAttendanceRejectsNonRosterStudent(t *testing.T) {
	svc, repo := newAttendanceFixture()

	req := markRequest()
	req.AttendanceData = append(req.AttendanceData, MarkAttendanceItem{StudentID: "s9", Status: "present"})

	_, err := svc.Mark(context.Background(), claims("t1", models.RoleTeacher), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	// The whole batch is rejected, nothing is persisted.
	assert.Empty(t, repo.upserted)
}

func TestMarkAttendanceRejectsDuplicateStudentInPayload(t *testing.T) {
	svc, repo := newAttendanceFixture()

	req := markRequest()
	req.AttendanceData = append(req.AttendanceData, MarkAttendanceItem{StudentID: "s1", Status: "absent"})

	_, err := svc.Mark(context.Background(), claims("t1", models.RoleTeacher), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.upserted)
}

func TestMarkAttendanceRejectsInvalidStatus(t *testing.T) {
	svc, _ := newAttendanceFixture()

	req := markRequest()
	req.AttendanceData[0].Status = "late"

	_, err := svc.Mark(context.Background(), claims("t1", models.RoleTeacher), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMarkAttendanceForbiddenForOtherTeacher(t *testing.T) {
	svc, _ := newAttendanceFixture()

	_, err := svc.Mark(context.Background(), claims("t2", models.RoleTeacher), markRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMarkAttendanceForbiddenForStudent(t *testing.T) {
	svc, _ := newAttendanceFixture()

	_, err := svc.Mark(context.Background(), claims("s1", models.RoleStudent), markRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

// Unknown class yields not-found, even when the caller would not have been
// authorized either way.
func TestMarkAttendanceUnknownClass(t *testing.T) {
	svc, _ := newAttendanceFixture()

	req := markRequest()
	req.ClassID = "missing"

	_, err := svc.Mark(context.Background(), claims("s1", models.RoleStudent), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestMarkAttendanceInvalidatesClassStatsCache(t *testing.T) {
	svc, _ := newAttendanceFixture()
	cacheRepo := newMockCacheRepo()
	svc.cache = NewCacheService(cacheRepo, NewMetricsService(), time.Minute, nil, true)

	_, err := svc.Mark(context.Background(), claims("t1", models.RoleTeacher), markRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"class:c1:*"}, cacheRepo.patterns)
}

func TestClassDetailsUsesCachedStats(t *testing.T) {
	svc, repo := newAttendanceFixture()
	cacheRepo := newMockCacheRepo()
	svc.cache = NewCacheService(cacheRepo, NewMetricsService(), time.Minute, nil, true)

	cached := models.ClassStatistics{TotalStudents: 2, AttendancePercentage: 90}
	require.NoError(t, svc.cache.Set(context.Background(), "class:c1:stats", cached, 0))
	repo.findErr = errors.New("store must not be queried on a cache hit")

	result, err := svc.ClassDetails(context.Background(), claims("t1", models.RoleTeacher), "c1")
	require.NoError(t, err)
	assert.Equal(t, cached, result.Statistics)
}

func TestClassDetailsPopulatesCacheOnMiss(t *testing.T) {
	svc, _ := newAttendanceFixture()
	cacheRepo := newMockCacheRepo()
	svc.cache = NewCacheService(cacheRepo, NewMetricsService(), time.Minute, nil, true)

	_, err := svc.ClassDetails(context.Background(), claims("t1", models.RoleTeacher), "c1")
	require.NoError(t, err)
	assert.Contains(t, cacheRepo.store, "class:c1:stats")
}

func TestClassDayEnrolledStudentCanRead(t *testing.T) {
	svc, repo := newAttendanceFixture()
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	repo.found = []models.AttendanceRecordDetail{{}}

	records, err := svc.ClassDay(context.Background(), claims("s1", models.RoleStudent), "c1", &day)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, &day, repo.lastFilter.ExactDate)
}

func TestClassDayOutsiderForbidden(t *testing.T) {
	svc, _ := newAttendanceFixture()

	_, err := svc.ClassDay(context.Background(), claims("s9", models.RoleStudent), "c1", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStudentHistoryDefaultWindow(t *testing.T) {
	svc, repo := newAttendanceFixture()

	result, err := svc.StudentHistory(context.Background(), claims("t1", models.RoleTeacher), "c1", "s1", nil, nil)
	require.NoError(t, err)

	require.NotNil(t, repo.lastFilter.DateFrom)
	require.NotNil(t, repo.lastFilter.DateTo)
	assert.Equal(t, time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC), *repo.lastFilter.DateFrom)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), *repo.lastFilter.DateTo)
	assert.Equal(t, models.DateRange{From: "2026-02-13", To: "2026-03-15"}, result.DateRange)
	require.NotNil(t, result.Statistics.Student)
	assert.Equal(t, "Alice", result.Statistics.Student.FullName)
}

// A record marked today stores at UTC midnight; the default window must not
// drop it when the server clock runs ahead of UTC.
func TestStudentHistoryWindowCoversTodayEastOfUTC(t *testing.T) {
	svc, repo := newAttendanceFixture()
	east := time.FixedZone("east", 5*3600)
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 1, 30, 0, 0, east) }

	_, err := svc.StudentHistory(context.Background(), claims("t1", models.RoleTeacher), "c1", "s1", nil, nil)
	require.NoError(t, err)

	today := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	require.NotNil(t, repo.lastFilter.DateTo)
	assert.False(t, today.After(*repo.lastFilter.DateTo))
}

func TestStudentHistoryExplicitWindow(t *testing.T) {
	svc, repo := newAttendanceFixture()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	result, err := svc.StudentHistory(context.Background(), claims("s1", models.RoleStudent), "c1", "s1", &from, &to)
	require.NoError(t, err)
	assert.Equal(t, from, *repo.lastFilter.DateFrom)
	assert.Equal(t, models.DateRange{From: "2026-01-01", To: "2026-01-31"}, result.DateRange)
}

func TestStudentHistoryClassmateForbidden(t *testing.T) {
	svc, _ := newAttendanceFixture()

	_, err := svc.StudentHistory(context.Background(), claims("s2", models.RoleStudent), "c1", "s1", nil, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStudentHistoryNotEnrolled(t *testing.T) {
	svc, _ := newAttendanceFixture()

	_, err := svc.StudentHistory(context.Background(), claims("t1", models.RoleTeacher), "c1", "s9", nil, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRecordsPagination(t *testing.T) {
	svc, repo := newAttendanceFixture()
	repo.total = 45

	result, err := svc.Records(context.Background(), claims("t1", models.RoleTeacher), "c1", RecordsQuery{Page: 2, Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, models.Pagination{Total: 45, Page: 2, Limit: 20, Pages: 3}, result.Pagination)
	assert.Equal(t, 20, repo.lastFilter.Offset)
	assert.Equal(t, 20, repo.lastFilter.Limit)
}

func TestRecordsPaginationDefaults(t *testing.T) {
	svc, repo := newAttendanceFixture()
	repo.total = 5

	result, err := svc.Records(context.Background(), claims("t1", models.RoleTeacher), "c1", RecordsQuery{Page: -3, Limit: 1000})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Pagination.Page)
	assert.Equal(t, 20, result.Pagination.Limit)
	assert.Equal(t, 0, repo.lastFilter.Offset)
}

func TestMyAttendanceTeacherForbidden(t *testing.T) {
	svc, _ := newAttendanceFixture()

	_, err := svc.MyAttendance(context.Background(), claims("t1", models.RoleTeacher))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMyAttendanceScopedToCaller(t *testing.T) {
	svc, repo := newAttendanceFixture()

	_, err := svc.MyAttendance(context.Background(), claims("s1", models.RoleStudent))
	require.NoError(t, err)
	assert.Equal(t, "s1", repo.lastFilter.StudentID)
	assert.Empty(t, repo.lastFilter.ClassID)
}

func TestExportClassReportCSV(t *testing.T) {
	svc, repo := newAttendanceFixture()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	repo.found = []models.AttendanceRecordDetail{
		record("s1", "Alice", "alice@example.com", day, models.AttendanceStatusPresent),
	}

	result, err := svc.ExportClassReport(context.Background(), claims("t1", models.RoleTeacher), "c1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Contains(t, string(result.Content), "Alice")
	assert.Contains(t, result.FileName, ".csv")
}

func TestExportClassReportUnsupportedFormat(t *testing.T) {
	svc, _ := newAttendanceFixture()

	_, err := svc.ExportClassReport(context.Background(), claims("t1", models.RoleTeacher), "c1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportClassReportStudentForbidden(t *testing.T) {
	svc, _ := newAttendanceFixture()

	_, err := svc.ExportClassReport(context.Background(), claims("s1", models.RoleStudent), "c1", "csv")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
