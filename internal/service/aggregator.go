package service

import (
	"math"
	"sort"
	"time"

	"github.com/classtrack/classtrack-api/internal/models"
)

const dayFormat = "2006-01-02"

// defaultWindowDays is the trailing period used when no explicit range is
// supplied to a statistics query.
const defaultWindowDays = 30

// AttendanceRate computes round(present/total*100) with half-up rounding.
// Every percentage reported by this service goes through this function; a
// zero total yields 0, not an error.
func AttendanceRate(present, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(float64(present)/float64(total)*100 + 0.5))
}

// DefaultWindow returns the trailing 30-day window ending at the given
// moment, inclusive of today. Today is the server's local calendar day, but
// the boundaries are pinned to UTC midnight because wire dates parse and
// records store at UTC midnight; local-midnight boundaries would exclude
// today's records on servers east of UTC.
func DefaultWindow(now time.Time) (time.Time, time.Time) {
	year, month, day := now.Date()
	to := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -defaultWindowDays)
	return from, to
}

// FormatDateRange renders window boundaries as ISO calendar dates.
func FormatDateRange(from, to time.Time) models.DateRange {
	return models.DateRange{From: from.Format(dayFormat), To: to.Format(dayFormat)}
}

// BuildClassStatistics aggregates a class's records over a window into the
// overall counts, a per-day breakdown (sorted by date descending), and a
// per-student breakdown (sorted alphabetically by student name).
func BuildClassStatistics(records []models.AttendanceRecordDetail, totalStudents int, from, to time.Time) models.ClassStatistics {
	type dayAgg struct {
		present int
		total   int
	}
	type studentAgg struct {
		name    string
		email   string
		present int
		total   int
	}

	days := map[string]*dayAgg{}
	students := map[string]*studentAgg{}

	for _, record := range records {
		dayKey := record.Date.Format(dayFormat)
		day, ok := days[dayKey]
		if !ok {
			day = &dayAgg{}
			days[dayKey] = day
		}
		day.total++

		student, ok := students[record.StudentID]
		if !ok {
			student = &studentAgg{name: record.StudentName, email: record.StudentEmail}
			students[record.StudentID] = student
		}
		student.total++

		if record.Status == models.AttendanceStatusPresent {
			day.present++
			student.present++
		}
	}

	dailyStats := make([]models.DailyBucket, 0, len(days))
	for dayKey, agg := range days {
		dailyStats = append(dailyStats, models.DailyBucket{
			Date:         dayKey,
			PresentCount: agg.present,
			TotalCount:   agg.total,
		})
	}
	sort.Slice(dailyStats, func(i, j int) bool { return dailyStats[i].Date > dailyStats[j].Date })

	studentStats := make([]models.StudentBucket, 0, len(students))
	for studentID, agg := range students {
		studentStats = append(studentStats, models.StudentBucket{
			StudentID:            studentID,
			Name:                 agg.name,
			Email:                agg.email,
			PresentDays:          agg.present,
			TotalDays:            agg.total,
			AttendancePercentage: AttendanceRate(agg.present, agg.total),
		})
	}
	sort.Slice(studentStats, func(i, j int) bool {
		if studentStats[i].Name != studentStats[j].Name {
			return studentStats[i].Name < studentStats[j].Name
		}
		return studentStats[i].StudentID < studentStats[j].StudentID
	})

	// Overall counts are summed from the day buckets; every record lands in
	// exactly one bucket, so this equals a direct per-record count.
	overall := models.OverallStats{}
	for _, day := range dailyStats {
		overall.Present += day.PresentCount
		overall.Total += day.TotalCount
	}
	overall.Absent = overall.Total - overall.Present

	return models.ClassStatistics{
		TotalStudents:        totalStudents,
		AttendancePercentage: AttendanceRate(overall.Present, overall.Total),
		OverallStats:         overall,
		DailyStats:           dailyStats,
		StudentAttendance:    studentStats,
		DateRange:            FormatDateRange(from, to),
	}
}

// BuildStudentStatistics aggregates a single student's records into a rate.
func BuildStudentStatistics(records []models.AttendanceRecordDetail, class *models.Class, student *models.UserInfo) models.StudentStatistics {
	present := 0
	for _, record := range records {
		if record.Status == models.AttendanceStatusPresent {
			present++
		}
	}
	total := len(records)
	return models.StudentStatistics{
		TotalRecords:         total,
		PresentCount:         present,
		AbsentCount:          total - present,
		AttendancePercentage: AttendanceRate(present, total),
		Class:                class,
		Student:              student,
	}
}
