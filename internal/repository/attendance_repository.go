package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/classtrack/classtrack-api/internal/models"
)

const uniqueViolationCode = "23505"

// AttendanceRepository owns persistence for attendance records. The table
// carries a unique constraint on (student_id, class_id, date) so at most one
// record exists per student per class per calendar day.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// UpsertBatch inserts or replaces one record per entry inside a single
// transaction and reports how many rows were newly created vs overwritten.
// A later write for an existing (student, class, date) replaces the status
// and bumps updated_at; it never creates a duplicate.
func (r *AttendanceRepository) UpsertBatch(ctx context.Context, entries []models.AttendanceEntry) (models.UpsertSummary, error) {
	summary := models.UpsertSummary{}
	if len(entries) == 0 {
		return summary, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("begin attendance upsert: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	query := `INSERT INTO attendance (id, student_id, class_id, date, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (student_id, class_id, date)
DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted`

	now := time.Now().UTC()
	for _, entry := range entries {
		var inserted bool
		err := tx.QueryRowxContext(ctx, query,
			uuid.NewString(), entry.StudentID, entry.ClassID, entry.Date, entry.Status, now, now,
		).Scan(&inserted)
		if err != nil {
			return models.UpsertSummary{}, fmt.Errorf("upsert attendance for student %s: %w", entry.StudentID, err)
		}
		if inserted {
			summary.Created++
		} else {
			summary.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return models.UpsertSummary{}, fmt.Errorf("commit attendance upsert: %w", err)
	}
	committed = true
	return summary, nil
}

// Find returns attendance records matching the filter with resolved student
// and class display fields, sorted by date descending.
func (r *AttendanceRepository) Find(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, error) {
	whereClause, args := buildAttendanceWhere(filter)

	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.class_id, a.date, a.status, a.created_at, a.updated_at,
        s.full_name AS student_name, s.email AS student_email,
        c.name AS class_name, c.subject AS class_subject
        FROM attendance a
        JOIN users s ON s.id = a.student_id
        JOIN classes c ON c.id = a.class_id
        WHERE %s
        ORDER BY a.date DESC, s.full_name ASC`, whereClause)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	rows := []models.AttendanceRecordDetail{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return rows, nil
}

// Count returns the total number of records matching the filter.
func (r *AttendanceRepository) Count(ctx context.Context, filter models.AttendanceFilter) (int, error) {
	whereClause, args := buildAttendanceWhere(filter)
	query := fmt.Sprintf("SELECT COUNT(*) FROM attendance a WHERE %s", whereClause)

	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return total, nil
}

func buildAttendanceWhere(filter models.AttendanceFilter) (string, []interface{}) {
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("a.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ExactDate != nil {
		// Match the whole calendar day, never the literal timestamp.
		day := filter.ExactDate.Truncate(24 * time.Hour)
		where = append(where, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, day)
		where = append(where, fmt.Sprintf("a.date < $%d", len(args)+1))
		args = append(args, day.Add(24*time.Hour))
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	return strings.Join(where, " AND "), args
}

// IsUniqueViolation reports whether the error stems from the uniqueness
// constraint being violated by a concurrent writer.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}
	return false
}
