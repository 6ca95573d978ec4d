package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/enrollment"
	"github.com/trezcool/academia/storage/database"
)

const (
	enrollmentUniqueConstraint   = "enrollments_user_course_key"
	enrollmentCourseFKConstraint = "enrollments_course_id_fkey"
)

var enrollmentColumns = []string{
	"id", "user_id", "course_id", "progress", "completed_lessons", "quiz_results", "enrolled_at", "updated_at",
}

type enrollmentRow struct {
	ID               string         `db:"id"`
	UserID           string         `db:"user_id"`
	CourseID         string         `db:"course_id"`
	Progress         int            `db:"progress"`
	CompletedLessons pq.StringArray `db:"completed_lessons"`
	QuizResults      types.JSONText `db:"quiz_results"`
	EnrolledAt       time.Time      `db:"enrolled_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func toEnrollmentRow(e enrollment.Enrollment) (enrollmentRow, error) {
	results := e.QuizResults
	if results == nil {
		results = map[string]course.QuizResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return enrollmentRow{}, errors.Wrap(err, "encoding quiz results")
	}
	return enrollmentRow{
		ID:               e.ID,
		UserID:           e.UserID,
		CourseID:         e.CourseID,
		Progress:         e.Progress,
		CompletedLessons: stringArray(e.CompletedLessons),
		QuizResults:      resultsJSON,
		EnrolledAt:       e.EnrolledAt.UTC(),
		UpdatedAt:        e.UpdatedAt.UTC(),
	}, nil
}

func (row enrollmentRow) enrollment() (enrollment.Enrollment, error) {
	results := make(map[string]course.QuizResult)
	if err := row.QuizResults.Unmarshal(&results); err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "decoding quiz results")
	}
	return enrollment.Enrollment{
		ID:               row.ID,
		UserID:           row.UserID,
		CourseID:         row.CourseID,
		Progress:         row.Progress,
		CompletedLessons: []string(row.CompletedLessons),
		QuizResults:      results,
		EnrolledAt:       row.EnrolledAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}, nil
}

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *sqlx.DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to enrollment.ErrNotFound
func (repo *enrollmentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return enrollment.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// CreateEnrollment inserts the enrollment and the course_students row in one transaction.
// The unique (user_id, course_id) constraint guards against concurrent double enrollments,
// and ON CONFLICT DO NOTHING gives the students set its add-to-set semantics.
// Only published courses accept enrollments.
func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	if !validID(e.CourseID) {
		return enrollment.Enrollment{}, course.ErrNotFound
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row, err := toEnrollmentRow(e)
	if err != nil {
		return enrollment.Enrollment{}, err
	}

	// FOR SHARE holds off a concurrent status change until the enrollment commits
	courseStatus, statusArgs, err := psql.Select("status").
		From("courses").
		Where(sq.Eq{"id": row.CourseID}).
		Suffix("FOR SHARE").
		ToSql()
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "building query")
	}
	insertEnrollment, args, err := psql.Insert("enrollments").
		Columns(enrollmentColumns...).
		Values(row.ID, row.UserID, row.CourseID, row.Progress, row.CompletedLessons, row.QuizResults, row.EnrolledAt, row.UpdatedAt).
		ToSql()
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "building query")
	}
	addStudent, studentArgs, err := psql.Insert("course_students").
		Columns("course_id", "user_id", "added_at").
		Values(row.CourseID, row.UserID, row.EnrolledAt).
		Suffix("ON CONFLICT (course_id, user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "building query")
	}

	err = withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var status string
		if err := tx.GetContext(ctx, &status, courseStatus, statusArgs...); err != nil {
			if err == sql.ErrNoRows {
				return course.ErrNotFound
			}
			return errors.Wrap(err, "locking course")
		}
		if course.Status(status) != course.StatusPublished {
			return course.ErrNotPublished
		}
		if _, err := tx.ExecContext(ctx, insertEnrollment, args...); err != nil {
			switch {
			case database.IsUniqueViolation(err, enrollmentUniqueConstraint):
				return enrollment.ErrAlreadyEnrolled
			case database.IsForeignKeyViolation(err, enrollmentCourseFKConstraint):
				return course.ErrNotFound
			}
			return errors.Wrap(err, "inserting enrollment")
		}
		if _, err := tx.ExecContext(ctx, addStudent, studentArgs...); err != nil {
			return errors.Wrap(err, "adding course student")
		}
		return nil
	})
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	return row.enrollment()
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, userID, courseID string) (enrollment.Enrollment, error) {
	if !validID(userID) || !validID(courseID) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	q, args, err := psql.Select(enrollmentColumns...).
		From("enrollments").
		Where(sq.Eq{"user_id": userID, "course_id": courseID}).
		ToSql()
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "building query")
	}
	var row enrollmentRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return enrollment.Enrollment{}, repo.trapNoRowsErr(err, "selecting enrollment")
	}
	return row.enrollment()
}

func (repo *enrollmentRepository) QueryUserEnrollments(ctx context.Context, userID string) ([]enrollment.Enrollment, error) {
	if !validID(userID) {
		return []enrollment.Enrollment{}, nil
	}
	q, args, err := psql.Select(enrollmentColumns...).
		From("enrollments").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("enrolled_at DESC", "id ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []enrollmentRow
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}

	enrollments := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		e, err := row.enrollment()
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, nil
}

func (repo *enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	if !validID(e.UserID) || !validID(e.CourseID) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	row, err := toEnrollmentRow(e)
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	q, args, err := psql.Update("enrollments").
		SetMap(map[string]interface{}{
			"progress":          row.Progress,
			"completed_lessons": row.CompletedLessons,
			"quiz_results":      row.QuizResults,
			"updated_at":        row.UpdatedAt,
		}).
		Where(sq.Eq{"user_id": row.UserID, "course_id": row.CourseID}).
		Suffix("RETURNING " + joinColumns(enrollmentColumns)).
		ToSql()
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "building query")
	}
	var updated enrollmentRow
	if err = repo.db.GetContext(ctx, &updated, q, args...); err != nil {
		return enrollment.Enrollment{}, repo.trapNoRowsErr(err, "updating enrollment")
	}
	return updated.enrollment()
}
