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
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

var (
	courseColumns = []string{
		"id", "title", "description", "category", "level", "price", "discount_price", "thumbnail", "instructor_id",
		"learning_outcomes", "requirements", "target_audience", "modules", "status", "rating", "total_ratings",
		"created_at", "updated_at",
	}

	// enrolled students are kept in course_students and aggregated on read
	enrolledStudentsColumn = "ARRAY(SELECT cs.user_id::text FROM course_students cs " +
		"WHERE cs.course_id = courses.id ORDER BY cs.added_at, cs.user_id) AS enrolled_student_ids"

	courseSelectColumns = append(append([]string{}, courseColumns...), enrolledStudentsColumn)

	// API ordering field -> column
	courseOrderingColumns = map[string]string{
		"createdAt": "created_at",
		"updatedAt": "updated_at",
		"title":     "LOWER(title)",
		"price":     "price",
		"rating":    "rating",
	}
)

type courseRow struct {
	ID                 string         `db:"id"`
	Title              string         `db:"title"`
	Description        string         `db:"description"`
	Category           string         `db:"category"`
	Level              string         `db:"level"`
	Price              float64        `db:"price"`
	DiscountPrice      null.Float64   `db:"discount_price"`
	Thumbnail          null.String    `db:"thumbnail"`
	InstructorID       string         `db:"instructor_id"`
	LearningOutcomes   pq.StringArray `db:"learning_outcomes"`
	Requirements       pq.StringArray `db:"requirements"`
	TargetAudience     pq.StringArray `db:"target_audience"`
	Modules            types.JSONText `db:"modules"`
	Status             string         `db:"status"`
	Rating             float64        `db:"rating"`
	TotalRatings       int            `db:"total_ratings"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
	EnrolledStudentIDs pq.StringArray `db:"enrolled_student_ids"`
}

func stringArray(ss []string) pq.StringArray {
	if ss == nil {
		return pq.StringArray{}
	}
	return ss
}

func toCourseRow(c course.Course) (courseRow, error) {
	modules := c.Modules
	if modules == nil {
		modules = []course.Module{}
	}
	modulesJSON, err := json.Marshal(modules)
	if err != nil {
		return courseRow{}, errors.Wrap(err, "encoding modules")
	}
	return courseRow{
		ID:               c.ID,
		Title:            c.Title,
		Description:      c.Description,
		Category:         c.Category,
		Level:            string(c.Level),
		Price:            c.Price,
		DiscountPrice:    null.Float64FromPtr(c.DiscountPrice),
		Thumbnail:        null.NewString(c.Thumbnail, c.Thumbnail != ""),
		InstructorID:     c.InstructorID,
		LearningOutcomes: stringArray(c.LearningOutcomes),
		Requirements:     stringArray(c.Requirements),
		TargetAudience:   stringArray(c.TargetAudience),
		Modules:          modulesJSON,
		Status:           string(c.Status),
		Rating:           c.Rating,
		TotalRatings:     c.TotalRatings,
		CreatedAt:        c.CreatedAt.UTC(),
		UpdatedAt:        c.UpdatedAt.UTC(),
	}, nil
}

func (row courseRow) course() (course.Course, error) {
	var modules []course.Module
	if err := row.Modules.Unmarshal(&modules); err != nil {
		return course.Course{}, errors.Wrap(err, "decoding modules")
	}
	return course.Course{
		ID:                 row.ID,
		Title:              row.Title,
		Description:        row.Description,
		Category:           row.Category,
		Level:              course.Level(row.Level),
		Price:              row.Price,
		DiscountPrice:      row.DiscountPrice.Ptr(),
		Thumbnail:          row.Thumbnail.String,
		InstructorID:       row.InstructorID,
		LearningOutcomes:   []string(row.LearningOutcomes),
		Requirements:       []string(row.Requirements),
		TargetAudience:     []string(row.TargetAudience),
		Modules:            modules,
		Status:             course.Status(row.Status),
		EnrolledStudentIDs: []string(row.EnrolledStudentIDs),
		Rating:             row.Rating,
		TotalRatings:       row.TotalRatings,
		CreatedAt:          row.CreatedAt.UTC(),
		UpdatedAt:          row.UpdatedAt.UTC(),
	}, nil
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to course.ErrNotFound
func (repo *courseRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return course.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *courseRepository) selectCourses() sq.SelectBuilder {
	return psql.Select(courseSelectColumns...).From("courses")
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row, err := toCourseRow(c)
	if err != nil {
		return course.Course{}, err
	}
	q, args, err := psql.Insert("courses").
		Columns(courseColumns...).
		Values(
			row.ID, row.Title, row.Description, row.Category, row.Level, row.Price, row.DiscountPrice, row.Thumbnail,
			row.InstructorID, row.LearningOutcomes, row.Requirements, row.TargetAudience, row.Modules, row.Status,
			row.Rating, row.TotalRatings, row.CreatedAt, row.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	c.EnrolledStudentIDs = []string{}
	return c, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	if !validID(id) {
		return course.Course{}, course.ErrNotFound
	}
	q, args, err := repo.selectCourses().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building query")
	}
	var row courseRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, "selecting course")
	}
	return row.course()
}

func (repo *courseRepository) FilterCourses(ctx context.Context, f course.Filter, orderings []core.DBOrdering) ([]course.Course, error) {
	query := repo.selectCourses()

	if f.Status != "" {
		query = query.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.InstructorID != "" {
		if !validID(f.InstructorID) {
			return []course.Course{}, nil
		}
		query = query.Where(sq.Eq{"instructor_id": f.InstructorID})
	}
	if f.Category != "" {
		query = query.Where(sq.Eq{"category": f.Category})
	}
	if f.Level != "" {
		query = query.Where(sq.Eq{"level": string(f.Level)})
	}
	// courses with Title or Description containing the search keyword
	if f.Search != "" {
		pattern := containsPattern(f.Search)
		query = query.Where(sq.Or{sq.ILike{"title": pattern}, sq.ILike{"description": pattern}})
	}

	for _, ord := range orderings {
		col, ok := courseOrderingColumns[ord.Field]
		if !ok {
			return nil, errors.Errorf("unknown ordering field %q", ord.Field)
		}
		direction := " DESC"
		if ord.Ascending {
			direction = " ASC"
		}
		query = query.OrderBy(col + direction)
	}
	query = query.OrderBy("id ASC")

	q, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []courseRow
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}

	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		c, err := row.course()
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if !validID(c.ID) {
		return course.Course{}, course.ErrNotFound
	}
	row, err := toCourseRow(c)
	if err != nil {
		return course.Course{}, err
	}
	// instructor_id, created_at and enrolled students are never changed here
	q, args, err := psql.Update("courses").
		SetMap(map[string]interface{}{
			"title":             row.Title,
			"description":       row.Description,
			"category":          row.Category,
			"level":             row.Level,
			"price":             row.Price,
			"discount_price":    row.DiscountPrice,
			"thumbnail":         row.Thumbnail,
			"learning_outcomes": row.LearningOutcomes,
			"requirements":      row.Requirements,
			"target_audience":   row.TargetAudience,
			"modules":           row.Modules,
			"status":            row.Status,
			"rating":            row.Rating,
			"total_ratings":     row.TotalRatings,
			"updated_at":        row.UpdatedAt,
		}).
		Where(sq.Eq{"id": row.ID}).
		ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building query")
	}
	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return repo.GetCourse(ctx, c.ID)
}

// DeleteCourse relies on ON DELETE CASCADE to drop the course's enrollments and students in the same statement.
func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	if !validID(id) {
		return course.ErrNotFound
	}
	q, args, err := psql.Delete("courses").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n == 0 {
		return course.ErrNotFound
	}
	return nil
}
