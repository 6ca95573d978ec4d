package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func cloneEnrollment(e enrollment.Enrollment) enrollment.Enrollment {
	e.CompletedLessons = copyStrings(e.CompletedLessons)
	if e.QuizResults != nil {
		results := make(map[string]course.QuizResult, len(e.QuizResults))
		for k, v := range e.QuizResults {
			results[k] = v
		}
		e.QuizResults = results
	}
	return e
}

func (repo *enrollmentRepository) CreateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c, ok := repo.db.courses[e.CourseID]
	if !ok {
		return enrollment.Enrollment{}, course.ErrNotFound
	}
	if !c.IsPublished() {
		return enrollment.Enrollment{}, course.ErrNotPublished
	}
	key := enrollmentKey(e.UserID, e.CourseID)
	if _, exists := repo.db.enrollments[key]; exists {
		return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
	}

	if e.ID == "" {
		e.ID = newID()
	}
	stored := cloneEnrollment(e)
	repo.db.enrollments[key] = &stored
	if !c.HasStudent(e.UserID) {
		c.EnrolledStudentIDs = append(c.EnrolledStudentIDs, e.UserID)
	}
	return e, nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, userID, courseID string) (enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.enrollments[enrollmentKey(userID, courseID)]; ok {
		return cloneEnrollment(*e), nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) QueryUserEnrollments(_ context.Context, userID string) ([]enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrollments := make([]enrollment.Enrollment, 0)
	for _, e := range repo.db.enrollments {
		if e.UserID == userID {
			enrollments = append(enrollments, cloneEnrollment(*e))
		}
	}
	sort.Slice(enrollments, func(i, j int) bool {
		if enrollments[i].EnrolledAt.Equal(enrollments[j].EnrolledAt) {
			return enrollments[i].ID < enrollments[j].ID
		}
		return enrollments[i].EnrolledAt.After(enrollments[j].EnrolledAt)
	})
	return enrollments, nil
}

func (repo *enrollmentRepository) UpdateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := enrollmentKey(e.UserID, e.CourseID)
	orig, ok := repo.db.enrollments[key]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	e.ID = orig.ID
	e.EnrolledAt = orig.EnrolledAt
	stored := cloneEnrollment(e)
	repo.db.enrollments[key] = &stored
	return e, nil
}
