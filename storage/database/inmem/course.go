package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

// clone deep-copies the mutable parts of a stored course.
func clone(c course.Course) course.Course {
	c.LearningOutcomes = copyStrings(c.LearningOutcomes)
	c.Requirements = copyStrings(c.Requirements)
	c.TargetAudience = copyStrings(c.TargetAudience)
	c.EnrolledStudentIDs = copyStrings(c.EnrolledStudentIDs)
	if c.DiscountPrice != nil {
		dp := *c.DiscountPrice
		c.DiscountPrice = &dp
	}
	if c.Modules != nil {
		modules := make([]course.Module, len(c.Modules))
		for i, m := range c.Modules {
			lessons := make([]course.Lesson, len(m.Lessons))
			for j, l := range m.Lessons {
				if l.Quiz != nil {
					quiz := make([]course.Question, len(l.Quiz))
					for k, q := range l.Quiz {
						q.Options = copyStrings(q.Options)
						quiz[k] = q
					}
					l.Quiz = quiz
				}
				lessons[j] = l
			}
			m.Lessons = lessons
			modules[i] = m
		}
		c.Modules = modules
	}
	return c
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if c.ID == "" {
		c.ID = newID()
	}
	stored := clone(c)
	repo.db.courses[c.ID] = &stored
	return c, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return clone(*c), nil
	}
	return course.Course{}, course.ErrNotFound
}

func matches(c *course.Course, f course.Filter) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.InstructorID != "" && c.InstructorID != f.InstructorID {
		return false
	}
	if f.Category != "" && c.Category != f.Category {
		return false
	}
	if f.Level != "" && c.Level != f.Level {
		return false
	}
	if f.Search != "" {
		search := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(c.Title), search) &&
			!strings.Contains(strings.ToLower(c.Description), search) {
			return false
		}
	}
	return true
}

func (repo *courseRepository) FilterCourses(_ context.Context, f course.Filter, orderings []core.DBOrdering) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	courses := make([]course.Course, 0)
	for _, c := range repo.db.courses {
		if matches(c, f) {
			courses = append(courses, clone(*c))
		}
	}
	sortCourses(courses, orderings)
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.courses[c.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	// enrolled students are only changed through enrollments
	c.EnrolledStudentIDs = copyStrings(orig.EnrolledStudentIDs)
	c.InstructorID = orig.InstructorID
	c.CreatedAt = orig.CreatedAt
	stored := clone(c)
	repo.db.courses[c.ID] = &stored
	return c, nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return course.ErrNotFound
	}
	delete(repo.db.courses, id)
	for key, e := range repo.db.enrollments {
		if e.CourseID == id {
			delete(repo.db.enrollments, key)
		}
	}
	return nil
}

func sortCourses(courses []course.Course, orderings []core.DBOrdering) {
	sort.SliceStable(courses, func(i, j int) bool {
		a, b := courses[i], courses[j]
		for _, ord := range orderings {
			cmp := compareField(a, b, ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return a.ID < b.ID
	})
}

func compareField(a, b course.Course, field string) int {
	switch field {
	case "createdAt":
		return compareTime(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	case "updatedAt":
		return compareTime(a.UpdatedAt.UnixNano(), b.UpdatedAt.UnixNano())
	case "title":
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case "price":
		return compareFloat(a.Price, b.Price)
	case "rating":
		return compareFloat(a.Rating, b.Rating)
	}
	return 0
}

func compareTime(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
