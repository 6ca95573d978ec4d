package enrollment

import (
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

type Enrollment struct {
	ID               string                       `json:"id"`
	UserID           string                       `json:"userId"`
	CourseID         string                       `json:"courseId"`
	Progress         int                          `json:"progress"` // 0..100
	CompletedLessons []string                     `json:"completedLessons"`
	QuizResults      map[string]course.QuizResult `json:"quizResults,omitempty"` // by lesson key
	EnrolledAt       time.Time                    `json:"enrolledAt"`            // UTC
	UpdatedAt        time.Time                    `json:"updatedAt"`             // UTC
}

func (e Enrollment) IsCompleted() bool { return e.Progress == 100 }

func (e Enrollment) HasCompleted(lessonKey string) bool {
	for _, key := range e.CompletedLessons {
		if key == lessonKey {
			return true
		}
	}
	return false
}

// EnrolledCourse is a course merged with the caller's progress on it.
type EnrolledCourse struct {
	course.Course
	Progress         int       `json:"progress"`
	CompletedLessons []string  `json:"completedLessons"`
	EnrolledAt       time.Time `json:"enrolledAt"`
}

// ProgressUpdate overwrites an enrollment's progress fields.
// A nil CompletedLessons keeps the stored list.
type ProgressUpdate struct {
	Progress         int      `json:"progress"`
	CompletedLessons []string `json:"completedLessons"`
}

func (pu *ProgressUpdate) Clean() {
	pu.Progress = course.ClampPercent(pu.Progress)
	if pu.CompletedLessons != nil {
		pu.CompletedLessons = core.UniqueStrings(core.CleanStrings(pu.CompletedLessons))
	}
}

// LessonCompletion reports how much of a lesson was consumed (video watched share, 0..1).
type LessonCompletion struct {
	Watched float64 `json:"watched" validate:"gte=0,lte=1"`
}

type QuizSubmission struct {
	Answers []int `json:"answers" validate:"required"`
}
