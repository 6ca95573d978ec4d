package course

import (
	"time"

	"github.com/trezcool/academia/core"
)

// Levels
const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
)

// Statuses
const (
	StatusDraft     Status = "Draft"
	StatusPublished Status = "Published"
)

// Lesson types
const (
	LessonVideo LessonType = "video"
	LessonText  LessonType = "text"
	LessonQuiz  LessonType = "quiz"
)

var (
	Levels      = []Level{LevelBeginner, LevelIntermediate, LevelAdvanced}
	Statuses    = []Status{StatusDraft, StatusPublished}
	LessonTypes = []LessonType{LessonVideo, LessonText, LessonQuiz}

	// OrderingFields are the fields courses may be ordered by.
	OrderingFields = []string{"createdAt", "updatedAt", "title", "price", "rating"}

	defaultOrdering = []core.DBOrdering{{Field: "createdAt", Ascending: false}}
)

type (
	Level      string
	Status     string
	LessonType string
)

type Question struct {
	Question      string   `json:"question" validate:"required,notblank"`
	Options       []string `json:"options" validate:"min=2,dive,required"`
	CorrectAnswer int      `json:"correctAnswer" validate:"gte=0"`
}

type Lesson struct {
	Title    string     `json:"title" validate:"required,notblank"`
	Type     LessonType `json:"type" validate:"omitempty,lessontype"`
	Duration string     `json:"duration,omitempty"`
	Content  string     `json:"content,omitempty"`
	VideoURL string     `json:"videoUrl,omitempty"`
	Quiz     []Question `json:"quiz,omitempty" validate:"dive"`
}

type Module struct {
	Title   string   `json:"title" validate:"required,notblank"`
	Lessons []Lesson `json:"lessons" validate:"dive"`
}

type Course struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Category           string    `json:"category"`
	Level              Level     `json:"level"`
	Price              float64   `json:"price"`
	DiscountPrice      *float64  `json:"discountPrice,omitempty"`
	Thumbnail          string    `json:"thumbnail"`
	InstructorID       string    `json:"instructorId"`
	LearningOutcomes   []string  `json:"learningOutcomes"`
	Requirements       []string  `json:"requirements"`
	TargetAudience     []string  `json:"targetAudience"`
	Modules            []Module  `json:"modules"`
	Status             Status    `json:"status"`
	EnrolledStudentIDs []string  `json:"enrolledStudentIds"`
	Rating             float64   `json:"rating"`
	TotalRatings       int       `json:"totalRatings"`
	CreatedAt          time.Time `json:"createdAt"` // UTC
	UpdatedAt          time.Time `json:"updatedAt"` // UTC
}

// Instructor is the public face of a course owner.
type Instructor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// View is a course as served on the public routes, along with its instructor.
// Instructor is nil when the owner no longer exists.
type View struct {
	Course
	Instructor *Instructor `json:"instructor,omitempty"`
}

func (c Course) IsPublished() bool { return c.Status == StatusPublished }

func (c Course) IsOwnedBy(userID string) bool { return c.InstructorID == userID }

func (c Course) HasStudent(userID string) bool {
	for _, id := range c.EnrolledStudentIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title            string   `json:"title" validate:"required,notblank,max=200"`
	Description      string   `json:"description" validate:"required,notblank"`
	Category         string   `json:"category" validate:"required,notblank"`
	Level            Level    `json:"level" validate:"omitempty,level"`
	Price            float64  `json:"price" validate:"gte=0"`
	DiscountPrice    *float64 `json:"discountPrice" validate:"omitempty,gte=0"`
	Thumbnail        string   `json:"thumbnail"`
	LearningOutcomes []string `json:"learningOutcomes"`
	Requirements     []string `json:"requirements"`
	TargetAudience   []string `json:"targetAudience"`
	Modules          []Module `json:"modules" validate:"dive"`
}

func (nc *NewCourse) Clean() {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Category = core.CleanString(nc.Category)
	nc.Thumbnail = core.CleanString(nc.Thumbnail)
	if nc.Level == "" {
		nc.Level = LevelBeginner
	}
	nc.LearningOutcomes = core.CleanStrings(nc.LearningOutcomes)
	nc.Requirements = core.CleanStrings(nc.Requirements)
	nc.TargetAudience = core.CleanStrings(nc.TargetAudience)
	cleanModules(nc.Modules)
}

// UpdateCourse is a patch: only non-nil fields are applied.
type UpdateCourse struct {
	Title            *string   `json:"title" validate:"omitempty,notblank,max=200"`
	Description      *string   `json:"description" validate:"omitempty,notblank"`
	Category         *string   `json:"category" validate:"omitempty,notblank"`
	Level            *Level    `json:"level" validate:"omitempty,level"`
	Price            *float64  `json:"price" validate:"omitempty,gte=0"`
	DiscountPrice    *float64  `json:"discountPrice" validate:"omitempty,gte=0"`
	Thumbnail        *string   `json:"thumbnail"`
	LearningOutcomes *[]string `json:"learningOutcomes"`
	Requirements     *[]string `json:"requirements"`
	TargetAudience   *[]string `json:"targetAudience"`
	Modules          *[]Module `json:"modules"` // validated after merge
	Status           *Status   `json:"status" validate:"omitempty,coursestatus"`
}

// apply merges the patch into c.
func (uc UpdateCourse) apply(c *Course) {
	if uc.Title != nil {
		c.Title = core.CleanString(*uc.Title)
	}
	if uc.Description != nil {
		c.Description = core.CleanString(*uc.Description)
	}
	if uc.Category != nil {
		c.Category = core.CleanString(*uc.Category)
	}
	if uc.Level != nil {
		c.Level = *uc.Level
	}
	if uc.Price != nil {
		c.Price = *uc.Price
	}
	if uc.DiscountPrice != nil {
		dp := *uc.DiscountPrice
		c.DiscountPrice = &dp
	}
	if uc.Thumbnail != nil {
		c.Thumbnail = core.CleanString(*uc.Thumbnail)
	}
	if uc.LearningOutcomes != nil {
		c.LearningOutcomes = core.CleanStrings(*uc.LearningOutcomes)
	}
	if uc.Requirements != nil {
		c.Requirements = core.CleanStrings(*uc.Requirements)
	}
	if uc.TargetAudience != nil {
		c.TargetAudience = core.CleanStrings(*uc.TargetAudience)
	}
	if uc.Modules != nil {
		modules := append([]Module(nil), *uc.Modules...)
		cleanModules(modules)
		c.Modules = modules
	}
	if uc.Status != nil {
		c.Status = *uc.Status
	}
}

func cleanModules(modules []Module) {
	for i := range modules {
		modules[i].Title = core.CleanString(modules[i].Title)
		for j := range modules[i].Lessons {
			lsn := &modules[i].Lessons[j]
			lsn.Title = core.CleanString(lsn.Title)
			if lsn.Type == "" {
				lsn.Type = LessonVideo
			}
		}
	}
}

// QueryFilter narrows the public catalog.
type QueryFilter struct {
	Category string `query:"category"`
	Level    Level  `query:"level"`
	Search   string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Category = core.CleanString(qf.Category)
	qf.Level = Level(core.CleanString(string(qf.Level)))
	qf.Search = core.CleanString(qf.Search)
}

// Filter is what repositories filter on; zero fields are ignored.
type Filter struct {
	QueryFilter
	Status       Status
	InstructorID string
}
