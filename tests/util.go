package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap/zaptest"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/enrollment"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/fs"
	"github.com/trezcool/academia/services/email"
	"github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/storage/database/inmem"
)

// NewConfig loads the TEST configuration.
func NewConfig(t *testing.T) *core.Config {
	t.Helper()
	t.Setenv("ENV", "TEST")
	conf, err := core.NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() failed: %v", err)
	}
	conf.Server.DisableReqLogs = true
	return conf
}

func NewLogger(t *testing.T, conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(zaptest.NewLogger(t), conf)
	logger.Enable(false)
	return logger
}

// NewValidator returns a validator with every app validator registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	return validate, translator
}

// Env bundles an in-memory app: repositories, services and their dependencies.
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Mail       *emailsvc.ConsoleServiceMock

	DB             *inmemdb.DB
	UserRepo       user.Repository
	CourseRepo     course.Repository
	EnrollmentRepo enrollment.Repository

	UserSvc       *user.Service
	CourseSvc     *course.Service
	EnrollmentSvc *enrollment.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	conf := NewConfig(t)
	logger := NewLogger(t, conf)
	if err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true /* strict */); err != nil {
		t.Fatalf("ParseEmailTemplates() failed: %v", err)
	}
	validate, translator := NewValidator()

	db := inmemdb.Open()
	env := &Env{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		Mail:           emailsvc.NewConsoleServiceMock(conf, logger),
		DB:             db,
		UserRepo:       inmemdb.NewUserRepository(db),
		CourseRepo:     inmemdb.NewCourseRepository(db),
		EnrollmentRepo: inmemdb.NewEnrollmentRepository(db),
	}
	env.UserSvc = user.NewService(env.UserRepo, env.Mail, validate, conf)
	env.CourseSvc = course.NewService(env.CourseRepo, env.UserRepo, validate)
	env.EnrollmentSvc = enrollment.NewService(env.EnrollmentRepo, env.CourseRepo, env.UserRepo, env.Mail, validate, conf)
	return env
}

func CreateUser(t *testing.T, repo user.Repository, name, email, pwd string, role user.Role, createdAt ...time.Time) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// Lessons returns n text lessons.
func Lessons(n int) []course.Lesson {
	lessons := make([]course.Lesson, 0, n)
	for i := 0; i < n; i++ {
		lessons = append(lessons, course.Lesson{Title: "Lesson", Type: course.LessonText})
	}
	return lessons
}

// CreateCourse stores a course as is, bypassing the service checks.
func CreateCourse(
	t *testing.T,
	repo course.Repository,
	instructorID, title, category string,
	status course.Status,
	modules []course.Module,
	createdAt ...time.Time,
) course.Course {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	c, err := repo.CreateCourse(context.Background(), course.Course{
		Title:              title,
		Description:        title + " description",
		Category:           category,
		Level:              course.LevelBeginner,
		InstructorID:       instructorID,
		LearningOutcomes:   []string{},
		Requirements:       []string{},
		TargetAudience:     []string{},
		Modules:            modules,
		Status:             status,
		EnrolledStudentIDs: []string{},
		CreatedAt:          tstamp,
		UpdatedAt:          tstamp,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

func Enroll(t *testing.T, repo enrollment.Repository, userID, courseID string) enrollment.Enrollment {
	t.Helper()
	now := time.Now().UTC()
	e, err := repo.CreateEnrollment(context.Background(), enrollment.Enrollment{
		UserID:           userID,
		CourseID:         courseID,
		CompletedLessons: []string{},
		QuizResults:      map[string]course.QuizResult{},
		EnrolledAt:       now,
		UpdatedAt:        now,
	})
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return e
}
