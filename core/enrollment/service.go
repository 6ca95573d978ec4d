package enrollment

import (
	"context"
	"net/mail"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
)

var (
	// errors
	ErrNotFound        = core.NewError(core.KindNotFound, "Enrollment not found")
	ErrAlreadyEnrolled = core.NewError(core.KindAlreadyEnrolled, "Already enrolled in this course")

	errUnknownLesson = core.NewValidationError(nil, core.FieldError{Field: "lessonKey", Error: "no such lesson in this course"})
	errNotAQuiz      = core.NewValidationError(nil, core.FieldError{Field: "lessonKey", Error: "this lesson is not a quiz"})
	errQuizNotPassed = core.NewValidationError(nil, core.FieldError{Field: "lessonKey", Error: "pass the quiz to complete this lesson"})
)

type (
	Repository interface {
		// CreateEnrollment inserts the enrollment and adds its user to the course's enrolled students,
		// atomically. It fails with ErrAlreadyEnrolled if the pair exists and course.ErrNotFound if the course does not.
		CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error)
		// QueryUserEnrollments returns the user's enrollments, most recent first.
		QueryUserEnrollments(ctx context.Context, userID string) ([]Enrollment, error)
		UpdateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
	}

	Service struct {
		repo     Repository
		courses  course.Repository
		users    user.Repository
		mailSvc  core.EmailService
		validate *validator.Validate
		grader   course.Grader
		policy   course.CompletionPolicy
	}
)

func NewService(
	repo Repository,
	courses course.Repository,
	users user.Repository,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
) *Service {
	return &Service{
		repo:     repo,
		courses:  courses,
		users:    users,
		mailSvc:  mailSvc,
		validate: validate,
		grader:   course.Grader{PassingScore: conf.Learning.QuizPassingScore},
		policy:   course.CompletionPolicy{WatchedRatio: conf.Learning.LessonCompletionRatio},
	}
}

// Enroll enrolls the user in a published course.
func (svc *Service) Enroll(ctx context.Context, userID, courseID string) (Enrollment, error) {
	c, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if !c.IsPublished() {
		return Enrollment{}, course.ErrNotPublished
	}

	now := time.Now().UTC()
	e, err := svc.repo.CreateEnrollment(ctx, Enrollment{
		UserID:           userID,
		CourseID:         courseID,
		CompletedLessons: []string{},
		QuizResults:      map[string]course.QuizResult{},
		EnrolledAt:       now,
		UpdatedAt:        now,
	})
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "creating enrollment")
	}

	if usr, err := svc.users.GetUserByID(ctx, userID); err == nil {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "You're enrolled: " + c.Title,
			TemplateName: "enrollment",
			TemplateData: map[string]string{"Name": usr.Name, "CourseID": c.ID, "CourseTitle": c.Title},
		})
	}
	return e, nil
}

// UpdateProgress overwrites the progress fields; progress is clamped to [0,100].
func (svc *Service) UpdateProgress(ctx context.Context, userID, courseID string, pu ProgressUpdate) (Enrollment, error) {
	pu.Clean()
	e, err := svc.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	e.Progress = pu.Progress
	if pu.CompletedLessons != nil {
		e.CompletedLessons = pu.CompletedLessons
	}
	e.UpdatedAt = time.Now().UTC()
	e, err = svc.repo.UpdateEnrollment(ctx, e)
	return e, errors.Wrap(err, "updating enrollment")
}

// ListEnrolledCourses returns the user's courses merged with their progress, latest enrollment first.
func (svc *Service) ListEnrolledCourses(ctx context.Context, userID string) ([]EnrolledCourse, error) {
	enrollments, err := svc.repo.QueryUserEnrollments(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	sort.SliceStable(enrollments, func(i, j int) bool {
		return enrollments[i].EnrolledAt.After(enrollments[j].EnrolledAt)
	})

	courses := make([]EnrolledCourse, 0, len(enrollments))
	for _, e := range enrollments {
		c, err := svc.courses.GetCourse(ctx, e.CourseID)
		if err != nil {
			if errors.Cause(err) == course.ErrNotFound {
				continue // deleted in the meantime
			}
			return nil, errors.Wrap(err, "finding course")
		}
		courses = append(courses, EnrolledCourse{
			Course:           c,
			Progress:         e.Progress,
			CompletedLessons: e.CompletedLessons,
			EnrolledAt:       e.EnrolledAt,
		})
	}
	return courses, nil
}

func (svc *Service) getWithCourse(ctx context.Context, userID, courseID string) (Enrollment, course.Course, error) {
	e, err := svc.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return Enrollment{}, course.Course{}, err
	}
	c, err := svc.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, course.Course{}, err
	}
	return e, c, nil
}

func (svc *Service) markCompleted(e *Enrollment, c course.Course, lessonKey string) {
	if !e.HasCompleted(lessonKey) {
		e.CompletedLessons = append(e.CompletedLessons, lessonKey)
	}
	e.Progress = c.Progress(e.CompletedLessons)
}

// CompleteLesson marks a lesson completed according to the completion policy and recomputes progress.
// Video lessons need the configured share watched; quiz lessons need a passing result.
func (svc *Service) CompleteLesson(ctx context.Context, userID, courseID, lessonKey string, lc LessonCompletion) (Enrollment, error) {
	if err := svc.validate.Struct(lc); err != nil {
		return Enrollment{}, err
	}
	e, c, err := svc.getWithCourse(ctx, userID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	lsn, ok := c.Lesson(lessonKey)
	if !ok {
		return Enrollment{}, errUnknownLesson
	}

	switch lsn.Type {
	case course.LessonQuiz:
		if res, ok := e.QuizResults[lessonKey]; !ok || !res.Passed {
			return Enrollment{}, errQuizNotPassed
		}
	case course.LessonText:
	default:
		if !svc.policy.VideoCompleted(lc.Watched) {
			return e, nil // not yet
		}
	}

	svc.markCompleted(&e, c, lessonKey)
	e.UpdatedAt = time.Now().UTC()
	e, err = svc.repo.UpdateEnrollment(ctx, e)
	return e, errors.Wrap(err, "updating enrollment")
}

// SubmitQuiz grades the answers, records the result and completes the lesson when passed.
func (svc *Service) SubmitQuiz(ctx context.Context, userID, courseID, lessonKey string, qs QuizSubmission) (course.QuizResult, error) {
	if err := svc.validate.Struct(qs); err != nil {
		return course.QuizResult{}, err
	}
	e, c, err := svc.getWithCourse(ctx, userID, courseID)
	if err != nil {
		return course.QuizResult{}, err
	}
	lsn, ok := c.Lesson(lessonKey)
	if !ok {
		return course.QuizResult{}, errUnknownLesson
	}
	if lsn.Type != course.LessonQuiz {
		return course.QuizResult{}, errNotAQuiz
	}

	res, err := svc.grader.Grade(lsn.Quiz, qs.Answers)
	if err != nil {
		return course.QuizResult{}, err
	}

	if e.QuizResults == nil {
		e.QuizResults = make(map[string]course.QuizResult)
	}
	// keep the best attempt
	if prev, ok := e.QuizResults[lessonKey]; !ok || res.Score >= prev.Score {
		e.QuizResults[lessonKey] = res
	}
	if res.Passed {
		svc.markCompleted(&e, c, lessonKey)
	}
	e.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateEnrollment(ctx, e); err != nil {
		return course.QuizResult{}, errors.Wrap(err, "updating enrollment")
	}
	return res, nil
}
