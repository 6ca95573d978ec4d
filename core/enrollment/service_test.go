package enrollment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/enrollment"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/tests"
)

// mixedModules returns 2 modules: [video, text, quiz] and [text, text, text].
func mixedModules() []course.Module {
	quiz := []course.Question{
		{Question: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: 1},
		{Question: "3+3?", Options: []string{"6", "7"}, CorrectAnswer: 0},
		{Question: "4+4?", Options: []string{"8", "9"}, CorrectAnswer: 0},
		{Question: "5+5?", Options: []string{"9", "10"}, CorrectAnswer: 1},
		{Question: "6+6?", Options: []string{"12", "13"}, CorrectAnswer: 0},
	}
	return []course.Module{
		{Title: "One", Lessons: []course.Lesson{
			{Title: "Watch", Type: course.LessonVideo, VideoURL: "https://cdn.test/v.mp4"},
			{Title: "Read", Type: course.LessonText},
			{Title: "Check", Type: course.LessonQuiz, Quiz: quiz},
		}},
		{Title: "Two", Lessons: testutil.Lessons(3)},
	}
}

func TestService_Enroll(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prof := testutil.CreateUser(t, env.UserRepo, "Prof", "prof@test.cd", "", user.RoleInstructor)
	pupil := testutil.CreateUser(t, env.UserRepo, "Pupil", "pupil@test.cd", "", user.RoleLearner)
	c := testutil.CreateCourse(t, env.CourseRepo, prof.ID, "Go", "Programming", course.StatusPublished, mixedModules())
	draft := testutil.CreateCourse(t, env.CourseRepo, prof.ID, "Draft", "Programming", course.StatusDraft, nil)

	t.Run("unknown course", func(t *testing.T) {
		_, err := env.EnrollmentSvc.Enroll(ctx, pupil.ID, "lol")
		assert.Equal(t, course.ErrNotFound, errors.Cause(err))
	})

	t.Run("draft course", func(t *testing.T) {
		_, err := env.EnrollmentSvc.Enroll(ctx, pupil.ID, draft.ID)
		assert.Equal(t, course.ErrNotPublished, errors.Cause(err))
	})

	t.Run("enroll", func(t *testing.T) {
		env.Mail.Reset()
		e, err := env.EnrollmentSvc.Enroll(ctx, pupil.ID, c.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, 0, e.Progress)
		assert.Empty(t, e.CompletedLessons)

		stored, err := env.CourseRepo.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{pupil.ID}, stored.EnrolledStudentIDs)

		sent := env.Mail.SentMessages()
		if assert.Len(t, sent, 1) {
			assert.Equal(t, pupil.Email, sent[0].To[0].Address)
			assert.Contains(t, sent[0].TextContent, c.ID)
		}
	})

	t.Run("enroll twice", func(t *testing.T) {
		_, err := env.EnrollmentSvc.Enroll(ctx, pupil.ID, c.ID)
		assert.Equal(t, enrollment.ErrAlreadyEnrolled, errors.Cause(err))

		courses, err := env.EnrollmentSvc.ListEnrolledCourses(ctx, pupil.ID)
		require.NoError(t, err)
		assert.Len(t, courses, 1)
	})

	t.Run("concurrent enrollments", func(t *testing.T) {
		other := testutil.CreateCourse(t, env.CourseRepo, prof.ID, "Rust", "Programming", course.StatusPublished, nil)

		var wg sync.WaitGroup
		var mu sync.Mutex
		var succeeded int
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := env.EnrollmentSvc.Enroll(ctx, pupil.ID, other.ID); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		stored, err := env.CourseRepo.GetCourse(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{pupil.ID}, stored.EnrolledStudentIDs)
	})
}

func TestService_UpdateProgress(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prof := testutil.CreateUser(t, env.UserRepo, "Prof", "prof@test.cd", "", user.RoleInstructor)
	pupil := testutil.CreateUser(t, env.UserRepo, "Pupil", "pupil@test.cd", "", user.RoleLearner)
	c := testutil.CreateCourse(t, env.CourseRepo, prof.ID, "Go", "Programming", course.StatusPublished, mixedModules())

	_, err := env.EnrollmentSvc.UpdateProgress(ctx, pupil.ID, c.ID, enrollment.ProgressUpdate{Progress: 10})
	assert.Equal(t, enrollment.ErrNotFound, errors.Cause(err))

	testutil.Enroll(t, env.EnrollmentRepo, pupil.ID, c.ID)

	tests := []struct {
		name          string
		pu            enrollment.ProgressUpdate
		wantProgress  int
		wantCompleted []string
	}{
		{name: "set", pu: enrollment.ProgressUpdate{Progress: 50, CompletedLessons: []string{"0-0", "0-1", "1-0"}}, wantProgress: 50, wantCompleted: []string{"0-0", "0-1", "1-0"}},
		{name: "clamped above", pu: enrollment.ProgressUpdate{Progress: 150}, wantProgress: 100, wantCompleted: []string{"0-0", "0-1", "1-0"}},
		{name: "clamped below, lessons kept", pu: enrollment.ProgressUpdate{Progress: -5}, wantProgress: 0, wantCompleted: []string{"0-0", "0-1", "1-0"}},
		{name: "lessons cleared", pu: enrollment.ProgressUpdate{Progress: 10, CompletedLessons: []string{}}, wantProgress: 10, wantCompleted: []string{}},
		{name: "deduplicated", pu: enrollment.ProgressUpdate{Progress: 20, CompletedLessons: []string{"0-0", " 0-0 ", ""}}, wantProgress: 20, wantCompleted: []string{"0-0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := env.EnrollmentSvc.UpdateProgress(ctx, pupil.ID, c.ID, tt.pu)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProgress, e.Progress)
			assert.Equal(t, tt.wantCompleted, e.CompletedLessons)

			stored, err := env.EnrollmentRepo.GetEnrollment(ctx, pupil.ID, c.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProgress, stored.Progress)
		})
	}
}

func TestService_CompleteLesson(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prof := testutil.CreateUser(t, env.UserRepo, "Prof", "prof@test.cd", "", user.RoleInstructor)
	pupil := testutil.CreateUser(t, env.UserRepo, "Pupil", "pupil@test.cd", "", user.RoleLearner)
	c := testutil.CreateCourse(t, env.CourseRepo, prof.ID, "Go", "Programming", course.StatusPublished, mixedModules())
	testutil.Enroll(t, env.EnrollmentRepo, pupil.ID, c.ID)

	tests := []struct {
		name          string
		lessonKey     string
		watched       float64
		wantKind      core.Kind
		wantProgress  int
		wantCompleted []string
	}{
		{name: "unknown lesson", lessonKey: "9-9", wantKind: core.KindValidation},
		{name: "invalid watched ratio", lessonKey: "0-0", watched: 1.5, wantKind: core.KindValidation},
		{name: "video not watched enough", lessonKey: "0-0", watched: 0.5, wantCompleted: []string{}},
		{name: "video watched", lessonKey: "0-0", watched: 0.95, wantProgress: 17, wantCompleted: []string{"0-0"}},
		{name: "text", lessonKey: "0-1", wantProgress: 33, wantCompleted: []string{"0-0", "0-1"}},
		{name: "text again", lessonKey: "0-1", wantProgress: 33, wantCompleted: []string{"0-0", "0-1"}},
		{name: "quiz needs a pass", lessonKey: "0-2", wantKind: core.KindValidation},
		{name: "second module", lessonKey: "1-0", wantProgress: 50, wantCompleted: []string{"0-0", "0-1", "1-0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := env.EnrollmentSvc.CompleteLesson(ctx, pupil.ID, c.ID, tt.lessonKey, enrollment.LessonCompletion{Watched: tt.watched})
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, core.KindOf(err), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProgress, e.Progress)
			assert.Equal(t, tt.wantCompleted, e.CompletedLessons)
		})
	}

	t.Run("not enrolled", func(t *testing.T) {
		stranger := testutil.CreateUser(t, env.UserRepo, "Stranger", "stranger@test.cd", "", user.RoleLearner)
		_, err := env.EnrollmentSvc.CompleteLesson(ctx, stranger.ID, c.ID, "0-1", enrollment.LessonCompletion{})
		assert.Equal(t, enrollment.ErrNotFound, errors.Cause(err))
	})
}

func TestService_SubmitQuiz(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prof := testutil.CreateUser(t, env.UserRepo, "Prof", "prof@test.cd", "", user.RoleInstructor)
	pupil := testutil.CreateUser(t, env.UserRepo, "Pupil", "pupil@test.cd", "", user.RoleLearner)
	c := testutil.CreateCourse(t, env.CourseRepo, prof.ID, "Go", "Programming", course.StatusPublished, mixedModules())
	testutil.Enroll(t, env.EnrollmentRepo, pupil.ID, c.ID)

	t.Run("not a quiz", func(t *testing.T) {
		_, err := env.EnrollmentSvc.SubmitQuiz(ctx, pupil.ID, c.ID, "0-1", enrollment.QuizSubmission{Answers: []int{0}})
		assert.Equal(t, core.KindValidation, core.KindOf(err))
	})

	t.Run("no answers", func(t *testing.T) {
		_, err := env.EnrollmentSvc.SubmitQuiz(ctx, pupil.ID, c.ID, "0-2", enrollment.QuizSubmission{})
		assert.Equal(t, core.KindValidation, core.KindOf(err))
	})

	t.Run("failed attempt", func(t *testing.T) {
		res, err := env.EnrollmentSvc.SubmitQuiz(ctx, pupil.ID, c.ID, "0-2", enrollment.QuizSubmission{Answers: []int{1, 0, 1, 0, 1}})
		require.NoError(t, err)
		assert.Equal(t, 40, res.Score)
		assert.False(t, res.Passed)

		e, err := env.EnrollmentRepo.GetEnrollment(ctx, pupil.ID, c.ID)
		require.NoError(t, err)
		assert.False(t, e.HasCompleted("0-2"))
		assert.Equal(t, 40, e.QuizResults["0-2"].Score)
	})

	t.Run("passed attempt completes the lesson", func(t *testing.T) {
		res, err := env.EnrollmentSvc.SubmitQuiz(ctx, pupil.ID, c.ID, "0-2", enrollment.QuizSubmission{Answers: []int{1, 0, 0, 1, 1}})
		require.NoError(t, err)
		assert.Equal(t, 80, res.Score)
		assert.Equal(t, 4, res.Correct)
		assert.Equal(t, 5, res.Total)
		assert.True(t, res.Passed)

		e, err := env.EnrollmentRepo.GetEnrollment(ctx, pupil.ID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"0-2"}, e.CompletedLessons)
		assert.Equal(t, 17, e.Progress)

		// the quiz lesson may now be completed explicitly as well
		e, err = env.EnrollmentSvc.CompleteLesson(ctx, pupil.ID, c.ID, "0-2", enrollment.LessonCompletion{})
		require.NoError(t, err)
		assert.Equal(t, []string{"0-2"}, e.CompletedLessons)
	})

	t.Run("the best attempt is kept", func(t *testing.T) {
		res, err := env.EnrollmentSvc.SubmitQuiz(ctx, pupil.ID, c.ID, "0-2", enrollment.QuizSubmission{Answers: []int{0}})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Score)

		e, err := env.EnrollmentRepo.GetEnrollment(ctx, pupil.ID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 80, e.QuizResults["0-2"].Score)
		assert.True(t, e.HasCompleted("0-2"))
	})
}

func TestService_ListEnrolledCourses(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	prof := testutil.CreateUser(t, env.UserRepo, "Prof", "prof@test.cd", "", user.RoleInstructor)
	pupil := testutil.CreateUser(t, env.UserRepo, "Pupil", "pupil@test.cd", "", user.RoleLearner)

	six := []course.Module{{Title: "One", Lessons: testutil.Lessons(4)}, {Title: "Two", Lessons: testutil.Lessons(2)}}
	goC := testutil.CreateCourse(t, env.CourseRepo, prof.ID, "Go", "Programming", course.StatusPublished, six)
	rust := testutil.CreateCourse(t, env.CourseRepo, prof.ID, "Rust", "Programming", course.StatusPublished, six)

	courses, err := env.EnrollmentSvc.ListEnrolledCourses(ctx, pupil.ID)
	require.NoError(t, err)
	assert.Empty(t, courses)

	_, err = env.EnrollmentSvc.Enroll(ctx, pupil.ID, goC.ID)
	require.NoError(t, err)
	time.Sleep(time.Millisecond) // distinct enrollment times
	_, err = env.EnrollmentSvc.Enroll(ctx, pupil.ID, rust.ID)
	require.NoError(t, err)

	for _, key := range []string{"0-0", "0-1", "1-0"} {
		_, err = env.EnrollmentSvc.CompleteLesson(ctx, pupil.ID, goC.ID, key, enrollment.LessonCompletion{})
		require.NoError(t, err)
	}

	courses, err = env.EnrollmentSvc.ListEnrolledCourses(ctx, pupil.ID)
	require.NoError(t, err)
	if assert.Len(t, courses, 2) {
		assert.Equal(t, rust.ID, courses[0].ID) // latest enrollment first
		assert.Equal(t, 0, courses[0].Progress)
		assert.Equal(t, goC.ID, courses[1].ID)
		assert.Equal(t, 50, courses[1].Progress)
		assert.Equal(t, []string{"0-0", "0-1", "1-0"}, courses[1].CompletedLessons)
		assert.Equal(t, []string{pupil.ID}, courses[1].EnrolledStudentIDs)
	}

	t.Run("deleted courses disappear", func(t *testing.T) {
		require.NoError(t, env.CourseSvc.Delete(ctx, rust.ID, prof.ID))

		courses, err := env.EnrollmentSvc.ListEnrolledCourses(ctx, pupil.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, len(courses))
		assert.Equal(t, goC.ID, courses[0].ID)

		_, err = env.EnrollmentRepo.GetEnrollment(ctx, pupil.ID, rust.ID)
		assert.Equal(t, enrollment.ErrNotFound, errors.Cause(err))
	})
}
