package course

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/academia/core"
)

var errEmptyQuiz = core.NewValidationError(nil, core.FieldError{Field: "quiz", Error: "quiz has no questions"})

// QuizResult is the outcome of one quiz submission.
type QuizResult struct {
	Score        int       `json:"score"` // 0..100
	Correct      int       `json:"correct"`
	Total        int       `json:"total"`
	Passed       bool      `json:"passed"`
	PassingScore int       `json:"passingScore"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// Grader scores quiz submissions against a passing threshold.
type Grader struct {
	PassingScore int
}

// Grade scores answers (option indexes, -1 for unanswered) against questions.
// Missing answers count as wrong; extra answers are ignored.
func (g Grader) Grade(questions []Question, answers []int) (QuizResult, error) {
	total := len(questions)
	if total == 0 {
		return QuizResult{}, errEmptyQuiz
	}
	var correct int
	for i, q := range questions {
		if i < len(answers) && answers[i] == q.CorrectAnswer {
			correct++
		}
	}
	score := Percent(correct, total)
	return QuizResult{
		Score:        score,
		Correct:      correct,
		Total:        total,
		Passed:       score >= g.PassingScore,
		PassingScore: g.PassingScore,
		SubmittedAt:  time.Now().UTC(),
	}, nil
}

// Percent returns round(100 * part / total) clamped to [0,100]; 0 when total is 0.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return ClampPercent(int(math.Round(100 * float64(part) / float64(total))))
}

func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ComputeProgress is the course progress for completed out of total lessons.
func ComputeProgress(completed, total int) int { return Percent(completed, total) }

// CompletionPolicy decides when a lesson counts as completed.
type CompletionPolicy struct {
	WatchedRatio float64 // share of a video that must be watched
}

func (p CompletionPolicy) VideoCompleted(watched float64) bool {
	return watched >= p.WatchedRatio
}

// LessonKey identifies a lesson within a course as "moduleIndex-lessonIndex".
func LessonKey(moduleIdx, lessonIdx int) string {
	return fmt.Sprintf("%d-%d", moduleIdx, lessonIdx)
}

// ParseLessonKey is the inverse of LessonKey.
func ParseLessonKey(key string) (moduleIdx, lessonIdx int, ok bool) {
	parts := strings.Split(key, "-")
	if len(parts) != 2 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(parts[0])
	if err != nil || m < 0 {
		return 0, 0, false
	}
	l, err := strconv.Atoi(parts[1])
	if err != nil || l < 0 {
		return 0, 0, false
	}
	return m, l, true
}

// Lesson returns the lesson identified by key.
func (c Course) Lesson(key string) (Lesson, bool) {
	m, l, ok := ParseLessonKey(key)
	if !ok || m >= len(c.Modules) || l >= len(c.Modules[m].Lessons) {
		return Lesson{}, false
	}
	return c.Modules[m].Lessons[l], true
}

func (c Course) TotalLessons() int {
	var n int
	for _, m := range c.Modules {
		n += len(m.Lessons)
	}
	return n
}

// Progress computes the completion percentage for the given completed lesson keys.
// Unknown keys are ignored.
func (c Course) Progress(completed []string) int {
	var n int
	for _, key := range core.UniqueStrings(completed) {
		if _, ok := c.Lesson(key); ok {
			n++
		}
	}
	return ComputeProgress(n, c.TotalLessons())
}
