package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	levelTag  = "level"
	levelText = "invalid level; expected one of: Beginner, Intermediate, Advanced"

	lessonTypeTag  = "lessontype"
	lessonTypeText = "invalid lesson type; expected one of: video, text, quiz"

	statusTag  = "coursestatus"
	statusText = "invalid status; expected one of: Draft, Published"

	quizRequiredTag  = "quizrequired"
	quizRequiredText = "a quiz lesson must have at least one question"

	answerRangeTag  = "answerrange"
	answerRangeText = "correctAnswer must be the index of one of the options"
)

// InitValidators registers the course validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(levelTag, func(fl validator.FieldLevel) bool {
		return isLevel(Level(fl.Field().String()))
	})
	core.RegisterCustomTranslation(validate, translator, levelTag, levelText)

	_ = validate.RegisterValidation(lessonTypeTag, func(fl validator.FieldLevel) bool {
		return isLessonType(LessonType(fl.Field().String()))
	})
	core.RegisterCustomTranslation(validate, translator, lessonTypeTag, lessonTypeText)

	_ = validate.RegisterValidation(statusTag, func(fl validator.FieldLevel) bool {
		return isStatus(Status(fl.Field().String()))
	})
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	validate.RegisterStructValidation(lessonStructValidation, Lesson{})
	core.RegisterCustomTranslation(validate, translator, quizRequiredTag, quizRequiredText)

	validate.RegisterStructValidation(questionStructValidation, Question{})
	core.RegisterCustomTranslation(validate, translator, answerRangeTag, answerRangeText)
}

func isLevel(l Level) bool {
	for _, lvl := range Levels {
		if l == lvl {
			return true
		}
	}
	return false
}

func isLessonType(t LessonType) bool {
	for _, lt := range LessonTypes {
		if t == lt {
			return true
		}
	}
	return false
}

func isStatus(s Status) bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

func lessonStructValidation(sl validator.StructLevel) {
	lsn := sl.Current().Interface().(Lesson)
	if lsn.Type == LessonQuiz && len(lsn.Quiz) == 0 {
		sl.ReportError(lsn.Quiz, "quiz", "Quiz", quizRequiredTag, "")
	}
}

func questionStructValidation(sl validator.StructLevel) {
	q := sl.Current().Interface().(Question)
	if q.CorrectAnswer >= len(q.Options) {
		sl.ReportError(q.CorrectAnswer, "correctAnswer", "CorrectAnswer", answerRangeTag, "")
	}
}
