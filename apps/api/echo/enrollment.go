package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/enrollment"
)

type enrollmentApi struct {
	svc     *enrollment.Service
	metrics *metrics
}

func registerEnrollmentAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *enrollment.Service, m *metrics) {
	api := enrollmentApi{svc: svc, metrics: m}

	g.POST("/enroll/:courseId", api.enroll, auth)
	g.GET("/enrolled-courses", api.queryEnrolled, auth)
	g.PUT("/courses/:courseId/progress", api.updateProgress, auth)
	g.POST("/courses/:courseId/lessons/:lessonKey/complete", api.completeLesson, auth)
	g.POST("/courses/:courseId/lessons/:lessonKey/quiz", api.submitQuiz, auth)
}

// Handlers

func (api *enrollmentApi) enroll(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	e, err := api.svc.Enroll(ctx.Request().Context(), p.UserID, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	api.metrics.enrollments.Inc()
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) queryEnrolled(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	courses, err := api.svc.ListEnrolledCourses(ctx.Request().Context(), p.UserID)
	if err != nil {
		return errors.Wrap(err, "querying enrolled courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *enrollmentApi) updateProgress(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var data enrollment.ProgressUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProgressUpdate")
	}
	e, err := api.svc.UpdateProgress(ctx.Request().Context(), p.UserID, ctx.Param("courseId"), data)
	if err != nil {
		return errors.Wrap(err, "updating progress")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) completeLesson(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var data enrollment.LessonCompletion
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LessonCompletion")
	}
	e, err := api.svc.CompleteLesson(ctx.Request().Context(), p.UserID, ctx.Param("courseId"), ctx.Param("lessonKey"), data)
	if err != nil {
		return errors.Wrap(err, "completing lesson")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) submitQuiz(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var data enrollment.QuizSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizSubmission")
	}
	res, err := api.svc.SubmitQuiz(ctx.Request().Context(), p.UserID, ctx.Param("courseId"), ctx.Param("lessonKey"), data)
	if err != nil {
		return errors.Wrap(err, "submitting quiz")
	}
	api.metrics.observeQuiz(res.Passed)
	return ctx.JSON(http.StatusOK, res)
}
