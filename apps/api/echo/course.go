package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
)

type courseApi struct {
	svc *course.Service
}

func registerCourseAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *course.Service) {
	api := courseApi{svc: svc}
	instructorOnly := capabilityMiddleware(user.CapManageCourses, course.ErrInstructorsOnly)

	// public catalog
	g.GET("/courses", api.queryPublished)
	g.GET("/courses/:id", api.retrieve)

	// authed endpoints
	g.POST("/courses", api.create, auth, instructorOnly)
	g.PUT("/courses/:id", api.update, auth)
	g.DELETE("/courses/:id", api.destroy, auth)
	g.GET("/instructor/courses", api.queryOwned, auth, instructorOnly)
}

// Handlers

func (api *courseApi) queryPublished(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.ListPublished(ctx.Request().Context(), *filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying published courses")
	}
	views, err := api.svc.Views(ctx.Request().Context(), courses...)
	if err != nil {
		return errors.Wrap(err, "attaching instructors")
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *courseApi) queryOwned(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	courses, err := api.svc.ListByInstructor(ctx.Request().Context(), p.UserID)
	if err != nil {
		return errors.Wrap(err, "querying instructor courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course by ID")
	}
	views, err := api.svc.Views(ctx.Request().Context(), c)
	if err != nil {
		return errors.Wrap(err, "attaching instructor")
	}
	return ctx.JSON(http.StatusOK, views[0])
}

func (api *courseApi) create(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var data course.NewCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	c, err := api.svc.Create(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var data course.UpdateCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	c, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), p.UserID, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	if err = api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), p.UserID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Course deleted successfully"})
}
