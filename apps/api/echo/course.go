package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/enrollment"
	"github.com/cornelabs/lms/core/user"
)

type courseApi struct {
	userSvc       user.Service
	svc           course.Service
	enrollmentSvc enrollment.Service
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := courseApi{
		userSvc:       deps.UserSvc,
		svc:           deps.CourseSvc,
		enrollmentSvc: deps.EnrollmentSvc,
	}

	cg := g.Group("/courses")

	// un-authed endpoints
	cg.GET("", api.catalog)
	cg.GET("/:id", api.retrieve)

	// authed endpoints
	cg.POST("/:id/enroll", api.enroll, jwt)
	cg.GET("/:id/enrollment", api.enrollment, jwt)
}

func (api *courseApi) catalog(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.CatalogCourse{})
	}
	filter.Clean()
	filter.Status = "" // catalog is published only

	courses, err := api.svc.ListCatalog(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing catalog")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.GetCatalogCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) enroll(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.enrollmentSvc.Enroll(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	code := http.StatusCreated
	if res.AlreadyEnrolled {
		code = http.StatusOK
	}
	return ctx.JSON(code, res)
}

func (api *courseApi) enrollment(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	e, err := api.enrollmentSvc.Get(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == enrollment.ErrNotFound {
			return ctx.JSON(http.StatusOK, EnrollmentStatus{Enrolled: false})
		}
		return errors.Wrap(err, "getting enrollment")
	}
	return ctx.JSON(http.StatusOK, EnrollmentStatus{Enrolled: e.Status != enrollment.StatusDropped, Enrollment: &e})
}

type EnrollmentStatus struct {
	Enrolled   bool                   `json:"enrolled"`
	Enrollment *enrollment.Enrollment `json:"enrollment,omitempty"`
}
