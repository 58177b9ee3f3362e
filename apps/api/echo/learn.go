package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cornelabs/lms/core/progress"
	"github.com/cornelabs/lms/core/user"
)

type learnApi struct {
	userSvc  user.Service
	svc      progress.Service
	validate *validator.Validate
}

func registerLearnAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := learnApi{
		userSvc:  deps.UserSvc,
		svc:      deps.ProgressSvc,
		validate: deps.Validate,
	}

	lg := g.Group("/learn/:courseId", jwt)
	lg.GET("", api.view)
	lg.GET("/progress", api.courseProgress)

	lsg := lg.Group("/lessons/:lessonId")
	lsg.POST("/complete", api.complete)
	lsg.PUT("/watch-time", api.watchTime)
	lsg.POST("/quiz", api.submitQuiz)
	lsg.POST("/assignment", api.submitAssignment)
}

func (api *learnApi) view(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	view, err := api.svc.LearnView(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), ctx.QueryParam("lesson"))
	if err != nil {
		return errors.Wrap(err, "building learn view")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *learnApi) courseProgress(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	cp, err := api.svc.CourseProgress(ctx.Request().Context(), usr.ID, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "computing course progress")
	}
	return ctx.JSON(http.StatusOK, cp)
}

func (api *learnApi) complete(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	p, err := api.svc.MarkComplete(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), ctx.Param("lessonId"))
	if err != nil {
		return errors.Wrap(err, "marking lesson complete")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *learnApi) watchTime(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data progress.WatchTime
	if err = bindJSON(ctx, &data, "WatchTime"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.UpdateWatchTime(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), ctx.Param("lessonId"), *data.Seconds)
	if err != nil {
		return errors.Wrap(err, "updating watch time")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *learnApi) submitQuiz(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data progress.QuizSubmission
	if err = bindJSON(ctx, &data, "QuizSubmission"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.SubmitQuiz(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), ctx.Param("lessonId"), data.Answers)
	if err != nil {
		return errors.Wrap(err, "submitting quiz")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *learnApi) submitAssignment(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data progress.AssignmentSubmission
	if err = bindJSON(ctx, &data, "AssignmentSubmission"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.SubmitAssignment(ctx.Request().Context(), usr.ID, ctx.Param("courseId"), ctx.Param("lessonId"), data.Submission)
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	return ctx.JSON(http.StatusOK, p)
}
