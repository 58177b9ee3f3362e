package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/enrollment"
	"github.com/cornelabs/lms/core/stats"
	"github.com/cornelabs/lms/core/user"
)

const uploadField = "file"

type adminApi struct {
	conf          *core.Config
	userSvc       user.Service
	courseSvc     course.Service
	enrollmentSvc enrollment.Service
	statsSvc      stats.Service
	validate      *validator.Validate
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := adminApi{
		conf:          deps.Conf,
		userSvc:       deps.UserSvc,
		courseSvc:     deps.CourseSvc,
		enrollmentSvc: deps.EnrollmentSvc,
		statsSvc:      deps.StatsSvc,
		validate:      deps.Validate,
	}

	ag := g.Group("/admin", jwt, adminMiddleware(deps.UserSvc))

	ag.GET("/stats", api.stats)
	ag.GET("/students/recent", api.recentStudents)

	ag.GET("/users", api.queryUsers)
	ag.PUT("/users/:id/role", api.setRole)

	cg := ag.Group("/courses")
	cg.GET("", api.queryCourses)
	cg.POST("", api.createCourse)
	cg.GET("/:id", api.retrieveCourse)
	cg.PUT("/:id", api.updateCourse)
	cg.DELETE("/:id", api.destroyCourse)
	cg.POST("/:id/publish", api.publishCourse)
	cg.POST("/:id/unpublish", api.unpublishCourse)
	cg.PUT("/:id/outline", api.saveOutline)
	cg.POST("/:id/thumbnail", api.uploadThumbnail)
	cg.POST("/:id/videos", api.uploadVideo)
	cg.GET("/:id/students", api.courseStudents)
	cg.POST("/:id/invite", api.invite)
	cg.POST("/:id/modules", api.createModule)
	cg.PUT("/:id/modules/order", api.reorderModules)

	mg := ag.Group("/modules/:id")
	mg.PUT("", api.updateModule)
	mg.DELETE("", api.destroyModule)
	mg.POST("/lessons", api.createLesson)
	mg.PUT("/lessons/order", api.reorderLessons)

	lg := ag.Group("/lessons/:id")
	lg.GET("", api.retrieveLesson)
	lg.PUT("", api.updateLesson)
	lg.DELETE("", api.destroyLesson)

	eg := ag.Group("/emails")
	eg.POST("/invite", api.customInvite)
	eg.GET("/password", api.generatePassword)
}

// Dashboard

func (api *adminApi) stats(ctx echo.Context) error {
	res, err := api.statsSvc.AdminStats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing admin stats")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) recentStudents(ctx echo.Context) error {
	students, err := api.statsSvc.RecentStudents(ctx.Request().Context(), queryInt(ctx, limitParam))
	if err != nil {
		return errors.Wrap(err, "listing recent students")
	}
	return ctx.JSON(http.StatusOK, students)
}

// Users

func (api *adminApi) queryUsers(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.userSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *adminApi) setRole(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.SetRole
	if err = bindJSON(ctx, &data, "SetRole"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.userSvc.SetRole(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data.Role)
	if err != nil {
		return errors.Wrap(err, "setting role")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// Courses

func (api *adminApi) queryCourses(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.AdminCourse{})
	}
	filter.Clean()

	courses, err := api.courseSvc.ListAdmin(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *adminApi) createCourse(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data course.NewCourse
	if err = bindJSON(ctx, &data, "NewCourse"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.courseSvc.Create(ctx.Request().Context(), ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *adminApi) retrieveCourse(ctx echo.Context) error {
	c, err := api.courseSvc.GetWithContent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *adminApi) updateCourse(ctx echo.Context) error {
	var data course.UpdateCourse
	if err := bindJSON(ctx, &data, "UpdateCourse"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.courseSvc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *adminApi) destroyCourse(ctx echo.Context) error {
	if err := api.courseSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *adminApi) publishCourse(ctx echo.Context) error {
	c, err := api.courseSvc.Publish(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "publishing course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *adminApi) unpublishCourse(ctx echo.Context) error {
	c, err := api.courseSvc.Unpublish(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "unpublishing course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *adminApi) saveOutline(ctx echo.Context) error {
	var data course.Outline
	if err := bindJSON(ctx, &data, "Outline"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.courseSvc.SaveOutline(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "saving outline")
	}
	return ctx.JSON(http.StatusOK, c)
}

// Uploads

func (api *adminApi) openUpload(ctx echo.Context, maxSize int64) (*uploadFile, error) {
	fh, err := ctx.FormFile(uploadField)
	if err != nil {
		return nil, core.NewValidationError(nil, core.FieldError{Field: uploadField, Error: "this field is required"})
	}
	if maxSize > 0 && fh.Size > maxSize {
		return nil, core.NewValidationError(nil, core.FieldError{
			Field: uploadField,
			Error: fmt.Sprintf("file too large (max %d MB)", maxSize>>20),
		})
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening upload")
	}
	return &uploadFile{name: fh.Filename, File: f}, nil
}

func (api *adminApi) uploadThumbnail(ctx echo.Context) error {
	f, err := api.openUpload(ctx, api.conf.Storage.MaxThumbnailSize)
	if err != nil {
		return err
	}
	defer f.Close()

	c, err := api.courseSvc.UploadThumbnail(ctx.Request().Context(), ctx.Param("id"), f.name, f)
	if err != nil {
		return errors.Wrap(err, "uploading thumbnail")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *adminApi) uploadVideo(ctx echo.Context) error {
	f, err := api.openUpload(ctx, api.conf.Storage.MaxVideoSize)
	if err != nil {
		return err
	}
	defer f.Close()

	url, err := api.courseSvc.UploadVideo(ctx.Request().Context(), ctx.Param("id"), f.name, f)
	if err != nil {
		return errors.Wrap(err, "uploading video")
	}
	return ctx.JSON(http.StatusCreated, URLResponse{URL: url})
}

// Enrollments

func (api *adminApi) courseStudents(ctx echo.Context) error {
	if _, err := api.courseSvc.Get(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "getting course")
	}
	students, err := api.enrollmentSvc.ListForCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing course students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *adminApi) invite(ctx echo.Context) error {
	var data enrollment.Invite
	if err := bindJSON(ctx, &data, "Invite"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.enrollmentSvc.AdminInvite(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "inviting user")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) customInvite(ctx echo.Context) error {
	var data enrollment.CustomInvite
	if err := bindJSON(ctx, &data, "CustomInvite"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.enrollmentSvc.SendCustomInvite(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "sending invite")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Invitation sent to " + data.Email})
}

func (api *adminApi) generatePassword(ctx echo.Context) error {
	pwd, err := core.RandomPassword(queryInt(ctx, "length"))
	if err != nil {
		return errors.Wrap(err, "generating password")
	}
	return ctx.JSON(http.StatusOK, PasswordResponse{Password: pwd})
}

// Modules

func (api *adminApi) createModule(ctx echo.Context) error {
	var data course.ModuleInput
	if err := bindJSON(ctx, &data, "ModuleInput"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.courseSvc.CreateModule(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating module")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *adminApi) reorderModules(ctx echo.Context) error {
	var data course.Reorder
	if err := bindJSON(ctx, &data, "Reorder"); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	modules, err := api.courseSvc.ReorderModules(ctx.Request().Context(), ctx.Param("id"), data.IDs)
	if err != nil {
		return errors.Wrap(err, "reordering modules")
	}
	return ctx.JSON(http.StatusOK, modules)
}

func (api *adminApi) updateModule(ctx echo.Context) error {
	var data course.ModuleInput
	if err := bindJSON(ctx, &data, "ModuleInput"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.courseSvc.UpdateModule(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating module")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *adminApi) destroyModule(ctx echo.Context) error {
	if err := api.courseSvc.DeleteModule(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting module")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Lessons

func (api *adminApi) createLesson(ctx echo.Context) error {
	var data course.LessonInput
	if err := bindJSON(ctx, &data, "LessonInput"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	l, err := api.courseSvc.CreateLesson(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *adminApi) reorderLessons(ctx echo.Context) error {
	var data course.Reorder
	if err := bindJSON(ctx, &data, "Reorder"); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	lessons, err := api.courseSvc.ReorderLessons(ctx.Request().Context(), ctx.Param("id"), data.IDs)
	if err != nil {
		return errors.Wrap(err, "reordering lessons")
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *adminApi) retrieveLesson(ctx echo.Context) error {
	l, err := api.courseSvc.GetLesson(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *adminApi) updateLesson(ctx echo.Context) error {
	var data course.LessonInput
	if err := bindJSON(ctx, &data, "LessonInput"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	l, err := api.courseSvc.UpdateLesson(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *adminApi) destroyLesson(ctx echo.Context) error {
	if err := api.courseSvc.DeleteLesson(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type PasswordResponse struct {
	Password string `json:"password"`
}
