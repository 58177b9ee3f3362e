package enrollment

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/user"
)

var (
	// errors
	ErrNotFound           = core.NotFoundError{Resource: "enrollment"}
	ErrAlreadyEnrolled    = errors.New("already enrolled in this course")
	ErrNotEnrolled        = errors.New("not enrolled in this course")
	ErrEmailNotConfigured = errors.New("email service not configured")
)

const (
	msgUserCreatedAndInvited = "User created and invited!"
	msgUserEnrolled          = "User enrolled successfully!"
)

type (
	Repository interface {
		// CreateEnrollment returns ErrAlreadyEnrolled if the user is already enrolled in the course.
		CreateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		GetEnrollment(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Enrollment, error)
		UpdateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		// QueryUserEnrollments returns the enrollments of a user with their course and lesson
		// counts, newest first.
		QueryUserEnrollments(ctx context.Context, userID string, exec ...core.DBExecutor) ([]UserEnrollment, error)
		// QueryCourseStudents returns the students enrolled in a course with their lesson
		// counts, newest first.
		QueryCourseStudents(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]CourseStudent, error)
	}

	Service interface {
		Enroll(ctx context.Context, usr user.User, courseID string) (EnrollResult, error)
		Get(ctx context.Context, userID, courseID string) (Enrollment, error)
		IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
		// RequireEnrollment returns ErrNotEnrolled when the user is not enrolled in the course.
		RequireEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error)
		MarkCompleted(ctx context.Context, e Enrollment) (Enrollment, error)
		ListForUser(ctx context.Context, userID string) ([]UserEnrollment, error)
		ListForCourse(ctx context.Context, courseID string) ([]CourseStudent, error)
		AdminInvite(ctx context.Context, courseID string, inv Invite) (InviteResult, error)
		SendCustomInvite(ctx context.Context, ci CustomInvite) error
	}

	service struct {
		conf      *core.Config
		db        core.DBTransactor
		repo      Repository
		courseSvc course.Service
		userSvc   user.Service
		mailSvc   core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(
	conf *core.Config,
	db core.DBTransactor,
	repo Repository,
	courseSvc course.Service,
	userSvc user.Service,
	mailSvc core.EmailService,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(courseSvc, "courseSvc"),
		vala.IsNotNil(userSvc, "userSvc"),
		vala.IsNotNil(mailSvc, "mailSvc"),
	).CheckAndPanic()

	return &service{
		conf:      conf,
		db:        db,
		repo:      repo,
		courseSvc: courseSvc,
		userSvc:   userSvc,
		mailSvc:   mailSvc,
	}
}

func (svc *service) learnURL(courseID string) string {
	return fmt.Sprintf("%s/learn/%s", svc.conf.FrontendBaseURL, courseID)
}

// getOrCreate returns the enrollment of userID in courseID, creating an active one when needed.
func (svc *service) getOrCreate(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (Enrollment, bool, error) {
	e, err := svc.repo.GetEnrollment(ctx, userID, courseID, exec...)
	if err == nil {
		return e, false, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return Enrollment{}, false, errors.Wrap(err, "finding enrollment")
	}

	e, err = svc.repo.CreateEnrollment(ctx, Enrollment{
		UserID:     userID,
		CourseID:   courseID,
		Status:     StatusActive,
		EnrolledAt: time.Now().UTC(),
	}, exec...)
	if err != nil {
		if errors.Cause(err) == ErrAlreadyEnrolled {
			// concurrent enrollment
			e, err = svc.repo.GetEnrollment(ctx, userID, courseID, exec...)
			return e, false, err
		}
		return Enrollment{}, false, errors.Wrap(err, "creating enrollment")
	}
	return e, true, nil
}

func (svc *service) Enroll(ctx context.Context, usr user.User, courseID string) (EnrollResult, error) {
	c, err := svc.courseSvc.Get(ctx, courseID)
	if err != nil {
		return EnrollResult{}, err
	}
	if !c.IsPublished() {
		return EnrollResult{}, course.ErrNotFound
	}

	e, created, err := svc.getOrCreate(ctx, usr.ID, courseID)
	if err != nil {
		return EnrollResult{}, err
	}
	if created {
		svc.sendWelcomeMail(usr, c)
		return EnrollResult{Enrollment: e}, nil
	}
	if e.Status == StatusDropped {
		e.Status = StatusActive
		if e, err = svc.repo.UpdateEnrollment(ctx, e); err != nil {
			return EnrollResult{}, errors.Wrap(err, "reactivating enrollment")
		}
		return EnrollResult{Enrollment: e}, nil
	}
	return EnrollResult{Enrollment: e, AlreadyEnrolled: true}, nil
}

func (svc *service) sendWelcomeMail(usr user.User, c course.Course) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject:      fmt.Sprintf("Welcome to %s!", c.Title),
		TemplateName: "welcome",
		TemplateData: map[string]interface{}{
			"StudentName": usr.DisplayName(),
			"CourseTitle": c.Title,
			"CourseURL":   svc.learnURL(c.ID),
		},
	})
}

func (svc *service) Get(ctx context.Context, userID, courseID string) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, userID, courseID)
}

func (svc *service) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	e, err := svc.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return e.Status != StatusDropped, nil
}

func (svc *service) RequireEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Enrollment{}, ErrNotEnrolled
		}
		return Enrollment{}, err
	}
	if e.Status == StatusDropped {
		return Enrollment{}, ErrNotEnrolled
	}
	return e, nil
}

func (svc *service) MarkCompleted(ctx context.Context, e Enrollment) (Enrollment, error) {
	if e.IsCompleted() {
		return e, nil
	}
	now := time.Now().UTC()
	e.Status = StatusCompleted
	e.CompletedAt = &now
	return svc.repo.UpdateEnrollment(ctx, e)
}

func (svc *service) ListForUser(ctx context.Context, userID string) ([]UserEnrollment, error) {
	enrollments, err := svc.repo.QueryUserEnrollments(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range enrollments {
		enrollments[i].Progress = Percentage(enrollments[i].CompletedLessons, enrollments[i].TotalLessons)
	}
	return enrollments, nil
}

func (svc *service) ListForCourse(ctx context.Context, courseID string) ([]CourseStudent, error) {
	if _, err := svc.courseSvc.Get(ctx, courseID); err != nil {
		return nil, err
	}
	students, err := svc.repo.QueryCourseStudents(ctx, courseID)
	if err != nil {
		return nil, err
	}
	for i := range students {
		students[i].Progress = Percentage(students[i].CompletedLessons, students[i].TotalLessons)
	}
	return students, nil
}

// AdminInvite enrolls the owner of inv.Email in a course of any status. A student account is
// created when the email is unknown, and the invitation links to the password reset page.
func (svc *service) AdminInvite(ctx context.Context, courseID string, inv Invite) (InviteResult, error) {
	c, err := svc.courseSvc.Get(ctx, courseID)
	if err != nil {
		return InviteResult{}, err
	}

	var res InviteResult
	err = svc.db.Transact(ctx, func(exec core.DBExecutor) error {
		usr, created, err := svc.userSvc.Invite(ctx, inv.Email, inv.FullName, exec)
		if err != nil {
			return errors.Wrap(err, "inviting user")
		}
		e, _, err := svc.getOrCreate(ctx, usr.ID, courseID, exec)
		if err != nil {
			return err
		}
		if e.Status == StatusDropped {
			e.Status = StatusActive
			if e, err = svc.repo.UpdateEnrollment(ctx, e, exec); err != nil {
				return errors.Wrap(err, "reactivating enrollment")
			}
		}
		res = InviteResult{Enrollment: e, User: usr, Created: created}
		return nil
	})
	if err != nil {
		return InviteResult{}, err
	}

	subject := fmt.Sprintf("Course Enrollment: %s", c.Title)
	link := svc.learnURL(courseID)
	res.Message = msgUserEnrolled
	if res.Created {
		subject = fmt.Sprintf("Your account for %s", c.Title)
		link = svc.userSvc.PasswordResetURL(res.User)
		res.Message = msgUserCreatedAndInvited
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: res.User.FullName, Address: res.User.Email}},
		Subject:      subject,
		TemplateName: "invite",
		TemplateData: map[string]interface{}{
			"IsNewUser":   res.Created,
			"CourseTitle": c.Title,
			"ActionLink":  link,
		},
	})
	return res, nil
}

func (svc *service) SendCustomInvite(ctx context.Context, ci CustomInvite) error {
	if !svc.conf.EmailServiceConfigured() {
		return ErrEmailNotConfigured
	}
	name := ci.Name
	if name == "" {
		name = ci.Email
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: ci.Name, Address: ci.Email}},
		Subject:      fmt.Sprintf("Welcome to %s — %s", svc.conf.AppName, ci.CourseTitle),
		TemplateName: "custom_invite",
		TemplateData: map[string]interface{}{
			"Name":         name,
			"CourseTitle":  ci.CourseTitle,
			"Email":        ci.Email,
			"TempPassword": ci.TempPassword,
			"LoginURL":     svc.conf.FrontendBaseURL + "/login",
		},
	})
	return nil
}
