package enrollment

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/user"
)

// Statuses
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusDropped   = "dropped"
)

const defaultTempPassword = "Set your own password"

type Enrollment struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	CourseID    string     `json:"course_id"`
	Status      string     `json:"status"`
	EnrolledAt  time.Time  `json:"enrolled_at"` // UTC
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (e *Enrollment) IsCompleted() bool {
	return e.Status == StatusCompleted
}

// EnrollResult is returned by Service.Enroll. AlreadyEnrolled reports an existing enrollment.
type EnrollResult struct {
	Enrollment
	AlreadyEnrolled bool `json:"already_enrolled"`
}

// UserEnrollment is an Enrollment as shown on a student's dashboard.
type UserEnrollment struct {
	Enrollment
	Course           course.Course `json:"course"`
	CompletedLessons int           `json:"completed_lessons"`
	TotalLessons     int           `json:"total_lessons"`
	Progress         int           `json:"progress"` // percentage
}

// CourseStudent is an enrolled student as listed on the admin course page.
type CourseStudent struct {
	Enrollment
	Student          user.User `json:"student"`
	CompletedLessons int       `json:"completed_lessons"`
	TotalLessons     int       `json:"total_lessons"`
	Progress         int       `json:"progress"` // percentage
}

// Percentage returns round(completed/total*100), or 0 when total is 0.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	if completed > total {
		completed = total
	}
	return int(math.Round(float64(completed) * 100 / float64(total)))
}

// Invite is used by admins to enroll someone by email, creating an account if needed.
type Invite struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"max=120"`
}

func (inv *Invite) Validate(validate *validator.Validate) error {
	inv.Email = core.CleanString(inv.Email, true /* lower */)
	inv.FullName = core.CleanString(inv.FullName)
	return validate.Struct(inv)
}

// InviteResult is returned by Service.AdminInvite.
type InviteResult struct {
	Enrollment Enrollment `json:"enrollment"`
	User       user.User  `json:"user"`
	Created    bool       `json:"created"`
	Message    string     `json:"message"`
}

// CustomInvite is a hand-written credentials email sent by an admin.
type CustomInvite struct {
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name" validate:"max=120"`
	CourseTitle  string `json:"course_title" validate:"required,notblank,max=200"`
	TempPassword string `json:"temp_password" validate:"max=128"`
}

func (ci *CustomInvite) Validate(validate *validator.Validate) error {
	ci.Email = core.CleanString(ci.Email, true /* lower */)
	ci.Name = core.CleanString(ci.Name)
	ci.CourseTitle = core.CleanString(ci.CourseTitle)
	ci.TempPassword = core.CleanString(ci.TempPassword)
	if ci.TempPassword == "" {
		ci.TempPassword = defaultTempPassword
	}
	return validate.Struct(ci)
}
