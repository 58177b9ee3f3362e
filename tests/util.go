package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/enrollment"
	"github.com/cornelabs/lms/core/progress"
	"github.com/cornelabs/lms/core/user"
)

// NewConfig returns a test configuration: in-memory database and local storage in a temp dir.
func NewConfig(t *testing.T) *core.Config {
	t.Helper()
	return &core.Config{
		Env:                       "TEST",
		TestMode:                  true,
		AppName:                   "LMS",
		SecretKey:                 "test-secret-key",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "LMS", Address: "noreply@lms.test"},
		PasswordResetTimeoutDelta: 24 * time.Hour,
		Server: core.ServerConfig{
			Address:                   ":0",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
			DisableReqLogs:            true,
		},
		Database: core.DatabaseConfig{Engine: core.DatabaseEngineMemory},
		Storage: core.StorageConfig{
			Backend:          core.StorageBackendLocal,
			LocalDir:         t.TempDir(),
			PublicBaseURL:    "http://localhost:8000",
			ThumbnailsBucket: core.BucketThumbnails,
			VideosBucket:     core.BucketVideos,
			MaxThumbnailSize: 1 << 20,
			MaxVideoSize:     8 << 20,
		},
		RateLimit: core.RateLimitConfig{Requests: 1000, Window: time.Minute},
	}
}

// NewValidator returns a validator with every app validator and translation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if role == "" {
		role = user.RoleStudent
	}
	usr := user.User{
		FullName:  name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo course.Repository, title, status string, createdAt ...time.Time) course.Course {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if status == "" {
		status = course.StatusDraft
	}
	c := course.Course{
		Title:      title,
		Difficulty: course.DifficultyBeginner,
		Status:     status,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	if status == course.StatusPublished {
		c.PublishedAt = &tstamp
	}
	c, err := repo.CreateCourse(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

func CreateModule(t *testing.T, repo course.Repository, courseID, title string, order int) course.Module {
	t.Helper()
	m, err := repo.CreateModule(context.Background(), course.Module{
		CourseID:   courseID,
		Title:      title,
		OrderIndex: order,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateModule() failed: %v", err)
	}
	return m
}

// CreateLesson creates a lesson of type typ with the minimal valid content for that type.
func CreateLesson(t *testing.T, repo course.Repository, moduleID, title, typ string, order int) course.Lesson {
	t.Helper()
	l := course.Lesson{
		ModuleID:   moduleID,
		Title:      title,
		Type:       typ,
		OrderIndex: order,
		CreatedAt:  time.Now().UTC(),
	}
	switch typ {
	case course.LessonVideo:
		l.VideoURL = "https://cdn.test/" + title + ".mp4"
	case course.LessonYouTube:
		l.YouTubeURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	case course.LessonReading:
		l.Content = "# " + title + "\n\nSome **bold** text."
	case course.LessonAssignment:
		l.AssignmentData = &course.AssignmentData{Prompt: "Write about *" + title + "*"}
	case course.LessonQuiz:
		l.QuizData = Quiz()
	}
	l, err := repo.CreateLesson(context.Background(), l)
	if err != nil {
		t.Fatalf("CreateLesson() failed: %v", err)
	}
	return l
}

// Quiz returns a 3 question quiz whose correct answers are [1, 0, 2].
func Quiz() *course.QuizData {
	idx := func(i int) *int { return &i }
	return &course.QuizData{
		PassingScore: course.DefaultPassingScore,
		Questions: []course.QuizQuestion{
			{ID: "q1", Question: "2 + 2 ?", Options: []string{"3", "4", "5"}, CorrectIndex: idx(1)},
			{ID: "q2", Question: "Capital of France ?", Options: []string{"Paris", "Lyon"}, CorrectIndex: idx(0)},
			{ID: "q3", Question: "Go mascot ?", Options: []string{"Crab", "Snake", "Gopher"}, CorrectIndex: idx(2)},
		},
	}
}

func Enroll(t *testing.T, repo enrollment.Repository, userID, courseID string) enrollment.Enrollment {
	t.Helper()
	e, err := repo.CreateEnrollment(context.Background(), enrollment.Enrollment{
		UserID:     userID,
		CourseID:   courseID,
		Status:     enrollment.StatusActive,
		EnrolledAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return e
}

func CompleteLesson(t *testing.T, repo progress.Repository, userID, lessonID string) progress.Progress {
	t.Helper()
	now := time.Now().UTC()
	p, err := repo.UpsertProgress(context.Background(), progress.Progress{
		UserID:        userID,
		LessonID:      lessonID,
		Completed:     true,
		LastWatchedAt: now,
		CompletedAt:   &now,
	})
	if err != nil {
		t.Fatalf("CompleteLesson() failed: %v", err)
	}
	return p
}
