package progress

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/enrollment"
)

// Progress is the state of one lesson for one user.
type Progress struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	LessonID             string     `json:"lesson_id"`
	Completed            bool       `json:"completed"`
	WatchTimeSeconds     int        `json:"watch_time_seconds"`
	LastWatchedAt        time.Time  `json:"last_watched_at"` // UTC
	QuizAnswers          []int      `json:"quiz_answers,omitempty"`
	AssignmentSubmission string     `json:"assignment_submission,omitempty"`
	Score                *int       `json:"score,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

func (p *Progress) complete(now time.Time) {
	if p.Completed {
		return
	}
	p.Completed = true
	p.CompletedAt = &now
}

type WatchTime struct {
	Seconds *int `json:"seconds" validate:"required,gte=0"`
}

func (wt *WatchTime) Validate(validate *validator.Validate) error {
	return validate.Struct(wt)
}

type QuizSubmission struct {
	Answers []int `json:"answers" validate:"required"`
}

func (qs *QuizSubmission) Validate(validate *validator.Validate) error {
	return validate.Struct(qs)
}

type AssignmentSubmission struct {
	Submission string `json:"submission" validate:"required,notblank,max=20000"`
}

func (as *AssignmentSubmission) Validate(validate *validator.Validate) error {
	as.Submission = core.CleanString(as.Submission)
	return validate.Struct(as)
}

type QuizResult struct {
	Score        int      `json:"score"`
	Passed       bool     `json:"passed"`
	PassingScore int      `json:"passing_score"`
	Correct      int      `json:"correct"`
	Total        int      `json:"total"`
	Progress     Progress `json:"progress"`
}

// CourseProgress aggregates the progress of a user in a course.
type CourseProgress struct {
	CourseID           string   `json:"course_id"`
	CompletedLessons   int      `json:"completed_lessons"`
	TotalLessons       int      `json:"total_lessons"`
	Percentage         int      `json:"percentage"`
	CompletedLessonIDs []string `json:"completed_lesson_ids"`
}

func (cp CourseProgress) IsComplete() bool {
	return cp.TotalLessons > 0 && cp.CompletedLessons >= cp.TotalLessons
}

// LessonRef points to a neighbour lesson in the learn view.
type LessonRef struct {
	ID       string `json:"id"`
	ModuleID string `json:"module_id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
}

func newLessonRef(l course.Lesson) *LessonRef {
	return &LessonRef{ID: l.ID, ModuleID: l.ModuleID, Title: l.Title, Type: l.Type}
}

// LearnView is everything the lesson player needs.
type LearnView struct {
	Course     course.Course           `json:"course"`
	Modules    []course.Module         `json:"modules"` // lesson metadata only
	Enrollment enrollment.Enrollment   `json:"enrollment"`
	Lesson     *course.Lesson          `json:"lesson"`
	Rendered   *RenderedLesson         `json:"rendered,omitempty"`
	Progress   CourseProgress          `json:"progress"`
	Lessons    map[string]LessonStatus `json:"lessons"` // by lesson id
	Previous   *LessonRef              `json:"previous"`
	Next       *LessonRef              `json:"next"`
}

// RenderedLesson carries the HTML rendered out of the current lesson's markdown fields.
type RenderedLesson struct {
	ContentHTML string `json:"content_html,omitempty"`
	PromptHTML  string `json:"prompt_html,omitempty"`
	EmbedURL    string `json:"embed_url,omitempty"`
}

type LessonStatus struct {
	Completed        bool `json:"completed"`
	WatchTimeSeconds int  `json:"watch_time_seconds"`
	Score            *int `json:"score,omitempty"`
}
