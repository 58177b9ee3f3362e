package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cornelabs/lms/core"
)

// Statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Difficulties
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Lesson types
const (
	LessonVideo      = "video"
	LessonQuiz       = "quiz"
	LessonReading    = "reading"
	LessonYouTube    = "youtube"
	LessonAssignment = "assignment"
)

const DefaultPassingScore = 70

type Course struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	ThumbnailURL    string     `json:"thumbnail_url,omitempty"`
	Difficulty      string     `json:"difficulty"`
	Category        string     `json:"category,omitempty"`
	Status          string     `json:"status"`
	DurationMinutes int        `json:"duration_minutes"`
	CreatedBy       string     `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"` // UTC
	UpdatedAt       time.Time  `json:"updated_at"` // UTC
	PublishedAt     *time.Time `json:"published_at,omitempty"`
}

func (c *Course) IsPublished() bool {
	return c.Status == StatusPublished
}

// CatalogCourse is a published Course as listed in the public catalog.
type CatalogCourse struct {
	Course
	ModuleCount int `json:"module_count"`
	LessonCount int `json:"lesson_count"`
}

// AdminCourse is a Course as listed in the admin dashboard.
type AdminCourse struct {
	Course
	StudentCount int `json:"student_count"`
}

type Module struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"course_id"`
	Title      string    `json:"title"`
	OrderIndex int       `json:"order_index"`
	CreatedAt  time.Time `json:"-"`
	Lessons    []Lesson  `json:"lessons"`
}

type Lesson struct {
	ID              string          `json:"id"`
	ModuleID        string          `json:"module_id"`
	CourseID        string          `json:"-"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Type            string          `json:"type"`
	VideoURL        string          `json:"video_url,omitempty"`
	YouTubeURL      string          `json:"youtube_url,omitempty"`
	Content         string          `json:"content,omitempty"`
	DurationSeconds int             `json:"duration_seconds"`
	OrderIndex      int             `json:"order_index"`
	QuizData        *QuizData       `json:"quiz_data,omitempty"`
	AssignmentData  *AssignmentData `json:"assignment_data,omitempty"`
	CreatedAt       time.Time       `json:"-"`
}

type QuizData struct {
	Questions    []QuizQuestion `json:"questions"`
	PassingScore int            `json:"passing_score"`
}

type QuizQuestion struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	// nil when served to students
	CorrectIndex *int `json:"correct_index,omitempty"`
}

type AssignmentData struct {
	Prompt string `json:"prompt"`
}

// YouTubeEmbedURL returns the embeddable player URL of a youtube lesson.
func (l Lesson) YouTubeEmbedURL() string {
	if id := YouTubeID(l.YouTubeURL); id != "" {
		return "https://www.youtube.com/embed/" + id
	}
	return ""
}

// Outline strips everything but the lesson metadata shown on the public course page.
func (l Lesson) Outline() Lesson {
	return Lesson{
		ID:              l.ID,
		ModuleID:        l.ModuleID,
		CourseID:        l.CourseID,
		Title:           l.Title,
		Description:     l.Description,
		Type:            l.Type,
		DurationSeconds: l.DurationSeconds,
		OrderIndex:      l.OrderIndex,
	}
}

// ForStudent hides the quiz answers.
func (l Lesson) ForStudent() Lesson {
	if l.QuizData == nil {
		return l
	}
	qd := QuizData{PassingScore: l.QuizData.PassingScore, Questions: make([]QuizQuestion, 0, len(l.QuizData.Questions))}
	for _, q := range l.QuizData.Questions {
		q.CorrectIndex = nil
		qd.Questions = append(qd.Questions, q)
	}
	l.QuizData = &qd
	return l
}

// CourseWithContent is a Course with its modules and lessons sorted by order_index.
type CourseWithContent struct {
	Course
	Modules []Module `json:"modules"`
}

// Lessons flattens the course lessons in reading order.
func (c CourseWithContent) Lessons() []Lesson {
	var n int
	for _, m := range c.Modules {
		n += len(m.Lessons)
	}
	lessons := make([]Lesson, 0, n)
	for _, m := range c.Modules {
		lessons = append(lessons, m.Lessons...)
	}
	return lessons
}

// Outline returns a copy that only carries lesson metadata.
func (c CourseWithContent) Outline() CourseWithContent {
	out := CourseWithContent{Course: c.Course, Modules: make([]Module, 0, len(c.Modules))}
	for _, m := range c.Modules {
		lessons := make([]Lesson, 0, len(m.Lessons))
		for _, l := range m.Lessons {
			lessons = append(lessons, l.Outline())
		}
		m.Lessons = lessons
		out.Modules = append(out.Modules, m)
	}
	return out
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title           string `json:"title" validate:"required,notblank,max=200"`
	Description     string `json:"description" validate:"max=10000"`
	ThumbnailURL    string `json:"thumbnail_url" validate:"omitempty,url"`
	Difficulty      string `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	Category        string `json:"category" validate:"max=80"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Category = core.CleanString(nc.Category)
	nc.Difficulty = core.CleanString(nc.Difficulty, true /* lower */)
	if nc.Difficulty == "" {
		nc.Difficulty = DifficultyBeginner
	}
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
type UpdateCourse struct {
	Title           *string `json:"title" validate:"omitempty,notblank,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=10000"`
	ThumbnailURL    *string `json:"thumbnail_url" validate:"omitempty,url"`
	Difficulty      *string `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	Category        *string `json:"category" validate:"omitempty,max=80"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,gte=0"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	clean := func(s *string, lower ...bool) {
		if s != nil {
			*s = core.CleanString(*s, lower...)
		}
	}
	clean(uc.Title)
	clean(uc.Description)
	clean(uc.ThumbnailURL)
	clean(uc.Category)
	clean(uc.Difficulty, true /* lower */)
	if uc.Title != nil && *uc.Title == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "title", Error: "this field cannot be blank"})
	}
	return validate.Struct(uc)
}

func (uc UpdateCourse) apply(c Course) Course {
	if uc.Title != nil {
		c.Title = *uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.ThumbnailURL != nil {
		c.ThumbnailURL = *uc.ThumbnailURL
	}
	if uc.Difficulty != nil && *uc.Difficulty != "" {
		c.Difficulty = *uc.Difficulty
	}
	if uc.Category != nil {
		c.Category = *uc.Category
	}
	if uc.DurationMinutes != nil {
		c.DurationMinutes = *uc.DurationMinutes
	}
	return c
}

// ModuleInput is used to create or rename a Module.
type ModuleInput struct {
	Title string `json:"title" validate:"required,notblank,max=200"`
}

func (mi *ModuleInput) Validate(validate *validator.Validate) error {
	mi.Title = core.CleanString(mi.Title)
	return validate.Struct(mi)
}

// LessonInput is used to create or update a Lesson. Type-specific fields are checked by
// lessonStructValidation.
type LessonInput struct {
	ID              string          `json:"id"` // outline saves only
	Title           string          `json:"title" validate:"required,notblank,max=200"`
	Description     string          `json:"description" validate:"max=5000"`
	Type            string          `json:"type" validate:"required,oneof=video quiz reading youtube assignment"`
	VideoURL        string          `json:"video_url"`
	YouTubeURL      string          `json:"youtube_url"`
	Content         string          `json:"content"`
	DurationSeconds int             `json:"duration_seconds" validate:"gte=0"`
	QuizData        *QuizData       `json:"quiz_data"`
	AssignmentData  *AssignmentData `json:"assignment_data"`
}

func (li *LessonInput) clean() {
	li.Title = core.CleanString(li.Title)
	li.Description = core.CleanString(li.Description)
	li.Type = core.CleanString(li.Type, true /* lower */)
	li.VideoURL = core.CleanString(li.VideoURL)
	li.YouTubeURL = core.CleanString(li.YouTubeURL)
	if li.AssignmentData != nil {
		li.AssignmentData.Prompt = core.CleanString(li.AssignmentData.Prompt)
	}
	if li.QuizData != nil {
		for i := range li.QuizData.Questions {
			q := &li.QuizData.Questions[i]
			q.Question = core.CleanString(q.Question)
			for j := range q.Options {
				q.Options[j] = core.CleanString(q.Options[j])
			}
		}
	}
}

func (li *LessonInput) Validate(validate *validator.Validate) error {
	li.clean()
	if err := validate.Struct(li); err != nil {
		return err
	}
	li.normalize()
	return nil
}

// normalize drops the fields that do not belong to the lesson type and fills defaults.
func (li *LessonInput) normalize() {
	if li.Type != LessonVideo {
		li.VideoURL = ""
	}
	if li.Type != LessonYouTube {
		li.YouTubeURL = ""
	}
	if li.Type != LessonQuiz {
		li.QuizData = nil
	} else {
		if li.QuizData.PassingScore == 0 {
			li.QuizData.PassingScore = DefaultPassingScore
		}
		for i := range li.QuizData.Questions {
			if li.QuizData.Questions[i].ID == "" {
				li.QuizData.Questions[i].ID = newID()
			}
		}
	}
	if li.Type != LessonAssignment {
		li.AssignmentData = nil
	}
}

func (li LessonInput) apply(l Lesson) Lesson {
	l.Title = li.Title
	l.Description = li.Description
	l.Type = li.Type
	l.VideoURL = li.VideoURL
	l.YouTubeURL = li.YouTubeURL
	l.Content = li.Content
	l.DurationSeconds = li.DurationSeconds
	l.QuizData = li.QuizData
	l.AssignmentData = li.AssignmentData
	return l
}

// Outline is the complete, ordered module/lesson tree of a Course, saved at once.
type Outline struct {
	Modules []OutlineModule `json:"modules" validate:"dive"`
}

type OutlineModule struct {
	ID      string        `json:"id"`
	Title   string        `json:"title" validate:"required,notblank,max=200"`
	Lessons []LessonInput `json:"lessons"`
}

// Validate skips untitled lessons and validates the rest.
func (o *Outline) Validate(validate *validator.Validate) error {
	for i := range o.Modules {
		m := &o.Modules[i]
		m.Title = core.CleanString(m.Title)
		lessons := make([]LessonInput, 0, len(m.Lessons))
		for _, li := range m.Lessons {
			if core.CleanString(li.Title) == "" {
				continue
			}
			if err := li.Validate(validate); err != nil {
				return err
			}
			lessons = append(lessons, li)
		}
		m.Lessons = lessons
	}
	return validate.Struct(o)
}

// Reorder lists the ids of a course's modules (or a module's lessons) in their new order.
type Reorder struct {
	IDs []string `json:"ids" validate:"required,min=1,unique"`
}

type QueryFilter struct {
	Search     string `query:"search"`
	Difficulty string `query:"difficulty"`
	Category   string `query:"category"`
	Status     string `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Difficulty = core.CleanString(qf.Difficulty, true /* lower */)
	qf.Category = core.CleanString(qf.Category)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}
