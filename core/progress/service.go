package progress

import (
	"context"
	"math"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/enrollment"
)

var (
	// errors
	ErrNotFound        = core.NotFoundError{Resource: "progress"}
	ErrNotAQuiz        = errors.New("lesson is not a quiz")
	ErrNotAnAssignment = errors.New("lesson is not an assignment")
	ErrAnswersCount    = errors.New("every question must be answered")
	ErrAnswerRange     = errors.New("answer out of range")
)

type (
	Repository interface {
		GetProgress(ctx context.Context, userID, lessonID string, exec ...core.DBExecutor) (Progress, error)
		// UpsertProgress inserts p or overwrites the existing row of the same user and lesson.
		UpsertProgress(ctx context.Context, p Progress, exec ...core.DBExecutor) (Progress, error)
		// QueryCourseProgress returns the progress rows of a user for the lessons of a course.
		QueryCourseProgress(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) ([]Progress, error)
	}

	Service interface {
		MarkComplete(ctx context.Context, userID, courseID, lessonID string) (Progress, error)
		UpdateWatchTime(ctx context.Context, userID, courseID, lessonID string, seconds int) (Progress, error)
		SubmitQuiz(ctx context.Context, userID, courseID, lessonID string, answers []int) (QuizResult, error)
		SubmitAssignment(ctx context.Context, userID, courseID, lessonID, submission string) (Progress, error)
		CourseProgress(ctx context.Context, userID, courseID string) (CourseProgress, error)
		LearnView(ctx context.Context, userID, courseID, lessonID string) (LearnView, error)
	}

	service struct {
		repo          Repository
		courseSvc     course.Service
		enrollmentSvc enrollment.Service
		logger        core.Logger
	}
)

var (
	_ Service = (*service)(nil)

	nowFunc = time.Now // mockable
)

func NewService(repo Repository, courseSvc course.Service, enrollmentSvc enrollment.Service, logger core.Logger) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(courseSvc, "courseSvc"),
		vala.IsNotNil(enrollmentSvc, "enrollmentSvc"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &service{
		repo:          repo,
		courseSvc:     courseSvc,
		enrollmentSvc: enrollmentSvc,
		logger:        logger,
	}
}

func now() time.Time { return nowFunc().UTC() }

// lessonAccess loads the lesson after checking it belongs to courseID and the user is enrolled.
func (svc *service) lessonAccess(ctx context.Context, userID, courseID, lessonID string) (course.Lesson, enrollment.Enrollment, error) {
	e, err := svc.enrollmentSvc.RequireEnrollment(ctx, userID, courseID)
	if err != nil {
		return course.Lesson{}, enrollment.Enrollment{}, err
	}
	l, err := svc.courseSvc.GetLesson(ctx, lessonID)
	if err != nil {
		return course.Lesson{}, enrollment.Enrollment{}, err
	}
	if l.CourseID != courseID {
		return course.Lesson{}, enrollment.Enrollment{}, course.ErrLessonNotFound
	}
	return l, e, nil
}

// current returns the stored progress or a fresh one.
func (svc *service) current(ctx context.Context, userID, lessonID string) (Progress, error) {
	p, err := svc.repo.GetProgress(ctx, userID, lessonID)
	if err != nil {
		if errors.Cause(err) != ErrNotFound {
			return Progress{}, errors.Wrap(err, "finding progress")
		}
		return Progress{UserID: userID, LessonID: lessonID, LastWatchedAt: now()}, nil
	}
	return p, nil
}

// syncEnrollment completes the enrollment once every lesson of the course is completed.
func (svc *service) syncEnrollment(ctx context.Context, e enrollment.Enrollment) {
	if e.IsCompleted() {
		return
	}
	cp, err := svc.loadCourseProgress(ctx, e.UserID, e.CourseID)
	if err != nil {
		svc.logger.Error("computing course progress: "+err.Error(), err)
		return
	}
	if !cp.IsComplete() {
		return
	}
	if _, err = svc.enrollmentSvc.MarkCompleted(ctx, e); err != nil {
		svc.logger.Error("completing enrollment: "+err.Error(), err)
	}
}

func (svc *service) MarkComplete(ctx context.Context, userID, courseID, lessonID string) (Progress, error) {
	l, e, err := svc.lessonAccess(ctx, userID, courseID, lessonID)
	if err != nil {
		return Progress{}, err
	}
	p, err := svc.current(ctx, userID, l.ID)
	if err != nil {
		return Progress{}, err
	}
	p.complete(now())
	if p, err = svc.repo.UpsertProgress(ctx, p); err != nil {
		return Progress{}, errors.Wrap(err, "saving progress")
	}
	svc.syncEnrollment(ctx, e)
	return p, nil
}

func (svc *service) UpdateWatchTime(ctx context.Context, userID, courseID, lessonID string, seconds int) (Progress, error) {
	if seconds < 0 {
		return Progress{}, core.NewValidationError(nil, core.FieldError{Field: "seconds", Error: "seconds must be 0 or greater"})
	}
	l, _, err := svc.lessonAccess(ctx, userID, courseID, lessonID)
	if err != nil {
		return Progress{}, err
	}
	p, err := svc.current(ctx, userID, l.ID)
	if err != nil {
		return Progress{}, err
	}
	p.WatchTimeSeconds = seconds
	p.LastWatchedAt = now()
	if p, err = svc.repo.UpsertProgress(ctx, p); err != nil {
		return Progress{}, errors.Wrap(err, "saving progress")
	}
	return p, nil
}

// Score returns round(correct/total*100) and the number of correct answers.
func Score(questions []course.QuizQuestion, answers []int) (int, int) {
	if len(questions) == 0 {
		return 0, 0
	}
	var correct int
	for i, q := range questions {
		if i < len(answers) && q.CorrectIndex != nil && answers[i] == *q.CorrectIndex {
			correct++
		}
	}
	return int(math.Round(float64(correct) * 100 / float64(len(questions)))), correct
}

func (svc *service) SubmitQuiz(ctx context.Context, userID, courseID, lessonID string, answers []int) (QuizResult, error) {
	l, e, err := svc.lessonAccess(ctx, userID, courseID, lessonID)
	if err != nil {
		return QuizResult{}, err
	}
	if l.Type != course.LessonQuiz || l.QuizData == nil {
		return QuizResult{}, core.NewValidationError(ErrNotAQuiz)
	}
	questions := l.QuizData.Questions
	if len(answers) != len(questions) {
		return QuizResult{}, core.NewValidationError(nil, core.FieldError{Field: "answers", Error: ErrAnswersCount.Error()})
	}
	for i, a := range answers {
		if a < 0 || a >= len(questions[i].Options) {
			return QuizResult{}, core.NewValidationError(nil, core.FieldError{Field: "answers", Error: ErrAnswerRange.Error()})
		}
	}

	score, correct := Score(questions, answers)
	passingScore := l.QuizData.PassingScore
	if passingScore == 0 {
		passingScore = course.DefaultPassingScore
	}
	passed := score >= passingScore

	p, err := svc.current(ctx, userID, l.ID)
	if err != nil {
		return QuizResult{}, err
	}
	p.QuizAnswers = answers
	p.Score = &score
	if passed {
		p.complete(now())
	}
	if p, err = svc.repo.UpsertProgress(ctx, p); err != nil {
		return QuizResult{}, errors.Wrap(err, "saving progress")
	}
	if passed {
		svc.syncEnrollment(ctx, e)
	}
	return QuizResult{
		Score:        score,
		Passed:       passed,
		PassingScore: passingScore,
		Correct:      correct,
		Total:        len(questions),
		Progress:     p,
	}, nil
}

func (svc *service) SubmitAssignment(ctx context.Context, userID, courseID, lessonID, submission string) (Progress, error) {
	submission = core.CleanString(submission)
	if submission == "" {
		return Progress{}, core.NewValidationError(nil, core.FieldError{Field: "submission", Error: "this field cannot be blank"})
	}
	l, e, err := svc.lessonAccess(ctx, userID, courseID, lessonID)
	if err != nil {
		return Progress{}, err
	}
	if l.Type != course.LessonAssignment {
		return Progress{}, core.NewValidationError(ErrNotAnAssignment)
	}
	p, err := svc.current(ctx, userID, l.ID)
	if err != nil {
		return Progress{}, err
	}
	p.AssignmentSubmission = submission
	p.complete(now())
	if p, err = svc.repo.UpsertProgress(ctx, p); err != nil {
		return Progress{}, errors.Wrap(err, "saving progress")
	}
	svc.syncEnrollment(ctx, e)
	return p, nil
}

func (svc *service) courseProgress(ctx context.Context, userID string, cwc course.CourseWithContent) (CourseProgress, map[string]Progress, error) {
	rows, err := svc.repo.QueryCourseProgress(ctx, userID, cwc.ID)
	if err != nil {
		return CourseProgress{}, nil, errors.Wrap(err, "querying progress")
	}
	byLesson := make(map[string]Progress, len(rows))
	for _, p := range rows {
		byLesson[p.LessonID] = p
	}

	lessons := cwc.Lessons()
	cp := CourseProgress{CourseID: cwc.ID, TotalLessons: len(lessons), CompletedLessonIDs: []string{}}
	for _, l := range lessons {
		if byLesson[l.ID].Completed {
			cp.CompletedLessons++
			cp.CompletedLessonIDs = append(cp.CompletedLessonIDs, l.ID)
		}
	}
	cp.Percentage = enrollment.Percentage(cp.CompletedLessons, cp.TotalLessons)
	return cp, byLesson, nil
}

func (svc *service) loadCourseProgress(ctx context.Context, userID, courseID string) (CourseProgress, error) {
	cwc, err := svc.courseSvc.GetWithContent(ctx, courseID)
	if err != nil {
		return CourseProgress{}, err
	}
	cp, _, err := svc.courseProgress(ctx, userID, cwc)
	return cp, err
}

func (svc *service) CourseProgress(ctx context.Context, userID, courseID string) (CourseProgress, error) {
	if _, err := svc.enrollmentSvc.RequireEnrollment(ctx, userID, courseID); err != nil {
		return CourseProgress{}, err
	}
	return svc.loadCourseProgress(ctx, userID, courseID)
}

func (svc *service) LearnView(ctx context.Context, userID, courseID, lessonID string) (LearnView, error) {
	e, err := svc.enrollmentSvc.RequireEnrollment(ctx, userID, courseID)
	if err != nil {
		return LearnView{}, err
	}
	cwc, err := svc.courseSvc.GetWithContent(ctx, courseID)
	if err != nil {
		return LearnView{}, err
	}
	cp, byLesson, err := svc.courseProgress(ctx, userID, cwc)
	if err != nil {
		return LearnView{}, err
	}

	outline := cwc.Outline()
	view := LearnView{
		Course:     cwc.Course,
		Modules:    outline.Modules,
		Enrollment: e,
		Progress:   cp,
		Lessons:    make(map[string]LessonStatus, len(byLesson)),
	}
	for id, p := range byLesson {
		view.Lessons[id] = LessonStatus{Completed: p.Completed, WatchTimeSeconds: p.WatchTimeSeconds, Score: p.Score}
	}

	lessons := cwc.Lessons()
	if len(lessons) == 0 {
		if lessonID != "" {
			return LearnView{}, course.ErrLessonNotFound
		}
		return view, nil
	}
	idx := 0
	if lessonID != "" {
		idx = -1
		for i, l := range lessons {
			if l.ID == lessonID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return LearnView{}, course.ErrLessonNotFound
		}
	}

	current := lessons[idx].ForStudent()
	view.Lesson = &current
	if idx > 0 {
		view.Previous = newLessonRef(lessons[idx-1])
	}
	if idx < len(lessons)-1 {
		view.Next = newLessonRef(lessons[idx+1])
	}
	if view.Rendered, err = render(current); err != nil {
		return LearnView{}, errors.Wrap(err, "rendering lesson")
	}
	return view, nil
}

func render(l course.Lesson) (*RenderedLesson, error) {
	var (
		r   RenderedLesson
		err error
	)
	switch l.Type {
	case course.LessonReading:
		r.ContentHTML, err = core.RenderMarkdown(l.Content)
	case course.LessonAssignment:
		if l.AssignmentData != nil {
			r.PromptHTML, err = core.RenderMarkdown(l.AssignmentData.Prompt)
		}
	case course.LessonYouTube:
		r.EmbedURL = l.YouTubeEmbedURL()
	default:
		if l.Content != "" {
			r.ContentHTML, err = core.RenderMarkdown(l.Content)
		}
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
