package course_test

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	storagesvc "github.com/cornelabs/lms/services/storage"
	"github.com/cornelabs/lms/tests"
)

func TestService_GetCatalogCourse(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	published := testutil.CreateCourse(t, env.Courses, "Go", course.StatusPublished)
	draft := testutil.CreateCourse(t, env.Courses, "Draft", course.StatusDraft)
	m := testutil.CreateModule(t, env.Courses, published.ID, "Basics", 0)
	testutil.CreateLesson(t, env.Courses, m.ID, "Quiz", course.LessonQuiz, 0)

	_, err := env.CourseSvc.GetCatalogCourse(ctx, draft.ID)
	assert.Equal(t, course.ErrNotFound, err)

	cwc, err := env.CourseSvc.GetCatalogCourse(ctx, published.ID)
	require.NoError(t, err)
	require.Len(t, cwc.Modules, 1)
	require.Len(t, cwc.Modules[0].Lessons, 1)
	assert.Nil(t, cwc.Modules[0].Lessons[0].QuizData)

	// admins see everything
	cwc, err = env.CourseSvc.GetWithContent(ctx, published.ID)
	require.NoError(t, err)
	require.NotNil(t, cwc.Modules[0].Lessons[0].QuizData)
	assert.NotNil(t, cwc.Modules[0].Lessons[0].QuizData.Questions[0].CorrectIndex)
}

func TestService_publish(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c, err := env.CourseSvc.Create(ctx, "author", course.NewCourse{Title: "Go", Difficulty: course.DifficultyBeginner})
	require.NoError(t, err)
	assert.Equal(t, course.StatusDraft, c.Status)

	published, err := env.CourseSvc.Publish(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, published.PublishedAt)
	firstPublishedAt := *published.PublishedAt

	// publishing twice is a no-op
	again, err := env.CourseSvc.Publish(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, firstPublishedAt.Equal(*again.PublishedAt))

	draft, err := env.CourseSvc.Unpublish(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, course.StatusDraft, draft.Status)

	republished, err := env.CourseSvc.Publish(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, firstPublishedAt.Equal(*republished.PublishedAt))

	_, err = env.CourseSvc.Publish(ctx, "unknown")
	assert.True(t, core.IsNotFound(err))
}

func TestService_reorder(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, env.Courses, "Go", course.StatusDraft)
	other := testutil.CreateCourse(t, env.Courses, "Rust", course.StatusDraft)
	m1 := testutil.CreateModule(t, env.Courses, c.ID, "One", 0)
	m2 := testutil.CreateModule(t, env.Courses, c.ID, "Two", 1)
	foreign := testutil.CreateModule(t, env.Courses, other.ID, "Foreign", 0)

	tests := []struct {
		name    string
		ids     []string
		wantErr bool
	}{
		{name: "missing", ids: []string{m1.ID}, wantErr: true},
		{name: "duplicate", ids: []string{m1.ID, m1.ID}, wantErr: true},
		{name: "foreign", ids: []string{m1.ID, foreign.ID}, wantErr: true},
		{name: "extra", ids: []string{m1.ID, m2.ID, foreign.ID}, wantErr: true},
		{name: "valid", ids: []string{m2.ID, m1.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modules, err := env.CourseSvc.ReorderModules(ctx, c.ID, tt.ids)
			if tt.wantErr {
				var vErr *core.ValidationError
				assert.ErrorAs(t, err, &vErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, modules, 2)
			assert.Equal(t, m2.ID, modules[0].ID)
			assert.Equal(t, 0, modules[0].OrderIndex)
			assert.Equal(t, m1.ID, modules[1].ID)
			assert.Equal(t, 1, modules[1].OrderIndex)
		})
	}
}

func TestService_createLesson(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, env.Courses, "Go", course.StatusDraft)
	m := testutil.CreateModule(t, env.Courses, c.ID, "Basics", 0)
	testutil.CreateLesson(t, env.Courses, m.ID, "Intro", course.LessonReading, 0)

	l, err := env.CourseSvc.CreateLesson(ctx, m.ID, course.LessonInput{Title: "Next", Type: course.LessonReading, Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, l.OrderIndex)
	assert.Equal(t, c.ID, l.CourseID)

	_, err = env.CourseSvc.CreateLesson(ctx, "unknown", course.LessonInput{Title: "X", Type: course.LessonReading, Content: "x"})
	assert.True(t, core.IsNotFound(err))
}

func TestService_SaveOutline_foreignIDs(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, env.Courses, "Go", course.StatusDraft)
	other := testutil.CreateCourse(t, env.Courses, "Rust", course.StatusDraft)
	om := testutil.CreateModule(t, env.Courses, other.ID, "Foreign", 0)
	ol := testutil.CreateLesson(t, env.Courses, om.ID, "Foreign lesson", course.LessonReading, 0)

	cwc, err := env.CourseSvc.SaveOutline(ctx, c.ID, course.Outline{Modules: []course.OutlineModule{{
		ID:      om.ID,
		Title:   "Mine",
		Lessons: []course.LessonInput{{ID: ol.ID, Title: "Mine too", Type: course.LessonReading, Content: "x"}},
	}}})
	require.NoError(t, err)
	require.Len(t, cwc.Modules, 1)
	assert.NotEqual(t, om.ID, cwc.Modules[0].ID)
	require.Len(t, cwc.Modules[0].Lessons, 1)
	assert.NotEqual(t, ol.ID, cwc.Modules[0].Lessons[0].ID)

	// the other course is untouched
	l, err := env.Courses.GetLesson(ctx, ol.ID)
	require.NoError(t, err)
	assert.Equal(t, "Foreign lesson", l.Title)
	assert.Equal(t, other.ID, l.CourseID)

	_, err = env.CourseSvc.SaveOutline(ctx, "unknown", course.Outline{})
	assert.Equal(t, course.ErrNotFound, err)
}

var errLessonWrite = errors.New("lesson write failed")

// failingRepository fails the failAt-th CreateLesson call.
type failingRepository struct {
	course.Repository
	failAt, calls int
}

func (r *failingRepository) CreateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	r.calls++
	if r.calls == r.failAt {
		return course.Lesson{}, errLessonWrite
	}
	return r.Repository.CreateLesson(ctx, l, exec...)
}

func TestService_SaveOutline_rollback(t *testing.T) {
	tests := []struct {
		name   string
		failAt int
	}{
		{name: "first new lesson", failAt: 1},
		{name: "second new lesson", failAt: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewEnv(t)
			ctx := context.Background()
			repo := &failingRepository{Repository: env.Courses, failAt: tt.failAt}
			svc := course.NewService(env.DB, repo, storagesvc.NewLocalStorage(env.Conf), env.Logger)

			c := testutil.CreateCourse(t, env.Courses, "Go", course.StatusDraft)
			m := testutil.CreateModule(t, env.Courses, c.ID, "Basics", 0)
			a := testutil.CreateLesson(t, env.Courses, m.ID, "A", course.LessonReading, 0)
			b := testutil.CreateLesson(t, env.Courses, m.ID, "B", course.LessonReading, 1)
			testutil.CompleteLesson(t, env.Progress, "u1", a.ID)
			testutil.CompleteLesson(t, env.Progress, "u1", b.ID)

			before, err := svc.GetWithContent(ctx, c.ID)
			require.NoError(t, err)

			_, err = svc.SaveOutline(ctx, c.ID, course.Outline{Modules: []course.OutlineModule{
				{
					ID:    m.ID,
					Title: "Renamed",
					Lessons: []course.LessonInput{
						{ID: a.ID, Title: "A renamed", Type: course.LessonReading, Content: "x"},
						{Title: "New 1", Type: course.LessonReading, Content: "x"},
						{Title: "New 2", Type: course.LessonReading, Content: "x"},
					},
				},
				{Title: "Extra"},
			}})
			assert.ErrorIs(t, err, errLessonWrite)
			assert.Equal(t, tt.failAt, repo.calls)

			after, err := svc.GetWithContent(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			require.Len(t, after.Modules, 1)
			assert.Equal(t, "Basics", after.Modules[0].Title)
			require.Len(t, after.Modules[0].Lessons, 2)
			assert.Equal(t, a.ID, after.Modules[0].Lessons[0].ID)
			assert.Equal(t, "A", after.Modules[0].Lessons[0].Title)
			assert.Equal(t, b.ID, after.Modules[0].Lessons[1].ID)

			for _, id := range []string{a.ID, b.ID} {
				p, err := env.Progress.GetProgress(ctx, "u1", id)
				require.NoError(t, err)
				assert.True(t, p.Completed)
			}
		})
	}
}

func TestService_upload(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, env.Courses, "Go", course.StatusDraft)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90wS\xde")

	tests := []struct {
		name     string
		filename string
		content  []byte
		wantErr  error
	}{
		{name: "text", filename: "a.txt", content: []byte("hello"), wantErr: course.ErrNotAnImage},
		{name: "empty", filename: "a.png", content: nil, wantErr: course.ErrNotAnImage},
		{name: "png", filename: "../../etc/My Cover!.png", content: png},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.CourseSvc.UploadThumbnail(ctx, c.ID, tt.filename, bytes.NewReader(tt.content))
			if tt.wantErr != nil {
				var vErr *core.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			prefix := "http://localhost:8000/media/thumbnails/" + c.ID + "/"
			assert.True(t, strings.HasPrefix(res.ThumbnailURL, prefix), res.ThumbnailURL)
			assert.True(t, strings.HasSuffix(res.ThumbnailURL, "-My-Cover.png"), res.ThumbnailURL)
		})
	}

	_, err := env.CourseSvc.UploadVideo(ctx, c.ID, "cover.png", bytes.NewReader(png))
	assert.ErrorIs(t, err, course.ErrNotAVideo)
}

func TestService_UploadThumbnail_replace(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, env.Courses, "Go", course.StatusDraft)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90wS\xde")
	prefix := "http://localhost:8000/media/thumbnails/"
	filePath := func(url string) string {
		return filepath.Join(env.Conf.Storage.LocalDir, "thumbnails", filepath.FromSlash(strings.TrimPrefix(url, prefix)))
	}

	first, err := env.CourseSvc.UploadThumbnail(ctx, c.ID, "first.png", bytes.NewReader(png))
	require.NoError(t, err)
	require.FileExists(t, filePath(first.ThumbnailURL))

	second, err := env.CourseSvc.UploadThumbnail(ctx, c.ID, "second.png", bytes.NewReader(png))
	require.NoError(t, err)
	assert.FileExists(t, filePath(second.ThumbnailURL))
	assert.NoFileExists(t, filePath(first.ThumbnailURL))

	// thumbnails hosted elsewhere are left alone
	external := second
	external.ThumbnailURL = "https://images.test/cover.png"
	_, err = env.Courses.UpdateCourse(ctx, external)
	require.NoError(t, err)
	third, err := env.CourseSvc.UploadThumbnail(ctx, c.ID, "third.png", bytes.NewReader(png))
	require.NoError(t, err)
	assert.FileExists(t, filePath(third.ThumbnailURL))
	assert.FileExists(t, filePath(second.ThumbnailURL))
}
