package sqlxrepos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
)

var (
	courseColumns = []string{
		"id", "title", "description", "thumbnail_url", "difficulty", "category", "status",
		"duration_minutes", "created_by", "created_at", "updated_at", "published_at",
	}
	moduleColumns = []string{"id", "course_id", "title", "order_index", "created_at"}
	lessonColumns = []string{
		"id", "module_id", "title", "description", "type", "video_url", "youtube_url", "content",
		"duration_seconds", "order_index", "quiz_data", "assignment_data", "created_at",
	}
)

// columns prefixes cols with the table alias.
func columns(alias string, cols []string) string {
	prefixed := make([]string, 0, len(cols))
	for _, c := range cols {
		prefixed = append(prefixed, alias+"."+c)
	}
	return strings.Join(prefixed, ", ")
}

func namedValues(cols []string) string {
	return ":" + strings.Join(cols, ", :")
}

func namedSet(cols []string) string {
	set := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != "id" {
			set = append(set, c+" = :"+c)
		}
	}
	return strings.Join(set, ", ")
}

type (
	courseRow struct {
		ID              string      `db:"id"`
		Title           string      `db:"title"`
		Description     string      `db:"description"`
		ThumbnailURL    null.String `db:"thumbnail_url"`
		Difficulty      string      `db:"difficulty"`
		Category        null.String `db:"category"`
		Status          string      `db:"status"`
		DurationMinutes int         `db:"duration_minutes"`
		CreatedBy       null.String `db:"created_by"`
		CreatedAt       time.Time   `db:"created_at"`
		UpdatedAt       time.Time   `db:"updated_at"`
		PublishedAt     null.Time   `db:"published_at"`
	}

	catalogRow struct {
		courseRow
		ModuleCount int `db:"module_count"`
		LessonCount int `db:"lesson_count"`
	}

	adminCourseRow struct {
		courseRow
		StudentCount int `db:"student_count"`
	}

	moduleRow struct {
		ID         string    `db:"id"`
		CourseID   string    `db:"course_id"`
		Title      string    `db:"title"`
		OrderIndex int       `db:"order_index"`
		CreatedAt  time.Time `db:"created_at"`
	}

	lessonRow struct {
		ID              string      `db:"id"`
		ModuleID        string      `db:"module_id"`
		CourseID        string      `db:"course_id"` // joined from modules
		Title           string      `db:"title"`
		Description     null.String `db:"description"`
		Type            string      `db:"type"`
		VideoURL        null.String `db:"video_url"`
		YouTubeURL      null.String `db:"youtube_url"`
		Content         null.String `db:"content"`
		DurationSeconds int         `db:"duration_seconds"`
		OrderIndex      int         `db:"order_index"`
		QuizData        null.JSON   `db:"quiz_data"`
		AssignmentData  null.JSON   `db:"assignment_data"`
		CreatedAt       time.Time   `db:"created_at"`
	}
)

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func toCourseRow(c course.Course) courseRow {
	return courseRow{
		ID:              c.ID,
		Title:           c.Title,
		Description:     c.Description,
		ThumbnailURL:    nullString(c.ThumbnailURL),
		Difficulty:      c.Difficulty,
		Category:        nullString(c.Category),
		Status:          c.Status,
		DurationMinutes: c.DurationMinutes,
		CreatedBy:       nullString(c.CreatedBy),
		CreatedAt:       c.CreatedAt.UTC(),
		UpdatedAt:       c.UpdatedAt.UTC(),
		PublishedAt:     null.TimeFromPtr(c.PublishedAt),
	}
}

func (row courseRow) course() course.Course {
	c := course.Course{
		ID:              row.ID,
		Title:           row.Title,
		Description:     row.Description,
		ThumbnailURL:    row.ThumbnailURL.String,
		Difficulty:      row.Difficulty,
		Category:        row.Category.String,
		Status:          row.Status,
		DurationMinutes: row.DurationMinutes,
		CreatedBy:       row.CreatedBy.String,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if row.PublishedAt.Valid {
		t := row.PublishedAt.Time.UTC()
		c.PublishedAt = &t
	}
	return c
}

func (row moduleRow) module() course.Module {
	return course.Module{
		ID:         row.ID,
		CourseID:   row.CourseID,
		Title:      row.Title,
		OrderIndex: row.OrderIndex,
		CreatedAt:  row.CreatedAt.UTC(),
		Lessons:    []course.Lesson{},
	}
}

func marshalJSON(v interface{}, isNil bool) (null.JSON, error) {
	if isNil {
		return null.JSON{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return null.JSON{}, err
	}
	return null.JSONFrom(data), nil
}

func toLessonRow(l course.Lesson) (lessonRow, error) {
	qd, err := marshalJSON(l.QuizData, l.QuizData == nil)
	if err != nil {
		return lessonRow{}, errors.Wrap(err, "encoding quiz_data")
	}
	ad, err := marshalJSON(l.AssignmentData, l.AssignmentData == nil)
	if err != nil {
		return lessonRow{}, errors.Wrap(err, "encoding assignment_data")
	}
	return lessonRow{
		ID:              l.ID,
		ModuleID:        l.ModuleID,
		CourseID:        l.CourseID,
		Title:           l.Title,
		Description:     nullString(l.Description),
		Type:            l.Type,
		VideoURL:        nullString(l.VideoURL),
		YouTubeURL:      nullString(l.YouTubeURL),
		Content:         nullString(l.Content),
		DurationSeconds: l.DurationSeconds,
		OrderIndex:      l.OrderIndex,
		QuizData:        qd,
		AssignmentData:  ad,
		CreatedAt:       l.CreatedAt.UTC(),
	}, nil
}

func (row lessonRow) lesson() (course.Lesson, error) {
	l := course.Lesson{
		ID:              row.ID,
		ModuleID:        row.ModuleID,
		CourseID:        row.CourseID,
		Title:           row.Title,
		Description:     row.Description.String,
		Type:            row.Type,
		VideoURL:        row.VideoURL.String,
		YouTubeURL:      row.YouTubeURL.String,
		Content:         row.Content.String,
		DurationSeconds: row.DurationSeconds,
		OrderIndex:      row.OrderIndex,
		CreatedAt:       row.CreatedAt.UTC(),
	}
	if row.QuizData.Valid {
		l.QuizData = new(course.QuizData)
		if err := row.QuizData.Unmarshal(l.QuizData); err != nil {
			return course.Lesson{}, errors.Wrapf(err, "decoding quiz_data of lesson %s", row.ID)
		}
	}
	if row.AssignmentData.Valid {
		l.AssignmentData = new(course.AssignmentData)
		if err := row.AssignmentData.Unmarshal(l.AssignmentData); err != nil {
			return course.Lesson{}, errors.Wrapf(err, "decoding assignment_data of lesson %s", row.ID)
		}
	}
	return l, nil
}

type courseRepository struct {
	repository
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{repository{exec: exec}}
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	c.ID = uuid.New().String()
	q := `INSERT INTO courses (` + strings.Join(courseColumns, ", ") + `) VALUES (` + namedValues(courseColumns) + `)`
	if _, err := namedExec(ctx, repo.getExec(exec), q, toCourseRow(c)); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	q := `UPDATE courses SET ` + namedSet(courseColumns) + ` WHERE id = :id`
	res, err := namedExec(ctx, repo.getExec(exec), q, toCourseRow(c))
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return c, nil
}

func (repo courseRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return course.ErrNotFound
	}
	if _, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	if !validID(id) {
		return course.Course{}, course.ErrNotFound
	}
	var row courseRow
	q := `SELECT ` + strings.Join(courseColumns, ", ") + ` FROM courses WHERE id = $1`
	if err := repo.getExec(exec).GetContext(ctx, &row, q, id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "finding course")
	}
	return row.course(), nil
}

func courseFilter(w *where, filter *course.QueryFilter) {
	if filter == nil {
		return
	}
	if filter.Search != "" {
		w.add("(c.title ILIKE ? OR c.description ILIKE ?)", likePattern(filter.Search))
	}
	if filter.Difficulty != "" {
		w.add("c.difficulty = ?", filter.Difficulty)
	}
	if filter.Category != "" {
		w.add("lower(c.category) = lower(?)", filter.Category)
	}
}

func (repo courseRepository) QueryCatalog(ctx context.Context, filter *course.QueryFilter, exec ...core.DBExecutor) ([]course.CatalogCourse, error) {
	var w where
	w.add("c.status = ?", course.StatusPublished)
	courseFilter(&w, filter)

	q := `SELECT ` + columns("c", courseColumns) + `,
			(SELECT count(*) FROM modules m WHERE m.course_id = c.id) AS module_count,
			(SELECT count(*) FROM lessons l JOIN modules m ON m.id = l.module_id WHERE m.course_id = c.id) AS lesson_count
		FROM courses c` + w.String() + ` ORDER BY c.created_at DESC`

	var rows []catalogRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying catalog")
	}
	courses := make([]course.CatalogCourse, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, course.CatalogCourse{
			Course:      row.course(),
			ModuleCount: row.ModuleCount,
			LessonCount: row.LessonCount,
		})
	}
	return courses, nil
}

func (repo courseRepository) QueryAdminCourses(ctx context.Context, filter *course.QueryFilter, exec ...core.DBExecutor) ([]course.AdminCourse, error) {
	var w where
	courseFilter(&w, filter)
	if filter != nil && filter.Status != "" {
		w.add("c.status = ?", filter.Status)
	}

	q := `SELECT ` + columns("c", courseColumns) + `,
			(SELECT count(*) FROM enrollments e WHERE e.course_id = c.id) AS student_count
		FROM courses c` + w.String() + ` ORDER BY c.updated_at DESC`

	var rows []adminCourseRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.AdminCourse, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, course.AdminCourse{Course: row.course(), StudentCount: row.StudentCount})
	}
	return courses, nil
}

func (repo courseRepository) QueryModules(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Module, error) {
	if !validID(courseID) {
		return []course.Module{}, nil
	}
	exe := repo.getExec(exec)

	var mRows []moduleRow
	q := `SELECT ` + strings.Join(moduleColumns, ", ") + ` FROM modules WHERE course_id = $1 ORDER BY order_index, created_at`
	if err := exe.SelectContext(ctx, &mRows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying modules")
	}

	var lRows []lessonRow
	q = `SELECT ` + columns("l", lessonColumns) + `, m.course_id
		FROM lessons l JOIN modules m ON m.id = l.module_id
		WHERE m.course_id = $1
		ORDER BY l.order_index, l.created_at`
	if err := exe.SelectContext(ctx, &lRows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}

	modules := make([]course.Module, 0, len(mRows))
	idx := make(map[string]int, len(mRows))
	for i, row := range mRows {
		modules = append(modules, row.module())
		idx[row.ID] = i
	}
	for _, row := range lRows {
		l, err := row.lesson()
		if err != nil {
			return nil, err
		}
		if i, ok := idx[l.ModuleID]; ok {
			modules[i].Lessons = append(modules[i].Lessons, l)
		}
	}
	return modules, nil
}

func (repo courseRepository) GetModule(ctx context.Context, id string, exec ...core.DBExecutor) (course.Module, error) {
	if !validID(id) {
		return course.Module{}, course.ErrModuleNotFound
	}
	var row moduleRow
	q := `SELECT ` + strings.Join(moduleColumns, ", ") + ` FROM modules WHERE id = $1`
	if err := repo.getExec(exec).GetContext(ctx, &row, q, id); err != nil {
		return course.Module{}, trapNoRowsErr(err, course.ErrModuleNotFound, "finding module")
	}
	return row.module(), nil
}

func (repo courseRepository) CreateModule(ctx context.Context, m course.Module, exec ...core.DBExecutor) (course.Module, error) {
	m.ID = uuid.New().String()
	row := moduleRow{ID: m.ID, CourseID: m.CourseID, Title: m.Title, OrderIndex: m.OrderIndex, CreatedAt: m.CreatedAt.UTC()}
	q := `INSERT INTO modules (` + strings.Join(moduleColumns, ", ") + `) VALUES (` + namedValues(moduleColumns) + `)`
	if _, err := namedExec(ctx, repo.getExec(exec), q, row); err != nil {
		return course.Module{}, errors.Wrap(err, "inserting module")
	}
	return row.module(), nil
}

func (repo courseRepository) UpdateModule(ctx context.Context, m course.Module, exec ...core.DBExecutor) (course.Module, error) {
	row := moduleRow{ID: m.ID, CourseID: m.CourseID, Title: m.Title, OrderIndex: m.OrderIndex, CreatedAt: m.CreatedAt.UTC()}
	q := `UPDATE modules SET title = :title, order_index = :order_index WHERE id = :id`
	res, err := namedExec(ctx, repo.getExec(exec), q, row)
	if err != nil {
		return course.Module{}, errors.Wrap(err, "updating module")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return course.Module{}, course.ErrModuleNotFound
	}
	return row.module(), nil
}

func (repo courseRepository) DeleteModules(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if _, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM modules WHERE id = ANY($1::uuid[])`, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting modules")
	}
	return nil
}

func (repo courseRepository) GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (course.Lesson, error) {
	if !validID(id) {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	var row lessonRow
	q := `SELECT ` + columns("l", lessonColumns) + `, m.course_id
		FROM lessons l JOIN modules m ON m.id = l.module_id
		WHERE l.id = $1`
	if err := repo.getExec(exec).GetContext(ctx, &row, q, id); err != nil {
		return course.Lesson{}, trapNoRowsErr(err, course.ErrLessonNotFound, "finding lesson")
	}
	return row.lesson()
}

func (repo courseRepository) CreateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	l.ID = uuid.New().String()
	row, err := toLessonRow(l)
	if err != nil {
		return course.Lesson{}, err
	}
	q := `INSERT INTO lessons (` + strings.Join(lessonColumns, ", ") + `) VALUES (` + namedValues(lessonColumns) + `)`
	if _, err = namedExec(ctx, repo.getExec(exec), q, row); err != nil {
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return l, nil
}

func (repo courseRepository) UpdateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	row, err := toLessonRow(l)
	if err != nil {
		return course.Lesson{}, err
	}
	q := `UPDATE lessons SET ` + namedSet(lessonColumns) + ` WHERE id = :id`
	res, err := namedExec(ctx, repo.getExec(exec), q, row)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	return l, nil
}

func (repo courseRepository) DeleteLessons(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if _, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM lessons WHERE id = ANY($1::uuid[])`, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting lessons")
	}
	return nil
}
