package sqlxrepos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/progress"
)

var progressColumns = []string{
	"id", "user_id", "lesson_id", "completed", "watch_time_seconds", "last_watched_at",
	"quiz_answers", "assignment_submission", "score", "completed_at",
}

type progressRow struct {
	ID                   string      `db:"id"`
	UserID               string      `db:"user_id"`
	LessonID             string      `db:"lesson_id"`
	Completed            bool        `db:"completed"`
	WatchTimeSeconds     int         `db:"watch_time_seconds"`
	LastWatchedAt        time.Time   `db:"last_watched_at"`
	QuizAnswers          null.JSON   `db:"quiz_answers"`
	AssignmentSubmission null.String `db:"assignment_submission"`
	Score                null.Int    `db:"score"`
	CompletedAt          null.Time   `db:"completed_at"`
}

func toProgressRow(p progress.Progress) (progressRow, error) {
	var answers null.JSON
	if p.QuizAnswers != nil {
		data, err := json.Marshal(p.QuizAnswers)
		if err != nil {
			return progressRow{}, errors.Wrap(err, "encoding quiz_answers")
		}
		answers = null.JSONFrom(data)
	}
	return progressRow{
		ID:                   p.ID,
		UserID:               p.UserID,
		LessonID:             p.LessonID,
		Completed:            p.Completed,
		WatchTimeSeconds:     p.WatchTimeSeconds,
		LastWatchedAt:        p.LastWatchedAt.UTC(),
		QuizAnswers:          answers,
		AssignmentSubmission: nullString(p.AssignmentSubmission),
		Score:                null.IntFromPtr(p.Score),
		CompletedAt:          null.TimeFromPtr(p.CompletedAt),
	}, nil
}

func (row progressRow) progress() (progress.Progress, error) {
	p := progress.Progress{
		ID:                   row.ID,
		UserID:               row.UserID,
		LessonID:             row.LessonID,
		Completed:            row.Completed,
		WatchTimeSeconds:     row.WatchTimeSeconds,
		LastWatchedAt:        row.LastWatchedAt.UTC(),
		AssignmentSubmission: row.AssignmentSubmission.String,
		Score:                row.Score.Ptr(),
	}
	if row.QuizAnswers.Valid {
		if err := row.QuizAnswers.Unmarshal(&p.QuizAnswers); err != nil {
			return progress.Progress{}, errors.Wrapf(err, "decoding quiz_answers of progress %s", row.ID)
		}
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time.UTC()
		p.CompletedAt = &t
	}
	return p, nil
}

type progressRepository struct {
	repository
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(exec core.DBExecutor) *progressRepository {
	return &progressRepository{repository{exec: exec}}
}

func (repo progressRepository) GetProgress(ctx context.Context, userID, lessonID string, exec ...core.DBExecutor) (progress.Progress, error) {
	if !validID(userID) || !validID(lessonID) {
		return progress.Progress{}, progress.ErrNotFound
	}
	var row progressRow
	q := `SELECT ` + strings.Join(progressColumns, ", ") + ` FROM progress WHERE user_id = $1 AND lesson_id = $2`
	if err := repo.getExec(exec).GetContext(ctx, &row, q, userID, lessonID); err != nil {
		return progress.Progress{}, trapNoRowsErr(err, progress.ErrNotFound, "finding progress")
	}
	return row.progress()
}

func (repo progressRepository) UpsertProgress(ctx context.Context, p progress.Progress, exec ...core.DBExecutor) (progress.Progress, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	row, err := toProgressRow(p)
	if err != nil {
		return progress.Progress{}, err
	}

	set := make([]string, 0, len(progressColumns))
	for _, c := range progressColumns {
		if c != "id" && c != "user_id" && c != "lesson_id" {
			set = append(set, c+" = EXCLUDED."+c)
		}
	}
	q := `INSERT INTO progress (` + strings.Join(progressColumns, ", ") + `) VALUES (` + namedValues(progressColumns) + `)
		ON CONFLICT ON CONSTRAINT progress_user_lesson_key DO UPDATE SET ` + strings.Join(set, ", ") + `
		RETURNING ` + strings.Join(progressColumns, ", ")

	rows, err := sqlx.NamedQueryContext(ctx, repo.getExec(exec), q, row)
	if err != nil {
		return progress.Progress{}, errors.Wrap(err, "upserting progress")
	}
	defer func() { _ = rows.Close() }()

	var saved progressRow
	if rows.Next() {
		if err = rows.StructScan(&saved); err != nil {
			return progress.Progress{}, errors.Wrap(err, "scanning progress")
		}
	}
	if err = rows.Err(); err != nil {
		return progress.Progress{}, errors.Wrap(err, "upserting progress")
	}
	return saved.progress()
}

func (repo progressRepository) QueryCourseProgress(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) ([]progress.Progress, error) {
	if !validID(userID) || !validID(courseID) {
		return []progress.Progress{}, nil
	}
	q := `SELECT ` + columns("p", progressColumns) + `
		FROM progress p
		JOIN lessons l ON l.id = p.lesson_id
		JOIN modules m ON m.id = l.module_id
		WHERE p.user_id = $1 AND m.course_id = $2`

	var rows []progressRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, q, userID, courseID); err != nil {
		return nil, errors.Wrap(err, "querying course progress")
	}
	res := make([]progress.Progress, 0, len(rows))
	for _, row := range rows {
		p, err := row.progress()
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}
