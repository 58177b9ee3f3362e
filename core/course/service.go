package course

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cornelabs/lms/core"
)

var (
	// errors
	ErrNotFound       = core.NotFoundError{Resource: "course"}
	ErrModuleNotFound = core.NotFoundError{Resource: "module"}
	ErrLessonNotFound = core.NotFoundError{Resource: "lesson"}
	ErrInvalidOrder   = errors.New("ids must list every item exactly once")
	ErrNotAnImage     = errors.New("file must be an image")
	ErrNotAVideo      = errors.New("file must be a video")
)

// sniffLen is the number of bytes read to detect the content type of an upload.
const sniffLen = 3072

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		UpdateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		// QueryCatalog returns published courses, newest first.
		QueryCatalog(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]CatalogCourse, error)
		// QueryAdminCourses returns all courses, last updated first.
		QueryAdminCourses(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]AdminCourse, error)

		// QueryModules returns the modules of a course with their lessons, both sorted by order_index.
		QueryModules(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Module, error)
		GetModule(ctx context.Context, id string, exec ...core.DBExecutor) (Module, error)
		CreateModule(ctx context.Context, m Module, exec ...core.DBExecutor) (Module, error)
		UpdateModule(ctx context.Context, m Module, exec ...core.DBExecutor) (Module, error)
		DeleteModules(ctx context.Context, ids []string, exec ...core.DBExecutor) error

		// GetLesson also sets Lesson.CourseID.
		GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (Lesson, error)
		CreateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		UpdateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		DeleteLessons(ctx context.Context, ids []string, exec ...core.DBExecutor) error
	}

	Service interface {
		ListCatalog(ctx context.Context, filter *QueryFilter) ([]CatalogCourse, error)
		GetCatalogCourse(ctx context.Context, id string) (CourseWithContent, error)
		ListAdmin(ctx context.Context, filter *QueryFilter) ([]AdminCourse, error)
		Get(ctx context.Context, id string) (Course, error)
		GetWithContent(ctx context.Context, id string) (CourseWithContent, error)
		Create(ctx context.Context, authorID string, nc NewCourse) (Course, error)
		Update(ctx context.Context, id string, uc UpdateCourse) (Course, error)
		Publish(ctx context.Context, id string) (Course, error)
		Unpublish(ctx context.Context, id string) (Course, error)
		Delete(ctx context.Context, id string) error

		CreateModule(ctx context.Context, courseID string, mi ModuleInput) (Module, error)
		UpdateModule(ctx context.Context, id string, mi ModuleInput) (Module, error)
		DeleteModule(ctx context.Context, id string) error
		ReorderModules(ctx context.Context, courseID string, ids []string) ([]Module, error)

		GetLesson(ctx context.Context, id string) (Lesson, error)
		CreateLesson(ctx context.Context, moduleID string, li LessonInput) (Lesson, error)
		UpdateLesson(ctx context.Context, id string, li LessonInput) (Lesson, error)
		DeleteLesson(ctx context.Context, id string) error
		ReorderLessons(ctx context.Context, moduleID string, ids []string) ([]Lesson, error)

		SaveOutline(ctx context.Context, courseID string, o Outline) (CourseWithContent, error)

		UploadThumbnail(ctx context.Context, courseID, filename string, r io.Reader) (Course, error)
		UploadVideo(ctx context.Context, courseID, filename string, r io.Reader) (string, error)
	}

	service struct {
		db      core.DBTransactor
		repo    Repository
		storage core.FileStorage
		logger  core.Logger
	}
)

var (
	_ Service = (*service)(nil)

	nowFunc = time.Now // mockable
)

func NewService(db core.DBTransactor, repo Repository, storage core.FileStorage, logger core.Logger) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(storage, "storage"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()
	return &service{db: db, repo: repo, storage: storage, logger: logger}
}

func now() time.Time { return nowFunc().UTC() }

func (svc *service) ListCatalog(ctx context.Context, filter *QueryFilter) ([]CatalogCourse, error) {
	return svc.repo.QueryCatalog(ctx, filter)
}

func (svc *service) GetCatalogCourse(ctx context.Context, id string) (CourseWithContent, error) {
	cwc, err := svc.GetWithContent(ctx, id)
	if err != nil {
		return CourseWithContent{}, err
	}
	if !cwc.IsPublished() {
		return CourseWithContent{}, ErrNotFound
	}
	return cwc.Outline(), nil
}

func (svc *service) ListAdmin(ctx context.Context, filter *QueryFilter) ([]AdminCourse, error) {
	return svc.repo.QueryAdminCourses(ctx, filter)
}

func (svc *service) Get(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *service) GetWithContent(ctx context.Context, id string) (CourseWithContent, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return CourseWithContent{}, err
	}
	modules, err := svc.repo.QueryModules(ctx, id)
	if err != nil {
		return CourseWithContent{}, errors.Wrap(err, "querying modules")
	}
	if modules == nil {
		modules = []Module{}
	}
	return CourseWithContent{Course: c, Modules: modules}, nil
}

func (svc *service) Create(ctx context.Context, authorID string, nc NewCourse) (Course, error) {
	ts := now()
	return svc.repo.CreateCourse(ctx, Course{
		Title:           nc.Title,
		Description:     nc.Description,
		ThumbnailURL:    nc.ThumbnailURL,
		Difficulty:      nc.Difficulty,
		Category:        nc.Category,
		Status:          StatusDraft,
		DurationMinutes: nc.DurationMinutes,
		CreatedBy:       authorID,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	})
}

func (svc *service) Update(ctx context.Context, id string, uc UpdateCourse) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	c = uc.apply(c)
	c.UpdatedAt = now()
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *service) Publish(ctx context.Context, id string) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if c.IsPublished() {
		return c, nil
	}
	ts := now()
	c.Status = StatusPublished
	if c.PublishedAt == nil {
		c.PublishedAt = &ts
	}
	c.UpdatedAt = ts
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *service) Unpublish(ctx context.Context, id string) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if !c.IsPublished() {
		return c, nil
	}
	c.Status = StatusDraft
	c.UpdatedAt = now()
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetCourse(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteCourse(ctx, id)
}

// touch bumps the course updated_at after its content changed.
func (svc *service) touch(ctx context.Context, courseID string, exec ...core.DBExecutor) error {
	c, err := svc.repo.GetCourse(ctx, courseID, exec...)
	if err != nil {
		return err
	}
	c.UpdatedAt = now()
	_, err = svc.repo.UpdateCourse(ctx, c, exec...)
	return err
}

func nextOrderIndex(n int, last func(i int) int) int {
	if n == 0 {
		return 0
	}
	return last(n-1) + 1
}

func (svc *service) CreateModule(ctx context.Context, courseID string, mi ModuleInput) (Module, error) {
	var m Module
	err := svc.db.Transact(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetCourse(ctx, courseID, exec); err != nil {
			return err
		}
		modules, err := svc.repo.QueryModules(ctx, courseID, exec)
		if err != nil {
			return errors.Wrap(err, "querying modules")
		}
		m, err = svc.repo.CreateModule(ctx, Module{
			CourseID:   courseID,
			Title:      mi.Title,
			OrderIndex: nextOrderIndex(len(modules), func(i int) int { return modules[i].OrderIndex }),
			CreatedAt:  now(),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating module")
		}
		return svc.touch(ctx, courseID, exec)
	})
	if err != nil {
		return Module{}, err
	}
	m.Lessons = []Lesson{}
	return m, nil
}

func (svc *service) UpdateModule(ctx context.Context, id string, mi ModuleInput) (Module, error) {
	m, err := svc.repo.GetModule(ctx, id)
	if err != nil {
		return Module{}, err
	}
	m.Title = mi.Title
	if m, err = svc.repo.UpdateModule(ctx, m); err != nil {
		return Module{}, errors.Wrap(err, "updating module")
	}
	if err = svc.touch(ctx, m.CourseID); err != nil {
		return Module{}, err
	}
	return m, nil
}

func (svc *service) DeleteModule(ctx context.Context, id string) error {
	return svc.db.Transact(ctx, func(exec core.DBExecutor) error {
		m, err := svc.repo.GetModule(ctx, id, exec)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteModules(ctx, []string{id}, exec); err != nil {
			return errors.Wrap(err, "deleting module")
		}
		return svc.touch(ctx, m.CourseID, exec)
	})
}

// checkPermutation verifies that ids lists every one of existing exactly once.
func checkPermutation(ids, existing []string) error {
	if len(ids) != len(existing) {
		return core.NewValidationError(ErrInvalidOrder, core.FieldError{Field: "ids", Error: ErrInvalidOrder.Error()})
	}
	seen := make(map[string]bool, len(existing))
	for _, id := range existing {
		seen[id] = false
	}
	for _, id := range ids {
		done, ok := seen[id]
		if !ok || done {
			return core.NewValidationError(ErrInvalidOrder, core.FieldError{Field: "ids", Error: ErrInvalidOrder.Error()})
		}
		seen[id] = true
	}
	return nil
}

func (svc *service) ReorderModules(ctx context.Context, courseID string, ids []string) ([]Module, error) {
	var modules []Module
	err := svc.db.Transact(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetCourse(ctx, courseID, exec); err != nil {
			return err
		}
		current, err := svc.repo.QueryModules(ctx, courseID, exec)
		if err != nil {
			return errors.Wrap(err, "querying modules")
		}
		existing := make([]string, 0, len(current))
		byID := make(map[string]Module, len(current))
		for _, m := range current {
			existing = append(existing, m.ID)
			byID[m.ID] = m
		}
		if err = checkPermutation(ids, existing); err != nil {
			return err
		}

		modules = make([]Module, 0, len(ids))
		for idx, id := range ids {
			m := byID[id]
			if m.OrderIndex != idx {
				m.OrderIndex = idx
				lessons := m.Lessons
				if m, err = svc.repo.UpdateModule(ctx, m, exec); err != nil {
					return errors.Wrap(err, "updating module")
				}
				m.Lessons = lessons
			}
			modules = append(modules, m)
		}
		return svc.touch(ctx, courseID, exec)
	})
	if err != nil {
		return nil, err
	}
	return modules, nil
}

func (svc *service) GetLesson(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

func (svc *service) CreateLesson(ctx context.Context, moduleID string, li LessonInput) (Lesson, error) {
	var l Lesson
	err := svc.db.Transact(ctx, func(exec core.DBExecutor) error {
		m, err := svc.repo.GetModule(ctx, moduleID, exec)
		if err != nil {
			return err
		}
		modules, err := svc.repo.QueryModules(ctx, m.CourseID, exec)
		if err != nil {
			return errors.Wrap(err, "querying modules")
		}
		var lessons []Lesson
		for _, mod := range modules {
			if mod.ID == moduleID {
				lessons = mod.Lessons
			}
		}

		l = li.apply(Lesson{
			ModuleID:   moduleID,
			CourseID:   m.CourseID,
			OrderIndex: nextOrderIndex(len(lessons), func(i int) int { return lessons[i].OrderIndex }),
			CreatedAt:  now(),
		})
		if l, err = svc.repo.CreateLesson(ctx, l, exec); err != nil {
			return errors.Wrap(err, "creating lesson")
		}
		return svc.touch(ctx, m.CourseID, exec)
	})
	if err != nil {
		return Lesson{}, err
	}
	return l, nil
}

func (svc *service) UpdateLesson(ctx context.Context, id string, li LessonInput) (Lesson, error) {
	l, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	courseID := l.CourseID
	if l, err = svc.repo.UpdateLesson(ctx, li.apply(l)); err != nil {
		return Lesson{}, errors.Wrap(err, "updating lesson")
	}
	l.CourseID = courseID
	if err = svc.touch(ctx, courseID); err != nil {
		return Lesson{}, err
	}
	return l, nil
}

func (svc *service) DeleteLesson(ctx context.Context, id string) error {
	return svc.db.Transact(ctx, func(exec core.DBExecutor) error {
		l, err := svc.repo.GetLesson(ctx, id, exec)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteLessons(ctx, []string{id}, exec); err != nil {
			return errors.Wrap(err, "deleting lesson")
		}
		return svc.touch(ctx, l.CourseID, exec)
	})
}

func (svc *service) ReorderLessons(ctx context.Context, moduleID string, ids []string) ([]Lesson, error) {
	var lessons []Lesson
	err := svc.db.Transact(ctx, func(exec core.DBExecutor) error {
		m, err := svc.repo.GetModule(ctx, moduleID, exec)
		if err != nil {
			return err
		}
		modules, err := svc.repo.QueryModules(ctx, m.CourseID, exec)
		if err != nil {
			return errors.Wrap(err, "querying modules")
		}
		var current []Lesson
		for _, mod := range modules {
			if mod.ID == moduleID {
				current = mod.Lessons
			}
		}
		existing := make([]string, 0, len(current))
		byID := make(map[string]Lesson, len(current))
		for _, l := range current {
			existing = append(existing, l.ID)
			byID[l.ID] = l
		}
		if err = checkPermutation(ids, existing); err != nil {
			return err
		}

		lessons = make([]Lesson, 0, len(ids))
		for idx, id := range ids {
			l := byID[id]
			if l.OrderIndex != idx {
				l.OrderIndex = idx
				if l, err = svc.repo.UpdateLesson(ctx, l, exec); err != nil {
					return errors.Wrap(err, "updating lesson")
				}
			}
			lessons = append(lessons, l)
		}
		return svc.touch(ctx, m.CourseID, exec)
	})
	if err != nil {
		return nil, err
	}
	return lessons, nil
}

// SaveOutline replaces the module/lesson tree of a course at once. Items carrying the id of an
// existing module or lesson of the course are updated in place (keeping students' progress),
// items without a known id are created and existing items missing from o are deleted.
func (svc *service) SaveOutline(ctx context.Context, courseID string, o Outline) (CourseWithContent, error) {
	err := svc.db.Transact(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetCourse(ctx, courseID, exec); err != nil {
			return err
		}
		current, err := svc.repo.QueryModules(ctx, courseID, exec)
		if err != nil {
			return errors.Wrap(err, "querying modules")
		}
		oldModules := make(map[string]Module, len(current))
		oldLessons := make(map[string]Lesson)
		for _, m := range current {
			oldModules[m.ID] = m
			for _, l := range m.Lessons {
				oldLessons[l.ID] = l
			}
		}
		keptModules := make(map[string]bool, len(o.Modules))
		keptLessons := make(map[string]bool)
		ts := now()

		for mIdx, om := range o.Modules {
			m, exists := oldModules[om.ID]
			if exists && !keptModules[om.ID] {
				m.Title = om.Title
				m.OrderIndex = mIdx
				if m, err = svc.repo.UpdateModule(ctx, m, exec); err != nil {
					return errors.Wrap(err, "updating module")
				}
			} else {
				m, err = svc.repo.CreateModule(ctx, Module{CourseID: courseID, Title: om.Title, OrderIndex: mIdx, CreatedAt: ts}, exec)
				if err != nil {
					return errors.Wrap(err, "creating module")
				}
			}
			keptModules[m.ID] = true

			for lIdx, li := range om.Lessons {
				l, exists := oldLessons[li.ID]
				if exists && !keptLessons[li.ID] {
					l = li.apply(l)
					l.ModuleID = m.ID
					l.OrderIndex = lIdx
					if l, err = svc.repo.UpdateLesson(ctx, l, exec); err != nil {
						return errors.Wrap(err, "updating lesson")
					}
				} else {
					l = li.apply(Lesson{ModuleID: m.ID, CourseID: courseID, OrderIndex: lIdx, CreatedAt: ts})
					if l, err = svc.repo.CreateLesson(ctx, l, exec); err != nil {
						return errors.Wrap(err, "creating lesson")
					}
				}
				keptLessons[l.ID] = true
			}
		}

		var staleLessons, staleModules []string
		for id, l := range oldLessons {
			if !keptLessons[id] && keptModules[l.ModuleID] {
				staleLessons = append(staleLessons, id)
			}
		}
		for id := range oldModules {
			if !keptModules[id] {
				staleModules = append(staleModules, id)
			}
		}
		if len(staleLessons) > 0 {
			if err = svc.repo.DeleteLessons(ctx, staleLessons, exec); err != nil {
				return errors.Wrap(err, "deleting lessons")
			}
		}
		if len(staleModules) > 0 {
			// lessons moved out of a stale module were updated above, the rest cascade
			if err = svc.repo.DeleteModules(ctx, staleModules, exec); err != nil {
				return errors.Wrap(err, "deleting modules")
			}
		}
		return svc.touch(ctx, courseID, exec)
	})
	if err != nil {
		return CourseWithContent{}, err
	}
	return svc.GetWithContent(ctx, courseID)
}

// detectContentType sniffs the head of r. The returned reader replays the sniffed bytes.
func detectContentType(r io.Reader) (*mimetype.MIME, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, nil, err
	}
	head = head[:n]
	return mimetype.Detect(head), io.MultiReader(bytes.NewReader(head), r), nil
}

func (svc *service) upload(ctx context.Context, bucket, courseID, filename, wantType string, wantErr error, r io.Reader) (string, error) {
	mtype, body, err := detectContentType(r)
	if err != nil {
		return "", errors.Wrap(err, "reading upload")
	}
	if !strings.HasPrefix(mtype.String(), wantType+"/") {
		return "", core.NewValidationError(wantErr, core.FieldError{Field: "file", Error: wantErr.Error()})
	}
	key := objectKey(courseID, filename, now().UnixMilli())
	url, err := svc.storage.Upload(ctx, bucket, key, body, mtype.String())
	if err != nil {
		return "", errors.Wrapf(err, "uploading %s", key)
	}
	return url, nil
}

func (svc *service) UploadThumbnail(ctx context.Context, courseID, filename string, r io.Reader) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	url, err := svc.upload(ctx, core.BucketThumbnails, courseID, filename, "image", ErrNotAnImage, r)
	if err != nil {
		return Course{}, err
	}
	oldURL := c.ThumbnailURL
	c.ThumbnailURL = url
	c.UpdatedAt = now()
	if c, err = svc.repo.UpdateCourse(ctx, c); err != nil {
		return Course{}, err
	}

	// the replaced file is only removed when it was uploaded here
	if key, ok := svc.storage.ObjectKey(core.BucketThumbnails, oldURL); ok && oldURL != url {
		if err = svc.storage.Delete(ctx, core.BucketThumbnails, key); err != nil {
			svc.logger.Warn("deleting replaced thumbnail: "+err.Error(), err)
		}
	}
	return c, nil
}

func (svc *service) UploadVideo(ctx context.Context, courseID, filename string, r io.Reader) (string, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return "", err
	}
	return svc.upload(ctx, core.BucketVideos, courseID, filename, "video", ErrNotAVideo, r)
}
