package tests

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/cornelabs/lms/apps/api/echo"
	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/enrollment"
	"github.com/cornelabs/lms/core/stats"
	"github.com/cornelabs/lms/core/user"
	"github.com/cornelabs/lms/tests"
)

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90wS\xde")
	mp4Header = []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom\x00\x00\x00\x08free")
)

func createAdmin(t *testing.T) (user.User, string) {
	t.Helper()
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.io", testPassword, user.RoleAdmin, true)
	return admin, getToken(t, admin)
}

func Test_adminApi_access(t *testing.T) {
	srv := setup(t)
	student := testutil.CreateUser(t, usrRepo, "Ada", "ada@test.io", testPassword, user.RoleStudent, true)
	demoted, demotedToken := createAdmin(t)
	demoted.Role = user.RoleStudent
	_, err := usrRepo.UpdateUser(context.Background(), demoted)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "auth required", path: "/v1/admin/stats", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "admin required", path: "/v1/admin/stats", token: getToken(t, student), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "admin demoted since login", path: "/v1/admin/stats", token: demotedToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
	}
	runHTTPTests(t, srv, tests)
}

func Test_adminApi_dashboard(t *testing.T) {
	srv := setup(t)
	_, token := createAdmin(t)
	now := time.Now()

	s1 := testutil.CreateUser(t, usrRepo, "One", "one@test.io", testPassword, user.RoleStudent, true, now.Add(-3*time.Hour))
	s2 := testutil.CreateUser(t, usrRepo, "Two", "two@test.io", testPassword, user.RoleStudent, true, now.Add(-2*time.Hour))
	s3 := testutil.CreateUser(t, usrRepo, "Three", "three@test.io", testPassword, user.RoleStudent, false, now.Add(-time.Hour))
	c1 := testutil.CreateCourse(t, crsRepo, "Go", course.StatusPublished)
	c2 := testutil.CreateCourse(t, crsRepo, "Rust", course.StatusPublished)
	testutil.CreateCourse(t, crsRepo, "Draft", course.StatusDraft)
	testutil.Enroll(t, enrRepo, s1.ID, c1.ID)
	testutil.Enroll(t, enrRepo, s1.ID, c2.ID)
	testutil.Enroll(t, enrRepo, s2.ID, c1.ID)

	req, rec := newAuthRequest(http.MethodGet, "/v1/admin/stats", token)
	srv.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marshalObj(t, stats.AdminStats{TotalStudents: 3, TotalCourses: 3, ActiveCourses: 2, TotalEnrollments: 3}),
	}, rec)

	tests := []struct {
		name    string
		path    string
		wantIDs []string
	}{
		{name: "default limit", path: "/v1/admin/students/recent", wantIDs: []string{s3.ID, s2.ID, s1.ID}},
		{name: "limit", path: "/v1/admin/students/recent?limit=2", wantIDs: []string{s3.ID, s2.ID}},
		{name: "invalid limit", path: "/v1/admin/students/recent?limit=lol", wantIDs: []string{s3.ID, s2.ID, s1.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, token)
			srv.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var res []stats.RecentStudent
			decode(t, rec, &res)
			ids := make([]string, 0, len(res))
			for _, s := range res {
				ids = append(ids, s.ID)
				if s.ID == s1.ID {
					assert.Equal(t, 2, s.EnrolledCount)
				}
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func Test_adminApi_users(t *testing.T) {
	srv := setup(t)
	now := time.Now()
	admin, token := createAdmin(t)
	ada := testutil.CreateUser(t, usrRepo, "Ada Lovelace", "ada@test.io", testPassword, user.RoleStudent, true, now.Add(time.Hour))
	alan := testutil.CreateUser(t, usrRepo, "Alan Turing", "alan@test.io", testPassword, user.RoleStudent, false, now.Add(2*time.Hour))

	tests := []httpTest{
		{name: "search", path: "/v1/admin/users?search=LOVELACE", token: token, wantCode: http.StatusOK, wantData: marshalList(t, ada)},
		{name: "search by email", path: "/v1/admin/users?search=alan@", token: token, wantCode: http.StatusOK, wantData: marshalList(t, alan)},
		{name: "role", path: "/v1/admin/users?role=admin", token: token, wantCode: http.StatusOK, wantData: marshalList(t, admin)},
		{name: "is_active", path: "/v1/admin/users?is_active=false", token: token, wantCode: http.StatusOK, wantData: marshalList(t, alan)},
		{name: "search (unknown)", path: "/v1/admin/users?search=lol", token: token, wantCode: http.StatusOK, wantData: marshalList(t)},
		{name: "newest first by default", path: "/v1/admin/users", token: token, wantCode: http.StatusOK, wantData: marshalList(t, alan, ada, admin)},
		{name: "ordering", path: "/v1/admin/users?ordering=created_at", token: token, wantCode: http.StatusOK, wantData: marshalList(t, admin, ada, alan)},
		{name: "ordering (unknown field)", path: "/v1/admin/users?ordering=password_hash", token: token, wantCode: http.StatusOK, wantData: marshalList(t, alan, ada, admin)},
		{
			name: "set own role", method: http.MethodPut, path: "/v1/admin/users/" + admin.ID + "/role", token: token,
			body: []byte(`{"role": "student"}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"role": user.ErrCannotChangeOwnRole.Error()}),
		},
		{
			name: "set invalid role", method: http.MethodPut, path: "/v1/admin/users/" + ada.ID + "/role", token: token,
			body: []byte(`{"role": "teacher"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "set role of unknown user", method: http.MethodPut, path: "/v1/admin/users/unknown/role", token: token,
			body: []byte(`{"role": "admin"}`), wantCode: http.StatusNotFound,
		},
		{
			name: "set role", method: http.MethodPut, path: "/v1/admin/users/" + ada.ID + "/role", token: token,
			body: []byte(`{"role": " ADMIN "}`), wantCode: http.StatusOK,
		},
	}
	runHTTPTests(t, srv, tests)

	got, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: ada.ID})
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, got.Role)
}

func Test_adminApi_courses(t *testing.T) {
	srv := setup(t)
	admin, token := createAdmin(t)

	tests := []httpTest{
		{name: "blank title", method: http.MethodPost, path: "/v1/admin/courses", body: []byte(`{"title": "   "}`), wantCode: http.StatusBadRequest},
		{
			name: "invalid difficulty", method: http.MethodPost, path: "/v1/admin/courses",
			body: []byte(`{"title": "Go", "difficulty": "expert"}`), wantCode: http.StatusBadRequest,
		},
		{name: "unknown course", path: "/v1/admin/courses/unknown", wantCode: http.StatusNotFound, wantData: marshalObj(t, errNotFound)},
		{name: "publish unknown course", method: http.MethodPost, path: "/v1/admin/courses/unknown/publish", wantCode: http.StatusNotFound},
	}
	for i := range tests {
		tests[i].token = token
	}
	runHTTPTests(t, srv, tests)

	// create
	req, rec := newAuthRequest(http.MethodPost, "/v1/admin/courses", token,
		[]byte(`{"title": " Go in Action ", "description": "Learn Go", "category": "Programming", "duration_minutes": 90}`))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c course.Course
	decode(t, rec, &c)
	assert.Equal(t, "Go in Action", c.Title)
	assert.Equal(t, course.StatusDraft, c.Status)
	assert.Equal(t, course.DifficultyBeginner, c.Difficulty)
	assert.Equal(t, admin.ID, c.CreatedBy)
	assert.Nil(t, c.PublishedAt)

	// drafts are listed in the admin dashboard only
	req, rec = newAuthRequest(http.MethodGet, "/v1/admin/courses?status=draft", token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []course.AdminCourse
	decode(t, rec, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, c.ID, listed[0].ID)

	req, rec = newRequest(http.MethodGet, "/v1/courses")
	srv.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshalList(t)}, rec)

	// update
	req, rec = newAuthRequest(http.MethodPut, "/v1/admin/courses/"+c.ID, token, []byte(`{"difficulty": "Advanced", "category": ""}`))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated course.Course
	decode(t, rec, &updated)
	assert.Equal(t, "Go in Action", updated.Title)
	assert.Equal(t, course.DifficultyAdvanced, updated.Difficulty)
	assert.Empty(t, updated.Category)

	req, rec = newAuthRequest(http.MethodPut, "/v1/admin/courses/"+c.ID, token, []byte(`{"title": "  "}`))
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// publish & unpublish
	req, rec = newAuthRequest(http.MethodPost, "/v1/admin/courses/"+c.ID+"/publish", token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var published course.Course
	decode(t, rec, &published)
	assert.Equal(t, course.StatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)

	req, rec = newRequest(http.MethodGet, "/v1/courses/"+c.ID)
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req, rec = newAuthRequest(http.MethodPost, "/v1/admin/courses/"+c.ID+"/unpublish", token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var unpublished course.Course
	decode(t, rec, &unpublished)
	assert.Equal(t, course.StatusDraft, unpublished.Status)
	require.NotNil(t, unpublished.PublishedAt)
	assert.True(t, published.PublishedAt.Equal(*unpublished.PublishedAt))

	req, rec = newRequest(http.MethodGet, "/v1/courses/"+c.ID)
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// delete
	req, rec = newAuthRequest(http.MethodDelete, "/v1/admin/courses/"+c.ID, token)
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req, rec = newAuthRequest(http.MethodGet, "/v1/admin/courses/"+c.ID, token)
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_adminApi_outline(t *testing.T) {
	srv := setup(t)
	_, token := createAdmin(t)
	c := testutil.CreateCourse(t, crsRepo, "Go", course.StatusDraft)
	path := "/v1/admin/courses/" + c.ID + "/outline"

	invalid := []httpTest{
		{name: "untitled module", body: []byte(`{"modules": [{"title": " "}]}`), wantCode: http.StatusBadRequest},
		{
			name: "invalid lesson", body: []byte(`{"modules": [{"title": "Basics", "lessons": [{"title": "Vid", "type": "video"}]}]}`),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"video_url": "this field is required"}),
		},
		{name: "unknown course", path: "/v1/admin/courses/unknown/outline", body: []byte(`{"modules": []}`), wantCode: http.StatusNotFound},
	}
	for i := range invalid {
		invalid[i].method = http.MethodPut
		invalid[i].token = token
		if invalid[i].path == "" {
			invalid[i].path = path
		}
	}
	runHTTPTests(t, srv, invalid)

	save := func(t *testing.T, body string) course.CourseWithContent {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPut, path, token, []byte(body))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var cwc course.CourseWithContent
		decode(t, rec, &cwc)
		return cwc
	}

	cwc := save(t, `{"modules": [
		{"title": "Basics", "lessons": [
			{"title": "Intro", "type": "reading", "content": "# Hello"},
			{"title": "", "type": "video"},
			{"title": "Talk", "type": "youtube", "youtube_url": "https://youtu.be/dQw4w9WgXcQ", "video_url": "https://cdn.test/x.mp4"}
		]},
		{"title": "Practice", "lessons": [
			{"title": "Check", "type": "quiz", "quiz_data": {"questions": [{"question": "2 + 2 ?", "options": ["3", "4"], "correct_index": 1}]}}
		]}
	]}`)
	require.Len(t, cwc.Modules, 2)
	basics, practice := cwc.Modules[0], cwc.Modules[1]
	require.Len(t, basics.Lessons, 2) // untitled lessons are skipped
	assert.Equal(t, "Intro", basics.Lessons[0].Title)
	assert.Equal(t, 1, basics.Lessons[1].OrderIndex)
	assert.Empty(t, basics.Lessons[1].VideoURL)
	require.Len(t, practice.Lessons, 1)
	quiz := practice.Lessons[0]
	require.NotNil(t, quiz.QuizData)
	assert.Equal(t, course.DefaultPassingScore, quiz.QuizData.PassingScore)
	assert.NotEmpty(t, quiz.QuizData.Questions[0].ID)

	// progress on kept lessons survives later saves
	student := testutil.CreateUser(t, usrRepo, "Ada", "ada@test.io", testPassword, user.RoleStudent, true)
	testutil.CompleteLesson(t, prgRepo, student.ID, quiz.ID)

	cwc = save(t, `{"modules": [
		{"id": "`+practice.ID+`", "title": "Practice!", "lessons": [
			{"id": "`+quiz.ID+`", "title": "Check", "type": "quiz", "quiz_data": {"questions": [{"question": "2 + 2 ?", "options": ["3", "4"], "correct_index": 1}]}},
			{"id": "`+basics.Lessons[0].ID+`", "title": "Intro (moved)", "type": "reading", "content": "# Hello"}
		]}
	]}`)
	require.Len(t, cwc.Modules, 1)
	assert.Equal(t, practice.ID, cwc.Modules[0].ID)
	assert.Equal(t, "Practice!", cwc.Modules[0].Title)
	assert.Equal(t, 0, cwc.Modules[0].OrderIndex)
	require.Len(t, cwc.Modules[0].Lessons, 2)
	assert.Equal(t, quiz.ID, cwc.Modules[0].Lessons[0].ID)
	assert.Equal(t, basics.Lessons[0].ID, cwc.Modules[0].Lessons[1].ID)
	assert.Equal(t, "Intro (moved)", cwc.Modules[0].Lessons[1].Title)

	p, err := prgRepo.GetProgress(context.Background(), student.ID, quiz.ID)
	require.NoError(t, err)
	assert.True(t, p.Completed)

	_, err = crsRepo.GetLesson(context.Background(), basics.Lessons[1].ID)
	assert.True(t, core.IsNotFound(err))
	_, err = crsRepo.GetModule(context.Background(), basics.ID)
	assert.True(t, core.IsNotFound(err))
}

func Test_adminApi_modulesAndLessons(t *testing.T) {
	srv := setup(t)
	_, token := createAdmin(t)
	c := testutil.CreateCourse(t, crsRepo, "Go", course.StatusDraft)

	createModule := func(t *testing.T, title string) course.Module {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPost, "/v1/admin/courses/"+c.ID+"/modules", token, []byte(`{"title": "`+title+`"}`))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var m course.Module
		decode(t, rec, &m)
		return m
	}
	m1, m2 := createModule(t, "One"), createModule(t, "Two")
	assert.Equal(t, 0, m1.OrderIndex)
	assert.Equal(t, 1, m2.OrderIndex)

	createLesson := func(t *testing.T, moduleID, body string) course.Lesson {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPost, "/v1/admin/modules/"+moduleID+"/lessons", token, []byte(body))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var l course.Lesson
		decode(t, rec, &l)
		return l
	}
	l1 := createLesson(t, m1.ID, `{"title": "Watch", "type": "video", "video_url": "https://cdn.test/a.mp4", "duration_seconds": 300}`)
	l2 := createLesson(t, m1.ID, `{"title": "Read", "type": "reading", "content": "Hello"}`)
	assert.Equal(t, 0, l1.OrderIndex)
	assert.Equal(t, 1, l2.OrderIndex)

	tests := []httpTest{
		{name: "module of unknown course", method: http.MethodPost, path: "/v1/admin/courses/unknown/modules", body: []byte(`{"title": "X"}`), wantCode: http.StatusNotFound},
		{name: "untitled module", method: http.MethodPost, path: "/v1/admin/courses/" + c.ID + "/modules", body: []byte(`{"title": ""}`), wantCode: http.StatusBadRequest},
		{
			name: "quiz without questions", method: http.MethodPost, path: "/v1/admin/modules/" + m1.ID + "/lessons",
			body: []byte(`{"title": "Quiz", "type": "quiz"}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"quiz_data": "a quiz must have at least one question"}),
		},
		{
			name: "invalid youtube url", method: http.MethodPost, path: "/v1/admin/modules/" + m1.ID + "/lessons",
			body: []byte(`{"title": "Talk", "type": "youtube", "youtube_url": "https://vimeo.com/1"}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"youtube_url": "must be a valid YouTube video URL"}),
		},
		{name: "lesson of unknown module", method: http.MethodPost, path: "/v1/admin/modules/unknown/lessons", body: []byte(`{"title": "Read", "type": "reading", "content": "x"}`), wantCode: http.StatusNotFound},
		{
			name: "reorder modules (missing id)", method: http.MethodPut, path: "/v1/admin/courses/" + c.ID + "/modules/order",
			body: marshalObj(t, course.Reorder{IDs: []string{m2.ID}}), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"ids": course.ErrInvalidOrder.Error()}),
		},
		{
			name: "reorder modules (duplicate id)", method: http.MethodPut, path: "/v1/admin/courses/" + c.ID + "/modules/order",
			body: marshalObj(t, course.Reorder{IDs: []string{m2.ID, m2.ID}}), wantCode: http.StatusBadRequest,
		},
		{name: "reorder modules (empty)", method: http.MethodPut, path: "/v1/admin/courses/" + c.ID + "/modules/order", body: []byte(`{"ids": []}`), wantCode: http.StatusBadRequest},
		{name: "unknown lesson", path: "/v1/admin/lessons/unknown", wantCode: http.StatusNotFound},
	}
	for i := range tests {
		tests[i].token = token
	}
	runHTTPTests(t, srv, tests)

	// reorder
	req, rec := newAuthRequest(http.MethodPut, "/v1/admin/courses/"+c.ID+"/modules/order", token, marshalObj(t, course.Reorder{IDs: []string{m2.ID, m1.ID}}))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	req, rec = newAuthRequest(http.MethodPut, "/v1/admin/modules/"+m1.ID+"/lessons/order", token, marshalObj(t, course.Reorder{IDs: []string{l2.ID, l1.ID}}))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req, rec = newAuthRequest(http.MethodGet, "/v1/admin/courses/"+c.ID, token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var cwc course.CourseWithContent
	decode(t, rec, &cwc)
	require.Len(t, cwc.Modules, 2)
	assert.Equal(t, m2.ID, cwc.Modules[0].ID)
	assert.Equal(t, m1.ID, cwc.Modules[1].ID)
	require.Len(t, cwc.Modules[1].Lessons, 2)
	assert.Equal(t, l2.ID, cwc.Modules[1].Lessons[0].ID)
	assert.Equal(t, "https://cdn.test/a.mp4", cwc.Modules[1].Lessons[1].VideoURL)

	// update & retrieve
	req, rec = newAuthRequest(http.MethodPut, "/v1/admin/modules/"+m2.ID, token, []byte(`{"title": "Renamed"}`))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req, rec = newAuthRequest(http.MethodPut, "/v1/admin/lessons/"+l2.ID, token, []byte(`{"title": "Read more", "type": "assignment", "assignment_data": {"prompt": "Explain"}}`))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req, rec = newAuthRequest(http.MethodGet, "/v1/admin/lessons/"+l2.ID, token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var l course.Lesson
	decode(t, rec, &l)
	assert.Equal(t, "Read more", l.Title)
	assert.Equal(t, course.LessonAssignment, l.Type)
	require.NotNil(t, l.AssignmentData)
	assert.Equal(t, "Explain", l.AssignmentData.Prompt)
	assert.Equal(t, 0, l.OrderIndex)

	// delete
	req, rec = newAuthRequest(http.MethodDelete, "/v1/admin/lessons/"+l1.ID, token)
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	req, rec = newAuthRequest(http.MethodDelete, "/v1/admin/modules/"+m1.ID, token)
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := crsRepo.GetLesson(context.Background(), l2.ID)
	assert.True(t, core.IsNotFound(err))
	req, rec = newAuthRequest(http.MethodDelete, "/v1/admin/modules/"+m1.ID, token)
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_adminApi_uploads(t *testing.T) {
	srv := setup(t)
	_, token := createAdmin(t)
	c := testutil.CreateCourse(t, crsRepo, "Go", course.StatusDraft)
	thumbPath := "/v1/admin/courses/" + c.ID + "/thumbnail"
	videoPath := "/v1/admin/courses/" + c.ID + "/videos"

	tests := []struct {
		name     string
		path     string
		filename string
		content  []byte
		wantCode int
		wantData []byte
	}{
		{
			name: "not an image", path: thumbPath, filename: "notes.txt", content: []byte("hello world"), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"file": course.ErrNotAnImage.Error()}),
		},
		{
			name: "thumbnail too large", path: thumbPath, filename: "big.png",
			content: append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 1<<20)...), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"file": "file too large (max 1 MB)"}),
		},
		{
			name: "not a video", path: videoPath, filename: "cover.png", content: pngHeader, wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"file": course.ErrNotAVideo.Error()}),
		},
		{name: "unknown course", path: "/v1/admin/courses/unknown/videos", filename: "clip.mp4", content: mp4Header, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newUploadRequest(t, tt.path, token, tt.filename, tt.content)
			srv.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{wantCode: tt.wantCode, wantData: tt.wantData}, rec)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, thumbPath, token, []byte(`{}`))
		srv.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"file": "this field is required"}),
		}, rec)
	})

	t.Run("thumbnail", func(t *testing.T) {
		req, rec := newUploadRequest(t, thumbPath, token, "My Cover.png", pngHeader)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res course.Course
		decode(t, rec, &res)
		assert.True(t, strings.HasPrefix(res.ThumbnailURL, "http://localhost:8000/media/thumbnails/"+c.ID+"/"), res.ThumbnailURL)

		// served by the static media route
		req, rec = newRequest(http.MethodGet, strings.TrimPrefix(res.ThumbnailURL, "http://localhost:8000"))
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, pngHeader, rec.Body.Bytes())
	})

	t.Run("video", func(t *testing.T) {
		req, rec := newUploadRequest(t, videoPath, token, "clip.mp4", mp4Header)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var res URLResponse
		decode(t, rec, &res)
		assert.True(t, strings.HasPrefix(res.URL, "http://localhost:8000/media/course-videos/"+c.ID+"/"), res.URL)
		assert.True(t, strings.HasSuffix(res.URL, ".mp4"), res.URL)
	})
}

func Test_adminApi_enrollments(t *testing.T) {
	srv := setup(t)
	_, token := createAdmin(t)
	c := testutil.CreateCourse(t, crsRepo, "Go", course.StatusDraft)
	m := testutil.CreateModule(t, crsRepo, c.ID, "Basics", 0)
	l1 := testutil.CreateLesson(t, crsRepo, m.ID, "Intro", course.LessonReading, 0)
	testutil.CreateLesson(t, crsRepo, m.ID, "Next", course.LessonReading, 1)
	ada := testutil.CreateUser(t, usrRepo, "Ada", "ada@test.io", testPassword, user.RoleStudent, true)

	tests := []httpTest{
		{name: "students of unknown course", path: "/v1/admin/courses/unknown/students", wantCode: http.StatusNotFound},
		{name: "no students", path: "/v1/admin/courses/" + c.ID + "/students", wantCode: http.StatusOK, wantData: marshalList(t)},
		{name: "invite (invalid email)", method: http.MethodPost, path: "/v1/admin/courses/" + c.ID + "/invite", body: []byte(`{"email": "nope"}`), wantCode: http.StatusBadRequest},
		{name: "invite to unknown course", method: http.MethodPost, path: "/v1/admin/courses/unknown/invite", body: []byte(`{"email": "x@test.io"}`), wantCode: http.StatusNotFound},
	}
	for i := range tests {
		tests[i].token = token
	}
	runHTTPTests(t, srv, tests)

	invite := func(t *testing.T, body string) enrollment.InviteResult {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPost, "/v1/admin/courses/"+c.ID+"/invite", token, []byte(body))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res enrollment.InviteResult
		decode(t, rec, &res)
		return res
	}

	// existing user, draft course
	res := invite(t, `{"email": " ADA@test.io "}`)
	assert.False(t, res.Created)
	assert.Equal(t, ada.ID, res.User.ID)
	assert.Equal(t, "User enrolled successfully!", res.Message)
	msgs := mailSvc.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "invite", msgs[0].TemplateName)
	assert.Contains(t, msgs[0].TextContent, "/learn/"+c.ID)

	// new user
	mailSvc.Reset()
	res = invite(t, `{"email": "grace@test.io", "full_name": "Grace Hopper"}`)
	assert.True(t, res.Created)
	assert.Equal(t, "User created and invited!", res.Message)
	assert.Equal(t, "grace@test.io", res.User.Email)
	assert.Equal(t, "Grace Hopper", res.User.FullName)
	assert.Equal(t, user.RoleStudent, res.User.Role)
	assert.Equal(t, enrollment.StatusActive, res.Enrollment.Status)
	msgs = mailSvc.SentMessages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].TextContent, "/password-reset?")

	// dropped enrollments are reactivated
	e, err := enrRepo.GetEnrollment(context.Background(), ada.ID, c.ID)
	require.NoError(t, err)
	e.Status = enrollment.StatusDropped
	_, err = enrRepo.UpdateEnrollment(context.Background(), e)
	require.NoError(t, err)
	res = invite(t, `{"email": "ada@test.io"}`)
	assert.Equal(t, e.ID, res.Enrollment.ID)
	assert.Equal(t, enrollment.StatusActive, res.Enrollment.Status)

	testutil.CompleteLesson(t, prgRepo, ada.ID, l1.ID)
	req, rec := newAuthRequest(http.MethodGet, "/v1/admin/courses/"+c.ID+"/students", token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var students []enrollment.CourseStudent
	decode(t, rec, &students)
	require.Len(t, students, 2)
	for _, s := range students {
		if s.Student.ID == ada.ID {
			assert.Equal(t, 50, s.Progress)
		} else {
			assert.Equal(t, 0, s.Progress)
		}
	}
}

func Test_adminApi_emails(t *testing.T) {
	srv := setup(t)
	_, token := createAdmin(t)

	tests := []httpTest{
		{name: "invalid email", method: http.MethodPost, path: "/v1/admin/emails/invite", body: []byte(`{"email": "nope", "course_title": "Go"}`), wantCode: http.StatusBadRequest},
		{name: "missing course title", method: http.MethodPost, path: "/v1/admin/emails/invite", body: []byte(`{"email": "x@test.io"}`), wantCode: http.StatusBadRequest},
		{
			name: "valid", method: http.MethodPost, path: "/v1/admin/emails/invite",
			body: []byte(`{"email": "Grace@test.io", "course_title": "Go"}`), wantCode: http.StatusOK,
			wantData: marshalObj(t, SuccessResponse{Success: "Invitation sent to grace@test.io"}),
		},
	}
	for i := range tests {
		tests[i].token = token
	}
	runHTTPTests(t, srv, tests)

	msgs := mailSvc.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "custom_invite", msgs[0].TemplateName)
	assert.Equal(t, "Welcome to LMS — Go", msgs[0].Subject)
	assert.Contains(t, msgs[0].TextContent, "Password: Set your own password")
	assert.Contains(t, msgs[0].TextContent, "http://localhost:3000/login")

	for _, tt := range []struct {
		path    string
		wantLen int
	}{
		{path: "/v1/admin/emails/password", wantLen: 12},
		{path: "/v1/admin/emails/password?length=20", wantLen: 20},
	} {
		req, rec := newAuthRequest(http.MethodGet, tt.path, token)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var res PasswordResponse
		decode(t, rec, &res)
		assert.Len(t, res.Password, tt.wantLen)
	}
}

func Test_adminApi_emailNotConfigured(t *testing.T) {
	srv := setup(t, func(conf *core.Config) {
		conf.TestMode = false
		conf.Debug = false
		conf.SendgridApiKey = ""
	})
	_, token := createAdmin(t)

	req, rec := newAuthRequest(http.MethodPost, "/v1/admin/emails/invite", token, []byte(`{"email": "x@test.io", "course_title": "Go"}`))
	srv.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusServiceUnavailable,
		wantData: marshalObj(t, httpErr{Error: enrollment.ErrEmailNotConfigured.Error()}),
	}, rec)
	assert.Empty(t, mailSvc.SentMessages())
}
