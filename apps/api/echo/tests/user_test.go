package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/cornelabs/lms/apps/api/echo"
	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/enrollment"
	"github.com/cornelabs/lms/core/user"
	"github.com/cornelabs/lms/tests"
)

func Test_userApi_signup(t *testing.T) {
	srv := setup(t)
	testutil.CreateUser(t, usrRepo, "Taken", "taken@test.io", testPassword, user.RoleStudent, true)

	body := func(name, email, pwd, confirm string) []byte {
		return marshalObj(t, map[string]string{
			"full_name":        name,
			"email":            email,
			"password":         pwd,
			"password_confirm": confirm,
			"role":             user.RoleAdmin, // ignored
		})
	}

	tests := []httpTest{
		{name: "empty body", body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{
			name: "invalid email", body: body("Ada", "nope", testPassword, testPassword), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{
			name: "short password", body: body("Ada", "ada@test.io", "aB3$x", "aB3$x"), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"password": "password must contain at least 8 characters"}),
		},
		{name: "passwords mismatch", body: body("Ada", "ada@test.io", testPassword, "Xk9#mQ2v!pK"), wantCode: http.StatusBadRequest},
		{
			name: "email taken (case-insensitive)", body: body("Ada", " TAKEN@test.io ", testPassword, testPassword),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/signup"
	}
	runHTTPTests(t, srv, tests)

	t.Run("valid", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/signup", body(" Ada Lovelace ", "Ada@Test.io", testPassword, testPassword))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var res AuthResponse
		decode(t, rec, &res)
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, "Ada Lovelace", res.User.FullName)
		assert.Equal(t, "ada@test.io", res.User.Email)
		assert.Equal(t, user.RoleStudent, res.User.Role)
		assert.True(t, res.User.IsActive)

		// the token authenticates the new user
		req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", res.Token)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_userApi_login(t *testing.T) {
	srv := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Ada", "ada@test.io", testPassword, user.RoleStudent, true)
	testutil.CreateUser(t, usrRepo, "Inactive", "inactive@test.io", testPassword, user.RoleStudent, false)

	body := func(email, pwd string) []byte {
		return marshalObj(t, LoginRequest{Email: email, Password: pwd})
	}
	authFailed := marshalObj(t, httpErr{Error: "authentication failed"})

	tests := []httpTest{
		{name: "missing fields", body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{name: "unknown email", body: body("nobody@test.io", testPassword), wantCode: http.StatusBadRequest, wantData: authFailed},
		{name: "wrong password", body: body("ada@test.io", "wrong-password"), wantCode: http.StatusBadRequest, wantData: authFailed},
		{
			name: "deactivated", body: body("inactive@test.io", testPassword), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/login"
	}
	runHTTPTests(t, srv, tests)

	t.Run("valid", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body(" ADA@test.io", testPassword))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res AuthResponse
		decode(t, rec, &res)
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, usr.ID, res.User.ID)
		assert.False(t, res.User.LastLogin.IsZero())
	})
}

func Test_userApi_rateLimit(t *testing.T) {
	srv := setup(t, func(conf *core.Config) { conf.RateLimit.Requests = 2 })
	body := marshalObj(t, LoginRequest{Email: "nobody@test.io", Password: testPassword})

	for i := 0; i < 2; i++ {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
	srv.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusTooManyRequests,
		wantData: marshalObj(t, httpErr{Error: core.ErrRateLimited.Error()}),
	}, rec)

	// limits are per route
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset", marshalObj(t, PasswordResetRequest{Email: "nobody@test.io"}))
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_me(t *testing.T) {
	srv := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Ada", "ada@test.io", testPassword, user.RoleStudent, true)
	inactive := testutil.CreateUser(t, usrRepo, "Inactive", "inactive@test.io", testPassword, user.RoleStudent, false)
	token := getToken(t, usr)

	tests := []httpTest{
		{name: "auth required", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "invalid token", path: "/v1/users/me", token: "not.a.jwt", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errInvalidToken)},
		{name: "retrieve", path: "/v1/users/me", token: token, wantCode: http.StatusOK, wantData: marshalObj(t, usr)},
		{
			name: "deactivated", path: "/v1/users/me", token: getToken(t, inactive), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "invalid avatar", method: http.MethodPut, path: "/v1/users/me", token: token,
			body: []byte(`{"avatar_url": "not a url"}`), wantCode: http.StatusBadRequest,
		},
	}
	runHTTPTests(t, srv, tests)

	t.Run("update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/me", token, []byte(`{"full_name": " Ada King ", "avatar_url": "https://cdn.test/ada.png"}`))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		got, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
		require.NoError(t, err)
		assert.Equal(t, "Ada King", got.FullName)
		assert.Equal(t, "https://cdn.test/ada.png", got.AvatarURL)
		assert.Equal(t, usr.Email, got.Email)
	})
}

func Test_userApi_changePassword(t *testing.T) {
	srv := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Ada", "ada@test.io", testPassword, user.RoleStudent, true)
	token := getToken(t, usr)
	newPwd := "T7wPz2QnR4sK"

	body := func(current, pwd string) []byte {
		return marshalObj(t, user.ChangePassword{CurrentPassword: current, Password: pwd, PasswordConfirm: pwd})
	}

	tests := []httpTest{
		{name: "auth required", body: body(testPassword, newPwd), wantCode: http.StatusUnauthorized},
		{
			name: "wrong current password", body: body("wrong-password", newPwd), token: token, wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"current_password": "incorrect password"}),
		},
		{
			name: "too common", body: body(testPassword, "password123"), token: token, wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"password": "password is too common"}),
		},
		{
			name: "valid", body: body(testPassword, newPwd), token: token, wantCode: http.StatusOK,
			wantData: marshalObj(t, SuccessResponse{Success: "Password has been changed."}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/me/password"
	}
	runHTTPTests(t, srv, tests)

	got, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword(newPwd))
}

func Test_userApi_passwordReset(t *testing.T) {
	srv := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Ada", "ada@test.io", testPassword, user.RoleStudent, true)
	testutil.CreateUser(t, usrRepo, "Inactive", "inactive@test.io", testPassword, user.RoleStudent, false)
	sent := marshalObj(t, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})

	tests := []httpTest{
		{name: "invalid email", body: []byte(`{"email": "nope"}`), wantCode: http.StatusBadRequest},
		{name: "unknown email", body: []byte(`{"email": "nobody@test.io"}`), wantCode: http.StatusOK, wantData: sent},
		{name: "inactive user", body: []byte(`{"email": "inactive@test.io"}`), wantCode: http.StatusOK, wantData: sent},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/password-reset"
	}
	runHTTPTests(t, srv, tests)
	assert.Empty(t, mailSvc.SentMessages())

	req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", []byte(`{"email": "ADA@test.io"}`))
	srv.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: sent}, rec)

	msgs := mailSvc.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "password_reset", msgs[0].TemplateName)
	assert.Equal(t, usr.Email, msgs[0].To[0].Address)
	assert.Contains(t, msgs[0].TextContent, "/password-reset?uid=")
	data := msgs[0].TemplateData.(map[string]interface{})
	uid, resetToken := data["UID"].(string), data["Token"].(string)
	assert.Equal(t, user.EncodeUID(usr), uid)

	newPwd := "T7wPz2QnR4sK"
	confirm := func(uid, token string) []byte {
		return marshalObj(t, user.ResetUserPassword{UID: uid, Token: token, Password: newPwd, PasswordConfirm: newPwd})
	}
	tests = []httpTest{
		{name: "invalid uid", body: confirm("bm9wZQ", resetToken), wantCode: http.StatusBadRequest},
		{name: "invalid token", body: confirm(uid, "Bad-token"), wantCode: http.StatusBadRequest},
		{
			name: "valid", body: confirm(uid, resetToken), wantCode: http.StatusOK,
			wantData: marshalObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
		},
		// the password changed, so did the token
		{name: "token reused", body: confirm(uid, resetToken), wantCode: http.StatusBadRequest},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/password-reset-confirm"
	}
	runHTTPTests(t, srv, tests)

	req, rec = newRequest(http.MethodPost, "/v1/users/login", marshalObj(t, LoginRequest{Email: usr.Email, Password: newPwd}))
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_refreshToken(t *testing.T) {
	srv := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Ada", "ada@test.io", testPassword, user.RoleStudent, true)

	expired, err := GenerateToken(conf, GetUserClaims(conf, usr, time.Now().Add(-48*time.Hour).Unix()))
	require.NoError(t, err)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized},
		{
			name: "refresh expired", token: expired, wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "refresh has expired"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/token-refresh"
	}
	runHTTPTests(t, srv, tests)

	t.Run("valid", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, usr))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res LoginResponse
		decode(t, rec, &res)
		require.NotEmpty(t, res.Token)

		req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", res.Token)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_userApi_myEnrollments(t *testing.T) {
	srv := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Ada", "ada@test.io", testPassword, user.RoleStudent, true)
	token := getToken(t, usr)

	req, rec := newAuthRequest(http.MethodGet, "/v1/users/me/enrollments", token)
	srv.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshalList(t)}, rec)

	c := testutil.CreateCourse(t, crsRepo, "Go 101", course.StatusPublished)
	m := testutil.CreateModule(t, crsRepo, c.ID, "Basics", 0)
	l1 := testutil.CreateLesson(t, crsRepo, m.ID, "Intro", course.LessonReading, 0)
	testutil.CreateLesson(t, crsRepo, m.ID, "Syntax", course.LessonVideo, 1)
	testutil.CreateLesson(t, crsRepo, m.ID, "Quiz", course.LessonQuiz, 2)
	testutil.Enroll(t, enrRepo, usr.ID, c.ID)
	testutil.CompleteLesson(t, prgRepo, usr.ID, l1.ID)

	req, rec = newAuthRequest(http.MethodGet, "/v1/users/me/enrollments", token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res []enrollment.UserEnrollment
	decode(t, rec, &res)
	require.Len(t, res, 1)
	assert.Equal(t, c.ID, res[0].Course.ID)
	assert.Equal(t, enrollment.StatusActive, res[0].Status)
	assert.Equal(t, 1, res[0].CompletedLessons)
	assert.Equal(t, 3, res[0].TotalLessons)
	assert.Equal(t, 33, res[0].Progress)
}
