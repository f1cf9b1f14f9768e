package echoapi

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/codedays/core/user"
)

func Test_authApp_login(t *testing.T) {
	app := setup(t)
	app.createUser(t, "alice", user.RoleStudent)

	tests := []struct {
		name         string
		data         url.Values
		wantLocation string
		wantSession  bool
	}{
		{
			name:         "wrong password",
			data:         url.Values{"username": {"alice"}, "password": {"nope-nope-nope"}},
			wantLocation: loginURL,
		},
		{
			name:         "unknown user",
			data:         url.Values{"username": {"bob"}, "password": {testPassword}},
			wantLocation: loginURL,
		},
		{
			name:         "wrong password keeps next",
			data:         url.Values{"username": {"alice"}, "password": {"nope"}, "next": {"/student/notes"}},
			wantLocation: loginURL + "?next=%2Fstudent%2Fnotes",
		},
		{
			name:         "success",
			data:         url.Values{"username": {"alice"}, "password": {testPassword}},
			wantLocation: dashboardURL,
			wantSession:  true,
		},
		{
			name:         "local next",
			data:         url.Values{"username": {"alice"}, "password": {testPassword}, "next": {"/student/notes"}},
			wantLocation: "/student/notes",
			wantSession:  true,
		},
		{
			name:         "foreign next",
			data:         url.Values{"username": {"alice"}, "password": {testPassword}, "next": {"https://evil.test/x"}},
			wantLocation: dashboardURL,
			wantSession:  true,
		},
		{
			name:         "scheme-relative next",
			data:         url.Values{"username": {"alice"}, "password": {testPassword}, "next": {"//evil.test"}},
			wantLocation: dashboardURL,
			wantSession:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := app.client(t)
			rec := c.postForm(loginURL, tt.data)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get(echo.HeaderLocation))
			_, hasSession := c.cookies[sessionCookie]
			assert.Equal(t, tt.wantSession, hasSession)

			if !tt.wantSession {
				page := c.get(tt.wantLocation)
				assert.Contains(t, page.Body.String(), "Invalid username or password")
			}
		})
	}
}

func Test_authApp_loginForm(t *testing.T) {
	app := setup(t)
	app.createUser(t, "alice", user.RoleStudent)

	t.Run("next is kept in the form", func(t *testing.T) {
		rec := app.client(t).get(loginURL + "?next=%2Fstudent%2Fnotes")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `name="next" value="/student/notes"`)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := app.client(t).postForm(loginURL, url.Values{"username": {"alice"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "this field is required")
	})

	t.Run("logged in users go to the dashboard", func(t *testing.T) {
		rec := app.loggedIn(t, "alice").get(loginURL)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, dashboardURL, rec.Header().Get(echo.HeaderLocation))
	})
}

func Test_authApp_rememberMe(t *testing.T) {
	app := setup(t)
	app.createUser(t, "alice", user.RoleStudent)

	c := app.client(t)
	c.postForm(loginURL, url.Values{"username": {"alice"}, "password": {testPassword}})
	require.Contains(t, c.cookies, sessionCookie)
	assert.Zero(t, c.cookies[sessionCookie].MaxAge, "browser-session cookie")
	assert.True(t, c.cookies[sessionCookie].HttpOnly)

	c = app.client(t)
	c.postForm(loginURL, url.Values{"username": {"alice"}, "password": {testPassword}, "remember": {"true"}})
	require.Contains(t, c.cookies, sessionCookie)
	assert.Equal(t, int(app.conf.Server.RememberTTL.Seconds()), c.cookies[sessionCookie].MaxAge)
}

func Test_authApp_logout(t *testing.T) {
	app := setup(t)
	app.createUser(t, "alice", user.RoleStudent)

	c := app.loggedIn(t, "alice")
	stolen := *c.cookies[sessionCookie]
	assert.Equal(t, http.StatusOK, c.get(dashboardURL).Code)

	rec := c.get("/auth/logout")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, loginURL, rec.Header().Get(echo.HeaderLocation))
	assert.NotContains(t, c.cookies, sessionCookie)

	// the revoked token no longer opens a session
	replay := app.client(t)
	replay.cookies[sessionCookie] = &stolen
	rec = replay.get(dashboardURL)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderLocation), loginURL)
}

func Test_authApp_invalidSession(t *testing.T) {
	app := setup(t)
	c := app.client(t)
	c.cookies[sessionCookie] = &http.Cookie{Name: sessionCookie, Value: "not-a-token"}

	rec := c.get(dashboardURL)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.NotContains(t, c.cookies, sessionCookie)
}

func Test_authApp_register(t *testing.T) {
	app := setup(t)
	app.createUser(t, "taken", user.RoleStudent)

	valid := func(uname string) url.Values {
		return url.Values{
			"username":  {uname},
			"email":     {uname + "@test.cd"},
			"password":  {testPassword},
			"password2": {testPassword},
			"role":      {user.RoleStudent},
		}
	}

	tests := []struct {
		name     string
		data     url.Values
		edit     func(v url.Values)
		wantCode int
		wantBody string
	}{
		{name: "duplicate username", data: valid("taken"), edit: func(v url.Values) { v.Set("email", "new@test.cd") },
			wantCode: http.StatusBadRequest, wantBody: "please use a different username"},
		{name: "duplicate email", data: valid("fresh"), edit: func(v url.Values) { v.Set("email", "TAKEN@test.cd") },
			wantCode: http.StatusBadRequest, wantBody: "please use a different email address"},
		{name: "passwords mismatch", data: valid("fresh"), edit: func(v url.Values) { v.Set("password2", "other-Pass!") },
			wantCode: http.StatusBadRequest, wantBody: "passwords must match"},
		{name: "weak password", data: valid("fresh"), edit: func(v url.Values) { v.Set("password", "12345678"); v.Set("password2", "12345678") },
			wantCode: http.StatusBadRequest, wantBody: "password cannot be entirely numeric"},
		{name: "teacher is not offered", data: valid("fresh"), edit: func(v url.Values) { v.Set("role", user.RoleTeacher) },
			wantCode: http.StatusBadRequest, wantBody: "role must be admin or student"},
		{name: "admin without code", data: valid("fresh"), edit: func(v url.Values) { v.Set("role", user.RoleAdmin) },
			wantCode: http.StatusBadRequest, wantBody: "invalid admin code"},
		{name: "student", data: valid("student1"), wantCode: http.StatusFound},
		{name: "admin with code", data: valid("admin1"),
			edit:     func(v url.Values) { v.Set("role", user.RoleAdmin); v.Set("admin_code", "!MADMIN") },
			wantCode: http.StatusFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.edit != nil {
				tt.edit(tt.data)
			}
			c := app.client(t)
			rec := c.postForm(registerURL, tt.data)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusFound {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
				return
			}

			page := c.follow(rec, loginURL)
			assert.Contains(t, page.Body.String(), "Congratulations, you are now a registered user!")
			usr, err := app.repos.Users.GetUserByUsername(context.Background(), tt.data.Get("username"))
			require.NoError(t, err)
			assert.Equal(t, tt.data.Get("role"), usr.Role)
			assert.NoError(t, usr.CheckPassword(testPassword))
		})
	}
}

func Test_authApp_registerWithPicture(t *testing.T) {
	app := setup(t)
	c := app.client(t)

	data := url.Values{
		"username":  {"pic"},
		"email":     {"pic@test.cd"},
		"password":  {testPassword},
		"password2": {testPassword},
		"role":      {user.RoleStudent},
	}

	rec := c.postMultipart(registerURL, data, &formFile{field: "profile_pic", filename: "me.exe", content: "MZ"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "images only")

	rec = c.postMultipart(registerURL, data, &formFile{field: "profile_pic", filename: "../../My Face.PNG", content: "png"})
	assert.Equal(t, http.StatusFound, rec.Code)

	usr, err := app.repos.Users.GetUserByUsername(context.Background(), "pic")
	require.NoError(t, err)
	assert.Regexp(t, `^avatars/[0-9a-f]{8}_My_Face\.PNG$`, usr.ProfilePic)
	assert.Equal(t, "/uploads/"+usr.ProfilePic, usr.AvatarURL())
	_, err = os.Stat(filepath.Join(app.conf.Uploads.Dir, filepath.FromSlash(usr.ProfilePic)))
	assert.NoError(t, err)
}

func Test_authApp_registerFailureDropsPicture(t *testing.T) {
	app := setup(t)
	c := app.client(t)
	avatarsDir := filepath.Join(app.conf.Uploads.Dir, "avatars")

	tests := []struct {
		name     string
		data     url.Values
		wantBody string
	}{
		{
			name: "wrong admin code",
			data: url.Values{
				"username": {"boss"}, "email": {"boss@test.cd"}, "password": {testPassword},
				"password2": {testPassword}, "role": {user.RoleAdmin}, "admin_code": {"guess"},
			},
			wantBody: user.ErrInvalidAdminCode.Error(),
		},
		{
			name: "missing admin code",
			data: url.Values{
				"username": {"boss"}, "email": {"boss@test.cd"}, "password": {testPassword},
				"password2": {testPassword}, "role": {user.RoleAdmin},
			},
			wantBody: user.ErrInvalidAdminCode.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.postMultipart(registerURL, tt.data, &formFile{field: "profile_pic", filename: "boss.png", content: "png"})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)

			entries, err := os.ReadDir(avatarsDir)
			if !os.IsNotExist(err) {
				require.NoError(t, err)
			}
			assert.Empty(t, entries)
			_, err = app.repos.Users.GetUserByUsername(context.Background(), "boss")
			assert.Equal(t, user.ErrNotFound, errors.Cause(err))
		})
	}
}

var resetLinkRegex = regexp.MustCompile(`/auth/reset-password/([A-Za-z0-9_-]+)`)

func Test_authApp_passwordReset(t *testing.T) {
	app := setup(t)
	app.createUser(t, "alice", user.RoleStudent)
	c := app.client(t)

	// unknown emails look the same and send nothing
	rec := c.postForm(forgotPasswordURL, url.Values{"email": {"nobody@test.cd"}})
	page := c.follow(rec, loginURL)
	assert.Contains(t, page.Body.String(), "a password reset link has been sent")
	assert.Empty(t, app.mail.SentMessages())

	rec = c.postForm(forgotPasswordURL, url.Values{"email": {"Alice@Test.cd"}})
	c.follow(rec, loginURL)
	sent := app.mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@test.cd", sent[0].To[0].Address)
	match := resetLinkRegex.FindStringSubmatch(sent[0].TextContent)
	require.Len(t, match, 2)
	resetURL := "/auth/reset-password/" + match[1]

	t.Run("bad token", func(t *testing.T) {
		page := c.follow(c.get("/auth/reset-password/bogus"), forgotPasswordURL)
		assert.Contains(t, page.Body.String(), "invalid or has expired")
	})

	t.Run("form", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, c.get(resetURL).Code)
		rec := c.postForm(resetURL, url.Values{"password": {"brand-New-pass"}, "password2": {"different-pass"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reset", func(t *testing.T) {
		rec := c.postForm(resetURL, url.Values{"password": {"brand-New-pass"}, "password2": {"brand-New-pass"}})
		c.follow(rec, loginURL)

		rec = app.client(t).postForm(loginURL, url.Values{"username": {"alice"}, "password": {"brand-New-pass"}})
		assert.Equal(t, dashboardURL, rec.Header().Get(echo.HeaderLocation))

		// the token is single use
		c.follow(c.get(resetURL), forgotPasswordURL)
	})
}

func Test_authApp_editProfile(t *testing.T) {
	app := setup(t)
	alice := app.createUser(t, "alice", user.RoleStudent)
	app.createUser(t, "bob", user.RoleStudent)
	c := app.loggedIn(t, "alice")

	rec := c.get(editProfileURL)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="alice@test.cd"`)

	tests := []struct {
		name     string
		data     url.Values
		wantBody string
	}{
		{"current password required", url.Values{"username": {"alice"}, "email": {"alice@test.cd"}}, "this field is required"},
		{"wrong current password", url.Values{"username": {"alice"}, "email": {"alice@test.cd"}, "current_password": {"wrong-pass"}},
			"current password is incorrect"},
		{"username taken", url.Values{"username": {"bob"}, "email": {"alice@test.cd"}, "current_password": {testPassword}},
			"please use a different username"},
		{"new passwords mismatch", url.Values{"username": {"alice"}, "email": {"alice@test.cd"}, "current_password": {testPassword},
			"new_password": {"brand-New-pass"}, "confirm_password": {"other"}}, "passwords must match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.postForm(editProfileURL, tt.data)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}

	t.Run("saved", func(t *testing.T) {
		rec := c.postForm(editProfileURL, url.Values{
			"username":         {"alice2"},
			"email":            {"alice@test.cd"},
			"current_password": {testPassword},
			"new_password":     {"brand-New-pass"},
			"confirm_password": {"brand-New-pass"},
		})
		page := c.follow(rec, editProfileURL)
		assert.Contains(t, page.Body.String(), "Your changes have been saved.")

		usr, err := app.repos.Users.GetUserByID(context.Background(), alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice2", usr.Username)
		assert.NoError(t, usr.CheckPassword("brand-New-pass"))
	})
}

func Test_authApp_changeProfilePic(t *testing.T) {
	app := setup(t)
	alice := app.createUser(t, "alice", user.RoleStudent)
	c := app.loggedIn(t, "alice")

	rec := c.postMultipart("/auth/change-profile-pic", url.Values{}, nil)
	page := c.follow(rec, "/auth/change-profile-pic")
	assert.Contains(t, page.Body.String(), "No file selected.")

	rec = c.postMultipart("/auth/change-profile-pic", url.Values{}, &formFile{field: "profile_pic", filename: "doc.pdf", content: "%PDF"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.postMultipart("/auth/change-profile-pic", url.Values{}, &formFile{field: "profile_pic", filename: "new.jpg", content: "jpg"})
	page = c.follow(rec, "/student/profile/alice")
	assert.Contains(t, page.Body.String(), "Profile picture updated successfully!")

	usr, err := app.repos.Users.GetUserByID(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^avatars/[0-9a-f]{8}_new\.jpg$`, usr.ProfilePic)
	assert.Contains(t, page.Body.String(), "/uploads/"+usr.ProfilePic)
}
