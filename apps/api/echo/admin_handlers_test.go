package echoapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/codedays/core/content"
	"github.com/trezcool/codedays/core/coursework"
	"github.com/trezcool/codedays/core/site"
	"github.com/trezcool/codedays/core/user"
	testutil "github.com/trezcool/codedays/tests"
)

var errRolledBack = errors.New("transaction rolled back")

// failingReviews rejects every review, leaving scores as they were.
type failingReviews struct{ coursework.Repository }

func (failingReviews) ReviewSubmission(context.Context, int, int, string) (coursework.SubmissionDetail, error) {
	return coursework.SubmissionDetail{}, errRolledBack
}

type failingReset struct{}

func (failingReset) ResetApp(context.Context) (site.ResetCounts, error) {
	return site.ResetCounts{}, errRolledBack
}

func Test_adminApp_staffOnly(t *testing.T) {
	app := setup(t)
	app.createUser(t, "alice", user.RoleStudent)
	app.createUser(t, "teach", user.RoleTeacher)
	app.createUser(t, "root", user.RoleAdmin)

	tests := []struct {
		uname    string
		wantCode int
	}{
		{"alice", http.StatusForbidden},
		{"teach", http.StatusOK},
		{"root", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.uname, func(t *testing.T) {
			c := app.loggedIn(t, tt.uname)
			assert.Equal(t, tt.wantCode, c.get(adminDashboardURL).Code)
			assert.Equal(t, tt.wantCode, c.get(adminUsersURL).Code)
			if tt.wantCode == http.StatusForbidden {
				rec := c.postForm("/admin/reset-app", url.Values{})
				assert.Equal(t, http.StatusForbidden, rec.Code)
			}
		})
	}
}

func Test_adminApp_createContent(t *testing.T) {
	app := setup(t)
	app.createUser(t, "teach", user.RoleTeacher)
	c := app.loggedIn(t, "teach")
	ctx := context.Background()

	t.Run("day", func(t *testing.T) {
		rec := c.postForm("/admin/days/create", url.Values{"title": {"  "}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		page := c.follow(c.postForm("/admin/days/create", url.Values{"title": {"Day One"}}), adminDashboardURL)
		assert.Contains(t, page.Body.String(), "Day created successfully!")
	})

	days, err := app.svcs.ContentSvc.QueryDays(ctx)
	require.NoError(t, err)
	require.Len(t, days, 1)
	dayID := strconv.Itoa(days[0].ID)

	t.Run("lesson", func(t *testing.T) {
		rec := c.get("/admin/lessons/create")
		assert.Contains(t, rec.Body.String(), "Day One")

		rec = c.postMultipart("/admin/lessons/create", url.Values{"title": {"Loops"}, "day_id": {"999"}}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "not a valid choice")

		rec = c.postMultipart("/admin/lessons/create", url.Values{"title": {"Loops"}, "day_id": {dayID}},
			&formFile{field: "html_file", filename: "loops.txt", content: "nope"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "file type not allowed")

		html := `<html><head><title>T</title><style>p{color:red}</style></head><body><p>Hello loops</p></body></html>`
		rec = c.postMultipart("/admin/lessons/create", url.Values{"title": {"Loops"}, "day_id": {dayID}},
			&formFile{field: "html_file", filename: "loops.html", content: html})
		page := c.follow(rec, adminDashboardURL)
		assert.Contains(t, page.Body.String(), "Lesson created successfully!")

		lessons, err := app.svcs.ContentSvc.QueryLessons(ctx)
		require.NoError(t, err)
		require.Len(t, lessons, 1)
		assert.Regexp(t, `^lessons/[0-9a-f]{8}_loops\.html$`, lessons[0].HTMLFile)

		body := c.get("/student/lessons/" + strconv.Itoa(lessons[0].ID)).Body.String()
		assert.Contains(t, body, "<style>p{color:red}</style>")
		assert.Contains(t, body, "<p>Hello loops</p>")
	})

	t.Run("program", func(t *testing.T) {
		rec := c.postMultipart("/admin/programs/create", url.Values{"title": {"Hello"}, "day_id": {dayID}},
			&formFile{field: "source_file", filename: "hello.py", content: "print('hello')\n"})
		c.follow(rec, adminDashboardURL)

		detail, err := app.svcs.ContentSvc.GetDay(ctx, days[0].ID)
		require.NoError(t, err)
		require.Len(t, detail.Programs, 1)
		body := c.get("/student/programs/" + strconv.Itoa(detail.Programs[0].ID)).Body.String()
		assert.Contains(t, body, "<pre")
		assert.Contains(t, body, "hello")
	})

	t.Run("note", func(t *testing.T) {
		lessons, err := app.svcs.ContentSvc.QueryLessons(ctx)
		require.NoError(t, err)
		lessonID := strconv.Itoa(lessons[0].ID)

		rec := c.postForm("/admin/notes/create", url.Values{"title": {"Note"}, "lesson_id": {lessonID}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = c.postForm("/admin/notes/create", url.Values{"title": {"Note"}, "lesson_id": {"abc"}, "content": {"x"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "the submitted form is invalid")

		rec = c.postForm("/admin/notes/create", url.Values{"title": {"Note"}, "lesson_id": {lessonID}, "content": {"**bold**"}})
		page := c.follow(rec, adminDashboardURL)
		assert.Contains(t, page.Body.String(), "Note created successfully!")
	})

	t.Run("assignment", func(t *testing.T) {
		rec := c.postForm("/admin/assignments/create", url.Values{"title": {"A"}, "description": {"d"}, "max_score": {"0"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = c.postForm("/admin/assignments/create", url.Values{"title": {"A"}, "description": {"d"}, "max_score": {"20"}})
		page := c.follow(rec, adminDashboardURL)
		assert.Contains(t, page.Body.String(), "Assignment created successfully!")

		assignments, err := app.svcs.CourseworkSvc.QueryAssignments(ctx)
		require.NoError(t, err)
		require.Len(t, assignments, 1)
		assert.Equal(t, 20, assignments[0].MaxScore)
	})
}

func Test_adminApp_reviewSubmission(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	alice := app.createUser(t, "alice", user.RoleStudent)
	app.createUser(t, "teach", user.RoleTeacher)
	a := createAssignment(t, app, "Graded", 100)
	sub, _, err := app.svcs.CourseworkSvc.Submit(ctx, alice.ID, a.ID, coursework.NewSubmission{CodeText: "answer()"})
	require.NoError(t, err)

	c := app.loggedIn(t, "teach")
	path := "/admin/submissions/" + strconv.Itoa(sub.ID) + "/review"

	rec := c.get(adminSubmissionsURL)
	assert.Contains(t, rec.Body.String(), "Graded")
	assert.Contains(t, rec.Body.String(), path)

	totalScore := func() int {
		usr, err := app.repos.Users.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		return usr.TotalScore
	}

	tests := []struct {
		name      string
		score     string
		wantCode  int
		wantTotal int
	}{
		{"missing score", "", http.StatusBadRequest, 0},
		{"above max", "101", http.StatusBadRequest, 0},
		{"negative", "-1", http.StatusBadRequest, 0},
		{"first grade", "80", http.StatusFound, 80},
		{"regrade down", "60", http.StatusFound, 60},
		{"max", "100", http.StatusFound, 100},
		{"zero", "0", http.StatusFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.postForm(path, url.Values{"score": {tt.score}, "feedback": {"ok"}})
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusFound {
				page := c.follow(rec, adminSubmissionsURL)
				assert.Contains(t, page.Body.String(), "Submission has been reviewed and score updated.")
			}
			assert.Equal(t, tt.wantTotal, totalScore())
		})
	}

	t.Run("prefilled", func(t *testing.T) {
		_, err := app.svcs.CourseworkSvc.Review(ctx, sub.ID, coursework.Review{Score: "42", Feedback: "close"})
		require.NoError(t, err)
		body := c.get(path).Body.String()
		assert.Contains(t, body, `value="42"`)
		assert.Contains(t, body, "close")
	})

	assert.Equal(t, http.StatusNotFound, c.get("/admin/submissions/999/review").Code)
}

func Test_adminApp_reviewSubmission_failure(t *testing.T) {
	app := setup(t, func(opts *Options, repos testutil.Repos) {
		opts.CourseworkSvc = coursework.NewService(failingReviews{repos.Coursework})
	})
	ctx := context.Background()
	alice := app.createUser(t, "alice", user.RoleStudent)
	app.createUser(t, "teach", user.RoleTeacher)
	a := createAssignment(t, app, "Graded", 100)
	sub, _, err := app.svcs.CourseworkSvc.Submit(ctx, alice.ID, a.ID, coursework.NewSubmission{CodeText: "answer()"})
	require.NoError(t, err)
	_, err = app.repos.Coursework.ReviewSubmission(ctx, sub.ID, 50, "half way")
	require.NoError(t, err)

	c := app.loggedIn(t, "teach")
	path := "/admin/submissions/" + strconv.Itoa(sub.ID) + "/review"

	tests := []struct {
		name  string
		score string
	}{
		{"regrade", "80"},
		{"same score", "50"},
		{"zero", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.postForm(path, url.Values{"score": {tt.score}, "feedback": {"new feedback"}})
			require.Equal(t, http.StatusFound, rec.Code)
			page := c.follow(rec, adminSubmissionsURL)
			assert.Contains(t, page.Body.String(), "Error updating submission. No changes were saved.")
			assert.NotContains(t, page.Body.String(), "Submission has been reviewed and score updated.")

			usr, err := app.repos.Users.GetUserByID(ctx, alice.ID)
			require.NoError(t, err)
			assert.Equal(t, 50, usr.TotalScore)

			got, err := app.repos.Coursework.GetSubmission(ctx, sub.ID)
			require.NoError(t, err)
			require.NotNil(t, got.Score)
			assert.Equal(t, 50, *got.Score)
			assert.Equal(t, "half way", got.Feedback)
		})
	}
}

func Test_adminApp_changeRole(t *testing.T) {
	app := setup(t)
	bob := app.createUser(t, "bob", user.RoleStudent)
	app.createUser(t, "root", user.RoleAdmin)
	c := app.loggedIn(t, "root")
	path := "/admin/users/" + strconv.Itoa(bob.ID) + "/change-role"

	rec := c.get(path)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<option value="student" selected>`)

	rec = c.postForm(path, url.Values{"role": {"principal"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid role")

	page := c.follow(c.postForm(path, url.Values{"role": {user.RoleTeacher}}), adminUsersURL)
	assert.Contains(t, page.Body.String(), "Role for bob updated to teacher.")

	usr, err := app.repos.Users.GetUserByID(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleTeacher, usr.Role)

	assert.Equal(t, http.StatusNotFound, c.get("/admin/users/999/change-role").Code)
}

func Test_adminApp_resetApp(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	alice := app.createUser(t, "alice", user.RoleStudent)
	app.createUser(t, "teach", user.RoleTeacher)
	root := app.createUser(t, "root", user.RoleAdmin)

	day, err := app.svcs.ContentSvc.CreateDay(ctx, content.NewDay{Title: "Day"})
	require.NoError(t, err)
	_, err = app.svcs.ContentSvc.CreateLesson(ctx, content.NewLesson{Title: "L", DayID: day.ID}, nil)
	require.NoError(t, err)
	a := createAssignment(t, app, "A", 10)
	_, _, err = app.svcs.CourseworkSvc.Submit(ctx, alice.ID, a.ID, coursework.NewSubmission{CodeText: "x"})
	require.NoError(t, err)

	c := app.loggedIn(t, "root")
	page := c.follow(c.postForm("/admin/reset-app", url.Values{}), adminDashboardURL)
	assert.Contains(t, page.Body.String(), "App has been reset successfully!")

	users, err := app.svcs.UserSvc.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, root.ID, users[0].ID)

	days, err := app.svcs.ContentSvc.QueryDays(ctx)
	require.NoError(t, err)
	assert.Empty(t, days)
	assignments, err := app.svcs.CourseworkSvc.QueryAssignments(ctx)
	require.NoError(t, err)
	assert.Empty(t, assignments)
}

func Test_adminApp_resetApp_failure(t *testing.T) {
	app := setup(t, func(opts *Options, _ testutil.Repos) {
		opts.SiteSvc = site.NewService(failingReset{}, opts.Logger)
	})
	ctx := context.Background()
	alice := app.createUser(t, "alice", user.RoleStudent)
	app.createUser(t, "root", user.RoleAdmin)
	_, err := app.svcs.ContentSvc.CreateDay(ctx, content.NewDay{Title: "Day"})
	require.NoError(t, err)

	c := app.loggedIn(t, "root")
	rec := c.postForm("/admin/reset-app", url.Values{})
	require.Equal(t, http.StatusFound, rec.Code)
	page := c.follow(rec, adminDashboardURL)
	assert.Contains(t, page.Body.String(), "Error resetting app. No data was deleted.")
	assert.NotContains(t, page.Body.String(), "App has been reset successfully!")

	users, err := app.svcs.UserSvc.QueryAll(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	_, err = app.repos.Users.GetUserByID(ctx, alice.ID)
	assert.NoError(t, err)

	days, err := app.svcs.ContentSvc.QueryDays(ctx)
	require.NoError(t, err)
	assert.Len(t, days, 1)
}
