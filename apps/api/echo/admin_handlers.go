package echoapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/content"
	"github.com/trezcool/codedays/core/coursework"
	"github.com/trezcool/codedays/core/site"
	"github.com/trezcool/codedays/core/user"
)

const (
	adminDashboardURL   = "/admin/dashboard"
	adminSubmissionsURL = "/admin/submissions"
	adminUsersURL       = "/admin/users"
)

type (
	adminApp struct {
		*server
		users      user.Service
		content    content.Service
		coursework coursework.Service
		site       site.Service
	}

	reviewPage struct {
		Submission coursework.SubmissionDetail
	}

	changeRolePage struct {
		Target user.User
		Roles  []user.Role
	}
)

func registerAdminRoutes(g *echo.Group, s *server) {
	app := adminApp{
		server:     s,
		users:      s.opts.UserSvc,
		content:    s.opts.ContentSvc,
		coursework: s.opts.CourseworkSvc,
		site:       s.opts.SiteSvc,
	}
	getPost := []string{http.MethodGet, http.MethodPost}

	g.GET("/dashboard", app.dashboard)
	g.Match(getPost, "/days/create", app.createDay)
	g.Match(getPost, "/lessons/create", app.createLesson)
	g.Match(getPost, "/programs/create", app.createProgram)
	g.Match(getPost, "/notes/create", app.createNote)
	g.Match(getPost, "/assignments/create", app.createAssignment)
	g.GET("/submissions", app.listSubmissions)
	g.Match(getPost, "/submissions/:id/review", app.reviewSubmission)
	g.GET("/users", app.listUsers)
	g.Match(getPost, "/users/:id/change-role", app.changeRole)
	g.POST("/reset-app", app.resetApp)
}

// Handlers

func (app *adminApp) dashboard(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, "admin_dashboard", &page{Title: "Admin Dashboard"})
}

// created flashes the creation of kind and goes back to the dashboard.
func created(ctx echo.Context, kind string) error {
	addFlash(ctx, flashSuccess, kind+" created successfully!")
	return ctx.Redirect(http.StatusFound, adminDashboardURL)
}

func (app *adminApp) createDay(ctx echo.Context) error {
	var form content.NewDay
	p := &page{Title: "Create Day", Form: &form}
	if ctx.Request().Method == http.MethodGet {
		return ctx.Render(http.StatusOK, "create_day", p)
	}
	if err := bindForm(ctx, &form); err != nil {
		return app.renderForm(ctx, "create_day", p, err)
	}
	if err := form.Validate(app.validate); err != nil {
		return app.renderForm(ctx, "create_day", p, err)
	}
	if _, err := app.content.CreateDay(ctx.Request().Context(), form); err != nil {
		return errors.Wrap(err, "creating day")
	}
	return created(ctx, "Day")
}

// dayChoices loads the days offered by the lesson and program forms.
func (app *adminApp) dayChoices(ctx echo.Context) ([]content.Day, error) {
	days, err := app.content.QueryDays(ctx.Request().Context())
	return days, errors.Wrap(err, "querying days")
}

func (app *adminApp) createLesson(ctx echo.Context) error {
	days, err := app.dayChoices(ctx)
	if err != nil {
		return err
	}
	var form content.NewLesson
	p := &page{Title: "Create Lesson", Form: &form, Data: days}
	if ctx.Request().Method == http.MethodGet {
		return ctx.Render(http.StatusOK, "create_lesson", p)
	}
	if err = bindForm(ctx, &form); err != nil {
		return app.renderForm(ctx, "create_lesson", p, err)
	}
	if err = form.Validate(app.validate); err != nil {
		return app.renderForm(ctx, "create_lesson", p, err)
	}

	upload, done, err := formUpload(ctx, "html_file")
	if err != nil {
		return err
	}
	defer done()
	if _, err = app.content.CreateLesson(ctx.Request().Context(), form, upload); err != nil {
		return app.renderForm(ctx, "create_lesson", p, errors.Wrap(err, "creating lesson"))
	}
	return created(ctx, "Lesson")
}

func (app *adminApp) createProgram(ctx echo.Context) error {
	days, err := app.dayChoices(ctx)
	if err != nil {
		return err
	}
	var form content.NewProgram
	p := &page{Title: "Create Program", Form: &form, Data: days}
	if ctx.Request().Method == http.MethodGet {
		return ctx.Render(http.StatusOK, "create_program", p)
	}
	if err = bindForm(ctx, &form); err != nil {
		return app.renderForm(ctx, "create_program", p, err)
	}
	if err = form.Validate(app.validate); err != nil {
		return app.renderForm(ctx, "create_program", p, err)
	}

	upload, done, err := formUpload(ctx, "source_file")
	if err != nil {
		return err
	}
	defer done()
	if _, err = app.content.CreateProgram(ctx.Request().Context(), form, upload); err != nil {
		return app.renderForm(ctx, "create_program", p, errors.Wrap(err, "creating program"))
	}
	return created(ctx, "Program")
}

func (app *adminApp) createNote(ctx echo.Context) error {
	lessons, err := app.content.QueryLessons(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	var form content.NewNote
	p := &page{Title: "Create Note", Form: &form, Data: lessons}
	if ctx.Request().Method == http.MethodGet {
		return ctx.Render(http.StatusOK, "create_note", p)
	}
	if err = bindForm(ctx, &form); err != nil {
		return app.renderForm(ctx, "create_note", p, err)
	}
	if err = form.Validate(app.validate); err != nil {
		return app.renderForm(ctx, "create_note", p, err)
	}
	if _, err = app.content.CreateNote(ctx.Request().Context(), form); err != nil {
		return app.renderForm(ctx, "create_note", p, errors.Wrap(err, "creating note"))
	}
	return created(ctx, "Note")
}

func (app *adminApp) createAssignment(ctx echo.Context) error {
	var form coursework.NewAssignment
	p := &page{Title: "Create Assignment", Form: &form}
	if ctx.Request().Method == http.MethodGet {
		return ctx.Render(http.StatusOK, "create_assignment", p)
	}
	if err := bindForm(ctx, &form); err != nil {
		return app.renderForm(ctx, "create_assignment", p, err)
	}
	if err := form.Validate(app.validate); err != nil {
		return app.renderForm(ctx, "create_assignment", p, err)
	}
	if _, err := app.coursework.CreateAssignment(ctx.Request().Context(), form); err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return created(ctx, "Assignment")
}

func (app *adminApp) listSubmissions(ctx echo.Context) error {
	subs, err := app.coursework.QuerySubmissions(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	return ctx.Render(http.StatusOK, "submissions", &page{Title: "Submissions", Data: subs})
}

func (app *adminApp) reviewSubmission(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	sub, err := app.coursework.GetSubmission(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "getting submission")
	}

	form := coursework.Review{Feedback: sub.Feedback}
	if sub.Score != nil {
		form.Score = strconv.Itoa(*sub.Score)
	}
	p := &page{Title: "Review Submission", Form: &form, Data: reviewPage{Submission: sub}}
	if ctx.Request().Method == http.MethodGet {
		return ctx.Render(http.StatusOK, "review", p)
	}

	form = coursework.Review{}
	if err = bindForm(ctx, &form); err != nil {
		return app.renderForm(ctx, "review", p, err)
	}
	if err = form.Validate(app.validate); err != nil {
		return app.renderForm(ctx, "review", p, err)
	}
	if _, err = app.coursework.Review(reqCtx, id, form); err != nil {
		if _, ok := core.FormErrors(err, app.translator); ok {
			return app.renderForm(ctx, "review", p, err)
		}
		// the grade and the total score were rolled back together
		app.opts.Logger.Error("reviewing submission", errors.Wrap(err, "reviewing submission"))
		addFlash(ctx, flashError, "Error updating submission. No changes were saved.")
		return ctx.Redirect(http.StatusFound, adminSubmissionsURL)
	}
	addFlash(ctx, flashSuccess, "Submission has been reviewed and score updated.")
	return ctx.Redirect(http.StatusFound, adminSubmissionsURL)
}

func (app *adminApp) listUsers(ctx echo.Context) error {
	users, err := app.users.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.Render(http.StatusOK, "users", &page{Title: "Users", Data: users})
}

func (app *adminApp) changeRole(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	target, err := app.users.GetByID(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "getting user")
	}

	form := user.ChangeRole{Role: target.Role}
	p := &page{Title: "Change Role", Form: &form, Data: changeRolePage{Target: target, Roles: user.Roles}}
	if ctx.Request().Method == http.MethodGet {
		return ctx.Render(http.StatusOK, "change_role", p)
	}
	form = user.ChangeRole{}
	if err = bindForm(ctx, &form); err != nil {
		return app.renderForm(ctx, "change_role", p, err)
	}
	if err = form.Validate(app.validate); err != nil {
		return app.renderForm(ctx, "change_role", p, err)
	}
	if target, err = app.users.ChangeRole(reqCtx, id, form.Role); err != nil {
		return app.renderForm(ctx, "change_role", p, errors.Wrap(err, "changing role"))
	}
	addFlash(ctx, flashSuccess, fmt.Sprintf("Role for %s updated to %s.", target.Username, target.Role))
	return ctx.Redirect(http.StatusFound, adminUsersURL)
}

// resetApp wipes all course content and every non-admin user.
func (app *adminApp) resetApp(ctx echo.Context) error {
	if _, err := app.site.Reset(ctx.Request().Context()); err != nil {
		app.opts.Logger.Error("resetting app", err)
		addFlash(ctx, flashError, "Error resetting app. No data was deleted.")
		return ctx.Redirect(http.StatusFound, adminDashboardURL)
	}
	addFlash(ctx, flashSuccess, "App has been reset successfully! All data except admin users has been cleared.")
	return ctx.Redirect(http.StatusFound, adminDashboardURL)
}
