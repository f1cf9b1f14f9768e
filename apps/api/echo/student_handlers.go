package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core/content"
	"github.com/trezcool/codedays/core/coursework"
	"github.com/trezcool/codedays/core/user"
)

type (
	studentApp struct {
		*server
		users      user.Service
		content    content.Service
		coursework coursework.Service
	}

	progressPage struct {
		Owner    user.User
		Progress coursework.Progress
	}

	assignmentPage struct {
		Assignment coursework.Assignment
		Submission *coursework.Submission // nil until the user submits
	}
)

func registerStudentRoutes(g *echo.Group, s *server) {
	app := studentApp{
		server:     s,
		users:      s.opts.UserSvc,
		content:    s.opts.ContentSvc,
		coursework: s.opts.CourseworkSvc,
	}

	g.GET("/dashboard", app.dashboard)
	g.GET("/notes", app.listDays)
	g.GET("/days/:id", app.viewDay)
	g.GET("/lessons/:id", app.viewLesson)
	g.GET("/programs/:id", app.viewProgram)
	g.GET("/notes/:id", app.viewNote)
	g.GET("/assignments", app.listAssignments)
	g.GET("/assignments/:id", app.viewAssignment)
	g.Match([]string{http.MethodGet, http.MethodPost}, "/assignments/:id/submit", app.submitAssignment)
	g.GET("/leaderboard", app.leaderboard)
	g.GET("/profile/:username", app.profile)
	g.GET("/submission/:id", app.viewSubmission)
}

// Handlers

func (app *studentApp) dashboard(ctx echo.Context) error {
	usr, _ := getContextUser(ctx)
	progress, err := app.coursework.Progress(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "loading progress")
	}
	return ctx.Render(http.StatusOK, "dashboard", &page{
		Title: "Dashboard",
		Data:  progressPage{Owner: usr, Progress: progress},
	})
}

func (app *studentApp) listDays(ctx echo.Context) error {
	days, err := app.content.QueryDays(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying days")
	}
	return ctx.Render(http.StatusOK, "notes", &page{Title: "Notes", Data: days})
}

func (app *studentApp) viewDay(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	day, err := app.content.GetDay(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting day")
	}
	return ctx.Render(http.StatusOK, "day", &page{Title: day.Day.Title, Data: day})
}

func (app *studentApp) viewLesson(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	lesson, err := app.content.GetLesson(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}
	return ctx.Render(http.StatusOK, "lesson", &page{Title: lesson.Lesson.Title, Data: lesson})
}

func (app *studentApp) viewProgram(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	program, err := app.content.GetProgram(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting program")
	}
	return ctx.Render(http.StatusOK, "program", &page{Title: program.Program.Title, Data: program})
}

func (app *studentApp) viewNote(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	note, err := app.content.GetNote(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting note")
	}
	return ctx.Render(http.StatusOK, "note", &page{Title: note.Note.Title, Data: note})
}

func (app *studentApp) listAssignments(ctx echo.Context) error {
	assignments, err := app.coursework.QueryAssignments(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	return ctx.Render(http.StatusOK, "assignments", &page{Title: "Assignments", Data: assignments})
}

// loadAssignment returns the assignment of the :id param and the context user's submission for it, if any.
func (app *studentApp) loadAssignment(ctx echo.Context) (assignmentPage, error) {
	id, err := paramID(ctx, "id")
	if err != nil {
		return assignmentPage{}, err
	}

	reqCtx := ctx.Request().Context()
	assignment, err := app.coursework.GetAssignment(reqCtx, id)
	if err != nil {
		return assignmentPage{}, errors.Wrap(err, "getting assignment")
	}
	ap := assignmentPage{Assignment: assignment}

	usr, _ := getContextUser(ctx)
	sub, err := app.coursework.GetUserSubmission(reqCtx, usr.ID, id)
	switch {
	case err == nil:
		ap.Submission = &sub
	case errors.Cause(err) != coursework.ErrNotFound:
		return assignmentPage{}, errors.Wrap(err, "getting submission")
	}
	return ap, nil
}

func (app *studentApp) viewAssignment(ctx echo.Context) error {
	ap, err := app.loadAssignment(ctx)
	if err != nil {
		return err
	}
	return ctx.Render(http.StatusOK, "assignment", &page{Title: ap.Assignment.Title, Data: ap})
}

func (app *studentApp) submitAssignment(ctx echo.Context) error {
	ap, err := app.loadAssignment(ctx)
	if err != nil {
		return err
	}

	var form coursework.NewSubmission
	if ap.Submission != nil {
		form.CodeText = ap.Submission.CodeText
	}
	p := &page{Title: "Submit: " + ap.Assignment.Title, Form: &form, Data: ap}
	if ctx.Request().Method == http.MethodGet {
		return ctx.Render(http.StatusOK, "submit", p)
	}

	form = coursework.NewSubmission{}
	if err = bindForm(ctx, &form); err != nil {
		return app.renderForm(ctx, "submit", p, err)
	}
	if err = form.Validate(app.validate); err != nil {
		return app.renderForm(ctx, "submit", p, err)
	}

	usr, _ := getContextUser(ctx)
	_, created, err := app.coursework.Submit(ctx.Request().Context(), usr.ID, ap.Assignment.ID, form)
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	if created {
		addFlash(ctx, flashSuccess, "Your submission has been received.")
	} else {
		addFlash(ctx, flashSuccess, "Your submission has been updated.")
	}
	return ctx.Redirect(http.StatusFound, "/student/assignments/"+strconv.Itoa(ap.Assignment.ID))
}

func (app *studentApp) leaderboard(ctx echo.Context) error {
	users, err := app.users.Leaderboard(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying leaderboard")
	}
	return ctx.Render(http.StatusOK, "leaderboard", &page{Title: "Leaderboard", Data: users})
}

func (app *studentApp) profile(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	owner, err := app.users.GetByUsername(reqCtx, ctx.Param("username"))
	if err != nil {
		return errors.Wrap(err, "getting user")
	}
	progress, err := app.coursework.Progress(reqCtx, owner.ID)
	if err != nil {
		return errors.Wrap(err, "loading progress")
	}
	return ctx.Render(http.StatusOK, "profile", &page{
		Title: owner.Username,
		Data:  progressPage{Owner: owner, Progress: progress},
	})
}

// viewSubmission shows a submission to its author and to staff.
func (app *studentApp) viewSubmission(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	sub, err := app.coursework.GetSubmission(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting submission")
	}
	if usr, _ := getContextUser(ctx); sub.UserID != usr.ID && !usr.IsStaff() {
		return errForbidden
	}
	return ctx.Render(http.StatusOK, "submission", &page{Title: "Submission", Data: sub})
}
