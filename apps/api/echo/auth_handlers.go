package echoapi

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core/user"
)

const (
	registerURL       = "/auth/register"
	forgotPasswordURL = "/auth/forgot-password"
	editProfileURL    = "/auth/edit-profile"
)

type (
	authApp struct {
		*server
		svc user.Service
	}

	loginForm struct {
		Username string `form:"username" validate:"required"`
		Password string `form:"password" validate:"required"`
		Remember bool   `form:"remember"`
		Next     string `form:"next"`
	}

	forgotPasswordForm struct {
		Email string `form:"email" validate:"required,email"`
	}
)

func registerAuthRoutes(g *echo.Group, s *server) {
	app := authApp{server: s, svc: s.opts.UserSvc}

	// TODO: rate limit `/login` & `/forgot-password`
	g.Match([]string{http.MethodGet, http.MethodPost}, "/login", app.login)
	g.Match([]string{http.MethodGet, http.MethodPost}, "/logout", app.logout)
	g.Match([]string{http.MethodGet, http.MethodPost}, "/register", app.register)
	g.Match([]string{http.MethodGet, http.MethodPost}, "/forgot-password", app.forgotPassword)
	g.Match([]string{http.MethodGet, http.MethodPost}, "/reset-password/:token", app.resetPassword)

	// authed endpoints
	g.Match([]string{http.MethodGet, http.MethodPost}, "/edit-profile", app.editProfile, requireLogin)
	g.Match([]string{http.MethodGet, http.MethodPost}, "/change-profile-pic", app.changeProfilePic, requireLogin)
}

// Handlers

func (app *authApp) login(ctx echo.Context) error {
	if _, ok := getContextUser(ctx); ok {
		return ctx.Redirect(http.StatusFound, dashboardURL)
	}

	var form loginForm
	p := &page{Title: "Sign In", Form: &form}
	if err := bindForm(ctx, &form); err != nil {
		return app.renderForm(ctx, "login", p, err)
	}
	if ctx.Request().Method == http.MethodGet {
		return ctx.Render(http.StatusOK, "login", p)
	}
	if err := app.validate.Struct(form); err != nil {
		return app.renderForm(ctx, "login", p, err)
	}

	usr, err := app.svc.Authenticate(ctx.Request().Context(), form.Username, form.Password)
	if err != nil {
		if errors.Cause(err) == user.ErrInvalidCredentials {
			addFlash(ctx, flashError, "Invalid username or password")
			target := loginURL
			if form.Next != "" {
				target += "?next=" + url.QueryEscape(form.Next)
			}
			return ctx.Redirect(http.StatusFound, target)
		}
		return errors.Wrap(err, "authenticating")
	}

	if err = app.sessions.login(ctx, usr, form.Remember); err != nil {
		return errors.Wrap(err, "logging in")
	}
	return ctx.Redirect(http.StatusFound, safeNext(form.Next))
}

func (app *authApp) logout(ctx echo.Context) error {
	if err := app.sessions.logout(ctx); err != nil {
		return err
	}
	return ctx.Redirect(http.StatusFound, loginURL)
}

func (app *authApp) register(ctx echo.Context) error {
	if _, ok := getContextUser(ctx); ok {
		return ctx.Redirect(http.StatusFound, dashboardURL)
	}

	form := user.NewUser{Role: user.RoleStudent}
	p := &page{Title: "Register", Form: &form, Data: registrationRoles()}
	if ctx.Request().Method == http.MethodGet {
		return ctx.Render(http.StatusOK, "register", p)
	}
	if err := bindForm(ctx, &form); err != nil {
		return app.renderForm(ctx, "register", p, err)
	}

	reqCtx := ctx.Request().Context()
	if err := form.Validate(reqCtx, app.validate, app.svc); err != nil {
		return app.renderForm(ctx, "register", p, err)
	}

	upload, done, err := formUpload(ctx, "profile_pic")
	if err != nil {
		return err
	}
	defer done()
	if form.ProfilePic, err = app.saveAvatar(ctx, upload, "profile_pic"); err != nil {
		return app.renderForm(ctx, "register", p, err)
	}

	if _, err = app.svc.Register(reqCtx, form); err != nil {
		app.discardAvatar(form.ProfilePic)
		return app.renderForm(ctx, "register", p, errors.Wrap(err, "registering user"))
	}
	addFlash(ctx, flashSuccess, "Congratulations, you are now a registered user!")
	return ctx.Redirect(http.StatusFound, loginURL)
}

func registrationRoles() []user.Role {
	roles := make([]user.Role, 0, len(user.RegistrationRoles))
	for _, r := range user.Roles {
		for _, reg := range user.RegistrationRoles {
			if r.Value == reg {
				roles = append(roles, r)
			}
		}
	}
	return roles
}

func (app *authApp) forgotPassword(ctx echo.Context) error {
	var form forgotPasswordForm
	p := &page{Title: "Forgot Password", Form: &form}
	if ctx.Request().Method == http.MethodGet {
		return ctx.Render(http.StatusOK, "forgot_password", p)
	}
	if err := bindForm(ctx, &form); err != nil {
		return app.renderForm(ctx, "forgot_password", p, err)
	}
	if err := app.validate.Struct(form); err != nil {
		return app.renderForm(ctx, "forgot_password", p, err)
	}

	if err := app.svc.RequestPasswordReset(ctx.Request().Context(), form.Email); err != nil {
		// do not tell attackers which emails are registered
		if errors.Cause(err) == user.ErrNotFound {
			app.opts.Logger.Info("password reset requested for an unknown email", map[string]interface{}{"email": form.Email})
		} else {
			app.opts.Logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
		}
	}
	addFlash(ctx, flashInfo, "If that email address is registered, a password reset link has been sent to it.")
	return ctx.Redirect(http.StatusFound, loginURL)
}

func (app *authApp) resetPassword(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	form := user.ResetUserPassword{Token: ctx.Param("token")}
	p := &page{Title: "Reset Password", Form: &form}

	badToken := func(err error) error {
		switch errors.Cause(err) {
		case user.ErrInvalidToken, user.ErrTokenExpired:
			addFlash(ctx, flashError, "That password reset link is invalid or has expired.")
			return ctx.Redirect(http.StatusFound, forgotPasswordURL)
		}
		return err
	}

	if ctx.Request().Method == http.MethodGet {
		if _, err := app.svc.CheckResetToken(reqCtx, form.Token); err != nil {
			return badToken(err)
		}
		return ctx.Render(http.StatusOK, "reset_password", p)
	}

	if err := bindForm(ctx, &form); err != nil {
		return app.renderForm(ctx, "reset_password", p, err)
	}
	form.Token = ctx.Param("token")
	if err := form.Validate(app.validate); err != nil {
		return app.renderForm(ctx, "reset_password", p, err)
	}
	if _, err := app.svc.ResetPassword(reqCtx, form); err != nil {
		return badToken(errors.Wrap(err, "resetting password"))
	}
	addFlash(ctx, flashSuccess, "Your password has been reset. You can now log in.")
	return ctx.Redirect(http.StatusFound, loginURL)
}

func (app *authApp) editProfile(ctx echo.Context) error {
	usr, _ := getContextUser(ctx)
	form := user.UpdateProfile{Username: usr.Username, Email: usr.Email}
	p := &page{Title: "Edit Profile", Form: &form}
	if ctx.Request().Method == http.MethodGet {
		return ctx.Render(http.StatusOK, "edit_profile", p)
	}
	if err := bindForm(ctx, &form); err != nil {
		return app.renderForm(ctx, "edit_profile", p, err)
	}

	reqCtx := ctx.Request().Context()
	if err := form.Validate(reqCtx, usr, app.validate, app.svc); err != nil {
		return app.renderForm(ctx, "edit_profile", p, err)
	}
	if _, err := app.svc.UpdateProfile(reqCtx, usr, form); err != nil {
		return app.renderForm(ctx, "edit_profile", p, errors.Wrap(err, "updating profile"))
	}
	addFlash(ctx, flashSuccess, "Your changes have been saved.")
	return ctx.Redirect(http.StatusFound, editProfileURL)
}

func (app *authApp) changeProfilePic(ctx echo.Context) error {
	usr, _ := getContextUser(ctx)
	p := &page{Title: "Change Profile Picture", Form: &struct{}{}}
	if ctx.Request().Method == http.MethodGet {
		return ctx.Render(http.StatusOK, "change_profile_pic", p)
	}

	upload, done, err := formUpload(ctx, "profile_pic")
	if err != nil {
		return err
	}
	defer done()
	if upload == nil {
		addFlash(ctx, flashError, "No file selected.")
		return ctx.Redirect(http.StatusFound, "/auth/change-profile-pic")
	}

	path, err := app.saveAvatar(ctx, upload, "profile_pic")
	if err != nil {
		return app.renderForm(ctx, "change_profile_pic", p, err)
	}
	if _, err = app.svc.SetProfilePic(ctx.Request().Context(), usr, path); err != nil {
		app.discardAvatar(path)
		return errors.Wrap(err, "setting profile picture")
	}
	addFlash(ctx, flashSuccess, "Profile picture updated successfully!")
	return ctx.Redirect(http.StatusFound, "/student/profile/"+url.PathEscape(usr.Username))
}
