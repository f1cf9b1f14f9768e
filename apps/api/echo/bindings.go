package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core"
)

var (
	errBadFormData = errors.New("the submitted form is invalid")

	// AvatarExtensions are the accepted profile picture types.
	AvatarExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}
	avatarUploadKind = "avatars"
	errInvalidAvatar = errors.New("images only (png, jpg, jpeg, gif)")
)

// bindForm binds the request into form. Malformed values are reported as a form-wide error.
func bindForm(ctx echo.Context, form interface{}) error {
	if err := ctx.Bind(form); err != nil {
		ctx.Logger().Debugf("binding form: %v", err)
		return core.NewValidationError(errBadFormData)
	}
	return nil
}

// renderForm re-renders the form page name with the errors of err, or returns err when it is not a form error.
func (s *server) renderForm(ctx echo.Context, name string, p *page, err error) error {
	fields, ok := core.FormErrors(err, s.translator)
	if !ok {
		return err
	}
	p.Errors = fields
	return ctx.Render(http.StatusBadRequest, name, p)
}

// formUpload returns the file posted as field, or nil when none was sent. done must be called once the file is consumed.
func formUpload(ctx echo.Context, field string) (upload *core.Upload, done func(), err error) {
	done = func() {}

	fh, err := ctx.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, done, nil
		}
		return nil, done, errors.Wrap(err, "reading "+field)
	}
	if fh.Filename == "" {
		return nil, done, nil
	}

	f, err := fh.Open()
	if err != nil {
		return nil, done, errors.Wrap(err, "opening "+field)
	}
	return &core.Upload{Filename: fh.Filename, Content: f}, func() { _ = f.Close() }, nil
}

// saveAvatar stores a profile picture and returns its relative path ("" when there is no upload).
func (s *server) saveAvatar(ctx echo.Context, upload *core.Upload, field string) (string, error) {
	if upload == nil {
		return "", nil
	}
	if !core.HasExtension(upload.Filename, AvatarExtensions...) {
		return "", core.NewValidationError(errInvalidAvatar, core.FieldError{Field: field, Error: errInvalidAvatar.Error()})
	}
	path, err := s.opts.Files.Save(ctx.Request().Context(), avatarUploadKind, upload.Filename, upload.Content)
	if err != nil {
		return "", errors.Wrap(err, "saving profile picture")
	}
	return path, nil
}

// discardAvatar removes a picture saved by saveAvatar that no user ended up pointing to.
func (s *server) discardAvatar(path string) {
	if path == "" {
		return
	}
	if err := s.opts.Files.Remove(path); err != nil {
		s.opts.Logger.Error("removing unused profile picture", errors.Wrap(err, path))
	}
}

// paramID reads the integer path param name. Anything else is a missing page.
func paramID(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id <= 0 {
		return 0, errNotFound
	}
	return id, nil
}
