package user

import (
	"context"
	"net/mail"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrEmailExists        = errors.New("please use a different email address")
	ErrUsernameExists     = errors.New("please use a different username")
	ErrInvalidToken       = errors.New("the password reset link is invalid")
	ErrTokenExpired       = errors.New("the password reset link has expired")
	ErrInvalidAdminCode   = errors.New("invalid admin code")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrInvalidRole        = errors.New("invalid role")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryUsers(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		GetUserByID(ctx context.Context, id int) (User, error)
		GetUserByUsername(ctx context.Context, username string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByUsernameOrEmail(ctx context.Context, s string) (User, error)
		GetUserByResetToken(ctx context.Context, token string) (User, error)

		// The update methods write only the columns they name. ErrNotFound when id is unknown.

		// UpdateAccount writes username and email, and passwordHash unless it is nil.
		UpdateAccount(ctx context.Context, id int, username, email string, passwordHash []byte) (User, error)
		UpdatePassword(ctx context.Context, id int, passwordHash []byte) (User, error)
		UpdateProfilePic(ctx context.Context, id int, path string) (User, error)
		UpdateRole(ctx context.Context, id int, role string) (User, error)
		SetResetToken(ctx context.Context, id int, token string, expiry time.Time) (User, error)
		// ConsumeResetToken sets passwordHash and clears the reset token in one step, provided token
		// is still stored and expires after now. Otherwise it returns ErrInvalidToken.
		ConsumeResetToken(ctx context.Context, token string, passwordHash []byte, now time.Time) (User, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
		Register(ctx context.Context, nu NewUser) (User, error)
		Authenticate(ctx context.Context, username, pwd string) (User, error)
		GetByID(ctx context.Context, id int) (User, error)
		GetByUsername(ctx context.Context, uname string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, s string) (User, error)
		QueryAll(ctx context.Context) ([]User, error)
		Leaderboard(ctx context.Context) ([]User, error)
		UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (User, error)
		SetProfilePic(ctx context.Context, usr User, path string) (User, error)
		ChangeRole(ctx context.Context, id int, role string) (User, error)
		SetPassword(ctx context.Context, usr User, pwd string) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		CheckResetToken(ctx context.Context, token string) (User, error)
		ResetPassword(ctx context.Context, rp ResetUserPassword) (User, error)

		Validator() *validator.Validate
		Translator() ut.Translator
	}

	service struct {
		conf       *core.Config
		repo       Repository
		mailSvc    core.EmailService
		logger     core.Logger
		validate   *validator.Validate
		translator ut.Translator
	}
)

var _ Service = (*service)(nil)

func NewService(
	conf *core.Config,
	repo Repository,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
) Service {
	return &service{
		conf:       conf,
		repo:       repo,
		mailSvc:    mailSvc,
		logger:     logger,
		validate:   validate,
		translator: translator,
	}
}

func (svc *service) Validator() *validator.Validate { return svc.validate }
func (svc *service) Translator() ut.Translator      { return svc.translator }

// fieldError maps uniqueness errors to the form field they belong to.
func fieldError(err error) error {
	var field string
	switch errors.Cause(err) {
	case ErrUsernameExists:
		field = "username"
	case ErrEmailExists:
		field = "email"
	default:
		return err
	}
	return core.NewValidationError(errors.Cause(err), core.FieldError{Field: field, Error: errors.Cause(err).Error()})
}

func (svc *service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	return fieldError(svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers...))
}

// Register creates a User from a validated NewUser.
// A uniqueness violation raised by the store on insert is reported like the pre-insert check.
func (svc *service) Register(ctx context.Context, nu NewUser) (User, error) {
	if nu.Role == RoleAdmin && !CheckAdminCode(nu.AdminCode, svc.conf.AdminCode) {
		return User{}, core.NewValidationError(ErrInvalidAdminCode, core.FieldError{Field: "admin_code", Error: ErrInvalidAdminCode.Error()})
	}

	usr := User{
		Username:   nu.Username,
		Email:      nu.Email,
		Role:       nu.Role,
		ProfilePic: nu.ProfilePic,
		CreatedAt:  time.Now().UTC(),
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, fieldError(err)
	}
	return usr, nil
}

func (svc *service) Authenticate(ctx context.Context, username, pwd string) (User, error) {
	usr, err := svc.repo.GetUserByUsername(ctx, core.CleanString(username))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by username")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return usr, nil
}

func (svc *service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsername(ctx, core.CleanString(uname))
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, s string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(s))
}

func (svc *service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsers(ctx, QueryFilter{}, core.DBOrdering{Field: "id", Ascending: true})
}

// Leaderboard lists every non-admin User by descending total score.
func (svc *service) Leaderboard(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsers(
		ctx,
		QueryFilter{ExcludeRoles: []string{RoleAdmin}},
		core.DBOrdering{Field: "total_score", Ascending: false},
	)
}

// UpdateProfile applies a validated UpdateProfile to usr.
// Only the username, email and, when a new one is given, the password are written.
func (svc *service) UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (User, error) {
	var hash []byte
	if up.NewPassword != "" {
		var err error
		if hash, err = HashPassword(up.NewPassword); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	usr, err := svc.repo.UpdateAccount(ctx, usr.ID, up.Username, up.Email, hash)
	if err != nil {
		return User{}, fieldError(err)
	}
	return usr, nil
}

func (svc *service) SetProfilePic(ctx context.Context, usr User, path string) (User, error) {
	return svc.repo.UpdateProfilePic(ctx, usr.ID, path)
}

func (svc *service) ChangeRole(ctx context.Context, id int, role string) (User, error) {
	if !IsValidRole(role) {
		return User{}, core.NewValidationError(ErrInvalidRole, core.FieldError{Field: "role", Error: ErrInvalidRole.Error()})
	}
	return svc.repo.UpdateRole(ctx, id, role)
}

func (svc *service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	hash, err := HashPassword(pwd)
	if err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.UpdatePassword(ctx, usr.ID, hash)
}

// RequestPasswordReset stores a fresh reset token on the User owning email and mails the reset link.
// Any previous token is replaced. ErrNotFound is returned for unknown emails; callers must not expose it.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}

	token, err := makeToken()
	if err != nil {
		return errors.Wrap(err, "generating reset token")
	}
	if usr, err = svc.repo.SetResetToken(ctx, usr.ID, token, nowFunc().UTC().Add(svc.conf.PasswordResetTimeout)); err != nil {
		return errors.Wrap(err, "saving reset token")
	}

	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Username, Address: usr.Email}},
		Subject:      "Reset Your Password",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Username": usr.Username,
			"Path":     "/auth/reset-password/" + usr.ResetToken,
			"Minutes":  int(svc.conf.PasswordResetTimeout.Minutes()),
		},
	})
}

// CheckResetToken returns the User owning a valid, unexpired reset token.
func (svc *service) CheckResetToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrInvalidToken
	}
	usr, err := svc.repo.GetUserByResetToken(ctx, token)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidToken
		}
		return User{}, errors.Wrap(err, "finding user by reset token")
	}
	if err = verifyToken(usr, token); err != nil {
		return User{}, err
	}
	return usr, nil
}

// ResetPassword sets a new password and clears the reset token so it cannot be reused.
// Of two resets racing with one token, only the first succeeds.
func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) (User, error) {
	if _, err := svc.CheckResetToken(ctx, rp.Token); err != nil {
		return User{}, err
	}
	hash, err := HashPassword(rp.Password)
	if err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.ConsumeResetToken(ctx, rp.Token, hash, nowFunc().UTC())
	if err != nil {
		if errors.Cause(err) == ErrInvalidToken {
			return User{}, ErrInvalidToken
		}
		return User{}, errors.Wrap(err, "consuming reset token")
	}
	return usr, nil
}
