package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/codedays/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

var (
	// AllRoles are the roles an admin may assign.
	AllRoles = []string{RoleStudent, RoleTeacher, RoleAdmin}
	// StaffRoles may author content and grade submissions.
	StaffRoles = []string{RoleAdmin, RoleTeacher}
	// RegistrationRoles may be picked on the public registration form.
	RegistrationRoles = []string{RoleStudent, RoleAdmin}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
	}
)

const DefaultProfilePic = "default.svg"

type Role struct {
	Name  string
	Value string
}

func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

type User struct {
	ID               int
	Username         string
	Email            string
	PasswordHash     []byte
	Role             string
	ProfilePic       string
	TotalScore       int
	ResetToken       string
	ResetTokenExpiry time.Time // UTC
	CreatedAt        time.Time // UTC
}

func HashPassword(pwd string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
}

func (u *User) SetPassword(pwd string) error {
	hash, err := HashPassword(pwd)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

func (u *User) IsStaff() bool { return u.Role == RoleAdmin || u.Role == RoleTeacher }

// AvatarURL is where the profile picture is served from. Uploaded pictures live under /uploads/.
func (u User) AvatarURL() string {
	if u.ProfilePic == "" {
		return "/static/" + DefaultProfilePic
	}
	return "/uploads/" + u.ProfilePic
}

// NewUser contains information needed to register a new User.
type NewUser struct {
	Username        string `form:"username" validate:"required,max=64,alphanum_"`
	Email           string `form:"email" validate:"required,max=120,email"`
	Password        string `form:"password" validate:"required"`
	PasswordConfirm string `form:"password2" validate:"required,eqfield=Password"`
	Role            string `form:"role" validate:"required,regrole"`
	AdminCode       string `form:"admin_code"`
	ProfilePic      string `form:"-"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Username = core.CleanString(nu.Username)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateProfile defines what a User may change on their own profile.
type UpdateProfile struct {
	Username        string `form:"username" validate:"required,max=64,alphanum_"`
	Email           string `form:"email" validate:"required,max=120,email"`
	CurrentPassword string `form:"current_password" validate:"required"`
	NewPassword     string `form:"new_password"`
	ConfirmPassword string `form:"confirm_password" validate:"eqfield=NewPassword"`
}

func (up *UpdateProfile) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	up.Username = core.CleanString(up.Username)
	up.Email = core.CleanString(up.Email, true /* lower */)

	if err := validate.Struct(up); err != nil {
		return err
	}
	if err := origUsr.CheckPassword(up.CurrentPassword); err != nil {
		return core.NewValidationError(ErrWrongPassword, core.FieldError{Field: "current_password", Error: ErrWrongPassword.Error()})
	}
	return svc.CheckUniqueness(ctx, up.Username, up.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `form:"token" validate:"required"`
	Password        string `form:"password" validate:"required"`
	PasswordConfirm string `form:"password2" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type ChangeRole struct {
	Role string `form:"role" validate:"required,role"`
}

func (cr *ChangeRole) Validate(validate *validator.Validate) error {
	cr.Role = core.CleanString(cr.Role, true /* lower */)
	return validate.Struct(cr)
}

// QueryFilter narrows down QueryUsers. Zero values do not filter.
type QueryFilter struct {
	ExcludeRoles []string
}
