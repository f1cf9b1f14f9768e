package user

import (
	"fmt"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/codedays/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role"

	regRoleTag  = "regrole"
	regRoleText = "role must be admin or student"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password is too similar to your username or email"

	pwdTexts = map[string]string{
		pwdMinLenTag:    pwdMinLenText,
		pwdNoSpaceTag:   pwdNoSpaceText,
		pwdNotAllNumTag: pwdNotAllNumText,
		pwdAttrSimTag:   pwdAttrSimText,
	}
)

// InitValidators registers the user validators. core.InitValidators must run first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)

	_ = validate.RegisterValidation(regRoleTag, regRoleValidation)
	core.RegisterCustomTranslation(validate, translator, regRoleTag, regRoleText)

	validate.RegisterStructValidation(userStructValidation, NewUser{}, UpdateProfile{}, ResetUserPassword{})
	for tag, text := range pwdTexts {
		core.RegisterCustomTranslation(validate, translator, tag, text)
	}
}

// Custom Validators

func roleValidation(fl validator.FieldLevel) bool {
	return IsValidRole(fl.Field().String())
}

func regRoleValidation(fl validator.FieldLevel) bool {
	role := fl.Field().String()
	for _, r := range RegistrationRoles {
		if r == role {
			return true
		}
	}
	return false
}

// userStructValidation applies the password policy to password-bearing forms.
func userStructValidation(sl validator.StructLevel) {
	report := func(val, name, fieldName, tag string) {
		sl.ReportError(val, name, fieldName, tag, "")
	}

	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		if tag := PasswordPolicyTag(usr.Password, usr.Username, usr.Email); tag != "" {
			report(usr.Password, "password", "Password", tag)
		}
	case UpdateProfile:
		if usr.NewPassword == "" {
			return
		}
		if tag := PasswordPolicyTag(usr.NewPassword, usr.Username, usr.Email); tag != "" {
			report(usr.NewPassword, "new_password", "NewPassword", tag)
		}
	case ResetUserPassword:
		if tag := PasswordPolicyTag(usr.Password); tag != "" {
			report(usr.Password, "password", "Password", tag)
		}
	}
}

// PasswordPolicyTag returns the tag of the first password rule pwd breaks, or "" when it passes:
// - minLen: 8
// - no whitespace
// - not all numeric
// - not too similar to any of attrs (username, email...)
func PasswordPolicyTag(pwd string, attrs ...string) string {
	if len([]rune(pwd)) < pwdMinLen {
		return pwdMinLenTag
	}

	var digitCount int
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			return pwdNoSpaceTag
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
	}
	if digitCount == len([]rune(pwd)) {
		return pwdNotAllNumTag
	}

	lpwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		attr = strings.ToLower(attr)
		if similarity(lpwd, attr) >= pwdMaxSim {
			return pwdAttrSimTag
		}
		// also check the email local part
		if at := strings.IndexByte(attr, '@'); at > 0 && similarity(lpwd, attr[:at]) >= pwdMaxSim {
			return pwdAttrSimTag
		}
	}
	return ""
}

// ValidatePassword checks pwd against the password policy outside of a form.
func ValidatePassword(pwd string, attrs ...string) error {
	if tag := PasswordPolicyTag(pwd, attrs...); tag != "" {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: pwdTexts[tag]})
	}
	return nil
}

func similarity(pwd, attr string) float64 {
	if attr == "" {
		return 0
	}
	return difflib.NewMatcher(strings.Split(pwd, ""), strings.Split(attr, "")).Ratio()
}
