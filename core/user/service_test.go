package user_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/user"
	appfs "github.com/trezcool/codedays/fs"
	emailsvc "github.com/trezcool/codedays/services/email"
	testutil "github.com/trezcool/codedays/tests"
)

const testPassword = "s3cret-Pass!"

type testEnv struct {
	svc        user.Service
	repo       user.Repository
	mail       *emailsvc.ConsoleServiceMock
	validate   *validator.Validate
	translator ut.Translator
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := core.NewTestConfig()
	logger := testutil.NewLogger(conf)
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, logger)
	validate, translator := testutil.NewValidator()
	repo := testutil.MemoryRepos().Users
	mail := emailsvc.NewConsoleServiceMock(conf, logger)

	return &testEnv{
		svc:        user.NewService(conf, repo, mail, logger, validate, translator),
		repo:       repo,
		mail:       mail,
		validate:   validate,
		translator: translator,
	}
}

// formErrors returns the field -> message map of a form error, failing on any other error.
func (env *testEnv) formErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	fields, ok := core.FormErrors(err, env.translator)
	require.True(t, ok, "not a form error: %v", err)
	return fields
}

func TestNewUser_Validate(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	testutil.CreateUser(t, env.repo, "taken", "taken@test.cd", testPassword, user.RoleStudent)

	valid := user.NewUser{
		Username:        "  new_user ",
		Email:           " New@Test.CD",
		Password:        testPassword,
		PasswordConfirm: testPassword,
		Role:            "Student",
	}
	with := func(fn func(nu *user.NewUser)) user.NewUser {
		nu := valid
		fn(&nu)
		return nu
	}

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
		wantMsg   string
	}{
		{name: "valid", nu: valid},
		{name: "missing username", nu: with(func(nu *user.NewUser) { nu.Username = " " }), wantField: "username", wantMsg: "this field is required"},
		{name: "bad username", nu: with(func(nu *user.NewUser) { nu.Username = "new user!" }), wantField: "username", wantMsg: "only alphanumeric characters and underscores are allowed"},
		{name: "bad email", nu: with(func(nu *user.NewUser) { nu.Email = "nope" }), wantField: "email"},
		{name: "passwords differ", nu: with(func(nu *user.NewUser) { nu.PasswordConfirm = "other" }), wantField: "password2", wantMsg: "passwords must match"},
		{
			name: "short password",
			nu: with(func(nu *user.NewUser) {
				nu.Password, nu.PasswordConfirm = "s3cr!", "s3cr!"
			}),
			wantField: "password", wantMsg: "password must contain at least 8 characters",
		},
		{
			name: "password like username",
			nu: with(func(nu *user.NewUser) {
				nu.Password, nu.PasswordConfirm = "new_user1", "new_user1"
			}),
			wantField: "password", wantMsg: "password is too similar to your username or email",
		},
		{name: "teacher cannot register", nu: with(func(nu *user.NewUser) { nu.Role = user.RoleTeacher }), wantField: "role", wantMsg: "role must be admin or student"},
		{name: "username taken", nu: with(func(nu *user.NewUser) { nu.Username = "taken" }), wantField: "username", wantMsg: user.ErrUsernameExists.Error()},
		{name: "email taken", nu: with(func(nu *user.NewUser) { nu.Email = "TAKEN@test.cd" }), wantField: "email", wantMsg: user.ErrEmailExists.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := tt.nu
			err := nu.Validate(ctx, env.validate, env.svc)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, "new_user", nu.Username)
				assert.Equal(t, "new@test.cd", nu.Email)
				assert.Equal(t, user.RoleStudent, nu.Role)
				return
			}
			fields := env.formErrors(t, err)
			require.Contains(t, fields, tt.wantField)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, fields[tt.wantField])
			}
		})
	}
}

func TestService_Register(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	nu := func(uname, role, code string) user.NewUser {
		return user.NewUser{
			Username:  uname,
			Email:     uname + "@test.cd",
			Password:  testPassword,
			Role:      role,
			AdminCode: code,
		}
	}

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
	}{
		{name: "student", nu: nu("alice", user.RoleStudent, "")},
		{name: "student ignores code", nu: nu("bob", user.RoleStudent, "wrong")},
		{name: "admin with code", nu: nu("root", user.RoleAdmin, "!MADMIN")},
		{name: "admin without code", nu: nu("mallory", user.RoleAdmin, ""), wantField: "admin_code"},
		{name: "admin with wrong code", nu: nu("mallory", user.RoleAdmin, "!madmin"), wantField: "admin_code"},
		{name: "duplicate username on insert", nu: nu("alice", user.RoleStudent, ""), wantField: "username"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := env.svc.Register(ctx, tt.nu)
			if tt.wantField != "" {
				assert.Contains(t, env.formErrors(t, err), tt.wantField)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, usr.ID)
			assert.Equal(t, tt.nu.Role, usr.Role)
			assert.Zero(t, usr.TotalScore)
			assert.NoError(t, usr.CheckPassword(testPassword))
			assert.Equal(t, "/static/"+user.DefaultProfilePic, usr.AvatarURL())
		})
	}

	_, err := env.svc.GetByUsername(ctx, "mallory")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestService_Authenticate(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.repo, "alice", "alice@test.cd", testPassword, user.RoleStudent)

	tests := []struct {
		name    string
		uname   string
		pwd     string
		wantErr error
	}{
		{name: "valid", uname: "alice", pwd: testPassword},
		{name: "padded username", uname: " alice ", pwd: testPassword},
		{name: "wrong password", uname: "alice", pwd: "nope", wantErr: user.ErrInvalidCredentials},
		{name: "unknown user", uname: "bob", pwd: testPassword, wantErr: user.ErrInvalidCredentials},
		{name: "email is not a username", uname: "alice@test.cd", pwd: testPassword, wantErr: user.ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := env.svc.Authenticate(ctx, tt.uname, tt.pwd)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, alice.ID, usr.ID)
		})
	}
}

func TestService_PasswordReset(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.repo, "alice", "alice@test.cd", testPassword, user.RoleStudent)

	t.Run("unknown email", func(t *testing.T) {
		err := env.svc.RequestPasswordReset(ctx, "nobody@test.cd")
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
		assert.Empty(t, env.mail.SentMessages())
	})

	require.NoError(t, env.svc.RequestPasswordReset(ctx, " ALICE@test.cd "))
	usr, err := env.repo.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	firstToken := usr.ResetToken
	require.NotEmpty(t, firstToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), usr.ResetTokenExpiry, time.Minute)

	msgs := env.mail.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice@test.cd", msgs[0].To[0].Address)
	assert.Contains(t, msgs[0].TextContent, "/auth/reset-password/"+firstToken)

	// a new request replaces the token
	require.NoError(t, env.svc.RequestPasswordReset(ctx, "alice@test.cd"))
	usr, err = env.repo.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	token := usr.ResetToken
	require.NotEqual(t, firstToken, token)

	_, err = env.svc.CheckResetToken(ctx, firstToken)
	assert.Equal(t, user.ErrInvalidToken, err)
	_, err = env.svc.CheckResetToken(ctx, "")
	assert.Equal(t, user.ErrInvalidToken, err)

	got, err := env.svc.CheckResetToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	t.Run("weak password", func(t *testing.T) {
		rp := user.ResetUserPassword{Token: token, Password: "12345678", PasswordConfirm: "12345678"}
		fields := env.formErrors(t, rp.Validate(env.validate))
		assert.Equal(t, "password cannot be entirely numeric", fields["password"])
	})

	const newPwd = "Brand-n3w-pass"
	rp := user.ResetUserPassword{Token: token, Password: newPwd, PasswordConfirm: newPwd}
	require.NoError(t, rp.Validate(env.validate))
	usr, err = env.svc.ResetPassword(ctx, rp)
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword(newPwd))
	assert.Empty(t, usr.ResetToken)
	assert.True(t, usr.ResetTokenExpiry.IsZero())

	// tokens are single use
	_, err = env.svc.ResetPassword(ctx, rp)
	assert.Equal(t, user.ErrInvalidToken, err)

	t.Run("expired token", func(t *testing.T) {
		require.NoError(t, env.svc.RequestPasswordReset(ctx, "alice@test.cd"))
		usr, err := env.repo.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		_, err = env.repo.SetResetToken(ctx, alice.ID, usr.ResetToken, time.Now().UTC().Add(-time.Second))
		require.NoError(t, err)

		_, err = env.svc.CheckResetToken(ctx, usr.ResetToken)
		assert.Equal(t, user.ErrTokenExpired, err)
	})
}

func TestService_ResetPassword_concurrent(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.repo, "alice", "alice@test.cd", testPassword, user.RoleStudent)
	require.NoError(t, env.svc.RequestPasswordReset(ctx, "alice@test.cd"))
	usr, err := env.repo.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)

	passwords := []string{"First-n3w-pass", "Second-n3w-pass"}
	errs := make([]error, len(passwords))
	var wg sync.WaitGroup
	for i, pwd := range passwords {
		wg.Add(1)
		go func(i int, pwd string) {
			defer wg.Done()
			_, errs[i] = env.svc.ResetPassword(ctx, user.ResetUserPassword{Token: usr.ResetToken, Password: pwd, PasswordConfirm: pwd})
		}(i, pwd)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "token accepted twice")
			winner = i
			continue
		}
		assert.Equal(t, user.ErrInvalidToken, err)
	}
	require.NotEqual(t, -1, winner)

	_, err = env.svc.Authenticate(ctx, "alice", passwords[winner])
	assert.NoError(t, err)
	_, err = env.svc.Authenticate(ctx, "alice", passwords[1-winner])
	assert.Equal(t, user.ErrInvalidCredentials, err)
}

// Self-service writes start from the user loaded with the session. They must not undo a role
// change made in the meantime.
func TestService_staleUserKeepsRole(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	stale := testutil.CreateUser(t, env.repo, "root", "root@test.cd", testPassword, user.RoleAdmin)

	_, err := env.svc.ChangeRole(ctx, stale.ID, user.RoleStudent)
	require.NoError(t, err)

	up := user.UpdateProfile{Username: "root2", Email: "root2@test.cd", CurrentPassword: testPassword}
	usr, err := env.svc.UpdateProfile(ctx, stale, up)
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, usr.Role)
	assert.Equal(t, "root2", usr.Username)
	assert.NoError(t, usr.CheckPassword(testPassword))

	usr, err = env.svc.SetProfilePic(ctx, stale, "avatars/me.png")
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, usr.Role)
	assert.Equal(t, "root2", usr.Username)

	usr, err = env.svc.SetPassword(ctx, stale, "Brand-n3w-pass")
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, usr.Role)
	assert.Equal(t, "avatars/me.png", usr.ProfilePic)

	require.NoError(t, env.svc.RequestPasswordReset(ctx, "root2@test.cd"))
	usr, err = env.repo.GetUserByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, usr.Role)
	assert.NoError(t, usr.CheckPassword("Brand-n3w-pass"))
}

func TestService_UpdateProfile(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.repo, "alice", "alice@test.cd", testPassword, user.RoleStudent)
	testutil.CreateUser(t, env.repo, "bob", "bob@test.cd", testPassword, user.RoleStudent)

	tests := []struct {
		name      string
		up        user.UpdateProfile
		wantField string
	}{
		{name: "wrong current password", up: user.UpdateProfile{Username: "alice", Email: "alice@test.cd", CurrentPassword: "nope"}, wantField: "current_password"},
		{name: "missing current password", up: user.UpdateProfile{Username: "alice", Email: "alice@test.cd"}, wantField: "current_password"},
		{name: "username taken", up: user.UpdateProfile{Username: "bob", Email: "alice@test.cd", CurrentPassword: testPassword}, wantField: "username"},
		{name: "email taken", up: user.UpdateProfile{Username: "alice", Email: "bob@test.cd", CurrentPassword: testPassword}, wantField: "email"},
		{
			name:      "new passwords differ",
			up:        user.UpdateProfile{Username: "alice", Email: "alice@test.cd", CurrentPassword: testPassword, NewPassword: "Brand-n3w-pass"},
			wantField: "confirm_password",
		},
		{name: "keep own username and email", up: user.UpdateProfile{Username: "alice", Email: "alice@test.cd", CurrentPassword: testPassword}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := tt.up
			err := up.Validate(ctx, alice, env.validate, env.svc)
			if tt.wantField != "" {
				assert.Contains(t, env.formErrors(t, err), tt.wantField)
				return
			}
			assert.NoError(t, err)
		})
	}

	up := user.UpdateProfile{
		Username:        "alice_b",
		Email:           "Alice.B@test.cd",
		CurrentPassword: testPassword,
		NewPassword:     "Brand-n3w-pass",
		ConfirmPassword: "Brand-n3w-pass",
	}
	require.NoError(t, up.Validate(ctx, alice, env.validate, env.svc))
	usr, err := env.svc.UpdateProfile(ctx, alice, up)
	require.NoError(t, err)
	assert.Equal(t, "alice_b", usr.Username)
	assert.Equal(t, "alice.b@test.cd", usr.Email)
	assert.NoError(t, usr.CheckPassword("Brand-n3w-pass"))

	_, err = env.svc.Authenticate(ctx, "alice_b", "Brand-n3w-pass")
	assert.NoError(t, err)
}

func TestService_ChangeRole(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	bob := testutil.CreateUser(t, env.repo, "bob", "bob@test.cd", testPassword, user.RoleStudent)

	_, err := env.svc.ChangeRole(ctx, bob.ID, "principal")
	assert.Equal(t, user.ErrInvalidRole.Error(), env.formErrors(t, err)["role"])

	_, err = env.svc.ChangeRole(ctx, 999, user.RoleTeacher)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	usr, err := env.svc.ChangeRole(ctx, bob.ID, user.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, user.RoleTeacher, usr.Role)
	assert.True(t, usr.IsStaff())
	assert.False(t, usr.IsAdmin())
}

func TestService_Leaderboard(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	users := []user.User{
		{Username: "alice", Email: "alice@test.cd", Role: user.RoleStudent, TotalScore: 40},
		{Username: "bob", Email: "bob@test.cd", Role: user.RoleStudent, TotalScore: 90},
		{Username: "carl", Email: "carl@test.cd", Role: user.RoleStudent},
		{Username: "teach", Email: "teach@test.cd", Role: user.RoleTeacher, TotalScore: 10},
		{Username: "root", Email: "root@test.cd", Role: user.RoleAdmin, TotalScore: 500},
	}
	for _, usr := range users {
		_, err := env.repo.CreateUser(ctx, usr)
		require.NoError(t, err)
	}

	board, err := env.svc.Leaderboard(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(board))
	for _, usr := range board {
		names = append(names, usr.Username)
	}
	assert.Equal(t, []string{"bob", "alice", "teach", "carl"}, names)
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		pwd     string
		attrs   []string
		wantMsg string
	}{
		{pwd: "s3cret-Pass!"},
		{pwd: "short1!", wantMsg: "password must contain at least 8 characters"},
		{pwd: "has space 123", wantMsg: "password must not contain whitespace"},
		{pwd: "1234567890", wantMsg: "password cannot be entirely numeric"},
		{pwd: "alice123", attrs: []string{"alice"}, wantMsg: "password is too similar to your username or email"},
		{pwd: "Jdoe2024x", attrs: []string{"someone", "jdoe2024@test.cd"}, wantMsg: "password is too similar to your username or email"},
		{pwd: "Tr0ub4dor&3", attrs: []string{"alice", "alice@test.cd"}},
	}
	for _, tt := range tests {
		t.Run(tt.pwd, func(t *testing.T) {
			err := user.ValidatePassword(tt.pwd, tt.attrs...)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.HasSuffix(err.Error(), tt.wantMsg), err.Error())
		})
	}
}
