package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/user"
)

const userColumns = `id, username, email, password_hash, role, profile_pic, total_score,
	reset_token, reset_token_expiry, created_at`

var userOrderings = map[string]string{
	"id":          "id",
	"username":    "username",
	"total_score": "total_score",
	"created_at":  "created_at",
}

type userRow struct {
	ID               int         `db:"id"`
	Username         string      `db:"username"`
	Email            string      `db:"email"`
	PasswordHash     []byte      `db:"password_hash"`
	Role             string      `db:"role"`
	ProfilePic       null.String `db:"profile_pic"`
	TotalScore       int         `db:"total_score"`
	ResetToken       null.String `db:"reset_token"`
	ResetTokenExpiry null.Time   `db:"reset_token_expiry"`
	CreatedAt        time.Time   `db:"created_at"`
}

func toUserRow(usr user.User) userRow {
	if usr.PasswordHash == nil {
		usr.PasswordHash = []byte{} // never matches
	}
	return userRow{
		ID:               usr.ID,
		Username:         usr.Username,
		Email:            usr.Email,
		PasswordHash:     usr.PasswordHash,
		Role:             usr.Role,
		ProfilePic:       null.NewString(usr.ProfilePic, usr.ProfilePic != ""),
		TotalScore:       usr.TotalScore,
		ResetToken:       null.NewString(usr.ResetToken, usr.ResetToken != ""),
		ResetTokenExpiry: null.NewTime(usr.ResetTokenExpiry.UTC(), !usr.ResetTokenExpiry.IsZero()),
		CreatedAt:        usr.CreatedAt.UTC(),
	}
}

func (r userRow) toUser() user.User {
	usr := user.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		ProfilePic:   r.ProfilePic.String,
		TotalScore:   r.TotalScore,
		ResetToken:   r.ResetToken.String,
		CreatedAt:    r.CreatedAt.UTC(),
	}
	if r.ResetTokenExpiry.Valid {
		usr.ResetTokenExpiry = r.ResetTokenExpiry.Time.UTC()
	}
	return usr
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

// uniquenessErr maps a unique violation on insert/update to the matching user error.
func uniquenessErr(err error, msg string) error {
	if constraint, ok := uniqueConstraint(err); ok {
		switch constraint {
		case "users_username_key":
			return user.ErrUsernameExists
		case "users_email_key":
			return user.ErrEmailExists
		}
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	query := "SELECT username, email FROM users WHERE (username = ? OR email = ?)"
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]int, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		query += " AND id NOT IN (?)"
		args = append(args, ids)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}

	var found []userRow
	if err = repo.db.SelectContext(ctx, &found, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, u := range found {
		if u.Username == username {
			return user.ErrUsernameExists
		}
	}
	if len(found) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.Role == "" {
		usr.Role = user.RoleStudent
	}
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now().UTC()
	}

	var row userRow
	err := namedGet(ctx, repo.db, &row, `
		INSERT INTO users (username, email, password_hash, role, profile_pic, total_score, reset_token, reset_token_expiry, created_at)
		VALUES (:username, :email, :password_hash, :role, :profile_pic, :total_score, :reset_token, :reset_token_expiry, :created_at)
		RETURNING `+userColumns, toUserRow(usr))
	if err != nil {
		return user.User{}, uniquenessErr(err, "inserting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	query := "SELECT " + userColumns + " FROM users"
	var args []interface{}
	if len(filter.ExcludeRoles) > 0 {
		query += " WHERE role NOT IN (?)"
		args = append(args, filter.ExcludeRoles)
	}
	query += orderBy(userOrderings, orderings)

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building users query")
	}

	var rows []userRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

func (repo *userRepository) getUser(ctx context.Context, where string, args ...interface{}) (user.User, error) {
	var row userRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	return repo.getUser(ctx, "id = $1", id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, "username = $1", username)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, "email = $1", email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, s string) (user.User, error) {
	return repo.getUser(ctx, "username = $1 OR email = lower($1)", s)
}

func (repo *userRepository) GetUserByResetToken(ctx context.Context, token string) (user.User, error) {
	return repo.getUser(ctx, "reset_token = $1", token)
}

// update sets the columns of set, whose placeholders are numbered from $1 in args order, on row id.
func (repo *userRepository) update(ctx context.Context, msg string, id int, set string, args ...interface{}) (user.User, error) {
	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d RETURNING %s", set, len(args), userColumns)

	var row userRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, uniquenessErr(err, msg)
	}
	return row.toUser(), nil
}

func (repo *userRepository) UpdateAccount(ctx context.Context, id int, username, email string, passwordHash []byte) (user.User, error) {
	if passwordHash == nil {
		return repo.update(ctx, "updating account", id, "username = $1, email = $2", username, email)
	}
	return repo.update(ctx, "updating account", id,
		"username = $1, email = $2, password_hash = $3", username, email, passwordHash)
}

func (repo *userRepository) UpdatePassword(ctx context.Context, id int, passwordHash []byte) (user.User, error) {
	if passwordHash == nil {
		passwordHash = []byte{}
	}
	return repo.update(ctx, "updating password", id, "password_hash = $1", passwordHash)
}

func (repo *userRepository) UpdateProfilePic(ctx context.Context, id int, path string) (user.User, error) {
	return repo.update(ctx, "updating profile pic", id, "profile_pic = $1", null.NewString(path, path != ""))
}

func (repo *userRepository) UpdateRole(ctx context.Context, id int, role string) (user.User, error) {
	return repo.update(ctx, "updating role", id, "role = $1", role)
}

func (repo *userRepository) SetResetToken(ctx context.Context, id int, token string, expiry time.Time) (user.User, error) {
	return repo.update(ctx, "setting reset token", id, "reset_token = $1, reset_token_expiry = $2",
		null.NewString(token, token != ""), null.NewTime(expiry.UTC(), !expiry.IsZero()))
}

// ConsumeResetToken relies on the row lock taken by UPDATE: a concurrent consumer re-reads the row
// once the first commits and no longer matches the token.
func (repo *userRepository) ConsumeResetToken(ctx context.Context, token string, passwordHash []byte, now time.Time) (user.User, error) {
	if token == "" {
		return user.User{}, user.ErrInvalidToken
	}
	if passwordHash == nil {
		passwordHash = []byte{}
	}

	var row userRow
	err := repo.db.GetContext(ctx, &row, `
		UPDATE users SET password_hash = $1, reset_token = NULL, reset_token_expiry = NULL
		WHERE reset_token = $2 AND reset_token_expiry > $3
		RETURNING `+userColumns, passwordHash, token, now.UTC())
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrInvalidToken, "consuming reset token")
	}
	return row.toUser(), nil
}
