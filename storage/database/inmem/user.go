package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

// query returns all users by ID. Callers hold the lock.
func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, id := range sortedKeys(repo.db.users) {
		users = append(users, repo.db.users[id])
	}
	return users
}

// checkUniqueness must be called with the lock held.
func (repo *userRepository) checkUniqueness(username, email string, excludedUsers ...user.User) error {
	excluded := make(map[int]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}

	var emailTaken bool
	for _, usr := range repo.query() {
		if excluded[usr.ID] {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.Email == email {
			emailTaken = true
		}
	}
	if emailTaken {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.checkUniqueness(username, email, excludedUsers...)
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// the unique constraints of the users table
	if err := repo.checkUniqueness(usr.Username, usr.Email); err != nil {
		return user.User{}, err
	}
	if usr.Role == "" {
		usr.Role = user.RoleStudent
	}
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now().UTC()
	}
	usr.ID = repo.db.nextPK("users")
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excluded := make(map[string]bool, len(filter.ExcludeRoles))
	for _, r := range filter.ExcludeRoles {
		excluded[r] = true
	}
	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.query() {
		if !excluded[usr.Role] {
			users = append(users, usr)
		}
	}

	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range orderings {
			c := compareUsers(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return users, nil
}

func compareUsers(a, b user.User, field string) int {
	switch field {
	case "id":
		return a.ID - b.ID
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "total_score":
		return a.TotalScore - b.TotalScore
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	return 0
}

func (repo *userRepository) find(match func(usr user.User) bool) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.query() {
		if match(usr) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByID(_ context.Context, id int) (user.User, error) {
	return repo.find(func(usr user.User) bool { return usr.ID == id })
}

func (repo *userRepository) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	return repo.find(func(usr user.User) bool { return usr.Username == username })
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	return repo.find(func(usr user.User) bool { return usr.Email == email })
}

func (repo *userRepository) GetUserByUsernameOrEmail(_ context.Context, s string) (user.User, error) {
	return repo.find(func(usr user.User) bool { return usr.Username == s || usr.Email == strings.ToLower(s) })
}

func (repo *userRepository) GetUserByResetToken(_ context.Context, token string) (user.User, error) {
	if token == "" {
		return user.User{}, user.ErrNotFound
	}
	return repo.find(func(usr user.User) bool { return usr.ResetToken == token })
}

// update applies fn to a copy of row id and stores it, under the write lock.
func (repo *userRepository) update(id int, fn func(usr *user.User) error) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr, ok := repo.db.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := fn(&usr); err != nil {
		return user.User{}, err
	}
	repo.db.users[id] = usr
	return usr, nil
}

func (repo *userRepository) UpdateAccount(_ context.Context, id int, username, email string, passwordHash []byte) (user.User, error) {
	return repo.update(id, func(usr *user.User) error {
		if err := repo.checkUniqueness(username, email, *usr); err != nil {
			return err
		}
		usr.Username = username
		usr.Email = email
		if passwordHash != nil {
			usr.PasswordHash = passwordHash
		}
		return nil
	})
}

func (repo *userRepository) UpdatePassword(_ context.Context, id int, passwordHash []byte) (user.User, error) {
	return repo.update(id, func(usr *user.User) error {
		usr.PasswordHash = passwordHash
		return nil
	})
}

func (repo *userRepository) UpdateProfilePic(_ context.Context, id int, path string) (user.User, error) {
	return repo.update(id, func(usr *user.User) error {
		usr.ProfilePic = path
		return nil
	})
}

func (repo *userRepository) UpdateRole(_ context.Context, id int, role string) (user.User, error) {
	return repo.update(id, func(usr *user.User) error {
		usr.Role = role
		return nil
	})
}

func (repo *userRepository) SetResetToken(_ context.Context, id int, token string, expiry time.Time) (user.User, error) {
	return repo.update(id, func(usr *user.User) error {
		usr.ResetToken = token
		usr.ResetTokenExpiry = expiry.UTC()
		return nil
	})
}

func (repo *userRepository) ConsumeResetToken(_ context.Context, token string, passwordHash []byte, now time.Time) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if token == "" {
		return user.User{}, user.ErrInvalidToken
	}
	for _, id := range sortedKeys(repo.db.users) {
		usr := repo.db.users[id]
		if usr.ResetToken != token {
			continue
		}
		if !usr.ResetTokenExpiry.After(now) {
			break
		}
		usr.PasswordHash = passwordHash
		usr.ResetToken = ""
		usr.ResetTokenExpiry = time.Time{}
		repo.db.users[id] = usr
		return usr, nil
	}
	return user.User{}, user.ErrInvalidToken
}
