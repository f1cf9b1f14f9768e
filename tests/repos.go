package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/content"
	"github.com/trezcool/codedays/core/coursework"
	"github.com/trezcool/codedays/core/user"
)

// RunRepositoryTests checks the behavior every repository implementation must share.
// newRepos is called once per subtest and must return empty repositories.
func RunRepositoryTests(t *testing.T, newRepos func(t *testing.T) Repos) {
	t.Run("users", func(t *testing.T) { testUserRepository(t, newRepos(t)) })
	t.Run("content", func(t *testing.T) { testContentRepository(t, newRepos(t)) })
	t.Run("submissions", func(t *testing.T) { testSubmissions(t, newRepos(t)) })
	t.Run("review", func(t *testing.T) { testReview(t, newRepos(t)) })
	t.Run("reset", func(t *testing.T) { testReset(t, newRepos(t)) })
	t.Run("racing registrations", func(t *testing.T) { testRacingRegistrations(t, newRepos(t)) })
	t.Run("concurrent reviews", func(t *testing.T) { testConcurrentReviews(t, newRepos(t)) })
	t.Run("reset token", func(t *testing.T) { testConsumeResetToken(t, newRepos(t)) })
	t.Run("concurrent reset token use", func(t *testing.T) { testConcurrentResetTokenUse(t, newRepos(t)) })
}

func testUserRepository(t *testing.T, repos Repos) {
	ctx := context.Background()
	repo := repos.Users

	alice := CreateUser(t, repo, "alice", "alice@test.cd", "s3cret-Pass!", user.RoleStudent)
	bob := CreateUser(t, repo, "bob", "bob@test.cd", "", user.RoleTeacher)
	CreateUser(t, repo, "root", "root@test.cd", "", user.RoleAdmin)
	assert.NotZero(t, alice.ID)
	assert.NotEqual(t, alice.ID, bob.ID)

	_, err := repo.CreateUser(ctx, user.User{Username: "alice", Email: "other@test.cd", CreatedAt: time.Now()})
	assert.Equal(t, user.ErrUsernameExists, errors.Cause(err))
	_, err = repo.CreateUser(ctx, user.User{Username: "other", Email: "alice@test.cd", CreatedAt: time.Now()})
	assert.Equal(t, user.ErrEmailExists, errors.Cause(err))

	assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "alice", "x@test.cd"))
	assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "x", "bob@test.cd"))
	assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "alice", "alice@test.cd", alice))
	assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "carl", "carl@test.cd"))

	for _, s := range []string{"alice", "alice@test.cd"} {
		got, err := repo.GetUserByUsernameOrEmail(ctx, s)
		require.NoError(t, err, s)
		assert.Equal(t, alice.ID, got.ID)
	}
	_, err = repo.GetUserByUsername(ctx, "nobody")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	_, err = repo.GetUserByResetToken(ctx, "")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	// each update writes only its own columns
	upd, err := repo.UpdateAccount(ctx, alice.ID, "alice", "alice@new.cd", nil)
	require.NoError(t, err)
	assert.Equal(t, "alice@new.cd", upd.Email)
	assert.NoError(t, upd.CheckPassword("s3cret-Pass!"))

	upd, err = repo.UpdateRole(ctx, alice.ID, user.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, user.RoleTeacher, upd.Role)
	upd, err = repo.UpdateProfilePic(ctx, alice.ID, "avatars/a.png")
	require.NoError(t, err)
	assert.Equal(t, "avatars/a.png", upd.ProfilePic)
	assert.Equal(t, user.RoleTeacher, upd.Role)
	assert.Equal(t, "alice@new.cd", upd.Email)

	expiry := time.Now().Add(time.Hour)
	_, err = repo.SetResetToken(ctx, alice.ID, "tok", expiry)
	require.NoError(t, err)
	got, err := repo.GetUserByResetToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.WithinDuration(t, expiry, got.ResetTokenExpiry, time.Second)
	assert.Equal(t, "avatars/a.png", got.ProfilePic)

	hash, err := user.HashPassword("n3w-Pass!")
	require.NoError(t, err)
	upd, err = repo.UpdatePassword(ctx, alice.ID, hash)
	require.NoError(t, err)
	assert.NoError(t, upd.CheckPassword("n3w-Pass!"))
	assert.Equal(t, "tok", upd.ResetToken)
	assert.Equal(t, user.RoleTeacher, upd.Role)

	_, err = repo.UpdateRole(ctx, alice.ID, user.RoleStudent)
	require.NoError(t, err)
	_, err = repo.UpdateAccount(ctx, alice.ID, "bob", "alice@new.cd", nil)
	assert.Equal(t, user.ErrUsernameExists, errors.Cause(err))
	_, err = repo.UpdateAccount(ctx, alice.ID, "alice", "bob@test.cd", nil)
	assert.Equal(t, user.ErrEmailExists, errors.Cause(err))
	_, err = repo.UpdateAccount(ctx, 999, "ghost", "ghost@test.cd", nil)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	_, err = repo.UpdateRole(ctx, 999, user.RoleAdmin)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	users, err := repo.QueryUsers(ctx, user.QueryFilter{ExcludeRoles: []string{user.RoleAdmin}}, core.DBOrdering{Field: "username", Ascending: false})
	require.NoError(t, err)
	names := make([]string, 0, len(users))
	for _, usr := range users {
		names = append(names, usr.Username)
	}
	assert.Equal(t, []string{"bob", "alice"}, names)
}

func testContentRepository(t *testing.T, repos Repos) {
	ctx := context.Background()
	repo := repos.Content

	day1, err := repo.CreateDay(ctx, content.Day{Title: "One"})
	require.NoError(t, err)
	day2, err := repo.CreateDay(ctx, content.Day{Title: "Two"})
	require.NoError(t, err)

	lesson, err := repo.CreateLesson(ctx, content.Lesson{Title: "L", DayID: day1.ID, HTMLFile: "lessons/l.html"})
	require.NoError(t, err)
	bare, err := repo.CreateLesson(ctx, content.Lesson{Title: "Bare", DayID: day2.ID})
	require.NoError(t, err)
	program, err := repo.CreateProgram(ctx, content.Program{Title: "P", DayID: day1.ID})
	require.NoError(t, err)
	n1, err := repo.CreateNote(ctx, content.Note{Title: "N1", Content: "a", LessonID: lesson.ID, CreatedAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	n2, err := repo.CreateNote(ctx, content.Note{Title: "N2", Content: "b", LessonID: lesson.ID, CreatedAt: time.Now()})
	require.NoError(t, err)

	days, err := repo.QueryDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []content.Day{day1, day2}, days)

	lessons, err := repo.QueryDayLessons(ctx, day1.ID)
	require.NoError(t, err)
	assert.Equal(t, []content.Lesson{lesson}, lessons)
	lessons, err = repo.QueryLessons(ctx)
	require.NoError(t, err)
	assert.Len(t, lessons, 2)

	programs, err := repo.QueryDayPrograms(ctx, day2.ID)
	require.NoError(t, err)
	assert.Empty(t, programs)
	got, err := repo.GetProgram(ctx, program.ID)
	require.NoError(t, err)
	assert.Equal(t, program, got)

	gotLesson, err := repo.GetLesson(ctx, bare.ID)
	require.NoError(t, err)
	assert.Empty(t, gotLesson.HTMLFile)

	notes, err := repo.QueryLessonNotes(ctx, lesson.ID)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, n1.ID, notes[0].ID)
	assert.Equal(t, n2.ID, notes[1].ID)

	_, err = repo.GetDay(ctx, 999)
	assert.Equal(t, content.ErrNotFound, errors.Cause(err))
	_, err = repo.GetNote(ctx, 999)
	assert.Equal(t, content.ErrNotFound, errors.Cause(err))
}

func testSubmissions(t *testing.T, repos Repos) {
	ctx := context.Background()
	repo := repos.Coursework
	alice := CreateUser(t, repos.Users, "alice", "alice@test.cd", "", user.RoleStudent)

	a, err := repo.CreateAssignment(ctx, coursework.Assignment{Title: "A", Description: "d", MaxScore: 10, CreatedAt: time.Now()})
	require.NoError(t, err)
	old := time.Now().Add(-48 * time.Hour)

	sub, created, err := repo.UpsertSubmission(ctx, coursework.Submission{UserID: alice.ID, AssignmentID: a.ID, CodeText: "v1", SubmittedAt: old})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, sub.Score)

	again, created, err := repo.UpsertSubmission(ctx, coursework.Submission{UserID: alice.ID, AssignmentID: a.ID, CodeText: "v2", SubmittedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, "v2", again.CodeText)

	subs, err := repo.QuerySubmissions(ctx, coursework.SubmissionFilter{UserID: alice.ID, Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "alice", subs[0].Username)
	assert.Equal(t, "A", subs[0].AssignmentTitle)
	assert.Equal(t, 10, subs[0].MaxScore)

	subs, err = repo.QuerySubmissions(ctx, coursework.SubmissionFilter{UserID: alice.ID + 1})
	require.NoError(t, err)
	assert.Empty(t, subs)

	_, err = repo.GetUserSubmission(ctx, alice.ID, a.ID+1)
	assert.Equal(t, coursework.ErrNotFound, errors.Cause(err))
}

func testReview(t *testing.T, repos Repos) {
	ctx := context.Background()
	alice := CreateUser(t, repos.Users, "alice", "alice@test.cd", "", user.RoleStudent)
	a, err := repos.Coursework.CreateAssignment(ctx, coursework.Assignment{Title: "A", Description: "d", MaxScore: 100, CreatedAt: time.Now()})
	require.NoError(t, err)
	sub, _, err := repos.Coursework.UpsertSubmission(ctx, coursework.Submission{UserID: alice.ID, AssignmentID: a.ID, CodeText: "x", SubmittedAt: time.Now()})
	require.NoError(t, err)

	for _, step := range []struct{ score, total int }{{80, 80}, {60, 60}, {70, 70}, {50, 50}, {0, 0}} {
		detail, err := repos.Coursework.ReviewSubmission(ctx, sub.ID, step.score, "fb")
		require.NoError(t, err)
		require.NotNil(t, detail.Score)
		assert.Equal(t, step.score, *detail.Score)
		assert.Equal(t, "fb", detail.Feedback)

		usr, err := repos.Users.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, step.total, usr.TotalScore)
	}

	_, err = repos.Coursework.ReviewSubmission(ctx, 999, 1, "")
	assert.Equal(t, coursework.ErrNotFound, errors.Cause(err))
}

func testReset(t *testing.T, repos Repos) {
	ctx := context.Background()
	alice := CreateUser(t, repos.Users, "alice", "alice@test.cd", "", user.RoleStudent)
	CreateUser(t, repos.Users, "teach", "teach@test.cd", "", user.RoleTeacher)
	root := CreateUser(t, repos.Users, "root", "root@test.cd", "", user.RoleAdmin)

	day, err := repos.Content.CreateDay(ctx, content.Day{Title: "D"})
	require.NoError(t, err)
	lesson, err := repos.Content.CreateLesson(ctx, content.Lesson{Title: "L", DayID: day.ID})
	require.NoError(t, err)
	_, err = repos.Content.CreateProgram(ctx, content.Program{Title: "P", DayID: day.ID})
	require.NoError(t, err)
	_, err = repos.Content.CreateNote(ctx, content.Note{Title: "N", Content: "c", LessonID: lesson.ID, CreatedAt: time.Now()})
	require.NoError(t, err)
	a, err := repos.Coursework.CreateAssignment(ctx, coursework.Assignment{Title: "A", Description: "d", MaxScore: 1, CreatedAt: time.Now()})
	require.NoError(t, err)
	_, _, err = repos.Coursework.UpsertSubmission(ctx, coursework.Submission{UserID: alice.ID, AssignmentID: a.ID, CodeText: "x", SubmittedAt: time.Now()})
	require.NoError(t, err)

	counts, err := repos.Site.ResetApp(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts.Submissions)
	assert.EqualValues(t, 1, counts.Assignments)
	assert.EqualValues(t, 1, counts.Notes)
	assert.EqualValues(t, 1, counts.Programs)
	assert.EqualValues(t, 1, counts.Lessons)
	assert.EqualValues(t, 1, counts.Days)
	assert.EqualValues(t, 2, counts.Users)

	users, err := repos.Users.QueryUsers(ctx, user.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, root.ID, users[0].ID)

	days, err := repos.Content.QueryDays(ctx)
	require.NoError(t, err)
	assert.Empty(t, days)
	assignments, err := repos.Coursework.QueryAssignments(ctx)
	require.NoError(t, err)
	assert.Empty(t, assignments)
}

func testRacingRegistrations(t *testing.T, repos Repos) {
	const n = 8
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repos.Users.CreateUser(context.Background(), user.User{
				Username:  "alice",
				Email:     fmt.Sprintf("alice%d@test.cd", i),
				CreatedAt: time.Now(),
			})
		}(i)
	}
	wg.Wait()

	var created int
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.Equal(t, user.ErrUsernameExists, errors.Cause(err))
	}
	assert.Equal(t, 1, created)
}

func testConcurrentReviews(t *testing.T, repos Repos) {
	ctx := context.Background()
	alice := CreateUser(t, repos.Users, "alice", "alice@test.cd", "", user.RoleStudent)
	a, err := repos.Coursework.CreateAssignment(ctx, coursework.Assignment{Title: "A", Description: "d", MaxScore: 100, CreatedAt: time.Now()})
	require.NoError(t, err)
	sub, _, err := repos.Coursework.UpsertSubmission(ctx, coursework.Submission{UserID: alice.ID, AssignmentID: a.ID, CodeText: "x", SubmittedAt: time.Now()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repos.Coursework.ReviewSubmission(ctx, sub.ID, 40, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// only the first review moves the total, the others apply a zero delta
	usr, err := repos.Users.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, usr.TotalScore)
}

func testConsumeResetToken(t *testing.T, repos Repos) {
	ctx := context.Background()
	repo := repos.Users
	alice := CreateUser(t, repo, "alice", "alice@test.cd", "0ld-Pass!", user.RoleStudent)
	now := time.Now()

	_, err := repo.SetResetToken(ctx, alice.ID, "expired", now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = repo.ConsumeResetToken(ctx, "expired", []byte("x"), now)
	assert.Equal(t, user.ErrInvalidToken, errors.Cause(err))

	_, err = repo.SetResetToken(ctx, alice.ID, "tok", now.Add(time.Hour))
	require.NoError(t, err)
	_, err = repo.ConsumeResetToken(ctx, "other", []byte("x"), now)
	assert.Equal(t, user.ErrInvalidToken, errors.Cause(err))
	_, err = repo.ConsumeResetToken(ctx, "", []byte("x"), now)
	assert.Equal(t, user.ErrInvalidToken, errors.Cause(err))

	hash, err := user.HashPassword("n3w-Pass!")
	require.NoError(t, err)
	usr, err := repo.ConsumeResetToken(ctx, "tok", hash, now)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, usr.ID)
	assert.Empty(t, usr.ResetToken)
	assert.True(t, usr.ResetTokenExpiry.IsZero())
	assert.NoError(t, usr.CheckPassword("n3w-Pass!"))

	_, err = repo.ConsumeResetToken(ctx, "tok", []byte("x"), now)
	assert.Equal(t, user.ErrInvalidToken, errors.Cause(err))
	_, err = repo.GetUserByResetToken(ctx, "tok")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func testConcurrentResetTokenUse(t *testing.T, repos Repos) {
	ctx := context.Background()
	alice := CreateUser(t, repos.Users, "alice", "alice@test.cd", "", user.RoleStudent)
	_, err := repos.Users.SetResetToken(ctx, alice.ID, "tok", time.Now().Add(time.Hour))
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repos.Users.ConsumeResetToken(ctx, "tok", []byte(fmt.Sprintf("hash-%d", i)), time.Now())
		}(i)
	}
	wg.Wait()

	var accepted int
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.Equal(t, user.ErrInvalidToken, errors.Cause(err))
	}
	assert.Equal(t, 1, accepted)
}
