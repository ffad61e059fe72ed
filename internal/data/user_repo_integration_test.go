package data

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	apperrors "github.com/wallmag/wallmag-api/internal/errors"
	"github.com/wallmag/wallmag-api/internal/testutil"
)

func createTestUser(t *testing.T, repo *UserRepo, email string, roles ...domainauth.Role) *model.User {
	t.Helper()
	u, err := repo.Create(context.Background(), model.CreateUserRequest{Email: email, Name: "Test " + email, Roles: roles})
	require.NoError(t, err)
	return u
}

func TestUserRepo_Integration_CreateAndGet(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewUserRepo(db)
		ctx := context.Background()

		u := createTestUser(t, repo, "  Writer@Example.com ", domainauth.RolePublisher, domainauth.RoleEditor)
		assert.Equal(t, "writer@example.com", u.Email)
		assert.True(t, u.Active)
		assert.ElementsMatch(t, []domainauth.Role{domainauth.RoleEditor, domainauth.RolePublisher}, u.Roles)
		assert.Nil(t, u.LastLoginAt)

		byID, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, byID.Email)

		byEmail, err := repo.GetByEmail(ctx, "WRITER@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)

		_, err = repo.Create(ctx, model.CreateUserRequest{Email: "writer@example.com"})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err), "duplicate email should conflict, got %v", err)

		_, err = repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestUserRepo_Integration_FindOrCreateFromProvider(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewUserRepo(db)
		ctx := context.Background()

		ident := testutil.NewIdentity("google-sub-1", "New.Reader@example.com").
			WithName("Reader").
			WithPicture("https://example.com/p.png").
			Build()

		u, created, err := repo.FindOrCreateFromProvider(ctx, ident)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "new.reader@example.com", u.Email)
		assert.Equal(t, []domainauth.Role{domainauth.RoleUser}, u.Roles)
		assert.Equal(t, "google-sub-1", u.GoogleID)

		again, created, err := repo.FindOrCreateFromProvider(ctx, ident)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, u.ID, again.ID)
	})
}

func TestUserRepo_Integration_LinksExistingEmail(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewUserRepo(db)
		ctx := context.Background()

		pre := createTestUser(t, repo, "staff@example.com", domainauth.RoleEditor)

		u, created, err := repo.FindOrCreateFromProvider(ctx, testutil.NewIdentity("google-sub-2", "staff@example.com").Build())
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, pre.ID, u.ID)
		assert.Equal(t, "google-sub-2", u.GoogleID)
		assert.Equal(t, []domainauth.Role{domainauth.RoleEditor}, u.Roles, "linking keeps the existing role set")
	})
}

func TestUserRepo_Integration_UpdateRolesAndActive(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewUserRepo(db)
		ctx := context.Background()
		u := createTestUser(t, repo, "promote@example.com")

		updated, err := repo.UpdateRoles(ctx, u.ID, []domainauth.Role{domainauth.RoleAdmin})
		require.NoError(t, err)
		assert.Equal(t, []domainauth.Role{domainauth.RoleAdmin}, updated.Roles)
		assert.False(t, updated.UpdatedAt.Before(u.UpdatedAt))

		_, err = repo.UpdateRoles(ctx, u.ID, []domainauth.Role{domainauth.RoleAdmin, domainauth.RoleEditor})
		assert.True(t, apperrors.IsValidation(err))

		off, err := repo.SetActive(ctx, u.ID, false)
		require.NoError(t, err)
		assert.False(t, off.Active)

		_, err = repo.SetActive(ctx, "11111111-1111-1111-1111-111111111111", true)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestUserRepo_Integration_UpdateLastLogin(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		clock := testutil.NewClock(testutil.TestTime())
		repo := NewUserRepoWithClock(db, clock.Now)
		ctx := context.Background()
		u := createTestUser(t, repo, "login@example.com")

		require.NoError(t, repo.UpdateLastLogin(ctx, u.ID, time.Time{}))
		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastLoginAt)
		assert.True(t, got.LastLoginAt.Equal(testutil.TestTime()))

		clock.Advance(time.Hour)
		require.NoError(t, repo.UpdateLastLogin(ctx, u.ID, time.Time{}))
		got, err = repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, got.LastLoginAt.Equal(testutil.TestTime().Add(time.Hour)))

		err = repo.UpdateLastLogin(ctx, "22222222-2222-2222-2222-222222222222", time.Now())
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestUserRepo_Integration_ListAndSearch(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewUserRepo(db)
		ctx := context.Background()

		createTestUser(t, repo, "admin@example.com", domainauth.RoleAdmin)
		createTestUser(t, repo, "editor@example.com", domainauth.RoleEditor)
		createTestUser(t, repo, "reader@example.com")
		gone := createTestUser(t, repo, "gone_editor@example.com", domainauth.RoleEditor)
		_, err := repo.SetActive(ctx, gone.ID, false)
		require.NoError(t, err)

		staff, err := repo.List(ctx, model.UserListOptions{Roles: model.PrivilegedRoles()})
		require.NoError(t, err)
		emails := make([]string, len(staff))
		for i, u := range staff {
			emails[i] = u.Email
		}
		assert.Equal(t, []string{"admin@example.com", "editor@example.com"}, emails)

		all, err := repo.List(ctx, model.UserListOptions{IncludeInactive: true})
		require.NoError(t, err)
		assert.Len(t, all, 4)

		found, err := repo.Search(ctx, "EDITOR", 10)
		require.NoError(t, err)
		require.Len(t, found, 1, "inactive users are excluded from search")
		assert.Equal(t, "editor@example.com", found[0].Email)

		found, err = repo.Search(ctx, "_", 10)
		require.NoError(t, err)
		assert.Len(t, found, 0, "LIKE wildcards in the query are matched literally")
	})
}

func TestUserRepo_Integration_ConcurrentFindOrCreate(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewUserRepo(db)
		ctx := context.Background()

		const numWorkers = 8
		ids := make(chan string, numWorkers)
		errs := make(chan error, numWorkers)
		var wg sync.WaitGroup
		for i := range numWorkers {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				ident := testutil.NewIdentity("race-sub", "race@example.com").WithName(fmt.Sprintf("worker %d", n)).Build()
				u, _, err := repo.FindOrCreateFromProvider(ctx, ident)
				if err != nil {
					errs <- err
					return
				}
				ids <- u.ID
			}(i)
		}
		wg.Wait()
		close(ids)
		close(errs)

		seen := map[string]struct{}{}
		for id := range ids {
			seen[id] = struct{}{}
		}
		for err := range errs {
			// A losing racer may hit the google_id unique constraint; it must surface as a conflict.
			assert.True(t, apperrors.IsConflict(err), "unexpected error: %v", err)
		}
		assert.Len(t, seen, 1, "all workers resolve to one user")
	})
}
