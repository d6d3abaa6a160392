package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/culturemaker/cmk-api/internal/domain/auth"
	apperrors "github.com/culturemaker/cmk-api/internal/errors"
	"github.com/culturemaker/cmk-api/internal/ports"
	"github.com/culturemaker/cmk-api/internal/testutil"
)

func TestAccountRepo_RegisterAndResolve(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	accounts := NewAccountRepo(db)
	dir := NewDirectoryRepo(db)
	ctx := context.Background()

	rec, err := accounts.Register(ctx, domainauth.Registration{
		Kind:         domainauth.DirectorySubAdmins,
		Email:        "Lead@ACME.test",
		PasswordHash: "hash",
		FirstName:    "Lea",
		LastName:     "Dahl",
		CompanyRef:   "acme",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "lead@acme.test", rec.Email)
	assert.Equal(t, "pending", rec.Status)
	assert.Nil(t, rec.ApprovedAt)

	byID, err := dir.Lookup(ctx, domainauth.DirectorySubAdmins, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byID.ID)

	byEmail, err := dir.SubAdminByEmail(ctx, " LEAD@acme.test")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byEmail.ID)

	cred, err := accounts.GetByEmail(ctx, "lead@acme.test")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, cred.PrincipalID)
	assert.Equal(t, "hash", cred.PasswordHash)
}

func TestAccountRepo_RegisterDuplicateEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	accounts := NewAccountRepo(db)
	ctx := context.Background()
	reg := domainauth.Registration{
		Kind: domainauth.DirectoryEmployees, Email: "dup@acme.test", PasswordHash: "h", FirstName: "D", LastName: "U",
	}

	_, err := accounts.Register(ctx, reg)
	require.NoError(t, err)

	// Same email in the other directory collides on the credential.
	reg.Kind = domainauth.DirectorySubAdmins
	reg.CompanyRef = "acme"
	_, err = accounts.Register(ctx, reg)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, "email", apperrors.GetField(err))

	_, err = NewDirectoryRepo(db).SubAdminByEmail(ctx, "dup@acme.test")
	assert.ErrorIs(t, err, domainauth.ErrRecordNotFound, "failed registration leaves no record")
}

func TestAccountRepo_SetStatusAndList(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	accounts := NewAccountRepo(db)
	ctx := context.Background()

	var ids []string
	for _, email := range []string{"a@acme.test", "b@acme.test"} {
		rec, err := accounts.Register(ctx, domainauth.Registration{
			Kind: domainauth.DirectoryEmployees, Email: email, PasswordHash: "h", FirstName: "E", LastName: "M",
		})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	approved, err := accounts.SetStatus(ctx, domainauth.DirectoryEmployees, ids[0], domainauth.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, "approved", approved.Status)
	assert.NotNil(t, approved.ApprovedAt)

	pending, err := accounts.List(ctx, ports.ListAccountsOptions{
		Kind: domainauth.DirectoryEmployees, Status: domainauth.StatusPending,
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[1], pending[0].ID)

	rejected, err := accounts.SetStatus(ctx, domainauth.DirectoryEmployees, ids[0], domainauth.StatusRejected)
	require.NoError(t, err)
	assert.Nil(t, rejected.ApprovedAt)

	_, err = accounts.SetStatus(ctx, domainauth.DirectoryEmployees, "missing", domainauth.StatusApproved)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAccountRepo_UpsertAdminAndUpdateName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	accounts := NewAccountRepo(db)
	dir := NewDirectoryRepo(db)
	ctx := context.Background()

	require.NoError(t, accounts.UpsertAdmin(ctx, domainauth.RoleRecord{ID: "a1", Email: "root@acme.test"}, "h"))
	require.NoError(t, accounts.UpsertAdmin(ctx, domainauth.RoleRecord{ID: "a1", Email: "root@acme.test", FirstName: "Ro"}, ""))

	rec, err := dir.Lookup(ctx, domainauth.DirectoryAdmins, "a1")
	require.NoError(t, err)
	assert.Equal(t, "approved", rec.Status)
	assert.Equal(t, "Ro", rec.FirstName)
	assert.Empty(t, rec.CompanyRef)

	updated, err := accounts.UpdateName(ctx, domainauth.DirectoryAdmins, "a1", "Root", "User")
	require.NoError(t, err)
	assert.Equal(t, "User", updated.LastName)

	cred, err := accounts.GetByEmail(ctx, "root@acme.test")
	require.NoError(t, err)
	assert.Equal(t, "a1", cred.PrincipalID)
}

func TestDirectoryRepo_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	dir := NewDirectoryRepo(db)
	ctx := context.Background()
	for _, kind := range []domainauth.DirectoryKind{
		domainauth.DirectoryAdmins, domainauth.DirectorySubAdmins, domainauth.DirectoryEmployees,
	} {
		_, err := dir.Lookup(ctx, kind, "nobody")
		assert.ErrorIs(t, err, domainauth.ErrRecordNotFound)
	}
	_, err := dir.Lookup(ctx, domainauth.DirectoryKind("users"), "nobody")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domainauth.ErrRecordNotFound)
}
