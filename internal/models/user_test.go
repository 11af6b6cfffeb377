package models

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

func TestUserBeforeSaveHashesPassword(t *testing.T) {
	BcryptCost = bcrypt.MinCost

	user := &User{Name: " Ana ", Email: " Ana@Example.COM "}
	user.SetPassword("secret123")

	require.NoError(t, user.BeforeSave(nil))
	require.Equal(t, "Ana", user.Name)
	require.Equal(t, "ana@example.com", user.Email)
	require.Equal(t, RoleUser, user.Role)
	require.NotEmpty(t, user.PasswordHash)
	require.NotEqual(t, "secret123", user.PasswordHash)
	require.True(t, user.CheckPassword("secret123"))
	require.False(t, user.CheckPassword("wrong"))

	hash := user.PasswordHash
	require.NoError(t, user.BeforeSave(nil))
	require.Equal(t, hash, user.PasswordHash, "an unchanged password is not rehashed")
}

func TestUserBeforeSaveRejectsShortOrMissingPassword(t *testing.T) {
	short := &User{Email: "a@example.com"}
	short.SetPassword("12345")
	require.ErrorIs(t, short.BeforeSave(nil), ErrPasswordTooShort)

	missing := &User{Email: "b@example.com"}
	require.Error(t, missing.BeforeSave(nil))
}

func TestUserHasPermission(t *testing.T) {
	admin := User{Role: RoleAdmin}
	require.True(t, admin.HasPermission(PermissionActivityCleanup))

	reader := User{Role: RoleUser, Permissions: datatypes.JSONSlice[string]{PermissionUsersRead}}
	require.True(t, reader.HasPermission(PermissionUsersRead))
	require.False(t, reader.HasPermission(PermissionUsersCreate))

	require.False(t, (&User{}).CheckPassword("anything"))
}

func TestIsValidRole(t *testing.T) {
	require.True(t, IsValidRole(RoleModerator))
	require.False(t, IsValidRole("Moderator"))
	require.False(t, IsValidRole(""))
}
