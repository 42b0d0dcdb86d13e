package main

import (
	"context"
	"testing"

	"github.com/lkmo/lkmo-backend/internal/models"
	"github.com/lkmo/lkmo-backend/internal/services"
	"github.com/lkmo/lkmo-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureAdminCreates(t *testing.T) {
	users := services.NewUserDirectory(testutil.NewDB(t))
	ctx := context.Background()

	_, _, err := ensureAdmin(ctx, users, "ops@lkmo.id", "Ops", "")
	assert.Error(t, err)

	user, created, err := ensureAdmin(ctx, users, "Ops@LKMO.id", "Ops", "secret1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.RoleAdmin, user.Role)

	emails, err := users.AdminEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@lkmo.id"}, emails)
}

func TestEnsureAdminPromotes(t *testing.T) {
	users := services.NewUserDirectory(testutil.NewDB(t))
	ctx := context.Background()
	require.NoError(t, users.Create(ctx, &models.User{Name: "Rina", Email: "rina@lkmo.id"}, "secret1"))

	user, created, err := ensureAdmin(ctx, users, "rina@lkmo.id", "ignored", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Rina", user.Name)

	reloaded, err := users.FindByEmail(ctx, "rina@lkmo.id")
	require.NoError(t, err)
	assert.True(t, reloaded.IsAdmin())
	assert.NoError(t, reloaded.CheckPassword("secret1"))

	_, _, err = ensureAdmin(ctx, users, "rina@lkmo.id", "", "abc")
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["create-admin"])
	assert.True(t, names["purge-challenges"])
}
