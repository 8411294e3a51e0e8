package store

import (
	"context"
	"testing"

	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	users := NewMemoryUsers()
	staff := StaffAccount{Email: "admin@kiwari.com", FullName: "Admin", PasswordHash: "hash"}

	require.NoError(t, Seed(ctx, mem, users, staff))
	require.NoError(t, Seed(ctx, mem, users, staff))

	u, err := users.GetUserByEmail(ctx, "admin@kiwari.com")
	require.NoError(t, err)
	assert.Equal(t, enum.UserRoleStaff, u.Role)

	foods, err := mem.ListFoods(ctx)
	require.NoError(t, err)
	assert.Len(t, foods, len(DemoMenu()))
	for _, f := range foods {
		assert.NotEmpty(t, f.ID)
		assert.True(t, f.Price.IsPositive(), f.Name)
	}
}
