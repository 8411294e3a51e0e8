package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// StaffAccount is the first staff login created by Seed. PasswordHash is
// a bcrypt hash.
type StaffAccount struct {
	Email        string
	FullName     string
	PasswordHash string
}

// DemoMenu is the starter menu.
func DemoMenu() []order.Food {
	price := decimal.RequireFromString
	return []order.Food{
		{Name: "Nasi Bakar Ayam", Description: "Grilled rice parcel with spiced chicken", Price: price("12.99"), Category: "Mains", Available: true},
		{Name: "Nasi Bakar Cumi", Description: "Grilled rice parcel with squid", Price: price("14.50"), Category: "Mains", Available: true},
		{Name: "Ayam Penyet", Description: "Smashed fried chicken with sambal", Price: price("11.90"), Category: "Mains", Available: true},
		{Name: "Tahu Tempe", Description: "Fried tofu and tempeh", Price: price("4.50"), Category: "Sides", Available: true},
		{Name: "Es Teh Manis", Description: "Sweet iced tea", Price: price("2.50"), Category: "Drinks", Available: true},
		{Name: "Es Jeruk", Description: "Fresh iced orange", Price: price("3.50"), Category: "Drinks", Available: true},
	}
}

// Seed creates the staff account and the demo menu. It is idempotent: an
// existing account is kept and the menu is only written to an empty catalog.
func Seed(ctx context.Context, catalog Catalog, users Users, staff StaffAccount) error {
	existing, err := users.GetUserByEmail(ctx, staff.Email)
	switch {
	case err == nil:
		log.Info().Str("email", existing.Email).Str("id", existing.ID).Msg("staff user already exists, skipping")
	case errors.Is(err, order.ErrNotFound):
		u, err := users.CreateUser(ctx, User{
			Email:        staff.Email,
			FullName:     staff.FullName,
			PasswordHash: staff.PasswordHash,
			Role:         enum.UserRoleStaff,
		})
		if err != nil {
			return fmt.Errorf("create staff user: %w", err)
		}
		log.Info().Str("email", u.Email).Str("id", u.ID).Msg("created staff user")
	default:
		return fmt.Errorf("check staff user: %w", err)
	}

	foods, err := catalog.ListFoods(ctx)
	if err != nil {
		return fmt.Errorf("list foods: %w", err)
	}
	if len(foods) > 0 {
		log.Info().Int("foods", len(foods)).Msg("menu already seeded, skipping")
		return nil
	}
	for _, f := range DemoMenu() {
		if _, err := catalog.CreateFood(ctx, f); err != nil {
			return fmt.Errorf("create food %q: %w", f.Name, err)
		}
	}
	log.Info().Int("foods", len(DemoMenu())).Msg("seeded menu")
	return nil
}
