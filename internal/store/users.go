package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiwari-pos/ordering/internal/order"
)

// ErrEmailTaken is returned when a user with the same email exists.
var ErrEmailTaken = errors.New("email already registered")

// User is an account known to the identity provider.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Users stores accounts for login.
type Users interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, u User) (User, error)
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var (
		u  User
		id uuid.UUID
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id, email, full_name, password_hash, role, created_at
		FROM users WHERE email = $1`, normalizeEmail(email),
	).Scan(&id, &u.Email, &u.FullName, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return User{}, storeErr("get user", err)
	}
	u.ID = id.String()
	return u, nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return User{}, order.ErrNotFound
	}
	u := User{ID: uid.String()}
	err = p.pool.QueryRow(ctx, `
		SELECT email, full_name, password_hash, role, created_at
		FROM users WHERE id = $1`, uid,
	).Scan(&u.Email, &u.FullName, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return User{}, storeErr("get user", err)
	}
	return u, nil
}

func (p *Postgres) CreateUser(ctx context.Context, u User) (User, error) {
	var id uuid.UUID
	err := p.pool.QueryRow(ctx, `
		INSERT INTO users (email, full_name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		normalizeEmail(u.Email), u.FullName, u.PasswordHash, u.Role,
	).Scan(&id, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return User{}, ErrEmailTaken
		}
		return User{}, storeErr("create user", err)
	}
	u.ID = id.String()
	u.Email = normalizeEmail(u.Email)
	return u, nil
}

// MemoryUsers is an in-process Users store.
type MemoryUsers struct {
	mu      sync.RWMutex
	byEmail map[string]User
}

// NewMemoryUsers creates an empty MemoryUsers.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byEmail: make(map[string]User)}
}

func (m *MemoryUsers) GetUserByEmail(ctx context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return User{}, order.ErrNotFound
	}
	return u, nil
}

func (m *MemoryUsers) GetUserByID(ctx context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, order.ErrNotFound
}

func (m *MemoryUsers) CreateUser(ctx context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = normalizeEmail(u.Email)
	if _, ok := m.byEmail[u.Email]; ok {
		return User{}, ErrEmailTaken
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	m.byEmail[u.Email] = u
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
