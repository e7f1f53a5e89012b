package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 4
	DefaultRole       = "admin"
	providerName      = "credentials"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateUser      = errors.New("user already exists")
)

// User is a configured account. Exactly one of Password or PasswordHash is expected.
type User struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password-hash"`
	Role         string `mapstructure:"role"`
}

// Identity is the authenticated caller.
type Identity struct {
	Username string
	Role     string
	Provider string
}

type account struct {
	hash []byte
	role string
}

// Authenticator verifies username and password pairs against bcrypt hashes.
type Authenticator struct {
	users map[string]account
	cost  int
}

// New hashes plain passwords once and indexes users by name.
func New(users []User, cost int) (*Authenticator, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	a := &Authenticator{users: make(map[string]account, len(users)), cost: cost}
	for _, u := range users {
		if err := a.Add(u); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// Add registers one more user.
func (a *Authenticator) Add(u User) error {
	name := strings.TrimSpace(u.Username)
	if name == "" {
		return errors.New("username is required")
	}
	if _, ok := a.users[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateUser, name)
	}

	role := strings.TrimSpace(u.Role)
	if role == "" {
		role = DefaultRole
	}

	var hash []byte
	switch {
	case u.PasswordHash != "":
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return fmt.Errorf("user %s: invalid password hash: %w", name, err)
		}
		hash = []byte(u.PasswordHash)
	case strings.TrimSpace(u.Password) != "":
		if len([]rune(u.Password)) < MinPasswordLength {
			return fmt.Errorf("user %s: password must have at least %d characters", name, MinPasswordLength)
		}
		generated, err := bcrypt.GenerateFromPassword([]byte(u.Password), a.cost)
		if err != nil {
			return fmt.Errorf("user %s: hash password: %w", name, err)
		}
		hash = generated
	default:
		return fmt.Errorf("user %s: password is required", name)
	}

	a.users[name] = account{hash: hash, role: role}
	return nil
}

// Authenticate checks the credentials. Blank fields and passwords shorter than
// MinPasswordLength are rejected before any hash comparison.
func (a *Authenticator) Authenticate(username, password string) (Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" || len([]rune(password)) < MinPasswordLength {
		return Identity{}, ErrInvalidCredentials
	}

	acc, ok := a.users[username]
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return Identity{}, ErrInvalidCredentials
	}

	return Identity{Username: username, Role: acc.role, Provider: providerName}, nil
}

func (a *Authenticator) Len() int {
	return len(a.users)
}
