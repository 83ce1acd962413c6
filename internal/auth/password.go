package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Passwords hashes new passwords and checks candidates against stored hashes.
type Passwords interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// BcryptPasswords implements Passwords with bcrypt.
type BcryptPasswords struct {
	cost int
}

// NewBcryptPasswords returns a hasher using cost, or bcrypt.DefaultCost when cost is out of range.
func NewBcryptPasswords(cost int) BcryptPasswords {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptPasswords{cost: cost}
}

func (b BcryptPasswords) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (b BcryptPasswords) Verify(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
