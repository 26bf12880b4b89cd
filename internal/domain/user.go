package domain

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// Common validation errors
var (
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrEmptyEmail          = errors.New("email cannot be empty")
	ErrPasswordTooShort    = errors.New("password must be at least 6 characters long")
	ErrPasswordTooLong     = errors.New("password must be at most 72 characters long")
	ErrPasswordNoDigit     = errors.New("password must contain a digit")
	ErrPasswordNoLetter    = errors.New("password must contain a letter")
	ErrEmptyPassword       = errors.New("password cannot be empty")
	ErrEmptyHashedPassword = errors.New("hashed password cannot be empty")
)

const (
	minPasswordLength = 6
	// bcrypt ignores everything past 72 bytes
	maxPasswordLength = 72
)

// User represents a registered user.
// The ID is assigned by the store on insert.
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Password       string    `json:"-"` // Plaintext password, used temporarily during registration
	HashedPassword string    `json:"-"` // Never expose password hash in JSON
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserSummary is the public view of a user embedded in tasks and comments.
type UserSummary struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// Summary returns the public view of u.
func (u *User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, Email: u.Email}
}

// NewUser creates a new User with the given email and plaintext password.
// Returns an error if validation fails.
//
// The caller is responsible for hashing the password before storing the user.
func NewUser(email, password string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		Email:     strings.TrimSpace(email),
		Password:  password,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.Email == "" {
		return ErrEmptyEmail
	}
	if !validateEmailFormat(u.Email) {
		return ErrInvalidEmail
	}

	if u.Password != "" {
		return validatePassword(u.Password)
	}

	// Existing users loaded from the store only carry the hash
	if u.HashedPassword == "" {
		return ErrEmptyPassword
	}
	return nil
}

// validateEmailFormat requires a non-empty local part and a domain containing
// a dot that is neither leading nor trailing.
func validateEmailFormat(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}

	domainPart := email[at+1:]
	if strings.ContainsRune(domainPart, '@') {
		return false
	}
	dot := strings.IndexByte(domainPart, '.')
	return dot > 0 && !strings.HasSuffix(domainPart, ".")
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > maxPasswordLength {
		return ErrPasswordTooLong
	}

	var hasDigit, hasLetter bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLetter(r):
			hasLetter = true
		}
	}
	if !hasDigit {
		return ErrPasswordNoDigit
	}
	if !hasLetter {
		return ErrPasswordNoLetter
	}
	return nil
}
