package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otobox/otobox-be/internal/models"
	"golang.org/x/crypto/bcrypt"
	"modernc.org/sqlite"
)

// SQLite extended result code for a UNIQUE constraint violation.
const sqliteConstraintUnique = 2067

// AccountServiceProvider defines the interface for account services.
type AccountServiceProvider interface {
	Register(email, password, displayName string) (models.Account, error)
	Authenticate(email, password string) (models.Account, error)
	GetByID(id string) (models.Account, error)
}

// AccountService provides registration and credential verification.
type AccountService struct {
	db *sql.DB
}

// NewAccountService creates a new AccountService.
func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{db: db}
}

// Register creates a new account, hashing the password. The email's
// uniqueness is enforced by the database constraint, which closes the race
// between a lookup and the insert.
func (s *AccountService) Register(email, password, displayName string) (models.Account, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to hash password: %w", err)
	}

	account := models.Account{
		ID:          uuid.New().String(),
		Email:       normalizeEmail(email),
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}

	stmt, err := s.db.Prepare("INSERT INTO accounts(id, email, password_hash, display_name, created_at) VALUES(?, ?, ?, ?, ?)")
	if err != nil {
		return models.Account{}, err
	}
	defer stmt.Close()

	_, err = stmt.Exec(account.ID, account.Email, string(hashedPassword), account.DisplayName, account.CreatedAt)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqliteConstraintUnique {
			return models.Account{}, ErrDuplicateAccount
		}
		return models.Account{}, err
	}

	return account, nil
}

// Authenticate verifies a credential pair. An unknown email and a bad
// password are indistinguishable to the caller.
func (s *AccountService) Authenticate(email, password string) (models.Account, error) {
	var account models.Account
	row := s.db.QueryRow(
		"SELECT id, email, password_hash, display_name, created_at FROM accounts WHERE email = ?",
		normalizeEmail(email),
	)
	err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.DisplayName, &account.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Account{}, ErrInvalidCredentials
		}
		return models.Account{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return models.Account{}, ErrInvalidCredentials
	}

	// Don't send the password hash to the client
	account.PasswordHash = ""
	return account, nil
}

// GetByID retrieves a single account by its ID.
func (s *AccountService) GetByID(id string) (models.Account, error) {
	var account models.Account
	row := s.db.QueryRow("SELECT id, email, display_name, created_at FROM accounts WHERE id = ?", id)
	err := row.Scan(&account.ID, &account.Email, &account.DisplayName, &account.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, err
	}
	return account, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
