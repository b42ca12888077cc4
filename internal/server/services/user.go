// Package services holds the server business logic: accounts and
// credentials in UserService, token sessions in SessionService.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt rejects longer input.
	maxPasswordLength = 72
	passwordSpecials  = "@$!%*?&#"
)

// CredentialVerifier checks an email and password pair.
type CredentialVerifier interface {
	// Authenticate returns common.ErrInvalidCredentials both for an unknown
	// email and for a wrong password.
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}

// UserLookup resolves users; both methods return common.ErrUserNotFound.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	bcryptCost  int
	dummyHash   []byte
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *UserService {
	return newUserService(db, m, log, bcrypt.DefaultCost)
}

func newUserService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger, cost int) *UserService {
	// Unknown emails are checked against this hash too.
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		panic(err)
	}
	return &UserService{
		db:          db,
		repomanager: m,
		log:         log.With("module", "users"),
		bcryptCost:  cost,
		dummyHash:   dummy,
	}
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, common.ErrInvalidCredentials
	}

	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByEmail(ctx, normalizeEmail(email))
}

// Register creates an account with the default role.
func (s *UserService) Register(ctx context.Context, email, password, confirmation string) (*models.User, error) {
	email = normalizeEmail(email)

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password != confirmation {
		return nil, common.ErrPasswordMismatch
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var created *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		if _, err := repo.GetByEmail(ctx, email); err == nil {
			return common.ErrEmailAlreadyRegistered
		} else if !errors.Is(err, common.ErrUserNotFound) {
			return err
		}

		u, err := repo.Create(ctx, &models.User{Email: email, PasswordHash: string(hash)})
		if err != nil {
			return err
		}
		if err := repo.AddRole(ctx, u.ID, common.DefaultRole); err != nil {
			return err
		}
		u.Roles = []string{common.DefaultRole}
		created = u
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrEmailAlreadyRegistered) {
			return nil, err
		}
		return nil, fmt.Errorf("register user: %w", err)
	}

	s.log.Info(ctx, "user registered", "user_id", created.ID)
	return created, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", common.ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email is not valid", common.ErrValidation)
	}
	return nil
}

// validatePassword accepts ASCII letters, digits and passwordSpecials only.
// Each required class must appear at least once.
func validatePassword(p string) error {
	if len(p) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, minPasswordLength)
	}
	if len(p) > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d characters", common.ErrValidation, maxPasswordLength)
	}

	var upper, digit, special bool
	for _, r := range p {
		switch {
		case r > unicode.MaxASCII:
			return fmt.Errorf("%w: password contains an unsupported character", common.ErrValidation)
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		case unicode.IsLower(r):
		default:
			return fmt.Errorf("%w: password contains an unsupported character", common.ErrValidation)
		}
	}

	if !upper || !digit || !special {
		return fmt.Errorf("%w: password needs an uppercase letter, a digit and one of %s", common.ErrValidation, passwordSpecials)
	}
	return nil
}
