package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/helyotools/dbsentinel/internal/models"
)

// ErrUserExists is returned by AddUser for a duplicate username.
var ErrUserExists = errors.New("user already exists")

// dummyHash is compared against when the user does not exist.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dbsentinel-dummy"), bcrypt.MinCost)

// UserStore keeps operators in a local sqlite database.
type UserStore struct {
	db *gorm.DB
}

// OpenUserStore opens (creating if needed) the sqlite user database at path.
func OpenUserStore(path string) (*UserStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening user database: %w", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return &UserStore{db: db}, nil
}

// AddUser stores a new operator with a bcrypt-hashed password.
func (s *UserStore) AddUser(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" {
		return nil, errors.New("username must not be empty")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	u := &models.User{Username: username, PasswordHash: hash}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// SetPassword replaces the password of an existing operator.
func (s *UserStore) SetPassword(ctx context.Context, username, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %q not found", username)
	}
	return nil
}

// Authenticate implements Authenticator.
func (s *UserStore) Authenticate(ctx context.Context, username, password string) error {
	var u models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Close releases the database handle.
func (s *UserStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
