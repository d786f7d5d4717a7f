package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"taskd/app/models"
)

var (
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when an account with the email already exists.
	ErrEmailTaken = errors.New("an account with this email already exists")
)

// Account is a persisted user account.
type Account struct {
	ID           string `gorm:"primaryKey;type:text"`
	Email        string `gorm:"uniqueIndex;not null;type:text"`
	Name         string `gorm:"not null;type:text"`
	PasswordHash string `gorm:"not null;type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for accounts.
func (Account) TableName() string {
	return "users"
}

// User returns the public view of the account.
func (r *Account) User() *models.User {
	return &models.User{
		ID:        r.ID,
		Email:     r.Email,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// UserRepository handles account persistence using GORM.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Migrate creates or updates the accounts table.
func (r *UserRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Account{})
}

// Create inserts a new account.
func (r *UserRepository) Create(ctx context.Context, user *Account) error {
	result := r.db.WithContext(ctx).Create(user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return result.Error
	}
	return nil
}

// FindByID finds an account by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByEmail finds an account by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return r.first(ctx, "email = ?", email)
}

// EmailExists checks if an account with the given email exists.
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&Account{}).Where("email = ?", email).Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// UpdatePassword replaces the stored password hash of an account.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	result := r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).Update("password_hash", hash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Ping checks the database connection.
func (r *UserRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *UserRepository) first(ctx context.Context, query string, arg string) (*Account, error) {
	var user Account
	result := r.db.WithContext(ctx).First(&user, query, arg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}
