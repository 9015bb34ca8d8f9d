package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/device-auth-service/internal/domain"
	"github.com/sandeepkv93/device-auth-service/internal/observability"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByLogin(ctx context.Context, login string) (*domain.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			observability.RecordRepositoryOperation(ctx, "user", "create", "conflict")
			return ErrDuplicate
		}
		observability.RecordRepositoryOperation(ctx, "user", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user", "create", "success")
	return nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	return r.first(ctx, "find_by_id", &u, r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByLogin resolves an identifier against username first, then email.
func (r *GormUserRepository) FindByLogin(ctx context.Context, login string) (*domain.User, error) {
	var u domain.User
	found, err := r.first(ctx, "find_by_login", &u, r.db.WithContext(ctx).Where("username = ?", login))
	if !errors.Is(err, ErrUserNotFound) {
		return found, err
	}
	u = domain.User{}
	return r.first(ctx, "find_by_login", &u, r.db.WithContext(ctx).Where("email = ?", login))
}

func (r *GormUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "exists_by_username", "username = ?", username)
}

func (r *GormUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "exists_by_email", "email = ?", email)
}

func (r *GormUserRepository) first(ctx context.Context, op string, u *domain.User, q *gorm.DB) (*domain.User, error) {
	if err := q.First(u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", op, "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", op, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", op, "success")
	return u, nil
}

func (r *GormUserRepository) exists(ctx context.Context, op, cond string, arg any) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.User{}).Where(cond, arg).Count(&count).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user", op, "error")
		return false, err
	}
	observability.RecordRepositoryOperation(ctx, "user", op, "success")
	return count > 0, nil
}
