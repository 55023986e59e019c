// Package directory resolves users by id or email.
package directory

import (
	"context"
	"errors"

	"messenger-sync/model"
	"messenger-sync/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Directory struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// FindUserByEmail matches the email case-insensitively.
func (d *Directory) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, utils.Validation("email is required")
	}

	user := new(model.User)
	err := d.db.WithContext(ctx).Where("email = ?", email).First(user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("user not found")
	}
	if err != nil {
		return nil, utils.Transient("find user by email", err)
	}
	return user, nil
}

func (d *Directory) Get(ctx context.Context, id string) (*model.User, error) {
	user := new(model.User)
	err := d.db.WithContext(ctx).Where("id = ?", id).First(user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("user not found")
	}
	if err != nil {
		return nil, utils.Transient("get user", err)
	}
	return user, nil
}

func (d *Directory) List(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	if err := d.db.WithContext(ctx).Order("email asc").Find(&users).Error; err != nil {
		return nil, utils.Transient("list users", err)
	}
	return users, nil
}

// Upsert seeds or refreshes a profile handed over by the identity provider.
// Credentials are never touched.
func (d *Directory) Upsert(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		return utils.Validation("user id is required")
	}
	user.Email = model.NormalizeEmail(user.Email)
	if user.Email == "" {
		return utils.Validation("email is required")
	}
	if user.Role == "" {
		user.Role = "user"
	}

	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "first_name", "last_name", "display_name", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return utils.Transient("upsert user", err)
	}
	return nil
}
