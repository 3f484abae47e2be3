package account

import (
	"context"
	"errors"
	"printflow/persistence"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

const DefaultAdminName = "admin"

// EnsureAdminAccount makes sure a superuser named admin exists. The password is only used on first creation.
func EnsureAdminAccount(initialPassword string) error {
	if initialPassword == "" {
		initialPassword = "admin123"
	}
	db := persistence.ActiveDataSourceManager.GormDB(context.Background())
	return db.Transaction(func(tx *gorm.DB) error {
		admin := User{}
		err := tx.Where("name = ?", DefaultAdminName).First(&admin).Error
		if err == nil {
			if !admin.IsSuperuser || !admin.IsActive {
				return tx.Model(&User{}).Where("id = ?", admin.ID).
					Updates(map[string]interface{}{"is_superuser": true, "is_staff": true, "is_active": true}).Error
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := HashPassword(initialPassword)
		if err != nil {
			return err
		}
		logrus.Infof("create initial superuser '%s'", DefaultAdminName)
		return tx.Create(&User{ID: 1, Name: DefaultAdminName, Secret: hashed, FirstName: "System", LastName: "Administrator",
			IsActive: true, IsStaff: true, IsSuperuser: true, JoinTime: time.Now()}).Error
	})
}
