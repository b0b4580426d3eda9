package storage

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/s/eduPortal/internal/models"
)

// ErrNotFound - записи нет.
var ErrNotFound = errors.New("record not found")

// HashPassword - пароли в базе dev-бэкенда хранятся только как bcrypt-хеш.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SaveUser находит пользователя по uid или email; если найден - обновляет, иначе создает.
func SaveUser(db *gorm.DB, userInfo models.User) (models.User, error) {
	var existingUser models.User

	email := strings.TrimSpace(userInfo.Email)
	var query *gorm.DB
	switch {
	case userInfo.UID != "" && email != "":
		query = db.Where("uid = ?", userInfo.UID).Or("LOWER(email) = ?", strings.ToLower(email))
	case userInfo.UID != "":
		query = db.Where("uid = ?", userInfo.UID)
	default:
		query = db.Where("LOWER(email) = ?", strings.ToLower(email))
	}
	result := query.First(&existingUser)

	switch {
	case result.Error == nil:
		// Пользователь уже есть: привязываем uid и обновляем имя.
		// Роль и пароль здесь не меняются.
		updates := map[string]interface{}{}
		if userInfo.UID != "" && existingUser.UID == "" {
			updates["uid"] = userInfo.UID
		}
		if name := strings.TrimSpace(userInfo.Name); name != "" {
			updates["name"] = name
		}
		if len(updates) > 0 {
			if err := db.Model(&existingUser).Updates(updates).Error; err != nil {
				return models.User{}, err
			}
			if err := db.Where("id = ?", existingUser.ID).First(&existingUser).Error; err != nil {
				return models.User{}, err
			}
		}
		return existingUser.SessionRecord(), nil

	case errors.Is(result.Error, gorm.ErrRecordNotFound):
		if userInfo.Role == "" {
			userInfo.Role = models.RoleStudent
		}
		if userInfo.Password != "" {
			hash, err := HashPassword(userInfo.Password)
			if err != nil {
				return models.User{}, err
			}
			userInfo.Password = hash
		}
		userInfo.ID = 0
		userInfo.Email = email
		if err := db.Create(&userInfo).Error; err != nil {
			return models.User{}, err
		}
		return userInfo.SessionRecord(), nil

	default:
		return models.User{}, result.Error
	}
}

// FindByCredentials - пользователь с таким email и паролем, иначе ErrNotFound.
func FindByCredentials(db *gorm.DB, email, password string) (models.User, error) {
	var u models.User
	err := db.Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	if u.Password == "" || bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return models.User{}, ErrNotFound
	}
	return u.SessionRecord(), nil
}

// UpdateProfile меняет имя и, если передан, аватар.
func UpdateProfile(db *gorm.DB, id models.ID, name, avatar string) (models.User, error) {
	var u models.User
	if err := db.Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	updates := map[string]interface{}{}
	if name = strings.TrimSpace(name); name != "" {
		updates["name"] = name
	}
	if avatar != "" {
		updates["avatar"] = avatar
	}
	if len(updates) > 0 {
		if err := db.Model(&u).Updates(updates).Error; err != nil {
			return models.User{}, err
		}
		if err := db.Where("id = ?", id).First(&u).Error; err != nil {
			return models.User{}, err
		}
	}
	return u.SessionRecord(), nil
}

// DeleteUser удаляет пользователя вместе с записями на курсы и прогрессом.
// Переписка остается: собеседники продолжают ее видеть.
func DeleteUser(db *gorm.DB, id models.ID) error {
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Enrollment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.LessonProgress{}).Error; err != nil {
			return err
		}
		return tx.Where("id_user = ?", id).Delete(&models.GroupMember{}).Error
	})
}
