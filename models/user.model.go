package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	ProfileImage    string `gorm:"default:''"`
	Name            string `gorm:"default:''"`
	Email           string `gorm:"unique;not null"`
	Mobile          string `gorm:"default:''"`
	Role            string `gorm:"default:'USER'"` // USER, ADMIN
	Password        string `gorm:"not null" json:"-"`
	Gender          string `gorm:"default:''"`
	Country         string `gorm:"default:''"`
	DisplayCurrency string `gorm:"default:'USD'"` // currency used on dashboards
	IsEmailVerified bool   `gorm:"default:false"`
	LastLogin       time.Time
	IsDeleted       bool `gorm:"default:false"`
}
