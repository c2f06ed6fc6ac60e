package models

import "time"

type User struct {
	ID         int64   `gorm:"primaryKey;autoIncrement"`
	ExternalID *string `gorm:"type:varchar(128);uniqueIndex"`
	Email      string  `gorm:"size:320;not null;uniqueIndex"`
	Name       string  `gorm:"size:255;not null"`
	Role       *string `gorm:"size:64"`
	Active     bool    `gorm:"not null;default:true"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (User) TableName() string { return "users" }

type Article struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	ExternalID  *string `gorm:"type:varchar(128);uniqueIndex"`
	Slug        string  `gorm:"size:255;not null;uniqueIndex"`
	Title       string  `gorm:"size:512;not null"`
	Description string  `gorm:"type:text;not null"`
	Body        string  `gorm:"type:text;not null"`
	Status      string  `gorm:"size:32"`
	PublishedAt *time.Time
	AuthorID    int64 `gorm:"index;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Article) TableName() string { return "articles" }

type Comment struct {
	ID         int64   `gorm:"primaryKey;autoIncrement"`
	ExternalID *string `gorm:"type:varchar(128);uniqueIndex"`
	Body       string  `gorm:"type:text;not null"`
	ArticleID  int64   `gorm:"index;not null"`
	AuthorID   int64   `gorm:"index;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Comment) TableName() string { return "comments" }
