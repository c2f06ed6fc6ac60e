package models

import "time"

type ImportJob struct {
	ID             int64   `gorm:"primaryKey;autoIncrement"`
	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex"`
	Resource       string  `gorm:"type:varchar(16);not null"`
	Status         string  `gorm:"type:varchar(16);index;not null"`
	FilePath       string  `gorm:"type:text;not null"`
	TotalRecords   int64   `gorm:"not null;default:0"`
	SuccessCount   int64   `gorm:"not null;default:0"`
	ErrorCount     int64   `gorm:"not null;default:0"`
	SkippedCount   int64   `gorm:"not null;default:0"`
	ErrorMessage   *string `gorm:"type:text"`
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ImportJob) TableName() string { return "import_jobs" }

type ExportJob struct {
	ID             int64   `gorm:"primaryKey;autoIncrement"`
	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex"`
	Resource       string  `gorm:"type:varchar(16);not null"`
	Status         string  `gorm:"type:varchar(16);index;not null"`
	Format         string  `gorm:"type:varchar(16);not null"`
	Filters        *string `gorm:"type:text"` // JSON object
	Fields         *string `gorm:"type:text"` // JSON array
	FilePath       *string `gorm:"type:text"`
	DownloadURL    *string `gorm:"type:text"`
	TotalRecords   int64   `gorm:"not null;default:0"`
	SuccessCount   int64   `gorm:"not null;default:0"`
	ErrorCount     int64   `gorm:"not null;default:0"`
	ErrorMessage   *string `gorm:"type:text"`
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ExportJob) TableName() string { return "export_jobs" }

// ImportError rows are append-only, one per failed record.
type ImportError struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	ImportJobID  int64  `gorm:"index;not null"`
	RecordIndex  int64  `gorm:"not null"`
	RecordData   string `gorm:"type:text"`
	ErrorMessage string `gorm:"type:text;not null"`
	ErrorType    string `gorm:"type:varchar(32);not null"`
	CreatedAt    time.Time
}

func (ImportError) TableName() string { return "import_errors" }
