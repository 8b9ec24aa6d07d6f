package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID        string `gorm:"primaryKey"`
	Email     string `gorm:"uniqueIndex;not null"`
	Role      string `gorm:"not null"`
	Status    string
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

type PostModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index"`
	Topic        string `gorm:"not null"`
	Industry     string
	Tone         string
	Platform     string
	Content      string     `gorm:"type:text;not null"`
	ScheduleDate *time.Time `gorm:"index"`
	IsCanceled   bool       `gorm:"not null"`
	CreatedAt    time.Time  `gorm:"not null;index"`
	UpdatedAt    time.Time  `gorm:"not null"`
}

type PersonaModel struct {
	UserID    string         `gorm:"primaryKey"`
	Persona   string         `gorm:"type:text;not null"`
	Answers   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

type TokenUsageModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Purpose   string    `gorm:"not null"`
	Tokens    int       `gorm:"not null"`
	Cost      float64   `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type CustomTopicsModel struct {
	UserID    string         `gorm:"primaryKey"`
	Topics    datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt time.Time      `gorm:"not null"`
}

type PromptModel struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"not null;uniqueIndex:idx_prompt_name_type"`
	Type      string    `gorm:"not null;uniqueIndex:idx_prompt_name_type"`
	Prompt    string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type PlanModel struct {
	ID            string `gorm:"primaryKey"`
	Name          string `gorm:"not null"`
	Price         float64
	Currency      string
	DurationDays  int    `gorm:"not null"`
	StripePriceID string `gorm:"index"`
	IsActive      bool   `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type SubscriptionModel struct {
	ID                   string `gorm:"primaryKey"`
	UserID               string `gorm:"not null;uniqueIndex"`
	PlanID               string
	StripeSubscriptionID string    `gorm:"index"`
	StartDateTime        time.Time `gorm:"not null"`
	EndDateTime          time.Time `gorm:"not null;index"`
	CancelDateTime       *time.Time
	Status               int `gorm:"not null;index"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type WebhookDeliveryModel struct {
	DeliveryKey string    `gorm:"primaryKey"`
	EventType   string    `gorm:"not null"`
	ProcessedAt time.Time `gorm:"not null"`
}
