package domain

import (
	"strings"
	"time"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

// Identity is the caller resolved by the auth middleware.
type Identity struct {
	UserID  string `json:"userId"`
	IsAdmin bool   `json:"isAdmin"`
}

type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      UserRole   `json:"role"`
	Status    UserStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type Platform string

const (
	PlatformFacebook  Platform = "Facebook"
	PlatformTwitter   Platform = "Twitter"
	PlatformLinkedIn  Platform = "LinkedIn"
	PlatformInstagram Platform = "Instagram"
)

// Platforms lists the supported publishing targets.
var Platforms = []Platform{PlatformFacebook, PlatformTwitter, PlatformLinkedIn, PlatformInstagram}

// ParsePlatform matches a platform name case-insensitively. The empty string
// is accepted and returns an empty platform.
func ParsePlatform(raw string) (Platform, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", true
	}
	for _, p := range Platforms {
		if strings.EqualFold(string(p), raw) {
			return p, true
		}
	}
	return "", false
}

type Post struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Topic        string     `json:"topic"`
	Industry     string     `json:"industry"`
	Tone         string     `json:"tone"`
	Platform     Platform   `json:"platform"`
	Content      string     `json:"content"`
	ScheduleDate *time.Time `json:"scheduleDate,omitempty"`
	IsCanceled   bool       `json:"isCanceled,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type Persona struct {
	UserID    string         `json:"userId"`
	Persona   string         `json:"persona"`
	Answers   []SurveyAnswer `json:"answers,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type SurveyAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type UsagePurpose string

const (
	PurposePosts   UsagePurpose = "posts"
	PurposeTopics  UsagePurpose = "topics"
	PurposePersona UsagePurpose = "persona"
)

// TokenUsage is one append-only ledger row written per generation call.
type TokenUsage struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Purpose   UsagePurpose `json:"purpose"`
	Tokens    int          `json:"tokens"`
	Cost      float64      `json:"cost"`
	CreatedAt time.Time    `json:"createdAt"`
}

type CustomTopics struct {
	UserID    string    `json:"userId"`
	Topics    []string  `json:"topics"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PromptType string

const (
	PromptSystem PromptType = "system"
	PromptUser   PromptType = "user"
)

type Prompt struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      PromptType `json:"type"`
	Prompt    string     `json:"prompt"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type Plan struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency"`
	DurationDays  int       `json:"durationDays"`
	StripePriceID string    `json:"stripePriceId,omitempty"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type SubscriptionStatus int

const (
	SubscriptionActive   SubscriptionStatus = 1
	SubscriptionInactive SubscriptionStatus = 2
	SubscriptionCanceled SubscriptionStatus = 3
)

func (s SubscriptionStatus) String() string {
	switch s {
	case SubscriptionActive:
		return "active"
	case SubscriptionInactive:
		return "inactive"
	case SubscriptionCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

type Subscription struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"userId"`
	PlanID               string             `json:"planId"`
	StripeSubscriptionID string             `json:"stripeSubscriptionId"`
	StartDateTime        time.Time          `json:"startDateTime"`
	EndDateTime          time.Time          `json:"endDateTime"`
	CancelDateTime       *time.Time         `json:"cancelDateTime,omitempty"`
	Status               SubscriptionStatus `json:"status"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}
