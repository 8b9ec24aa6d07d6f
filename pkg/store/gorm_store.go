package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"personapost/pkg/domain"
)

const migrateLockID int64 = 51731207

type GormStoreOptions struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type GormStoreOption func(*GormStoreOptions)

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.MaxOpenConns = n
	}
}

// WithConnMaxLifetime recycles pooled connections after d.
func WithConnMaxLifetime(d time.Duration) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.ConnMaxLifetime = d
	}
}

// GormStore implements Store using GORM + Postgres. The connection is opened
// and migrated on first use; a failed attempt is retried by the next call.
type GormStore struct {
	dsn  string
	opts GormStoreOptions

	mu sync.Mutex
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore prepares a store for dsn without connecting.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database dsn required")
	}
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	return &GormStore{dsn: dsn, opts: opts}, nil
}

// NewGormStoreFromDB wraps an already opened handle. Migrations are not run.
func NewGormStoreFromDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) conn(ctx context.Context) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		db, err := s.open()
		if err != nil {
			return nil, err
		}
		s.db = db
	}
	return s.db.WithContext(ctx), nil
}

func (s *GormStore) open() (*gorm.DB, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(s.dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if s.opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(s.opts.MaxOpenConns)
	}
	if s.opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(s.opts.ConnMaxLifetime)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&PostModel{},
			&PersonaModel{},
			&TokenUsageModel{},
			&CustomTopicsModel{},
			&PromptModel{},
			&PlanModel{},
			&SubscriptionModel{},
			&WebhookDeliveryModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Ping checks database reachability, connecting if needed.
func (s *GormStore) Ping(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the pool if it was opened.
func (s *GormStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}

// first loads one row into dest; found is false on no rows.
func first(db *gorm.DB, dest any, query string, args ...any) (bool, error) {
	if err := db.Where(query, args...).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(ctx context.Context, u domain.User) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	model := userToModel(u)
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "role", "status", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.User{}, false, err
	}
	var model UserModel
	ok, err := first(db, &model, "id = ?", id)
	if !ok || err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a user by email, case-insensitively.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.User{}, false, err
	}
	var model UserModel
	ok, err := first(db, &model, "LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email)))
	if !ok || err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SavePost stores or updates a post. Last writer wins.
func (s *GormStore) SavePost(ctx context.Context, p domain.Post) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	model := postToModel(p)
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"topic", "industry", "tone", "platform", "content", "schedule_date", "is_canceled", "updated_at",
		}),
	}).Create(&model).Error
}

// GetPost retrieves a post.
func (s *GormStore) GetPost(ctx context.Context, id string) (domain.Post, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.Post{}, false, err
	}
	var model PostModel
	ok, err := first(db, &model, "id = ?", id)
	if !ok || err != nil {
		return domain.Post{}, false, err
	}
	return postFromModel(model), true, nil
}

// ListPostsByUser returns a user's posts, newest first.
func (s *GormStore) ListPostsByUser(ctx context.Context, userID string) ([]domain.Post, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var models []PostModel
	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return postsFromModels(models), nil
}

// ListScheduledPosts returns posts with a date in [from, to) that are not canceled.
func (s *GormStore) ListScheduledPosts(ctx context.Context, userID string, from, to time.Time) ([]domain.Post, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var models []PostModel
	if err := db.Where("user_id = ? AND is_canceled = ? AND schedule_date IS NOT NULL", userID, false).
		Where("schedule_date >= ? AND schedule_date < ?", from.UTC(), to.UTC()).
		Order("schedule_date ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return postsFromModels(models), nil
}

// DeletePost removes a post; the bool reports whether a row existed.
func (s *GormStore) DeletePost(ctx context.Context, id string) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	res := db.Delete(&PostModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SavePersona upserts the user's persona.
func (s *GormStore) SavePersona(ctx context.Context, p domain.Persona) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	model, err := personaToModel(p)
	if err != nil {
		return err
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"persona", "answers", "updated_at"}),
	}).Create(&model).Error
}

// GetPersona returns the user's persona.
func (s *GormStore) GetPersona(ctx context.Context, userID string) (domain.Persona, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.Persona{}, false, err
	}
	var model PersonaModel
	ok, err := first(db, &model, "user_id = ?", userID)
	if !ok || err != nil {
		return domain.Persona{}, false, err
	}
	p, err := personaFromModel(model)
	if err != nil {
		return domain.Persona{}, false, err
	}
	return p, true, nil
}

// AppendTokenUsage writes one ledger row. Rows are never updated.
func (s *GormStore) AppendTokenUsage(ctx context.Context, u domain.TokenUsage) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	model := TokenUsageModel{
		ID:        u.ID,
		UserID:    u.UserID,
		Purpose:   string(u.Purpose),
		Tokens:    u.Tokens,
		Cost:      u.Cost,
		CreatedAt: u.CreatedAt.UTC(),
	}
	return db.Create(&model).Error
}

// UsageTotals sums the ledger over [from, to).
func (s *GormStore) UsageTotals(ctx context.Context, from, to time.Time) (domain.UsageTotals, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.UsageTotals{}, err
	}
	var row domain.UsageTotals
	if err := db.Model(&TokenUsageModel{}).
		Select("COALESCE(SUM(tokens), 0) AS tokens, COALESCE(SUM(cost), 0) AS cost, COUNT(*) AS calls").
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Scan(&row).Error; err != nil {
		return domain.UsageTotals{}, err
	}
	return row, nil
}

// DailyUsage groups the ledger over [from, to) by UTC date. Days without
// rows are absent.
func (s *GormStore) DailyUsage(ctx context.Context, from, to time.Time) ([]domain.DailyUsage, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []domain.DailyUsage
	if err := db.Model(&TokenUsageModel{}).
		Select("to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS date, COALESCE(SUM(tokens), 0) AS tokens, COALESCE(SUM(cost), 0) AS cost").
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Group("date").
		Order("date ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SaveCustomTopics replaces the user's topic list.
func (s *GormStore) SaveCustomTopics(ctx context.Context, t domain.CustomTopics) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(t.Topics)
	if err != nil {
		return fmt.Errorf("encode topics: %w", err)
	}
	model := CustomTopicsModel{UserID: t.UserID, Topics: raw, UpdatedAt: t.UpdatedAt.UTC()}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"topics", "updated_at"}),
	}).Create(&model).Error
}

// GetCustomTopics returns the user's cached topics.
func (s *GormStore) GetCustomTopics(ctx context.Context, userID string) (domain.CustomTopics, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.CustomTopics{}, false, err
	}
	var model CustomTopicsModel
	ok, err := first(db, &model, "user_id = ?", userID)
	if !ok || err != nil {
		return domain.CustomTopics{}, false, err
	}
	var topics []string
	if len(model.Topics) > 0 {
		if err := json.Unmarshal(model.Topics, &topics); err != nil {
			return domain.CustomTopics{}, false, fmt.Errorf("decode topics for user %s: %w", userID, err)
		}
	}
	return domain.CustomTopics{UserID: model.UserID, Topics: topics, UpdatedAt: model.UpdatedAt}, true, nil
}

// SavePrompt stores or updates a prompt template.
func (s *GormStore) SavePrompt(ctx context.Context, p domain.Prompt) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	model := PromptModel{
		ID:        p.ID,
		Name:      p.Name,
		Type:      string(p.Type),
		Prompt:    p.Prompt,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "type", "prompt", "updated_at"}),
	}).Create(&model).Error
}

// GetPrompt returns a prompt by ID.
func (s *GormStore) GetPrompt(ctx context.Context, id string) (domain.Prompt, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.Prompt{}, false, err
	}
	var model PromptModel
	ok, err := first(db, &model, "id = ?", id)
	if !ok || err != nil {
		return domain.Prompt{}, false, err
	}
	return promptFromModel(model), true, nil
}

// GetPromptByName returns the template registered under (name, type).
func (s *GormStore) GetPromptByName(ctx context.Context, name string, typ domain.PromptType) (domain.Prompt, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.Prompt{}, false, err
	}
	var model PromptModel
	ok, err := first(db, &model, "name = ? AND type = ?", name, string(typ))
	if !ok || err != nil {
		return domain.Prompt{}, false, err
	}
	return promptFromModel(model), true, nil
}

// ListPrompts returns all templates ordered by name.
func (s *GormStore) ListPrompts(ctx context.Context) ([]domain.Prompt, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var models []PromptModel
	if err := db.Order("name ASC").Order("type ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Prompt, 0, len(models))
	for _, m := range models {
		res = append(res, promptFromModel(m))
	}
	return res, nil
}

// DeletePrompt removes a template.
func (s *GormStore) DeletePrompt(ctx context.Context, id string) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	res := db.Delete(&PromptModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SavePlan stores or updates a plan.
func (s *GormStore) SavePlan(ctx context.Context, p domain.Plan) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	model := planToModel(p)
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "price", "currency", "duration_days", "stripe_price_id", "is_active", "updated_at",
		}),
	}).Create(&model).Error
}

// GetPlan returns a plan by ID.
func (s *GormStore) GetPlan(ctx context.Context, id string) (domain.Plan, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.Plan{}, false, err
	}
	var model PlanModel
	ok, err := first(db, &model, "id = ?", id)
	if !ok || err != nil {
		return domain.Plan{}, false, err
	}
	return planFromModel(model), true, nil
}

// GetPlanByStripePrice resolves a plan from the provider price ID.
func (s *GormStore) GetPlanByStripePrice(ctx context.Context, priceID string) (domain.Plan, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.Plan{}, false, err
	}
	var model PlanModel
	ok, err := first(db, &model, "stripe_price_id = ?", priceID)
	if !ok || err != nil {
		return domain.Plan{}, false, err
	}
	return planFromModel(model), true, nil
}

// ListPlans returns plans ordered by price.
func (s *GormStore) ListPlans(ctx context.Context, activeOnly bool) ([]domain.Plan, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	tx := db.Order("price ASC").Order("name ASC")
	if activeOnly {
		tx = tx.Where("is_active = ?", true)
	}
	var models []PlanModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Plan, 0, len(models))
	for _, m := range models {
		res = append(res, planFromModel(m))
	}
	return res, nil
}

// SaveSubscription upserts the single subscription of a user.
func (s *GormStore) SaveSubscription(ctx context.Context, sub domain.Subscription) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	model := subscriptionToModel(sub)
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_id", "stripe_subscription_id", "start_date_time", "end_date_time",
			"cancel_date_time", "status", "updated_at",
		}),
	}).Create(&model).Error
}

// GetSubscriptionByUser returns the authoritative subscription of a user.
func (s *GormStore) GetSubscriptionByUser(ctx context.Context, userID string) (domain.Subscription, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return domain.Subscription{}, false, err
	}
	var model SubscriptionModel
	ok, err := first(db, &model, "user_id = ?", userID)
	if !ok || err != nil {
		return domain.Subscription{}, false, err
	}
	return subscriptionFromModel(model), true, nil
}

// GetSubscriptionByStripeID finds the local mirror of a provider subscription.
func (s *GormStore) GetSubscriptionByStripeID(ctx context.Context, stripeID string) (domain.Subscription, bool, error) {
	if stripeID == "" {
		return domain.Subscription{}, false, nil
	}
	db, err := s.conn(ctx)
	if err != nil {
		return domain.Subscription{}, false, err
	}
	var model SubscriptionModel
	ok, err := first(db, &model, "stripe_subscription_id = ?", stripeID)
	if !ok || err != nil {
		return domain.Subscription{}, false, err
	}
	return subscriptionFromModel(model), true, nil
}

// ListSubscriptions returns all subscriptions, latest ending first.
func (s *GormStore) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var models []SubscriptionModel
	if err := db.Order("end_date_time DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Subscription, 0, len(models))
	for _, m := range models {
		res = append(res, subscriptionFromModel(m))
	}
	return res, nil
}

// ExpireSubscriptions marks subscriptions whose end date passed as inactive.
func (s *GormStore) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Model(&SubscriptionModel{}).
		Where("status IN ? AND end_date_time <= ?", []int{int(domain.SubscriptionActive), int(domain.SubscriptionCanceled)}, now.UTC()).
		Updates(map[string]any{
			"status":     int(domain.SubscriptionInactive),
			"updated_at": now.UTC(),
		})
	return res.RowsAffected, res.Error
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:        u.ID,
		Email:     u.Email,
		Role:      string(u.Role),
		Status:    string(u.Status),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	status := domain.UserStatus(m.Status)
	if status == "" {
		status = domain.StatusActive
	}
	return domain.User{
		ID:        m.ID,
		Email:     m.Email,
		Role:      domain.UserRole(m.Role),
		Status:    status,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func postToModel(p domain.Post) PostModel {
	var date *time.Time
	if p.ScheduleDate != nil {
		d := p.ScheduleDate.UTC()
		date = &d
	}
	return PostModel{
		ID:           p.ID,
		UserID:       p.UserID,
		Topic:        p.Topic,
		Industry:     p.Industry,
		Tone:         p.Tone,
		Platform:     string(p.Platform),
		Content:      p.Content,
		ScheduleDate: date,
		IsCanceled:   p.IsCanceled,
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

func postFromModel(m PostModel) domain.Post {
	var date *time.Time
	if m.ScheduleDate != nil {
		d := m.ScheduleDate.UTC()
		date = &d
	}
	return domain.Post{
		ID:           m.ID,
		UserID:       m.UserID,
		Topic:        m.Topic,
		Industry:     m.Industry,
		Tone:         m.Tone,
		Platform:     domain.Platform(m.Platform),
		Content:      m.Content,
		ScheduleDate: date,
		IsCanceled:   m.IsCanceled,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func postsFromModels(models []PostModel) []domain.Post {
	res := make([]domain.Post, 0, len(models))
	for _, m := range models {
		res = append(res, postFromModel(m))
	}
	return res
}

func personaToModel(p domain.Persona) (PersonaModel, error) {
	var answers []byte
	if len(p.Answers) > 0 {
		var err error
		if answers, err = json.Marshal(p.Answers); err != nil {
			return PersonaModel{}, fmt.Errorf("encode persona answers: %w", err)
		}
	}
	return PersonaModel{
		UserID:    p.UserID,
		Persona:   p.Persona,
		Answers:   answers,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}, nil
}

func personaFromModel(m PersonaModel) (domain.Persona, error) {
	var answers []domain.SurveyAnswer
	if len(m.Answers) > 0 {
		if err := json.Unmarshal(m.Answers, &answers); err != nil {
			return domain.Persona{}, fmt.Errorf("decode persona answers for user %s: %w", m.UserID, err)
		}
	}
	return domain.Persona{
		UserID:    m.UserID,
		Persona:   m.Persona,
		Answers:   answers,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func promptFromModel(m PromptModel) domain.Prompt {
	return domain.Prompt{
		ID:        m.ID,
		Name:      m.Name,
		Type:      domain.PromptType(m.Type),
		Prompt:    m.Prompt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func planToModel(p domain.Plan) PlanModel {
	return PlanModel{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price,
		Currency:      p.Currency,
		DurationDays:  p.DurationDays,
		StripePriceID: p.StripePriceID,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

func planFromModel(m PlanModel) domain.Plan {
	return domain.Plan{
		ID:            m.ID,
		Name:          m.Name,
		Price:         m.Price,
		Currency:      m.Currency,
		DurationDays:  m.DurationDays,
		StripePriceID: m.StripePriceID,
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func subscriptionToModel(s domain.Subscription) SubscriptionModel {
	var canceled *time.Time
	if s.CancelDateTime != nil {
		c := s.CancelDateTime.UTC()
		canceled = &c
	}
	return SubscriptionModel{
		ID:                   s.ID,
		UserID:               s.UserID,
		PlanID:               s.PlanID,
		StripeSubscriptionID: s.StripeSubscriptionID,
		StartDateTime:        s.StartDateTime.UTC(),
		EndDateTime:          s.EndDateTime.UTC(),
		CancelDateTime:       canceled,
		Status:               int(s.Status),
		CreatedAt:            s.CreatedAt.UTC(),
		UpdatedAt:            s.UpdatedAt.UTC(),
	}
}

func subscriptionFromModel(m SubscriptionModel) domain.Subscription {
	return domain.Subscription{
		ID:                   m.ID,
		UserID:               m.UserID,
		PlanID:               m.PlanID,
		StripeSubscriptionID: m.StripeSubscriptionID,
		StartDateTime:        m.StartDateTime.UTC(),
		EndDateTime:          m.EndDateTime.UTC(),
		CancelDateTime:       m.CancelDateTime,
		Status:               domain.SubscriptionStatus(m.Status),
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

// ClaimWebhookDelivery inserts the delivery key; a conflict means another
// delivery of the same payment got there first.
func (s *GormStore) ClaimWebhookDelivery(ctx context.Context, key, eventType string, at time.Time) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	model := WebhookDeliveryModel{DeliveryKey: key, EventType: eventType, ProcessedAt: at.UTC()}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseWebhookDelivery forgets a claim so the provider's retry is applied.
func (s *GormStore) ReleaseWebhookDelivery(ctx context.Context, key string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Delete(&WebhookDeliveryModel{}, "delivery_key = ?", key).Error
}
