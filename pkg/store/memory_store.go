package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"personapost/pkg/domain"
)

// MemoryStore keeps everything in-process. Used by tests and local runs
// without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	email    map[string]string // lower(email) -> user ID
	posts    map[string]domain.Post
	personas map[string]domain.Persona
	ledger   []domain.TokenUsage
	topics   map[string]domain.CustomTopics
	prompts  map[string]domain.Prompt
	plans    map[string]domain.Plan
	subs     map[string]domain.Subscription // key: user ID
	webhooks map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		email:    make(map[string]string),
		posts:    make(map[string]domain.Post),
		personas: make(map[string]domain.Persona),
		topics:   make(map[string]domain.CustomTopics),
		prompts:  make(map[string]domain.Prompt),
		plans:    make(map[string]domain.Plan),
		subs:     make(map[string]domain.Subscription),
		webhooks: make(map[string]time.Time),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) SaveUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok {
		delete(m.email, strings.ToLower(prev.Email))
	}
	m.users[u.ID] = u
	m.email[strings.ToLower(u.Email)] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) SavePost(_ context.Context, p domain.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ScheduleDate != nil {
		d := *p.ScheduleDate
		p.ScheduleDate = &d
	}
	m.posts[p.ID] = p
	return nil
}

func (m *MemoryStore) GetPost(_ context.Context, id string) (domain.Post, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	return p, ok, nil
}

// ListPostsByUser returns posts newest first; ties break on ID.
func (m *MemoryStore) ListPostsByUser(_ context.Context, userID string) ([]domain.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Post, 0)
	for _, p := range m.posts {
		if p.UserID == userID {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (m *MemoryStore) ListScheduledPosts(_ context.Context, userID string, from, to time.Time) ([]domain.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Post, 0)
	for _, p := range m.posts {
		if p.UserID != userID || p.State() != domain.StateScheduled {
			continue
		}
		if p.ScheduleDate.Before(from) || !p.ScheduleDate.Before(to) {
			continue
		}
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ScheduleDate.Before(*res[j].ScheduleDate) })
	return res, nil
}

func (m *MemoryStore) DeletePost(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return false, nil
	}
	delete(m.posts, id)
	return true, nil
}

func (m *MemoryStore) SavePersona(_ context.Context, p domain.Persona) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.personas[p.UserID]; ok && !prev.CreatedAt.IsZero() {
		p.CreatedAt = prev.CreatedAt
	}
	m.personas[p.UserID] = p
	return nil
}

func (m *MemoryStore) GetPersona(_ context.Context, userID string) (domain.Persona, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.personas[userID]
	return p, ok, nil
}

func (m *MemoryStore) AppendTokenUsage(_ context.Context, u domain.TokenUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = append(m.ledger, u)
	return nil
}

// TokenUsage returns a copy of the ledger in append order.
func (m *MemoryStore) TokenUsage() []domain.TokenUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.TokenUsage(nil), m.ledger...)
}

func (m *MemoryStore) UsageTotals(_ context.Context, from, to time.Time) (domain.UsageTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var totals domain.UsageTotals
	for _, u := range m.ledger {
		if u.CreatedAt.Before(from) || !u.CreatedAt.Before(to) {
			continue
		}
		totals.Tokens += int64(u.Tokens)
		totals.Cost += u.Cost
		totals.Calls++
	}
	return totals, nil
}

func (m *MemoryStore) DailyUsage(_ context.Context, from, to time.Time) ([]domain.DailyUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byDay := make(map[string]domain.DailyUsage)
	for _, u := range m.ledger {
		if u.CreatedAt.Before(from) || !u.CreatedAt.Before(to) {
			continue
		}
		key := u.CreatedAt.UTC().Format(time.DateOnly)
		d := byDay[key]
		d.Date = key
		d.Tokens += int64(u.Tokens)
		d.Cost += u.Cost
		byDay[key] = d
	}
	res := make([]domain.DailyUsage, 0, len(byDay))
	for _, d := range byDay {
		res = append(res, d)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date < res[j].Date })
	return res, nil
}

func (m *MemoryStore) SaveCustomTopics(_ context.Context, t domain.CustomTopics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Topics = append([]string(nil), t.Topics...)
	m.topics[t.UserID] = t
	return nil
}

func (m *MemoryStore) GetCustomTopics(_ context.Context, userID string) (domain.CustomTopics, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.topics[userID]
	return t, ok, nil
}

func (m *MemoryStore) SavePrompt(_ context.Context, p domain.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts[p.ID] = p
	return nil
}

func (m *MemoryStore) GetPrompt(_ context.Context, id string) (domain.Prompt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prompts[id]
	return p, ok, nil
}

func (m *MemoryStore) GetPromptByName(_ context.Context, name string, typ domain.PromptType) (domain.Prompt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.prompts {
		if p.Name == name && p.Type == typ {
			return p, true, nil
		}
	}
	return domain.Prompt{}, false, nil
}

func (m *MemoryStore) ListPrompts(_ context.Context) ([]domain.Prompt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Prompt, 0, len(m.prompts))
	for _, p := range m.prompts {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name == res[j].Name {
			return res[i].Type < res[j].Type
		}
		return res[i].Name < res[j].Name
	})
	return res, nil
}

func (m *MemoryStore) DeletePrompt(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prompts[id]; !ok {
		return false, nil
	}
	delete(m.prompts, id)
	return true, nil
}

func (m *MemoryStore) SavePlan(_ context.Context, p domain.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = p
	return nil
}

func (m *MemoryStore) GetPlan(_ context.Context, id string) (domain.Plan, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	return p, ok, nil
}

func (m *MemoryStore) GetPlanByStripePrice(_ context.Context, priceID string) (domain.Plan, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.plans {
		if priceID != "" && p.StripePriceID == priceID {
			return p, true, nil
		}
	}
	return domain.Plan{}, false, nil
}

func (m *MemoryStore) ListPlans(_ context.Context, activeOnly bool) ([]domain.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		if activeOnly && !p.IsActive {
			continue
		}
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Price == res[j].Price {
			return res[i].Name < res[j].Name
		}
		return res[i].Price < res[j].Price
	})
	return res, nil
}

// SaveSubscription keeps one subscription per user, keeping the first ID.
func (m *MemoryStore) SaveSubscription(_ context.Context, s domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.subs[s.UserID]; ok {
		s.ID = prev.ID
		s.CreatedAt = prev.CreatedAt
	}
	m.subs[s.UserID] = s
	return nil
}

func (m *MemoryStore) GetSubscriptionByUser(_ context.Context, userID string) (domain.Subscription, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subs[userID]
	return s, ok, nil
}

func (m *MemoryStore) GetSubscriptionByStripeID(_ context.Context, stripeID string) (domain.Subscription, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if stripeID == "" {
		return domain.Subscription{}, false, nil
	}
	for _, s := range m.subs {
		if s.StripeSubscriptionID == stripeID {
			return s, true, nil
		}
	}
	return domain.Subscription{}, false, nil
}

func (m *MemoryStore) ListSubscriptions(_ context.Context) ([]domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].EndDateTime.After(res[j].EndDateTime) })
	return res, nil
}

func (m *MemoryStore) ExpireSubscriptions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.subs {
		if s.Status == domain.SubscriptionInactive || now.Before(s.EndDateTime) {
			continue
		}
		s.Status = domain.SubscriptionInactive
		s.UpdatedAt = now.UTC()
		m.subs[id] = s
		n++
	}
	return n, nil
}

func (m *MemoryStore) ClaimWebhookDelivery(_ context.Context, key, _ string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[key]; ok {
		return false, nil
	}
	m.webhooks[key] = at
	return true, nil
}

func (m *MemoryStore) ReleaseWebhookDelivery(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.webhooks, key)
	return nil
}
