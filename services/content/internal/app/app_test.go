package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"personapost/pkg/ai"
	"personapost/pkg/domain"
	"personapost/pkg/store"
)

var testNow = time.Date(2024, 11, 15, 12, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []ai.Prompt
}

func (g *fakeGenerator) GenerateText(_ context.Context, p ai.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	return g.reply, g.err
}

func (g *fakeGenerator) last() ai.Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[len(g.prompts)-1]
}

// wordCounter counts whitespace-separated words.
type wordCounter struct{}

func (wordCounter) CountTokens(text string) int { return len(strings.Fields(text)) }

var (
	alice = domain.Identity{UserID: "alice"}
	bob   = domain.Identity{UserID: "bob"}
	admin = domain.Identity{UserID: "root", IsAdmin: true}
)

func newTestApp(t *testing.T, gen *fakeGenerator) (*App, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	a, err := New(Config{
		Store:                st,
		Generator:            gen,
		Tokenizer:            wordCounter{},
		CostPerMillionTokens: 0.15,
		TopicCount:           3,
		Now:                  func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, st
}

func subscribe(t *testing.T, st *store.MemoryStore, userID string, end time.Time, status domain.SubscriptionStatus) {
	t.Helper()
	err := st.SaveSubscription(context.Background(), domain.Subscription{
		ID: "sub-" + userID, UserID: userID, StartDateTime: testNow.AddDate(0, -1, 0),
		EndDateTime: end, Status: status,
	})
	if err != nil {
		t.Fatalf("save subscription: %v", err)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := New(Config{Store: store.NewMemoryStore(), Generator: &fakeGenerator{}}); err == nil {
		t.Fatalf("expected error without tokenizer")
	}
}

func TestPostLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, &fakeGenerator{})

	post, err := a.CreatePost(ctx, alice, CreatePostInput{Topic: "launch", Content: "We ship today", Platform: "linkedin"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if post.Platform != domain.PlatformLinkedIn || post.State() != domain.StateDraft || !domain.IsUnscheduled(post) {
		t.Fatalf("expected linkedin draft, got %+v", post)
	}

	d1 := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	post, err = a.SchedulePost(ctx, alice, post.ID, d1)
	if err != nil || post.State() != domain.StateScheduled || !post.ScheduleDate.Equal(d1) {
		t.Fatalf("schedule: %+v err=%v", post, err)
	}

	post, err = a.CancelPost(ctx, alice, post.ID)
	if err != nil || !post.IsCanceled || !post.ScheduleDate.Equal(d1) || !domain.IsUnscheduled(post) {
		t.Fatalf("cancel should keep date: %+v err=%v", post, err)
	}

	d2 := d1.AddDate(0, 0, 3)
	post, err = a.ReschedulePost(ctx, alice, post.ID, d2)
	if err != nil || post.IsCanceled || !post.ScheduleDate.Equal(d2) {
		t.Fatalf("reschedule: %+v err=%v", post, err)
	}

	got, err := a.GetPost(ctx, alice, post.ID)
	if err != nil || !got.ScheduleDate.Equal(d2) {
		t.Fatalf("persisted post mismatch: %+v err=%v", got, err)
	}
}

func TestCreatePostValidation(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, &fakeGenerator{})
	cases := []CreatePostInput{
		{Content: "x"},
		{Topic: "t"},
		{Topic: "t", Content: "x", Platform: "myspace"},
	}
	for _, in := range cases {
		if _, err := a.CreatePost(ctx, alice, in); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
	}
	date := testNow.Add(48 * time.Hour)
	p, err := a.CreatePost(ctx, alice, CreatePostInput{Topic: "t", Content: "x", ScheduleDate: &date})
	if err != nil || p.State() != domain.StateScheduled {
		t.Fatalf("expected pre-scheduled post, got %+v err=%v", p, err)
	}
}

func TestPostOwnershipAndDelete(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, &fakeGenerator{})
	post, _ := a.CreatePost(ctx, alice, CreatePostInput{Topic: "t", Content: "c"})

	if _, err := a.GetPost(ctx, bob, post.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for other user, got %v", err)
	}
	if err := a.DeletePost(ctx, bob, post.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if err := a.DeletePost(ctx, alice, post.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := a.DeletePost(ctx, alice, post.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestUpdatePostRoutesThroughTransitions(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, &fakeGenerator{})
	d := time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)
	post, _ := a.CreatePost(ctx, alice, CreatePostInput{Topic: "t", Content: "c", ScheduleDate: &d})

	yes, no := true, false
	content := "edited"
	post, err := a.UpdatePost(ctx, alice, post.ID, PostUpdate{Content: &content, IsCanceled: &yes})
	if err != nil || post.Content != "edited" || !post.IsCanceled || !post.ScheduleDate.Equal(d) {
		t.Fatalf("edit+cancel: %+v err=%v", post, err)
	}

	if _, err := a.UpdatePost(ctx, alice, post.ID, PostUpdate{IsCanceled: &yes, ScheduleDate: &d}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected contradictory patch to fail, got %v", err)
	}

	post, err = a.UpdatePost(ctx, alice, post.ID, PostUpdate{IsCanceled: &no})
	if err != nil || post.IsCanceled || !post.ScheduleDate.Equal(d) {
		t.Fatalf("uncancel should revive retained date: %+v err=%v", post, err)
	}

	bad := "orkut"
	if _, err := a.UpdatePost(ctx, alice, post.ID, PostUpdate{Platform: &bad}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected platform validation error, got %v", err)
	}
}

func TestCalendarPlotsOnlyScheduledByDay(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, &fakeGenerator{})
	late := time.Date(2024, 11, 22, 23, 59, 0, 0, time.UTC)
	early := time.Date(2024, 11, 23, 0, 1, 0, 0, time.UTC)
	p1, _ := a.CreatePost(ctx, alice, CreatePostInput{Topic: "a", Content: "a", ScheduleDate: &late})
	p2, _ := a.CreatePost(ctx, alice, CreatePostInput{Topic: "b", Content: "b", ScheduleDate: &early})
	p3, _ := a.CreatePost(ctx, alice, CreatePostInput{Topic: "c", Content: "c", ScheduleDate: &early})
	_, _ = a.CancelPost(ctx, alice, p3.ID)
	_, _ = a.CreatePost(ctx, bob, CreatePostInput{Topic: "d", Content: "d", ScheduleDate: &early})

	days, err := a.Calendar(ctx, alice, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC), nil)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("expected two days, got %+v", days)
	}
	if days[0].Date != "2024-11-22" || days[0].Posts[0].ID != p1.ID {
		t.Fatalf("unexpected first day: %+v", days[0])
	}
	if days[1].Date != "2024-11-23" || len(days[1].Posts) != 1 || days[1].Posts[0].ID != p2.ID {
		t.Fatalf("unexpected second day: %+v", days[1])
	}

	if _, err := a.Calendar(ctx, alice, late, late.AddDate(0, 0, -1), nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected inverted range to fail, got %v", err)
	}
}

func TestGeneratePostsMetersTokens(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{reply: "Fresh ideas for busy founders"}
	a, st := newTestApp(t, gen)
	subscribe(t, st, "alice", testNow.AddDate(0, 1, 0), domain.SubscriptionActive)
	_, _ = a.UpsertPersona(ctx, alice, "I coach startup founders.")

	res, err := a.GeneratePosts(ctx, alice, GeneratePostsInput{Topic: "focus", Platform: "twitter"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Posts) != 1 || res.Posts[0] != gen.reply {
		t.Fatalf("unexpected posts: %+v", res.Posts)
	}
	prompt := gen.last()
	if prompt.System != "I coach startup founders." || !strings.Contains(prompt.User, "280 characters") {
		t.Fatalf("expected persona system prompt and twitter rule, got %+v", prompt)
	}

	ledger := st.TokenUsage()
	if len(ledger) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(ledger))
	}
	row := ledger[0]
	if row.Tokens != 5 || row.Purpose != domain.PurposePosts || row.UserID != "alice" {
		t.Fatalf("unexpected ledger row: %+v", row)
	}
	if row.Cost != domain.TokenCost(5, 0.15) {
		t.Fatalf("cost = %v, want %v", row.Cost, domain.TokenCost(5, 0.15))
	}
}

func TestGeneratePostsUsesStoredTemplate(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{reply: `[{"post":"one"},{"post":"two"}]`}
	a, st := newTestApp(t, gen)
	subscribe(t, st, "alice", testNow.AddDate(0, 1, 0), domain.SubscriptionActive)
	_, _ = a.UpsertPersona(ctx, alice, "persona")
	_, err := a.CreatePrompt(ctx, PromptInput{
		Name:   domain.PromptGeneratePosts,
		Prompt: "T=${topic} I=${industry} V=${tone} P=${platform} N=${noOfPosts}",
	})
	if err != nil {
		t.Fatalf("create prompt: %v", err)
	}

	res, err := a.GeneratePosts(ctx, alice, GeneratePostsInput{
		Topic: "ai", Industry: "fintech", Tone: "witty", Platform: "LinkedIn", NoOfPosts: 2,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Posts) != 2 || res.Posts[1] != "two" {
		t.Fatalf("unexpected posts: %+v", res.Posts)
	}
	if !strings.HasPrefix(gen.last().User, "T=ai I=fintech V=witty P=LinkedIn N=2") {
		t.Fatalf("stored template not used: %q", gen.last().User)
	}
}

func TestGeneratePostsParseErrorStillCharges(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{reply: "not json at all"}
	a, st := newTestApp(t, gen)
	_, _ = a.UpsertPersona(ctx, admin, "persona")

	_, err := a.GeneratePosts(ctx, admin, GeneratePostsInput{Topic: "t", NoOfPosts: 3})
	if !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if n := len(st.TokenUsage()); n != 1 {
		t.Fatalf("expected ledger row despite parse error, got %d", n)
	}
}

func TestGeneratePostsFailureModes(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{err: errors.New("upstream 503")}
	a, st := newTestApp(t, gen)

	if _, err := a.GeneratePosts(ctx, alice, GeneratePostsInput{Topic: "t"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected access gate, got %v", err)
	}
	subscribe(t, st, "alice", testNow.AddDate(0, 0, 1), domain.SubscriptionCanceled)
	if _, err := a.GeneratePosts(ctx, alice, GeneratePostsInput{Topic: "t"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected missing persona, got %v", err)
	}
	_, _ = a.UpsertPersona(ctx, alice, "persona")
	if _, err := a.GeneratePosts(ctx, alice, GeneratePostsInput{Topic: "t"}); !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if n := len(st.TokenUsage()); n != 0 {
		t.Fatalf("failed call must not be metered, got %d rows", n)
	}

	subscribe(t, st, "alice", testNow.Add(-time.Hour), domain.SubscriptionActive)
	if _, err := a.GeneratePosts(ctx, alice, GeneratePostsInput{Topic: "t"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected expired subscription to be gated, got %v", err)
	}
}

func TestGenerateTopicsReplacesList(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{reply: "```json\n[\"a\", \"b\", \"c\"]\n```"}
	a, _ := newTestApp(t, gen)
	_, _ = a.UpsertPersona(ctx, admin, "persona")

	ct, err := a.GenerateTopics(ctx, admin)
	if err != nil {
		t.Fatalf("generate topics: %v", err)
	}
	if len(ct.Topics) != 3 || !strings.Contains(gen.last().User, "3") {
		t.Fatalf("unexpected topics: %+v prompt=%q", ct, gen.last().User)
	}

	gen.reply = `["z"]`
	_, _ = a.GenerateTopics(ctx, admin)
	got, _ := a.GetTopics(ctx, admin)
	if len(got.Topics) != 1 || got.Topics[0] != "z" {
		t.Fatalf("expected replaced topics, got %+v", got.Topics)
	}

	gen.reply = `["ok", ""]`
	if _, err := a.GenerateTopics(ctx, admin); !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected parse error for empty topic, got %v", err)
	}
}

func TestGeneratePersonaStoresAnswers(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{reply: "I help SaaS teams grow."}
	a, st := newTestApp(t, gen)

	p, err := a.GeneratePersona(ctx, admin, []domain.SurveyAnswer{
		{Question: "Role?", Answer: "Growth lead"},
		{Question: "Skip?", Answer: " "},
	})
	if err != nil {
		t.Fatalf("generate persona: %v", err)
	}
	if p.Persona != gen.reply || len(p.Answers) != 1 {
		t.Fatalf("unexpected persona: %+v", p)
	}
	if !strings.Contains(gen.last().User, "Q: Role?\nA: Growth lead") {
		t.Fatalf("answers missing from prompt: %q", gen.last().User)
	}
	if st.TokenUsage()[0].Purpose != domain.PurposePersona {
		t.Fatalf("expected persona purpose in ledger")
	}

	if _, err := a.GeneratePersona(ctx, admin, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error without answers, got %v", err)
	}
}

func TestPromptAdministration(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, &fakeGenerator{})

	if _, err := a.CreatePrompt(ctx, PromptInput{Name: domain.PromptGenerateTopics, Prompt: "give me topics"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected missing ${count} to fail, got %v", err)
	}
	if _, err := a.CreatePrompt(ctx, PromptInput{Name: "greeting", Prompt: "hi ${name}"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected undeclared template with variables to fail, got %v", err)
	}
	if _, err := a.CreatePrompt(ctx, PromptInput{Name: "x", Type: "assistant", Prompt: "p"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected bad type to fail, got %v", err)
	}

	p, err := a.CreatePrompt(ctx, PromptInput{Name: domain.PromptGenerateTopics, Prompt: "List ${count} topics"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := a.CreatePrompt(ctx, PromptInput{Name: domain.PromptGenerateTopics, Prompt: "again ${count}"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected duplicate to fail, got %v", err)
	}
	sys, err := a.CreatePrompt(ctx, PromptInput{Name: domain.PromptGenerateTopics, Type: "system", Prompt: "You are terse."})
	if err != nil {
		t.Fatalf("create system prompt: %v", err)
	}
	if sys.Type != domain.PromptSystem {
		t.Fatalf("expected system type, got %q", sys.Type)
	}

	updated, err := a.UpdatePrompt(ctx, p.ID, PromptInput{Prompt: "Name ${count} ideas"})
	if err != nil || updated.Name != domain.PromptGenerateTopics || updated.Prompt != "Name ${count} ideas" {
		t.Fatalf("update: %+v err=%v", updated, err)
	}
	got, err := a.GetPromptByName(ctx, domain.PromptGenerateTopics, domain.PromptUser)
	if err != nil || got.ID != p.ID {
		t.Fatalf("get by name: %+v err=%v", got, err)
	}

	if err := a.DeletePrompt(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := a.DeletePrompt(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := a.UpdatePrompt(ctx, p.ID, PromptInput{Prompt: "x ${count}"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
}

func TestPromptInputValidatesByType(t *testing.T) {
	sys, err := PromptInput{Name: domain.PromptGeneratePosts, Type: " System ", Prompt: "Write in plain English."}.normalize()
	if err != nil || sys.Type != domain.PromptSystem {
		t.Fatalf("system prompt needs no template variables: %+v err=%v", sys, err)
	}
	if _, err := (PromptInput{Name: domain.PromptGeneratePosts, Type: "system", Prompt: "About ${topic}"}).normalize(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected placeholder in system prompt to fail, got %v", err)
	}
	if _, err := (PromptInput{Name: " ", Type: "system", Prompt: "x"}).normalize(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected missing name to fail, got %v", err)
	}
	if _, err := (PromptInput{Name: domain.PromptGeneratePosts, Prompt: "About ${topic}"}).normalize(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected user template missing variables to fail, got %v", err)
	}
}

func TestUsageReportComparesMonthsAndCaches(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := store.NewMemoryStore()
	a, err := New(Config{
		Store: st, Generator: &fakeGenerator{}, Tokenizer: wordCounter{}, Cache: client,
		Now: func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	rows := []domain.TokenUsage{
		{ID: "1", Tokens: 100, Cost: 1, CreatedAt: time.Date(2024, 10, 5, 0, 0, 0, 0, time.UTC)},
		{ID: "2", Tokens: 150, Cost: 1.5, CreatedAt: time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC)},
		{ID: "3", Tokens: 50, Cost: 0.5, CreatedAt: time.Date(2024, 11, 30, 23, 0, 0, 0, time.UTC)},
	}
	for _, r := range rows {
		_ = st.AppendTokenUsage(ctx, r)
	}

	report, err := a.UsageReport(ctx, testNow)
	if err != nil {
		t.Fatalf("usage report: %v", err)
	}
	if report.Month != "2024-11" || report.Current.Tokens != 200 || report.Previous.Tokens != 100 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	if report.TokensChangePct != 100 {
		t.Fatalf("tokens change = %v, want 100", report.TokensChangePct)
	}
	if len(report.Daily) != 30 || report.Daily[0].Tokens != 150 || report.Daily[29].Tokens != 50 || report.Daily[10].Tokens != 0 {
		t.Fatalf("unexpected daily series: %+v", report.Daily)
	}
	if !mr.Exists(usageCachePrefix + "2024-11") {
		t.Fatalf("expected report to be cached")
	}

	_ = st.AppendTokenUsage(ctx, domain.TokenUsage{ID: "4", Tokens: 1000, CreatedAt: testNow})
	cached, err := a.UsageReport(ctx, testNow)
	if err != nil || cached.Current.Tokens != 200 {
		t.Fatalf("expected cached report, got %+v err=%v", cached.Current, err)
	}
}
