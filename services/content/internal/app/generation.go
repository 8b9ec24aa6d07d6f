package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"personapost/internal/util"
	"personapost/pkg/ai"
	"personapost/pkg/domain"
)

const maxPostsPerRequest = 10

const defaultPostsTemplate = `Write a ${tone} social media post for ${platform} about "${topic}" aimed at the ${industry} industry.
${style}`

const defaultTopicsTemplate = `Suggest ${count} distinct social media post topics that fit the persona above.
Return only a JSON array of ${count} strings.`

const defaultPersonaTemplate = `Using the survey answers below, write a concise first-person description of this professional's voice, expertise and audience. Return plain text only.

${answers}`

const defaultPersonaSystem = "You turn survey answers into a digital persona used to ghost-write social media posts."

var platformRules = map[domain.Platform]string{
	domain.PlatformTwitter:   "Keep it under 280 characters, punchy, with at most two hashtags.",
	domain.PlatformLinkedIn:  "Write 150 to 300 words in a professional tone with short paragraphs and a closing question.",
	domain.PlatformFacebook:  "Write 80 to 150 words in a conversational tone that invites comments.",
	domain.PlatformInstagram: "Write 50 to 120 words suited to an image caption, with three to five hashtags at the end.",
}

const genericRule = "Write 100 to 200 words."

// GeneratePostsInput is the request for post generation.
type GeneratePostsInput struct {
	Topic     string
	Industry  string
	Tone      string
	Platform  string
	Style     string
	NoOfPosts int
}

// GeneratePostsResult carries the raw model output, the parsed posts and the
// ledger row written for the call.
type GeneratePostsResult struct {
	Raw   string            `json:"raw"`
	Posts []string          `json:"posts"`
	Usage domain.TokenUsage `json:"usage"`
}

// GeneratePosts writes posts in the caller's persona. The token ledger row is
// written before parsing, so a ParseError still charges the call.
func (a *App) GeneratePosts(ctx context.Context, caller domain.Identity, in GeneratePostsInput) (GeneratePostsResult, error) {
	if err := a.CheckAccess(ctx, caller); err != nil {
		return GeneratePostsResult{}, err
	}
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		return GeneratePostsResult{}, domain.Validationf("topic required")
	}
	platform, ok := domain.ParsePlatform(in.Platform)
	if !ok {
		return GeneratePostsResult{}, domain.Validationf("unsupported platform %q", in.Platform)
	}
	n := in.NoOfPosts
	if n <= 0 {
		n = 1
	}
	if n > maxPostsPerRequest {
		return GeneratePostsResult{}, domain.Validationf("noOfPosts must be at most %d", maxPostsPerRequest)
	}
	persona, err := a.requirePersona(ctx, caller.UserID)
	if err != nil {
		return GeneratePostsResult{}, err
	}

	industry, tone := strings.TrimSpace(in.Industry), strings.TrimSpace(in.Tone)
	var user string
	if industry != "" && tone != "" && platform != "" {
		tmpl, err := a.templateText(ctx, domain.PromptGeneratePosts, domain.PromptUser, defaultPostsTemplate)
		if err != nil {
			return GeneratePostsResult{}, err
		}
		user, err = domain.RenderTemplate(tmpl, map[string]string{
			"topic":     topic,
			"industry":  industry,
			"tone":      tone,
			"platform":  string(platform),
			"style":     strings.TrimSpace(in.Style),
			"noOfPosts": strconv.Itoa(n),
		})
		if err != nil {
			return GeneratePostsResult{}, err
		}
	} else {
		user = genericPostPrompt(topic, platform, strings.TrimSpace(in.Style))
	}
	if n > 1 {
		user += fmt.Sprintf("\n\nWrite %d different posts. Respond only with a JSON array in the form [{\"post\": \"...\"}].", n)
	}

	raw, usage, err := a.generate(ctx, caller.UserID, domain.PurposePosts, ai.Prompt{
		System:      persona.Persona,
		User:        strings.TrimSpace(user),
		MaxTokens:   a.maxTokens * n,
		Temperature: a.temperature,
	})
	if err != nil {
		return GeneratePostsResult{}, err
	}
	res := GeneratePostsResult{Raw: raw, Usage: usage}
	if n > 1 {
		res.Posts, err = ai.ParsePostArray(raw)
	} else {
		var text string
		text, err = ai.ParseSingleText(raw)
		res.Posts = []string{text}
	}
	if err != nil {
		a.metrics.GenerationFailed(string(domain.PurposePosts), domain.ErrorKind(err))
		return res, err
	}
	return res, nil
}

// GenerateTopics regenerates and replaces the caller's topic suggestions.
func (a *App) GenerateTopics(ctx context.Context, caller domain.Identity) (domain.CustomTopics, error) {
	if err := a.CheckAccess(ctx, caller); err != nil {
		return domain.CustomTopics{}, err
	}
	persona, err := a.requirePersona(ctx, caller.UserID)
	if err != nil {
		return domain.CustomTopics{}, err
	}
	tmpl, err := a.templateText(ctx, domain.PromptGenerateTopics, domain.PromptUser, defaultTopicsTemplate)
	if err != nil {
		return domain.CustomTopics{}, err
	}
	user, err := domain.RenderTemplate(tmpl, map[string]string{"count": strconv.Itoa(a.topicCount)})
	if err != nil {
		return domain.CustomTopics{}, err
	}
	raw, _, err := a.generate(ctx, caller.UserID, domain.PurposeTopics, ai.Prompt{
		System:      persona.Persona,
		User:        user,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	})
	if err != nil {
		return domain.CustomTopics{}, err
	}
	topics, err := ai.ParseStringArray(raw)
	if err != nil {
		a.metrics.GenerationFailed(string(domain.PurposeTopics), domain.ErrorKind(err))
		return domain.CustomTopics{}, err
	}
	ct := domain.CustomTopics{UserID: caller.UserID, Topics: topics, UpdatedAt: a.clock()}
	if err := a.store.SaveCustomTopics(ctx, ct); err != nil {
		return domain.CustomTopics{}, fmt.Errorf("save topics: %w", err)
	}
	return ct, nil
}

// GetTopics returns the stored topic list, empty when never generated.
func (a *App) GetTopics(ctx context.Context, caller domain.Identity) (domain.CustomTopics, error) {
	ct, ok, err := a.store.GetCustomTopics(ctx, caller.UserID)
	if err != nil {
		return domain.CustomTopics{}, fmt.Errorf("load topics: %w", err)
	}
	if !ok {
		return domain.CustomTopics{UserID: caller.UserID, Topics: []string{}}, nil
	}
	return ct, nil
}

// GetPersona returns the caller's persona.
func (a *App) GetPersona(ctx context.Context, caller domain.Identity) (domain.Persona, error) {
	return a.requirePersona(ctx, caller.UserID)
}

// UpsertPersona replaces the persona text, keeping stored survey answers.
func (a *App) UpsertPersona(ctx context.Context, caller domain.Identity, text string) (domain.Persona, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Persona{}, domain.Validationf("persona text required")
	}
	return a.savePersona(ctx, caller.UserID, text, nil)
}

func (a *App) savePersona(ctx context.Context, userID, text string, answers []domain.SurveyAnswer) (domain.Persona, error) {
	now := a.clock()
	p, ok, err := a.store.GetPersona(ctx, userID)
	if err != nil {
		return domain.Persona{}, fmt.Errorf("load persona: %w", err)
	}
	if !ok {
		p = domain.Persona{UserID: userID, CreatedAt: now}
	}
	p.Persona = text
	if answers != nil {
		p.Answers = answers
	}
	p.UpdatedAt = now
	if err := a.store.SavePersona(ctx, p); err != nil {
		return domain.Persona{}, fmt.Errorf("save persona: %w", err)
	}
	return p, nil
}

// GeneratePersona builds the persona from survey answers and stores it.
func (a *App) GeneratePersona(ctx context.Context, caller domain.Identity, answers []domain.SurveyAnswer) (domain.Persona, error) {
	if err := a.CheckAccess(ctx, caller); err != nil {
		return domain.Persona{}, err
	}
	clean := make([]domain.SurveyAnswer, 0, len(answers))
	var b strings.Builder
	for _, ans := range answers {
		q, v := strings.TrimSpace(ans.Question), strings.TrimSpace(ans.Answer)
		if q == "" || v == "" {
			continue
		}
		clean = append(clean, domain.SurveyAnswer{Question: q, Answer: v})
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", q, v)
	}
	if len(clean) == 0 {
		return domain.Persona{}, domain.Validationf("at least one answered question required")
	}
	tmpl, err := a.templateText(ctx, domain.PromptGeneratePersona, domain.PromptUser, defaultPersonaTemplate)
	if err != nil {
		return domain.Persona{}, err
	}
	system, err := a.templateText(ctx, domain.PromptGeneratePersona, domain.PromptSystem, defaultPersonaSystem)
	if err != nil {
		return domain.Persona{}, err
	}
	user, err := domain.RenderTemplate(tmpl, map[string]string{"answers": strings.TrimSpace(b.String())})
	if err != nil {
		return domain.Persona{}, err
	}
	raw, _, err := a.generate(ctx, caller.UserID, domain.PurposePersona, ai.Prompt{
		System:      system,
		User:        user,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	})
	if err != nil {
		return domain.Persona{}, err
	}
	text, err := ai.ParseSingleText(raw)
	if err != nil {
		a.metrics.GenerationFailed(string(domain.PurposePersona), domain.ErrorKind(err))
		return domain.Persona{}, err
	}
	return a.savePersona(ctx, caller.UserID, text, clean)
}

// generate calls the model and appends the ledger row for its output.
func (a *App) generate(ctx context.Context, userID string, purpose domain.UsagePurpose, prompt ai.Prompt) (string, domain.TokenUsage, error) {
	start := time.Now()
	raw, err := a.generator.GenerateText(ctx, prompt)
	if err != nil {
		a.metrics.GenerationFailed(string(purpose), domain.ErrorKind(domain.ErrGeneration))
		if errors.Is(err, domain.ErrGeneration) {
			return "", domain.TokenUsage{}, err
		}
		return "", domain.TokenUsage{}, fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	tokens := a.tokenizer.CountTokens(raw)
	usage := domain.TokenUsage{
		ID:        util.NewID(),
		UserID:    userID,
		Purpose:   purpose,
		Tokens:    tokens,
		Cost:      domain.TokenCost(tokens, a.costPerMillion),
		CreatedAt: a.clock(),
	}
	if err := a.store.AppendTokenUsage(ctx, usage); err != nil {
		return "", domain.TokenUsage{}, fmt.Errorf("record token usage: %w", err)
	}
	a.metrics.ObserveGeneration(string(purpose), tokens, time.Since(start))
	util.LoggerFromContext(ctx).Info("generation metered",
		"user_id", userID, "purpose", purpose, "tokens", tokens, "cost", usage.Cost)
	return raw, usage, nil
}

func (a *App) requirePersona(ctx context.Context, userID string) (domain.Persona, error) {
	p, ok, err := a.store.GetPersona(ctx, userID)
	if err != nil {
		return domain.Persona{}, fmt.Errorf("load persona: %w", err)
	}
	if !ok {
		return domain.Persona{}, domain.NotFoundf("persona not set")
	}
	return p, nil
}

// templateText returns the stored template body or fallback when none is stored.
func (a *App) templateText(ctx context.Context, name string, typ domain.PromptType, fallback string) (string, error) {
	p, ok, err := a.store.GetPromptByName(ctx, name, typ)
	if err != nil {
		return "", fmt.Errorf("load prompt %s/%s: %w", name, typ, err)
	}
	if !ok || strings.TrimSpace(p.Prompt) == "" {
		return fallback, nil
	}
	return p.Prompt, nil
}

func genericPostPrompt(topic string, platform domain.Platform, style string) string {
	rule, ok := platformRules[platform]
	if !ok {
		rule = genericRule
	}
	target := "social media"
	if platform != "" {
		target = string(platform)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s post about %q. %s", target, topic, rule)
	if style != "" {
		fmt.Fprintf(&b, " Style: %s.", style)
	}
	b.WriteString(" Return only the post text.")
	return b.String()
}
