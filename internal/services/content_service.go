package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vytor/lingoflash/internal/cache"
	"github.com/vytor/lingoflash/internal/completion"
	"github.com/vytor/lingoflash/internal/errors"
	"github.com/vytor/lingoflash/internal/logger"
	"github.com/vytor/lingoflash/internal/models"
	"github.com/vytor/lingoflash/internal/repository"
)

const overviewMaxOutputTokens = 300

// ContentService handles reading texts and their cached overviews
type ContentService interface {
	AddContent(ctx context.Context, content models.Content) (*models.Content, error)
	GetContent(ctx context.Context, ref string) (*models.Content, error)
	Overview(ctx context.Context, actorKey, ref string) (*models.ContentOverview, error)
}

type contentService struct {
	contentRepo repository.ContentRepository
	completer   completion.Completer
	cache       *cache.ResponseCache
	overviewTTL time.Duration
	limiter     RateLimiter
	validate    *validator.Validate
	now         func() time.Time
}

// NewContentService creates a new ContentService. A non-positive overviewTTL
// uses the cache default.
func NewContentService(
	contentRepo repository.ContentRepository,
	completer completion.Completer,
	responseCache *cache.ResponseCache,
	overviewTTL time.Duration,
	limiter RateLimiter,
	opts ...Option,
) ContentService {
	o := buildOptions(opts)
	return &contentService{
		contentRepo: contentRepo,
		completer:   completer,
		cache:       responseCache,
		overviewTTL: overviewTTL,
		limiter:     limiter,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         o.now,
	}
}

func (s *contentService) AddContent(ctx context.Context, content models.Content) (*models.Content, error) {
	log := logger.FromContext(ctx).WithPrefix("content_service")
	log.Debug("adding content: ref=%s, language=%s", content.Ref, content.Language)

	content.Ref = strings.TrimSpace(content.Ref)
	if err := s.validate.Struct(content); err != nil {
		return nil, errors.NewValidationError("content", err.Error())
	}
	content.CreatedAt = s.now()

	if err := s.contentRepo.Upsert(ctx, content); err != nil {
		log.Error("failed to store content: %v", err)
		return nil, errors.NewInternalError(err)
	}
	return &content, nil
}

// GetContent satisfies dialog.ContentResolver.
func (s *contentService) GetContent(ctx context.Context, ref string) (*models.Content, error) {
	content, err := s.contentRepo.Get(ctx, ref)
	if err != nil {
		logger.FromContext(ctx).Error("failed to get content %s: %v", ref, err)
		return nil, errors.NewInternalError(err)
	}
	if content == nil {
		return nil, errors.NewContentNotFoundError(ref)
	}
	return content, nil
}

// Overview returns a short summary of the content. Summaries are cached by a
// fingerprint of the text, so identical texts under different refs share one.
// Only a cache miss counts against the actor's rate limit.
func (s *contentService) Overview(ctx context.Context, actorKey, ref string) (*models.ContentOverview, error) {
	log := logger.FromContext(ctx).WithPrefix("content_service")

	content, err := s.GetContent(ctx, ref)
	if err != nil {
		return nil, err
	}
	fingerprint := cache.Fingerprint(content.Language, content.Title, content.Body)
	key := "overview:" + fingerprint

	// The limit is charged to the requesting actor before joining a shared
	// computation, so one actor's refusal never reaches another.
	if _, hit := s.cache.Get(key); !hit && s.limiter != nil && !s.limiter.Allow(actorKey) {
		log.Info("rate limit reached: actor=%s", actorKey)
		return nil, errors.NewRateLimitExceededError(actorKey)
	}

	raw, err := s.cache.GetOrCompute(ctx, key, s.overviewTTL, func(ctx context.Context) (string, error) {
		log.Debug("generating overview: ref=%s", ref)
		summary, err := s.completer.Complete(ctx, completion.Request{
			Instructions:    overviewInstructions(content),
			Messages:        []completion.Message{{Role: completion.RoleUser, Content: content.Body}},
			LanguageHint:    content.Language,
			MaxOutputTokens: overviewMaxOutputTokens,
		})
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(models.ContentOverview{
			Fingerprint: fingerprint,
			Summary:     strings.TrimSpace(summary),
			GeneratedAt: s.now(),
		})
		return string(data), err
	})
	if err != nil {
		return nil, err
	}

	var overview models.ContentOverview
	if err := json.Unmarshal([]byte(raw), &overview); err != nil {
		log.Error("cached overview is corrupt: %v", err)
		return nil, errors.NewInternalError(err)
	}
	overview.Ref = content.Ref
	return &overview, nil
}

func overviewInstructions(c *models.Content) string {
	return fmt.Sprintf(`Summarize the text titled %q for a language learner in three or four short sentences.
Write the summary in the language of the text (%s). Do not add commentary.`, c.Title, c.Language)
}
