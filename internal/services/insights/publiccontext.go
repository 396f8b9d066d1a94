package insights

import (
	"context"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/common"
	"github.com/tradewatch/tradewatch/internal/httpclient"
	"github.com/tradewatch/tradewatch/internal/interfaces"
)

const contextKeyPrefix = "ctx:"

// PublicContextService fetches short markdown excerpts of public pages
// referenced by snapshots, for grounding LLM prompts. Excerpts are
// TTL-cached in the KV store to keep upstream load low.
type PublicContextService struct {
	client    *httpclient.Client
	kvStorage interfaces.KeyValueStorage
	converter *md.Converter
	logger    arbor.ILogger
	config    *common.Config
}

// NewPublicContextService creates the context excerpt service
func NewPublicContextService(config *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *PublicContextService {
	return &PublicContextService{
		client: httpclient.New(httpclient.Options{
			Timeout:     config.RequestTimeoutDuration(),
			UserAgent:   config.Sources.UserAgent,
			MaxBodySize: int64(config.Sources.MaxBodySize),
			MinInterval: config.SourceRateLimitDuration(),
		}),
		kvStorage: kvStorage,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
		config:    config,
	}
}

// Excerpt returns a markdown excerpt for a URL, serving from the cache
// when fresh. Failures return an empty excerpt — context is optional
// and must never block insight generation.
func (s *PublicContextService) Excerpt(ctx context.Context, url string) string {
	if url == "" {
		return ""
	}

	key := contextKeyPrefix + url
	if cached, err := s.kvStorage.Get(ctx, key); err == nil && cached != "" {
		return cached
	}

	body, err := s.client.Get(ctx, url)
	if err != nil {
		s.logger.Debug().Str("url", url).Err(err).Msg("Public context fetch failed")
		return ""
	}

	markdown, err := s.converter.ConvertString(string(body))
	if err != nil {
		s.logger.Debug().Str("url", url).Err(err).Msg("Public context conversion failed")
		return ""
	}

	excerpt := truncate(strings.TrimSpace(markdown), s.maxExcerptChars())
	if excerpt == "" {
		return ""
	}

	if err := s.kvStorage.SetWithTTL(ctx, key, excerpt, "public context excerpt", s.config.PublicContextTTLDuration()); err != nil {
		s.logger.Warn().Str("url", url).Err(err).Msg("Failed to cache public context")
	}
	return excerpt
}

func (s *PublicContextService) maxExcerptChars() int {
	if s.config.Insights.MaxExcerptChars > 0 {
		return s.config.Insights.MaxExcerptChars
	}
	return 1800
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
