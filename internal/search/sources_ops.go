package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/grok"
	"github.com/Kocoro-lab/Shannon/go/research/internal/sources"
	"github.com/Kocoro-lab/Shannon/go/research/internal/util"
	"go.uber.org/zap"
)

const rankDescriptionChars = 200

// SourcesResponse is the cached source list for one answer
type SourcesResponse struct {
	SessionID    string         `json:"session_id"`
	Sources      []sources.Item `json:"sources"`
	SourcesCount int            `json:"sources_count"`
}

// GetSources returns the sources stored under a session handle
func (s *Service) GetSources(ctx context.Context, sessionID string) (SourcesResponse, error) {
	items, ok := s.sources.Get(ctx, sessionID)
	if !ok {
		return SourcesResponse{SessionID: sessionID, Sources: []sources.Item{}}, NewError(CodeSourcesNotFound, "session_id not found or expired")
	}
	return SourcesResponse{SessionID: sessionID, Sources: items, SourcesCount: len(items)}, nil
}

// DescribeURL has the provider read one page and summarize it
func (s *Service) DescribeURL(ctx context.Context, rawURL string) (grok.Description, error) {
	if err := validateURL(rawURL); err != nil {
		return grok.Description{}, err
	}
	settings := s.cfg.Current()
	if err := settings.Validate(); err != nil {
		return grok.Description{}, NewError(CodeConfigError, "configuration error: "+err.Error())
	}
	d, err := s.clients.Grok(settings, settings.Model).Describe(ctx, rawURL)
	if err != nil {
		s.logger.Warn("Describe failed", zap.String("url", rawURL), zap.Error(err))
		return grok.Description{}, providerError(err)
	}
	return d, nil
}

// RankSources reorders the sources under sessionID by relevance to query and
// stores the new order under the same handle
func (s *Service) RankSources(ctx context.Context, sessionID, query string) (SourcesResponse, error) {
	current, err := s.GetSources(ctx, sessionID)
	if err != nil {
		return current, err
	}
	if strings.TrimSpace(query) == "" {
		return current, NewError(CodeInvalidRequest, "query must not be empty")
	}
	if len(current.Sources) < 2 {
		return current, nil
	}
	settings := s.cfg.Current()
	if err := settings.Validate(); err != nil {
		return current, NewError(CodeConfigError, "configuration error: "+err.Error())
	}

	items := current.Sources
	order, err := s.clients.Grok(settings, settings.Model).Rank(ctx, query, numberedBlock(items), len(items))
	if err != nil {
		s.logger.Warn("Ranking failed", zap.String("session_id", sessionID), zap.Error(err))
		return current, providerError(err)
	}

	ranked := make([]sources.Item, 0, len(items))
	for _, idx := range order {
		ranked = append(ranked, items[idx-1])
	}
	s.sources.Set(ctx, sessionID, ranked)
	return SourcesResponse{SessionID: sessionID, Sources: ranked, SourcesCount: len(ranked)}, nil
}

func numberedBlock(items []sources.Item) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. ", i+1)
		if item.Title != "" {
			b.WriteString(item.Title)
			b.WriteString(" - ")
		}
		b.WriteString(item.URL)
		if item.Description != "" {
			b.WriteString("\n   ")
			b.WriteString(util.TruncateString(item.Description, rankDescriptionChars, true))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewError(CodeInvalidRequest, "url must be an absolute http or https URL")
	}
	return nil
}
