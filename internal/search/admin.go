package search

import (
	"context"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/research/internal/config"
	"github.com/Kocoro-lab/Shannon/go/research/internal/conversation"
	"github.com/Kocoro-lab/Shannon/go/research/internal/provider/grok"
	"go.uber.org/zap"
)

// ConfigInfo is the masked configuration plus a live connection test
type ConfigInfo struct {
	config.Info
	ConnectionTest grok.Probe `json:"connection_test"`
}

// ConfigInfo reports the configuration and probes /models
func (s *Service) ConfigInfo(ctx context.Context) ConfigInfo {
	info := ConfigInfo{Info: s.cfg.Info()}
	settings := s.cfg.Current()
	if err := settings.Validate(); err != nil {
		info.ConnectionTest = grok.Probe{Status: grok.ProbeConfigError, Message: err.Error()}
		return info
	}
	info.ConnectionTest = s.clients.Grok(settings, settings.Model).ProbeModels(ctx)
	return info
}

// SwitchModel persists a new default model. When the endpoint publishes a
// model list the new model must be on it.
func (s *Service) SwitchModel(ctx context.Context, model string) (config.ModelChange, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return config.ModelChange{}, NewError(CodeInvalidRequest, "model must not be empty")
	}

	settings := s.cfg.Current()
	if settings.Validate() == nil {
		available := s.models.list(ctx, settings, s.clients.Grok(settings, settings.Model))
		if !accepts(available, model) {
			return config.ModelChange{}, NewError(CodeInvalidModel, "invalid model: "+model)
		}
	}

	change, err := s.cfg.SetModel(model)
	if err != nil {
		s.logger.Error("Failed to switch model", zap.String("model", model), zap.Error(err))
		return config.ModelChange{}, NewError(CodeInternal, "failed to switch model: "+err.Error())
	}
	return change, nil
}

// ConversationStats reports the live conversations
func (s *Service) ConversationStats() conversation.Stats {
	return s.conversations.Stats()
}
