package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crecheflow/pkg/domain"
	"crecheflow/pkg/platform/sentinel"
)

// triggerPhrases start a brand-new session even with no prior state.
var triggerPhrases = []string{"register", "enroll", "sign up", "signup", "join"}

// ContainsTrigger reports whether the text contains a trigger phrase,
// case-insensitively.
func ContainsTrigger(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range triggerPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// ShouldHandle decides whether the engine owns this turn: trigger text always
// qualifies, and any content qualifies while an IN_PROGRESS session exists
// for the identity. Terminal sessions do not claim ordinary text.
func (s *Service) ShouldHandle(ctx context.Context, tenantID domain.TenantID, channelID, text string) (bool, error) {
	if ContainsTrigger(text) {
		return true, nil
	}
	_, err := s.sessions.FindActiveByIdentity(ctx, tenantID, channelID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("triage session lookup: %w", err)
}
