package service

import (
	"context"
	"sync"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// AuditServiceImpl writes audit entries off the request path.
type AuditServiceImpl struct {
	repo ports.AuditRepository
	log  zerolog.Logger
	wg   sync.WaitGroup
}

// NewAuditService creates a new audit service.
// If repo is nil, audit logs are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) *AuditServiceImpl {
	return &AuditServiceImpl{repo: repo, log: log}
}

// Log records an audit entry asynchronously (fire-and-forget).
func (s *AuditServiceImpl) Log(ctx context.Context, entry *domain.AuditLog) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		evt := s.log.Info().
			Str("action", string(entry.Action)).
			Str("category", string(entry.Category)).
			Str("resource_type", entry.ResourceType).
			Str("resource_id", entry.ResourceID).
			Str("ip", entry.IPAddress)
		if entry.UserID != nil {
			evt = evt.Str("user_id", entry.UserID.String())
		}
		evt.Msg("audit")

		if s.repo != nil {
			// The request context is usually done by now.
			if err := s.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
				s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
			}
		}
	}()
}

// Wait blocks until every pending entry has been written. Called on shutdown.
func (s *AuditServiceImpl) Wait() {
	s.wg.Wait()
}
