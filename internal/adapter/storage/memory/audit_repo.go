package memory

import (
	"context"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"
)

// AuditRepo implements ports.AuditRepository. Audit entries are kept outside
// unit state and are never rolled back.
type AuditRepo struct {
	s *Store
}

// NewAuditRepo creates an AuditRepo over the store.
func NewAuditRepo(s *Store) *AuditRepo {
	return &AuditRepo{s: s}
}

var _ ports.AuditRepository = (*AuditRepo)(nil)

func (r *AuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *log)
	return nil
}

// Entries returns a copy of every stored audit entry.
func (r *AuditRepo) Entries() []domain.AuditLog {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.AuditLog(nil), r.s.audit...)
}
