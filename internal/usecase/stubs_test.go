package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
	"github.com/aryanndesai/FreshFarmMarket/internal/core/port"
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/config"
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/security"
	"github.com/aryanndesai/FreshFarmMarket/internal/repository"
)

// testSecuritySettings mirrors the production defaults with short durations
// where the tests drive the clock themselves.
func testSecuritySettings() config.SecuritySettings {
	return config.SecuritySettings{
		LockoutThreshold:     3,
		LockoutDuration:      10 * time.Minute,
		MinPasswordAge:       time.Minute,
		MaxPasswordAge:       90 * 24 * time.Hour,
		PasswordHistoryDepth: 2,
		MinPasswordLength:    12,
		MinPasswordScore:     0,
		TwoFactorCodeTTL:     5 * time.Minute,
		TwoFactorCodeLength:  6,
		ResetTokenTTL:        time.Hour,
	}
}

func testHasher() *security.PasswordHasher {
	hasher, err := security.NewPasswordHasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  8,
		KeyLength:   16,
	})
	if err != nil {
		panic(err)
	}
	return hasher
}

type principalRepoStub struct {
	principals map[string]*domain.Principal
	history    map[string][]domain.PasswordHistoryEntry

	failedAttemptCalls int
	unlockCalls        int
	loginRecorded      bool
}

func newPrincipalRepoStub(principals ...*domain.Principal) *principalRepoStub {
	stub := &principalRepoStub{
		principals: make(map[string]*domain.Principal),
		history:    make(map[string][]domain.PasswordHistoryEntry),
	}
	for _, p := range principals {
		copied := *p
		stub.principals[p.ID] = &copied
	}
	return stub
}

func (m *principalRepoStub) Create(_ context.Context, principal domain.Principal) error {
	for _, existing := range m.principals {
		if strings.EqualFold(existing.Email, principal.Email) {
			return repository.ErrDuplicate
		}
	}
	copied := principal
	m.principals[principal.ID] = &copied
	return nil
}

func (m *principalRepoStub) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	if p, ok := m.principals[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *principalRepoStub) GetByEmail(_ context.Context, email string) (*domain.Principal, error) {
	for _, p := range m.principals {
		if strings.EqualFold(p.Email, email) {
			copied := *p
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *principalRepoStub) RecordFailedAttempt(_ context.Context, id string, threshold int, lockedUntil time.Time) (port.FailedAttemptResult, error) {
	p, ok := m.principals[id]
	if !ok {
		return port.FailedAttemptResult{}, repository.ErrNotFound
	}
	m.failedAttemptCalls++
	p.FailedLoginAttempts++
	result := port.FailedAttemptResult{Attempts: p.FailedLoginAttempts}
	if p.FailedLoginAttempts >= threshold {
		p.Locked = true
		until := lockedUntil
		p.LockedUntil = &until
		result.Locked = true
		result.LockedUntil = &until
	}
	return result, nil
}

func (m *principalRepoStub) ResetFailedAttempts(_ context.Context, id string) error {
	p, ok := m.principals[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.FailedLoginAttempts = 0
	return nil
}

func (m *principalRepoStub) Unlock(_ context.Context, id string) error {
	p, ok := m.principals[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.unlockCalls++
	p.Locked = false
	p.LockedUntil = nil
	p.FailedLoginAttempts = 0
	return nil
}

func (m *principalRepoStub) UpdatePassword(_ context.Context, id string, hash, algo string, changedAt time.Time) error {
	p, ok := m.principals[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.PasswordHash = hash
	p.PasswordAlgo = algo
	p.PasswordChangedAt = changedAt
	return nil
}

func (m *principalRepoStub) UpdatePasswordAndUnlock(ctx context.Context, id string, hash, algo string, changedAt time.Time) error {
	if err := m.UpdatePassword(ctx, id, hash, algo, changedAt); err != nil {
		return err
	}
	return m.Unlock(ctx, id)
}

func (m *principalRepoStub) SetRequirePasswordChange(_ context.Context, id string, required bool) error {
	p, ok := m.principals[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.RequirePasswordChange = required
	return nil
}

func (m *principalRepoStub) RecordLogin(_ context.Context, id string, at time.Time) error {
	p, ok := m.principals[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.loginRecorded = true
	p.LastLogin = &at
	return nil
}

func (m *principalRepoStub) ListPasswordHistory(_ context.Context, principalID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	entries := append([]domain.PasswordHistoryEntry(nil), m.history[principalID]...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].SetAt.After(entries[j].SetAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *principalRepoStub) AddPasswordHistory(_ context.Context, entry domain.PasswordHistoryEntry) error {
	m.history[entry.PrincipalID] = append(m.history[entry.PrincipalID], entry)
	return nil
}

type challengeRepoStub struct {
	challenges []domain.TwoFactorChallenge
}

func (m *challengeRepoStub) Create(_ context.Context, challenge domain.TwoFactorChallenge) error {
	m.challenges = append(m.challenges, challenge)
	return nil
}

func (m *challengeRepoStub) Consume(_ context.Context, principalID, code string, at time.Time) (*domain.TwoFactorChallenge, error) {
	best := -1
	for i, c := range m.challenges {
		if c.PrincipalID != principalID || c.Code != code || !c.IsValid(at) {
			continue
		}
		if best == -1 || c.CreatedAt.After(m.challenges[best].CreatedAt) {
			best = i
		}
	}
	if best == -1 {
		return nil, repository.ErrNotFound
	}
	used := at
	m.challenges[best].UsedAt = &used
	copied := m.challenges[best]
	return &copied, nil
}

func (m *challengeRepoStub) InvalidateOutstanding(_ context.Context, principalID string, at time.Time) (int64, error) {
	var count int64
	for i, c := range m.challenges {
		if c.PrincipalID == principalID && c.UsedAt == nil {
			used := at
			m.challenges[i].UsedAt = &used
			count++
		}
	}
	return count, nil
}

type resetRepoStub struct {
	grants []domain.PasswordResetGrant
}

func (m *resetRepoStub) Create(_ context.Context, grant domain.PasswordResetGrant) error {
	m.grants = append(m.grants, grant)
	return nil
}

func (m *resetRepoStub) GetByTokenHash(_ context.Context, tokenHash string) (*domain.PasswordResetGrant, error) {
	for _, g := range m.grants {
		if g.TokenHash == tokenHash {
			copied := g
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *resetRepoStub) Consume(_ context.Context, tokenHash string, at time.Time) (*domain.PasswordResetGrant, error) {
	for i, g := range m.grants {
		if g.TokenHash != tokenHash || !g.IsValid(at) {
			continue
		}
		used := at
		m.grants[i].UsedAt = &used
		copied := m.grants[i]
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *resetRepoStub) InvalidateOutstanding(_ context.Context, principalID string, at time.Time) (int64, error) {
	var count int64
	for i, g := range m.grants {
		if g.PrincipalID == principalID && g.UsedAt == nil {
			used := at
			m.grants[i].UsedAt = &used
			count++
		}
	}
	return count, nil
}

type sessionRepoStub struct {
	sessions []domain.Session
}

func (m *sessionRepoStub) Create(_ context.Context, session domain.Session, endReason string) (int64, error) {
	var superseded int64
	for i := range m.sessions {
		if m.sessions[i].PrincipalID == session.PrincipalID && m.sessions[i].Active {
			if m.sessions[i].End(session.CreatedAt, endReason) {
				superseded++
			}
		}
	}
	m.sessions = append(m.sessions, session)
	return superseded, nil
}

func (m *sessionRepoStub) GetByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	for _, s := range m.sessions {
		if s.TokenHash == tokenHash {
			copied := s
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *sessionRepoStub) Touch(_ context.Context, id string, at time.Time) error {
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			m.sessions[i].Touch(at)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *sessionRepoStub) EndByTokenHash(_ context.Context, tokenHash string, at time.Time, reason string) error {
	for i := range m.sessions {
		if m.sessions[i].TokenHash == tokenHash && m.sessions[i].Active {
			m.sessions[i].End(at, reason)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *sessionRepoStub) EndAllForPrincipal(_ context.Context, principalID string, at time.Time, reason string) (int64, error) {
	var ended int64
	for i := range m.sessions {
		if m.sessions[i].PrincipalID == principalID && m.sessions[i].Active {
			if m.sessions[i].End(at, reason) {
				ended++
			}
		}
	}
	return ended, nil
}

func (m *sessionRepoStub) ListActiveByPrincipal(_ context.Context, principalID string) ([]domain.Session, error) {
	var active []domain.Session
	for _, s := range m.sessions {
		if s.PrincipalID == principalID && s.Active {
			active = append(active, s)
		}
	}
	return active, nil
}

func (m *sessionRepoStub) activeCount(principalID string) int {
	count := 0
	for _, s := range m.sessions {
		if s.PrincipalID == principalID && s.Active {
			count++
		}
	}
	return count
}

type auditSinkStub struct {
	entries []domain.AuditEntry
}

func (m *auditSinkStub) Record(_ context.Context, entry domain.AuditEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *auditSinkStub) actions() []string {
	names := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		names = append(names, e.Action)
	}
	return names
}

func (m *auditSinkStub) has(action string) bool {
	for _, e := range m.entries {
		if e.Action == action {
			return true
		}
	}
	return false
}

type emailSenderStub struct {
	sent []sentEmail
	err  error
}

type sentEmail struct {
	kind    string
	address string
	payload map[string]string
}

func (m *emailSenderStub) Send(_ context.Context, kind, address string, payload map[string]string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentEmail{kind: kind, address: address, payload: payload})
	return nil
}

type eventPublisherStub struct {
	registered     []domain.PrincipalRegisteredEvent
	locked         []domain.AccountLockedEvent
	passwordChange []domain.PasswordChangedEvent
	resetRequested []domain.PasswordResetRequestedEvent
	superseded     []domain.SessionSupersededEvent
}

func (m *eventPublisherStub) PublishPrincipalRegistered(_ context.Context, event domain.PrincipalRegisteredEvent) error {
	m.registered = append(m.registered, event)
	return nil
}

func (m *eventPublisherStub) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	m.locked = append(m.locked, event)
	return nil
}

func (m *eventPublisherStub) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	m.passwordChange = append(m.passwordChange, event)
	return nil
}

func (m *eventPublisherStub) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	m.resetRequested = append(m.resetRequested, event)
	return nil
}

func (m *eventPublisherStub) PublishSessionSuperseded(_ context.Context, event domain.SessionSupersededEvent) error {
	m.superseded = append(m.superseded, event)
	return nil
}

// fixedClock returns a controllable clock starting at the supplied moment.
type fixedClock struct {
	current time.Time
}

func newFixedClock(at time.Time) *fixedClock {
	return &fixedClock{current: at}
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

func (c *fixedClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

var _ port.PrincipalRepository = (*principalRepoStub)(nil)
var _ port.ChallengeRepository = (*challengeRepoStub)(nil)
var _ port.ResetRepository = (*resetRepoStub)(nil)
var _ port.SessionRepository = (*sessionRepoStub)(nil)
var _ port.AuditSink = (*auditSinkStub)(nil)
var _ port.EmailSender = (*emailSenderStub)(nil)
var _ port.EventPublisher = (*eventPublisherStub)(nil)
