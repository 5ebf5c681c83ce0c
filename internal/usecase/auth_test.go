package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
)

type authFixture struct {
	clock      *fixedClock
	principals *principalRepoStub
	sessions   *sessionRepoStub
	challenges *challengeRepoStub
	email      *emailSenderStub
	audit      *auditSinkStub
	events     *eventPublisherStub
	auth       *AuthService
	principal  *domain.Principal
	password   string
}

func newAuthFixture(t *testing.T, mutate func(*domain.Principal)) *authFixture {
	t.Helper()

	clock := newFixedClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	hasher := testHasher()

	password := "Orchard!Lane#2025"
	hash, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	principal := &domain.Principal{
		ID:                "principal-1",
		Email:             "shopper@example.com",
		FullName:          "Sam Shopper",
		PasswordHash:      hash,
		PasswordAlgo:      hasher.Algo(),
		PasswordChangedAt: clock.Now().Add(-24 * time.Hour),
		CreatedAt:         clock.Now().Add(-30 * 24 * time.Hour),
	}
	if mutate != nil {
		mutate(principal)
	}

	principals := newPrincipalRepoStub(principal)
	sessions := &sessionRepoStub{}
	challenges := &challengeRepoStub{}
	email := &emailSenderStub{}
	audit := &auditSinkStub{}
	events := &eventPublisherStub{}

	sessionSvc := NewSessionService(sessions, audit, events, nil, nil)
	twoFactor := NewTwoFactorService(challenges, email, audit, nil)
	auth := NewAuthService(testSecuritySettings(), principals, sessionSvc, twoFactor, hasher, audit, events, nil)
	auth.WithClock(clock.Now)

	return &authFixture{
		clock:      clock,
		principals: principals,
		sessions:   sessions,
		challenges: challenges,
		email:      email,
		audit:      audit,
		events:     events,
		auth:       auth,
		principal:  principal,
		password:   password,
	}
}

func (f *authFixture) login(t *testing.T, password string) (*LoginResult, error) {
	t.Helper()
	return f.auth.Login(context.Background(), LoginInput{
		Email:    f.principal.Email,
		Password: password,
	})
}

func TestLoginSuccessEstablishesSession(t *testing.T) {
	f := newAuthFixture(t, nil)

	result, err := f.login(t, f.password)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.Outcome != OutcomeAuthenticated {
		t.Fatalf("expected authenticated outcome, got %s", result.Outcome)
	}
	if result.Session == nil || result.Session.Token == "" {
		t.Fatal("expected session artifacts")
	}
	if result.Principal.PasswordHash != "" {
		t.Fatal("expected password hash to be stripped")
	}
	if !f.principals.loginRecorded {
		t.Fatal("expected login to be recorded")
	}
	if !f.audit.has(domain.AuditLoginSuccessful) {
		t.Fatalf("expected %q audit entry, got %v", domain.AuditLoginSuccessful, f.audit.actions())
	}
}

func TestLoginUnknownEmailIndistinguishable(t *testing.T) {
	f := newAuthFixture(t, nil)

	_, err := f.auth.Login(context.Background(), LoginInput{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWrongPasswordCountsAndLocks(t *testing.T) {
	f := newAuthFixture(t, nil)

	for i := 1; i <= 2; i++ {
		_, err := f.login(t, "wrong-password")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := f.login(t, "wrong-password")
	var locked *AccountLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected AccountLockedError on third failure, got %v", err)
	}

	if !f.audit.has(domain.AuditAccountLocked) {
		t.Fatalf("expected %q audit entry, got %v", domain.AuditAccountLocked, f.audit.actions())
	}
	if len(f.events.locked) != 1 {
		t.Fatalf("expected one account locked event, got %d", len(f.events.locked))
	}
	if f.events.locked[0].FailedAttempts != 3 {
		t.Fatalf("expected 3 failed attempts in event, got %d", f.events.locked[0].FailedAttempts)
	}
}

func TestLoginLockedRejectsCorrectPassword(t *testing.T) {
	f := newAuthFixture(t, nil)

	for i := 0; i < 3; i++ {
		f.login(t, "wrong-password")
	}

	_, err := f.login(t, f.password)
	var locked *AccountLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected AccountLockedError, got %v", err)
	}
	if locked.Remaining <= 0 || locked.Remaining > 10*time.Minute {
		t.Fatalf("unexpected remaining lock time %s", locked.Remaining)
	}
}

func TestLoginAutoUnlockAfterExpiry(t *testing.T) {
	f := newAuthFixture(t, nil)

	for i := 0; i < 3; i++ {
		f.login(t, "wrong-password")
	}

	f.clock.Advance(10*time.Minute + time.Second)

	result, err := f.login(t, f.password)
	if err != nil {
		t.Fatalf("Login after lock expiry returned error: %v", err)
	}
	if result.Outcome != OutcomeAuthenticated {
		t.Fatalf("expected authenticated outcome, got %s", result.Outcome)
	}
	if !f.audit.has(domain.AuditAccountAutoUnlocked) {
		t.Fatalf("expected %q audit entry, got %v", domain.AuditAccountAutoUnlocked, f.audit.actions())
	}
}

func TestLoginAutoUnlockRestartsCounter(t *testing.T) {
	f := newAuthFixture(t, nil)

	for i := 0; i < 3; i++ {
		f.login(t, "wrong-password")
	}

	f.clock.Advance(11 * time.Minute)

	_, err := f.login(t, "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials after unlock, got %v", err)
	}

	stored, _ := f.principals.GetByID(context.Background(), f.principal.ID)
	if stored.FailedLoginAttempts != 1 {
		t.Fatalf("expected counter restart at 1, got %d", stored.FailedLoginAttempts)
	}
	if stored.Locked {
		t.Fatal("expected account to remain unlocked")
	}
}

func TestLoginSuccessResetsCounter(t *testing.T) {
	f := newAuthFixture(t, nil)

	f.login(t, "wrong-password")
	f.login(t, "wrong-password")

	if _, err := f.login(t, f.password); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	stored, _ := f.principals.GetByID(context.Background(), f.principal.ID)
	if stored.FailedLoginAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", stored.FailedLoginAttempts)
	}
}

func TestLoginTwoFactorRequired(t *testing.T) {
	f := newAuthFixture(t, func(p *domain.Principal) {
		p.TwoFactorEnabled = true
	})

	result, err := f.login(t, f.password)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.Outcome != OutcomeTwoFactorRequired {
		t.Fatalf("expected two-factor outcome, got %s", result.Outcome)
	}
	if result.Session != nil {
		t.Fatal("expected no session before code verification")
	}
	if len(f.email.sent) != 1 || f.email.sent[0].kind != "two-factor-code" {
		t.Fatalf("expected a two-factor code email, got %+v", f.email.sent)
	}
	if f.sessions.activeCount(f.principal.ID) != 0 {
		t.Fatal("expected no active sessions yet")
	}
}

func TestVerifyTwoFactorCompletesLogin(t *testing.T) {
	f := newAuthFixture(t, func(p *domain.Principal) {
		p.TwoFactorEnabled = true
	})

	if _, err := f.login(t, f.password); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	code := f.email.sent[0].payload["code"]

	result, err := f.auth.VerifyTwoFactor(context.Background(), f.principal.ID, code, nil, nil)
	if err != nil {
		t.Fatalf("VerifyTwoFactor returned error: %v", err)
	}
	if result.Outcome != OutcomeAuthenticated {
		t.Fatalf("expected authenticated outcome, got %s", result.Outcome)
	}
	if result.Session == nil {
		t.Fatal("expected session artifacts")
	}

	// The code is single-use.
	if _, err := f.auth.VerifyTwoFactor(context.Background(), f.principal.ID, code, nil, nil); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("expected ErrTwoFactorCodeInvalid on reuse, got %v", err)
	}
}

func TestResendTwoFactorCode(t *testing.T) {
	f := newAuthFixture(t, func(p *domain.Principal) {
		p.TwoFactorEnabled = true
	})

	if _, err := f.login(t, f.password); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	firstCode := f.email.sent[0].payload["code"]

	if err := f.auth.ResendTwoFactorCode(context.Background(), f.principal.ID, nil); err != nil {
		t.Fatalf("ResendTwoFactorCode returned error: %v", err)
	}
	if len(f.email.sent) != 2 {
		t.Fatalf("expected a second code email, got %d", len(f.email.sent))
	}

	// The earlier code stays redeemable until it expires on its own.
	if _, err := f.auth.VerifyTwoFactor(context.Background(), f.principal.ID, firstCode, nil, nil); err != nil {
		t.Fatalf("VerifyTwoFactor with first code returned error: %v", err)
	}
}

func TestResendTwoFactorCodeRejectsUnknownPrincipal(t *testing.T) {
	f := newAuthFixture(t, func(p *domain.Principal) {
		p.TwoFactorEnabled = true
	})

	if err := f.auth.ResendTwoFactorCode(context.Background(), "no-such-principal", nil); !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("expected ErrTwoFactorCodeInvalid, got %v", err)
	}
}

func TestVerifyTwoFactorExpiredCode(t *testing.T) {
	f := newAuthFixture(t, func(p *domain.Principal) {
		p.TwoFactorEnabled = true
	})

	if _, err := f.login(t, f.password); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	code := f.email.sent[0].payload["code"]

	f.clock.Advance(5*time.Minute + time.Second)

	_, err := f.auth.VerifyTwoFactor(context.Background(), f.principal.ID, code, nil, nil)
	if !errors.Is(err, ErrTwoFactorCodeInvalid) {
		t.Fatalf("expected ErrTwoFactorCodeInvalid for expired code, got %v", err)
	}
}

func TestLoginRequiresPasswordChangeFlag(t *testing.T) {
	f := newAuthFixture(t, func(p *domain.Principal) {
		p.RequirePasswordChange = true
	})

	result, err := f.login(t, f.password)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.Outcome != OutcomePasswordChangeRequired {
		t.Fatalf("expected password change outcome, got %s", result.Outcome)
	}
	if result.Session != nil {
		t.Fatal("expected no session for forced password change")
	}
}

func TestLoginExpiredPasswordDemandsChange(t *testing.T) {
	f := newAuthFixture(t, func(p *domain.Principal) {
		p.PasswordChangedAt = time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	})

	result, err := f.login(t, f.password)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.Outcome != OutcomePasswordChangeRequired {
		t.Fatalf("expected password change outcome for aged password, got %s", result.Outcome)
	}
}

func TestLoginExpiredPasswordPersistsForceFlag(t *testing.T) {
	f := newAuthFixture(t, func(p *domain.Principal) {
		p.PasswordChangedAt = time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	})

	if _, err := f.login(t, f.password); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	// The demand survives the login attempt, so the forced-change flow can
	// recognize it later.
	stored, _ := f.principals.GetByID(context.Background(), f.principal.ID)
	if !stored.RequirePasswordChange {
		t.Fatal("expected the change requirement to be persisted")
	}
}

func TestSecondLoginSupersedesFirstSession(t *testing.T) {
	f := newAuthFixture(t, nil)

	first, err := f.login(t, f.password)
	if err != nil {
		t.Fatalf("first login returned error: %v", err)
	}

	second, err := f.login(t, f.password)
	if err != nil {
		t.Fatalf("second login returned error: %v", err)
	}

	if second.Session.Superseded != 1 {
		t.Fatalf("expected one superseded session, got %d", second.Session.Superseded)
	}
	if f.sessions.activeCount(f.principal.ID) != 1 {
		t.Fatalf("expected exactly one active session, got %d", f.sessions.activeCount(f.principal.ID))
	}
	if !f.audit.has(domain.AuditConcurrentLoginDetected) {
		t.Fatalf("expected %q audit entry, got %v", domain.AuditConcurrentLoginDetected, f.audit.actions())
	}
	if len(f.events.superseded) != 1 {
		t.Fatalf("expected one superseded event, got %d", len(f.events.superseded))
	}

	stored, _ := f.sessions.GetByTokenHash(context.Background(), first.Session.Session.TokenHash)
	if stored.Active {
		t.Fatal("expected first session to be ended")
	}
	if stored.EndReason == nil || *stored.EndReason != EndReasonSuperseded {
		t.Fatalf("unexpected end reason %v", stored.EndReason)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	f := newAuthFixture(t, nil)

	result, err := f.login(t, f.password)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := f.auth.Logout(context.Background(), result.Session.Token, nil); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if f.sessions.activeCount(f.principal.ID) != 0 {
		t.Fatal("expected no active sessions after logout")
	}
	if !f.audit.has(domain.AuditLogout) {
		t.Fatalf("expected %q audit entry, got %v", domain.AuditLogout, f.audit.actions())
	}
}
