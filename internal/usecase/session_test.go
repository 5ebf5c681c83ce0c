package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aryanndesai/FreshFarmMarket/internal/infra/security"
)

func newSessionFixture(t *testing.T, binder *security.SessionBinder) (*SessionService, *sessionRepoStub, *auditSinkStub, *fixedClock) {
	t.Helper()

	clock := newFixedClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	sessions := &sessionRepoStub{}
	audit := &auditSinkStub{}
	svc := NewSessionService(sessions, audit, &eventPublisherStub{}, binder, nil)
	svc.WithClock(clock.Now)
	return svc, sessions, audit, clock
}

func TestSessionValidateTouchesActivity(t *testing.T) {
	svc, _, _, clock := newSessionFixture(t, nil)

	artifacts, err := svc.Start(context.Background(), "principal-1", nil, nil)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	clock.Advance(2 * time.Minute)

	session, err := svc.Validate(context.Background(), artifacts.Token, "")
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !session.LastActivityAt.Equal(clock.Now().UTC()) {
		t.Fatalf("expected activity timestamp %s, got %s", clock.Now().UTC(), session.LastActivityAt)
	}
}

func TestSessionValidateRejectsUnknownToken(t *testing.T) {
	svc, _, _, _ := newSessionFixture(t, nil)

	if _, err := svc.Validate(context.Background(), "not-a-token", ""); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestSessionValidateRejectsEndedSession(t *testing.T) {
	svc, _, _, _ := newSessionFixture(t, nil)

	artifacts, err := svc.Start(context.Background(), "principal-1", nil, nil)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if err := svc.Terminate(context.Background(), artifacts.Token, EndReasonLogout, nil); err != nil {
		t.Fatalf("Terminate returned error: %v", err)
	}

	if _, err := svc.Validate(context.Background(), artifacts.Token, ""); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid after termination, got %v", err)
	}
}

func TestSessionBindingEnforced(t *testing.T) {
	binder, err := security.NewSessionBinder([]byte(strings.Repeat("k", 32)), "test")
	if err != nil {
		t.Fatalf("NewSessionBinder returned error: %v", err)
	}

	svc, _, _, _ := newSessionFixture(t, binder)

	artifacts, err := svc.Start(context.Background(), "principal-1", nil, nil)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if artifacts.BindingToken == "" {
		t.Fatal("expected a binding token")
	}

	if _, err := svc.Validate(context.Background(), artifacts.Token, ""); !errors.Is(err, ErrSessionBindingRequired) {
		t.Fatalf("expected ErrSessionBindingRequired, got %v", err)
	}

	if _, err := svc.Validate(context.Background(), artifacts.Token, artifacts.BindingToken); err != nil {
		t.Fatalf("Validate with binding returned error: %v", err)
	}

	// A binding token from another session must not validate this one.
	other, err := svc.Start(context.Background(), "principal-2", nil, nil)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if _, err := svc.Validate(context.Background(), artifacts.Token, other.BindingToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for foreign binding, got %v", err)
	}
}

func TestTerminateAllEndsEverySession(t *testing.T) {
	svc, sessions, audit, _ := newSessionFixture(t, nil)

	// Seed two active sessions directly; Start would supersede.
	if _, err := svc.Start(context.Background(), "principal-1", nil, nil); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	ended, err := svc.TerminateAll(context.Background(), "principal-1", EndReasonPasswordChanged, nil)
	if err != nil {
		t.Fatalf("TerminateAll returned error: %v", err)
	}
	if ended != 1 {
		t.Fatalf("expected 1 ended session, got %d", ended)
	}
	if sessions.activeCount("principal-1") != 0 {
		t.Fatal("expected no active sessions")
	}
	if len(audit.entries) == 0 {
		t.Fatal("expected audit entries")
	}
}

func TestListActiveReturnsOnlyActive(t *testing.T) {
	svc, _, _, _ := newSessionFixture(t, nil)

	first, err := svc.Start(context.Background(), "principal-1", nil, nil)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	second, err := svc.Start(context.Background(), "principal-1", nil, nil)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if second.Superseded != 1 {
		t.Fatalf("expected supersession, got %d", second.Superseded)
	}

	active, err := svc.ListActive(context.Background(), "principal-1")
	if err != nil {
		t.Fatalf("ListActive returned error: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected one active session, got %d", len(active))
	}
	if active[0].ID == first.Session.ID {
		t.Fatal("expected the superseded session to be excluded")
	}
}
