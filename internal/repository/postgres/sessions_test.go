package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/domain"
	"github.com/aryanndesai/FreshFarmMarket/internal/repository"
)

func TestSessionRepository_CreateReportsSuperseded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	now := time.Now().UTC()
	session := domain.Session{
		ID:             "session-1",
		PrincipalID:    "principal-1",
		TokenHash:      "token-hash",
		CreatedAt:      now,
		LastActivityAt: now,
		Active:         true,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM identity\.principals WHERE id = \$1 FOR UPDATE`).
		WithArgs(session.PrincipalID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(session.PrincipalID))
	mock.ExpectExec(`UPDATE identity\.sessions`).
		WithArgs(session.PrincipalID, session.CreatedAt, "Logged in from another device").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO identity\.sessions`).
		WithArgs(
			session.ID,
			session.PrincipalID,
			session.TokenHash,
			nil,
			nil,
			session.CreatedAt,
			session.LastActivityAt,
			true,
			nil,
			nil,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	superseded, err := repo.Create(context.Background(), session, "Logged in from another device")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if superseded != 1 {
		t.Fatalf("expected 1 superseded session, got %d", superseded)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_CreateUnknownPrincipal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM identity\.principals WHERE id = \$1 FOR UPDATE`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	now := time.Now().UTC()
	_, err = repo.Create(context.Background(), domain.Session{
		ID:             "session-1",
		PrincipalID:    "missing",
		TokenHash:      "token-hash",
		CreatedAt:      now,
		LastActivityAt: now,
		Active:         true,
	}, "Logged in from another device")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_GetByTokenHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	now := time.Now().UTC()
	ip := "198.51.100.10"
	rows := pgxmock.NewRows([]string{
		"id", "principal_id", "token_hash", "ip", "user_agent", "created_at",
		"last_activity_at", "active", "ended_at", "end_reason",
	}).AddRow(
		"session-1", "principal-1", "token-hash", ip, nil, now, now, true, nil, nil,
	)

	mock.ExpectQuery(`SELECT .+ FROM identity\.sessions WHERE token_hash = \$1`).
		WithArgs("token-hash").
		WillReturnRows(rows)

	session, err := repo.GetByTokenHash(context.Background(), "token-hash")
	if err != nil {
		t.Fatalf("GetByTokenHash returned error: %v", err)
	}
	if session.ID != "session-1" || !session.Active {
		t.Fatalf("unexpected session %+v", session)
	}
	if session.IP == nil || *session.IP != ip {
		t.Fatalf("unexpected ip %v", session.IP)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_EndByTokenHashNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	mock.ExpectExec(`UPDATE identity\.sessions`).
		WithArgs(false, pgxmock.AnyArg(), "Logged out", "unknown").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.EndByTokenHash(context.Background(), "unknown", time.Now().UTC(), "Logged out")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_EndAllForPrincipal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	mock.ExpectExec(`UPDATE identity\.sessions`).
		WithArgs(false, pgxmock.AnyArg(), "Password changed", "principal-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	ended, err := repo.EndAllForPrincipal(context.Background(), "principal-1", time.Now().UTC(), "Password changed")
	if err != nil {
		t.Fatalf("EndAllForPrincipal returned error: %v", err)
	}
	if ended != 2 {
		t.Fatalf("expected 2 ended sessions, got %d", ended)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
