package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"machikado-auth/internal/domain"
)

type mockLoginHistoryRepo struct {
	entries   []domain.LoginHistory
	createErr error
}

func (m *mockLoginHistoryRepo) Create(_ context.Context, entry domain.LoginHistory) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func TestLoginHistoryRecorder_SuccessGetsSessionID(t *testing.T) {
	repo := &mockLoginHistoryRepo{}
	rec := NewLoginHistoryRecorder(zap.NewNop(), repo)

	entry := rec.Record(context.Background(), "u-1", domain.LoginOutcomeSuccess, ClientInfo{IP: "203.0.113.9", UserAgent: "test-agent"})
	if entry.SessionID == "" {
		t.Fatal("expected a session id on successful login")
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 persisted entry, got %d", len(repo.entries))
	}
	stored := repo.entries[0]
	if stored.UserID != "u-1" || stored.IPAddress != "203.0.113.9" || stored.UserAgent != "test-agent" {
		t.Fatalf("unexpected stored entry: %+v", stored)
	}
	if stored.Outcome != domain.LoginOutcomeSuccess {
		t.Fatalf("unexpected outcome %q", stored.Outcome)
	}
}

func TestLoginHistoryRecorder_FailureHasNoSessionID(t *testing.T) {
	repo := &mockLoginHistoryRepo{}
	rec := NewLoginHistoryRecorder(zap.NewNop(), repo)

	entry := rec.Record(context.Background(), "", domain.LoginOutcomeFailed, ClientInfo{IP: "203.0.113.9"})
	if entry.SessionID != "" {
		t.Fatalf("failed attempt must not mint a session id, got %q", entry.SessionID)
	}
	if entry.UserID != "" {
		t.Fatalf("expected empty user id, got %q", entry.UserID)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 persisted entry, got %d", len(repo.entries))
	}
}

func TestLoginHistoryRecorder_WriteFailureIsSwallowed(t *testing.T) {
	repo := &mockLoginHistoryRepo{createErr: errors.New("connection refused")}
	rec := NewLoginHistoryRecorder(zap.NewNop(), repo)

	entry := rec.Record(context.Background(), "u-1", domain.LoginOutcomeSuccess, ClientInfo{})
	if entry.ID == "" || entry.SessionID == "" {
		t.Fatal("expected the entry to be built even when the write fails")
	}
}

func TestLoginHistoryRecorder_DistinctSessionIDs(t *testing.T) {
	repo := &mockLoginHistoryRepo{}
	rec := NewLoginHistoryRecorder(zap.NewNop(), repo)

	a := rec.Record(context.Background(), "u-1", domain.LoginOutcomeSuccess, ClientInfo{})
	b := rec.Record(context.Background(), "u-1", domain.LoginOutcomeSuccess, ClientInfo{})
	if a.SessionID == b.SessionID {
		t.Fatal("each successful login must get a fresh session id")
	}
}
