package studysession

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/runTech0704/Study-Savings/internal/model"
	"github.com/runTech0704/Study-Savings/internal/repository"
)

// fakeStore は科目・セッション・目標をメモリ上に保持するテスト用ストア。
// 進行中セッションの一意性とRunInTxの直列化をPostgreSQL実装と同じく保証する。
type fakeStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	subjects map[string]*model.Subject
	sessions map[string]*model.StudySession
	goals    []*model.SavingsGoal

	createActiveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subjects: make(map[string]*model.Subject),
		sessions: make(map[string]*model.StudySession),
	}
}

func (f *fakeStore) addSubject(id, userID, name, rate string) *model.Subject {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &model.Subject{ID: id, UserID: userID, Name: name, HourlyRate: decimal.RequireFromString(rate)}
	f.subjects[id] = s
	return s
}

func (f *fakeStore) addGoal(id, userID, target, current string) *model.SavingsGoal {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := &model.SavingsGoal{
		ID:            id,
		UserID:        userID,
		TargetAmount:  decimal.RequireFromString(target),
		CurrentAmount: decimal.RequireFromString(current),
		CreatedAt:     time.Date(2024, 1, 1, 0, 0, 0, len(f.goals), time.UTC),
	}
	f.goals = append(f.goals, g)
	return g
}

func (f *fakeStore) goal(id string) model.SavingsGoal {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.goals {
		if g.ID == id {
			return *g
		}
	}
	return model.SavingsGoal{}
}

func (f *fakeStore) activeCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sessions {
		if s.UserID == userID && s.EndTime == nil {
			n++
		}
	}
	return n
}

func (f *fakeStore) detail(s *model.StudySession) *model.StudySessionDetail {
	sub := f.subjects[s.SubjectID]
	return &model.StudySessionDetail{StudySession: *s, SubjectName: sub.Name, HourlyRate: sub.HourlyRate}
}

// --- SubjectRepository ---

func (f *fakeStore) ListByUserID(context.Context, string) ([]*model.Subject, error) { return nil, nil }

func (f *fakeStore) FindByID(_ context.Context, userID, id string) (*model.Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subjects[id]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) Create(context.Context, *model.Subject) error { return nil }

func (f *fakeStore) Update(context.Context, *model.Subject) (bool, error) { return false, nil }

func (f *fakeStore) Delete(context.Context, string, string) (bool, error) { return false, nil }

// --- StudySessionRepository ---

type fakeSessions struct{ *fakeStore }

func (f fakeSessions) CreateActive(_ context.Context, session *model.StudySession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createActiveErr != nil {
		return f.createActiveErr
	}
	for _, s := range f.sessions {
		if s.UserID == session.UserID && s.EndTime == nil {
			return repository.ErrActiveSessionExists
		}
	}
	cp := *session
	f.sessions[session.ID] = &cp
	return nil
}

func (f fakeSessions) FindActiveByUserID(_ context.Context, userID string) (*model.StudySessionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.EndTime == nil {
			return f.detail(s), nil
		}
	}
	return nil, nil
}

func (f fakeSessions) FindByID(_ context.Context, userID, id string) (*model.StudySessionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	return f.detail(s), nil
}

func (f fakeSessions) ListByUserID(_ context.Context, userID string) ([]*model.StudySessionDetail, error) {
	return f.list(userID, time.Time{}, false), nil
}

func (f fakeSessions) ListCompletedSince(_ context.Context, userID string, since time.Time) ([]*model.StudySessionDetail, error) {
	return f.list(userID, since, true), nil
}

func (f fakeSessions) list(userID string, since time.Time, completedOnly bool) []*model.StudySessionDetail {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.StudySessionDetail
	for _, s := range f.sessions {
		if s.UserID != userID || s.StartTime.Before(since) {
			continue
		}
		if completedOnly && s.EndTime == nil {
			continue
		}
		out = append(out, f.detail(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

func (f fakeSessions) CountCompleted(context.Context, string) (int, error) { return 0, nil }

func (f fakeSessions) UpdateNotes(_ context.Context, userID, id, notes string, updatedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return false, nil
	}
	s.Notes = notes
	s.UpdatedAt = updatedAt
	return true, nil
}

func (f fakeSessions) Delete(_ context.Context, userID, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return false, nil
	}
	delete(f.sessions, id)
	return true, nil
}

// --- LedgerStore ---

func (f *fakeStore) RunInTx(_ context.Context, _ string, fn func(tx repository.LedgerTx) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	return fn(fakeLedgerTx{f})
}

type fakeLedgerTx struct{ *fakeStore }

func (t fakeLedgerTx) FindSessionForUpdate(ctx context.Context, userID, id string) (*model.StudySessionDetail, error) {
	return fakeSessions{t.fakeStore}.FindByID(ctx, userID, id)
}

func (t fakeLedgerTx) CompleteSession(_ context.Context, session *model.StudySession) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := *session
	t.sessions[session.ID] = &cp
	return nil
}

func (t fakeLedgerTx) FirstUnachievedGoalForUpdate(_ context.Context, userID string) (*model.SavingsGoal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, g := range t.goals {
		if g.UserID == userID && !g.IsAchieved {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (t fakeLedgerTx) SaveGoalProgress(_ context.Context, goal *model.SavingsGoal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, g := range t.goals {
		if g.ID == goal.ID {
			cp := *goal
			t.goals[i] = &cp
		}
	}
	return nil
}

var (
	_ repository.SubjectRepository      = (*fakeStore)(nil)
	_ repository.StudySessionRepository = fakeSessions{}
	_ repository.LedgerStore            = (*fakeStore)(nil)
	_ repository.LedgerTx               = fakeLedgerTx{}
)
