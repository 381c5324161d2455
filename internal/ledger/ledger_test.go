package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/store"
)

type fakeStore struct {
	opens   []bool // reopen flags in insertion order
	seen    map[string]bool
	clicks  []uuid.UUID
	tracked map[string]*domain.TrackedURL
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: make(map[string]bool), tracked: make(map[string]*domain.TrackedURL)}
}

func trackedKey(runID uuid.UUID, url string, position int) string {
	return runID.String() + "|" + url + "|" + string(rune('0'+position))
}

func (f *fakeStore) InsertOpen(ctx context.Context, runID, recipientID uuid.UUID) error {
	key := runID.String() + "|" + recipientID.String()
	f.opens = append(f.opens, f.seen[key])
	f.seen[key] = true
	return nil
}

func (f *fakeStore) GetTrackedURL(ctx context.Context, runID uuid.UUID, url string, position int) (*domain.TrackedURL, error) {
	tu, ok := f.tracked[trackedKey(runID, url, position)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return tu, nil
}

func (f *fakeStore) InsertClick(ctx context.Context, trackedURLID, recipientID uuid.UUID) error {
	f.clicks = append(f.clicks, trackedURLID)
	return nil
}

func TestRecordOpen_ReopenSemantics(t *testing.T) {
	fs := newFakeStore()
	l := New(fs)
	run, recipient := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		if err := l.RecordOpen(context.Background(), run, recipient); err != nil {
			t.Fatal(err)
		}
	}

	if len(fs.opens) != 3 {
		t.Fatalf("open events = %d, want 3", len(fs.opens))
	}
	if fs.opens[0] {
		t.Error("first open marked as reopen")
	}
	if !fs.opens[1] || !fs.opens[2] {
		t.Error("subsequent opens not marked as reopen")
	}
}

func TestRecordClick_NeverDeduplicated(t *testing.T) {
	fs := newFakeStore()
	l := New(fs)
	run, recipient := uuid.New(), uuid.New()
	tu := &domain.TrackedURL{ID: uuid.New(), RunID: run, URL: "https://a.example.com", Position: 0}
	fs.tracked[trackedKey(run, tu.URL, 0)] = tu

	for i := 0; i < 4; i++ {
		if err := l.RecordClick(context.Background(), run, tu.URL, 0, recipient); err != nil {
			t.Fatal(err)
		}
	}
	if len(fs.clicks) != 4 {
		t.Fatalf("click events = %d, want 4", len(fs.clicks))
	}
	for _, id := range fs.clicks {
		if id != tu.ID {
			t.Errorf("click bound to wrong tracked url: %s", id)
		}
	}
}

func TestRecordClick_UnknownURL(t *testing.T) {
	l := New(newFakeStore())
	err := l.RecordClick(context.Background(), uuid.New(), "https://forged.example.com", 0, uuid.New())
	if err == nil {
		t.Fatal("click against unregistered url must fail")
	}
}
