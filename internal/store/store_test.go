package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestClearSendOverride(t *testing.T) {
	s, mock := newTestStore(t)
	id := uuid.New()

	// First caller flips the flag.
	mock.ExpectExec("UPDATE campaigns SET send_override = FALSE").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	cleared, err := s.ClearSendOverride(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if !cleared {
		t.Error("first clear reported not cleared")
	}

	// Second caller finds it already consumed.
	mock.ExpectExec("UPDATE campaigns SET send_override = FALSE").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	cleared, err = s.ClearSendOverride(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if cleared {
		t.Error("second clear reported cleared")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRunExists(t *testing.T) {
	s, mock := newTestStore(t)
	id := uuid.New()
	at := time.Date(2026, time.August, 12, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id, at).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	exists, err := s.RunExists(context.Background(), id, at)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("existing run not found")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateRun(t *testing.T) {
	s, mock := newTestStore(t)
	run := &domain.DeliveryRun{
		ID:          uuid.New(),
		CampaignID:  uuid.New(),
		RequestedAt: time.Now().UTC(),
		StartedAt:   time.Now().UTC(),
		HTMLBody:    "<p>hi</p>",
		Subject:     "hello",
		TrackURLs:   true,
		TrackOpens:  true,
	}

	mock.ExpectExec("INSERT INTO delivery_runs").
		WithArgs(run.ID, run.CampaignID, run.RequestedAt, run.StartedAt,
			run.HTMLBody, run.TextBody, run.Subject, run.TrackURLs, run.TrackOpens).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.CreateRun(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetTrackedURL_NotFound(t *testing.T) {
	s, mock := newTestStore(t)
	runID := uuid.New()

	mock.ExpectQuery("SELECT id FROM tracked_urls").
		WithArgs(runID, "https://a.example.com", 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := s.GetTrackedURL(context.Background(), runID, "https://a.example.com", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMarkRecordOutcomes(t *testing.T) {
	s, mock := newTestStore(t)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE delivery_records SET sent_at").
		WithArgs(id, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.MarkRecordSent(context.Background(), id, at); err != nil {
		t.Fatal(err)
	}

	mock.ExpectExec("UPDATE delivery_records SET error").
		WithArgs(id, "550 no such user").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.MarkRecordFailed(context.Background(), id, "550 no such user"); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSummarizeRun(t *testing.T) {
	s, mock := newTestStore(t)
	runID := uuid.New()

	mock.ExpectQuery("SELECT").
		WithArgs(runID).
		WillReturnRows(sqlmock.NewRows([]string{"sent", "failed", "unattempted"}).AddRow(97, 2, 1))
	out, err := s.SummarizeRun(context.Background(), runID)
	if err != nil {
		t.Fatal(err)
	}
	if out.Sent != 97 || out.Failed != 2 || out.Unattempted != 1 {
		t.Errorf("outcome = %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDisableRecipient(t *testing.T) {
	s, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE recipients SET disabled = TRUE").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.DisableRecipient(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestInsertOpen_FirstThenReopen(t *testing.T) {
	s, mock := newTestStore(t)
	runID, recipientID := uuid.New(), uuid.New()

	// First callback wins the reopen=false row.
	mock.ExpectExec("INSERT INTO open_events").
		WithArgs(sqlmock.AnyArg(), runID, recipientID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.InsertOpen(context.Background(), runID, recipientID); err != nil {
		t.Fatal(err)
	}

	// Second callback conflicts on the first-open index and falls
	// through to the reopen insert.
	mock.ExpectExec("INSERT INTO open_events").
		WithArgs(sqlmock.AnyArg(), runID, recipientID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO open_events").
		WithArgs(sqlmock.AnyArg(), runID, recipientID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.InsertOpen(context.Background(), runID, recipientID); err != nil {
		t.Fatal(err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
