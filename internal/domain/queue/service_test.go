package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mock Repository --

type mockRepo struct {
	queues map[string]*Queue
	saves  int
}

func newMockRepo() *mockRepo {
	return &mockRepo{queues: make(map[string]*Queue)}
}

func (m *mockRepo) clone(q *Queue) *Queue {
	cp := *q
	cp.Entries = append([]Entry(nil), q.Entries...)
	return &cp
}

func (m *mockRepo) GetByRoom(_ context.Context, room string) (*Queue, error) {
	q, ok := m.queues[room]
	if !ok {
		return nil, fmt.Errorf("queue for room %s: %w", room, ErrNotFound)
	}
	return m.clone(q), nil
}

func (m *mockRepo) Save(_ context.Context, q *Queue) error {
	m.saves++
	m.queues[q.Room] = m.clone(q)
	return nil
}

func (m *mockRepo) ListActive(_ context.Context) ([]*Queue, error) {
	var out []*Queue
	for _, q := range m.queues {
		if q.Status == StatusActive {
			out = append(out, m.clone(q))
		}
	}
	return out, nil
}

func (m *mockRepo) ListAll(_ context.Context) ([]*Queue, error) {
	var out []*Queue
	for _, q := range m.queues {
		out = append(out, m.clone(q))
	}
	return out, nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	svc := NewService(repo, zerolog.Nop())
	svc.SetClock(func() time.Time {
		return time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	})
	return svc, repo
}

func admit(t *testing.T, svc *Service, room string) *Entry {
	t.Helper()
	entry, err := svc.AddPatient(context.Background(), room, AdmitParams{
		AppointmentID: ptr(uuid.New()),
		PatientID:     uuid.New(),
		PatientName:   "Test Patient",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return entry
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

// -- AddPatient --

func TestAddPatientFirstIsServed(t *testing.T) {
	svc, repo := newTestService()

	entry := admit(t, svc, "1")
	if entry.Token != "T-1-1" {
		t.Errorf("expected token T-1-1, got %s", entry.Token)
	}
	if entry.State != StateServing {
		t.Errorf("expected first patient serving, got %s", entry.State)
	}
	q := repo.queues["1"]
	if q.CurrentToken != "T-1-1" || q.CurrentIndex != 0 {
		t.Errorf("cursor not set to first entry: token=%s index=%d", q.CurrentToken, q.CurrentIndex)
	}
}

func TestAddPatientSecondWaits(t *testing.T) {
	svc, repo := newTestService()

	admit(t, svc, "1")
	second := admit(t, svc, "1")
	if second.Token != "T-1-2" {
		t.Errorf("expected token T-1-2, got %s", second.Token)
	}
	if second.State != StateWaiting {
		t.Errorf("expected second patient waiting, got %s", second.State)
	}
	if repo.queues["1"].CurrentToken != "T-1-1" {
		t.Errorf("cursor moved on admission: %s", repo.queues["1"].CurrentToken)
	}
}

func TestAddPatientTokensIndependentPerRoom(t *testing.T) {
	svc, _ := newTestService()

	admit(t, svc, "1")
	entry := admit(t, svc, "2")
	if entry.Token != "T-2-1" {
		t.Errorf("expected T-2-1, got %s", entry.Token)
	}
}

func TestAddPatientValidation(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.AddPatient(context.Background(), "", AdmitParams{PatientID: uuid.New()})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for empty room, got %v", err)
	}
	_, err = svc.AddPatient(context.Background(), "1", AdmitParams{})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for nil patient, got %v", err)
	}
}

func TestAddPatientDuplicateAppointmentConflicts(t *testing.T) {
	svc, repo := newTestService()

	first := admit(t, svc, "1")
	_, err := svc.AddPatient(context.Background(), "1", AdmitParams{
		AppointmentID: first.AppointmentID,
		PatientID:     uuid.New(),
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for live duplicate, got %v", err)
	}
	if len(repo.queues["1"].Entries) != 1 {
		t.Errorf("duplicate entry created: %d entries", len(repo.queues["1"].Entries))
	}

	// Once the entry is terminal the appointment may be admitted again.
	if err := svc.CompleteByAppointment(context.Background(), "1", *first.AppointmentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.AddPatient(context.Background(), "1", AdmitParams{
		AppointmentID: first.AppointmentID,
		PatientID:     uuid.New(),
	}); err != nil {
		t.Errorf("re-admission after completion rejected: %v", err)
	}
}

// -- AdvanceToNext --

func TestAdvanceToNextPromotesNext(t *testing.T) {
	svc, repo := newTestService()

	admit(t, svc, "1")
	admit(t, svc, "1")

	served, err := svc.AdvanceToNext(context.Background(), "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if served == nil || served.Token != "T-1-2" {
		t.Fatalf("expected T-1-2 serving, got %+v", served)
	}
	q := repo.queues["1"]
	if q.Entries[0].State != StateCompleted {
		t.Errorf("previous entry not completed: %s", q.Entries[0].State)
	}
	if q.Entries[1].State != StateServing || q.CurrentToken != "T-1-2" {
		t.Errorf("next entry not serving: state=%s token=%s", q.Entries[1].State, q.CurrentToken)
	}
}

func TestAdvanceToNextExhaustedIsNoop(t *testing.T) {
	svc, repo := newTestService()

	admit(t, svc, "1")
	if _, err := svc.AdvanceToNext(context.Background(), "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := repo.queues["1"].CurrentIndex

	served, err := svc.AdvanceToNext(context.Background(), "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if served != nil {
		t.Errorf("expected no one to serve, got %+v", served)
	}
	if repo.queues["1"].CurrentIndex != before {
		t.Errorf("cursor moved past end: %d", repo.queues["1"].CurrentIndex)
	}
}

func TestAdvanceToNextEmptyQueue(t *testing.T) {
	svc, repo := newTestService()
	repo.queues["1"] = &Queue{Room: "1", Status: StatusActive}

	served, err := svc.AdvanceToNext(context.Background(), "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if served != nil {
		t.Errorf("expected nil on empty queue, got %+v", served)
	}
}

// -- CompleteByAppointment --

func TestCompleteByAppointmentPromotesNextWaiting(t *testing.T) {
	svc, repo := newTestService()

	first := admit(t, svc, "1")
	admit(t, svc, "1")

	if err := svc.CompleteByAppointment(context.Background(), "1", *first.AppointmentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := repo.queues["1"]
	if q.Entries[0].State != StateCompleted {
		t.Errorf("completed entry state: %s", q.Entries[0].State)
	}
	if q.CurrentToken != "T-1-2" || q.Entries[1].State != StateServing {
		t.Errorf("next waiting entry not promoted: token=%s state=%s", q.CurrentToken, q.Entries[1].State)
	}
}

func TestCompleteByAppointmentLastClearsToken(t *testing.T) {
	svc, repo := newTestService()

	only := admit(t, svc, "1")
	if err := svc.CompleteByAppointment(context.Background(), "1", *only.AppointmentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.queues["1"].CurrentToken != "" {
		t.Errorf("expected current token cleared, got %s", repo.queues["1"].CurrentToken)
	}
}

func TestCompleteByAppointmentSkipsTerminalEntries(t *testing.T) {
	svc, repo := newTestService()

	first := admit(t, svc, "1")
	admit(t, svc, "1")
	third := admit(t, svc, "1")
	_ = third

	// Skip the second patient, then complete the first: the cursor must
	// jump over the skipped entry to the third.
	if err := svc.Skip(context.Background(), "1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.CompleteByAppointment(context.Background(), "1", *first.AppointmentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := repo.queues["1"]
	if q.CurrentToken != "T-1-3" {
		t.Errorf("expected T-1-3 promoted, got %s", q.CurrentToken)
	}
}

func TestCompleteByAppointmentUnknown(t *testing.T) {
	svc, _ := newTestService()

	admit(t, svc, "1")
	err := svc.CompleteByAppointment(context.Background(), "1", uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

// -- RemoveByAppointment --

func TestRemoveByAppointmentHeadPromotesNewHead(t *testing.T) {
	svc, repo := newTestService()

	first := admit(t, svc, "1")
	admit(t, svc, "1")

	if err := svc.RemoveByAppointment(context.Background(), "1", *first.AppointmentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := repo.queues["1"]
	if len(q.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(q.Entries))
	}
	if q.Entries[0].State != StateServing || q.CurrentToken != "T-1-2" {
		t.Errorf("new head not promoted: state=%s token=%s", q.Entries[0].State, q.CurrentToken)
	}
}

func TestRemoveByAppointmentOnlyEntryClearsQueue(t *testing.T) {
	svc, repo := newTestService()

	only := admit(t, svc, "1")
	if err := svc.RemoveByAppointment(context.Background(), "1", *only.AppointmentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := repo.queues["1"]
	if len(q.Entries) != 0 || q.CurrentToken != "" || q.CurrentIndex != 0 {
		t.Errorf("queue not cleared: entries=%d token=%s index=%d", len(q.Entries), q.CurrentToken, q.CurrentIndex)
	}
}

func TestRemoveByAppointmentBeforeCursorShiftsIndex(t *testing.T) {
	svc, repo := newTestService()

	admit(t, svc, "1")
	second := admit(t, svc, "1")
	admit(t, svc, "1")
	if _, err := svc.AdvanceToNext(context.Background(), "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.AdvanceToNext(context.Background(), "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Cursor on the third entry; removing the completed second entry must
	// keep the cursor on the same token.
	if err := svc.RemoveByAppointment(context.Background(), "1", *second.AppointmentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := repo.queues["1"]
	if q.CurrentIndex != 1 || q.Entries[q.CurrentIndex].Token != "T-1-3" {
		t.Errorf("cursor misplaced: index=%d token=%s", q.CurrentIndex, q.Entries[q.CurrentIndex].Token)
	}
}

func TestRemoveByAppointmentServingMidQueueClearsCursor(t *testing.T) {
	svc, repo := newTestService()

	admit(t, svc, "1")
	second := admit(t, svc, "1")
	admit(t, svc, "1")
	// Recall the second token, then cancel its appointment outright.
	if _, err := svc.SetCurrentToken(context.Background(), "1", "T-1-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.RemoveByAppointment(context.Background(), "1", *second.AppointmentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := repo.queues["1"]
	if q.CurrentToken != "" {
		t.Errorf("expected cleared token, got %q", q.CurrentToken)
	}
	for _, e := range q.Entries {
		if e.State == StateServing {
			t.Errorf("no entry should be serving, found %s", e.Token)
		}
	}
	if q.CurrentIndex < 0 || q.CurrentIndex > len(q.Entries)-1 {
		t.Errorf("cursor out of range: index=%d entries=%d", q.CurrentIndex, len(q.Entries))
	}
	view := svc.buildView(q)
	if view.CurrentEntry != nil {
		t.Errorf("view reports a current entry: %+v", view.CurrentEntry)
	}
}

func TestRemoveByAppointmentCompletedHeadKeepsRecalledCursor(t *testing.T) {
	svc, repo := newTestService()

	first := admit(t, svc, "1")
	admit(t, svc, "1")
	admit(t, svc, "1")
	if _, err := svc.SetCurrentToken(context.Background(), "1", "T-1-3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Removing the completed former head must not steal the cursor back.
	if err := svc.RemoveByAppointment(context.Background(), "1", *first.AppointmentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := repo.queues["1"]
	if q.CurrentToken != "T-1-3" {
		t.Errorf("recalled token lost: %q", q.CurrentToken)
	}
	if q.CurrentIndex != 1 || q.Entries[q.CurrentIndex].Token != "T-1-3" {
		t.Errorf("cursor misplaced: index=%d token=%s", q.CurrentIndex, q.Entries[q.CurrentIndex].Token)
	}
}

func TestRemoveByAppointmentMissingIsNoop(t *testing.T) {
	svc, _ := newTestService()

	if err := svc.RemoveByAppointment(context.Background(), "9", uuid.New()); err != nil {
		t.Errorf("expected nil for missing queue, got %v", err)
	}
	admit(t, svc, "1")
	if err := svc.RemoveByAppointment(context.Background(), "1", uuid.New()); err != nil {
		t.Errorf("expected nil for missing entry, got %v", err)
	}
}

// -- Skip --

func TestSkipMarksEntry(t *testing.T) {
	svc, repo := newTestService()

	admit(t, svc, "1")
	admit(t, svc, "1")

	if err := svc.Skip(context.Background(), "1", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := repo.queues["1"]
	if q.Entries[1].State != StateSkipped {
		t.Errorf("entry not skipped: %s", q.Entries[1].State)
	}
	if q.CurrentIndex != 0 {
		t.Errorf("skip moved the cursor: %d", q.CurrentIndex)
	}
}

func TestSkipTerminalEntryConflicts(t *testing.T) {
	svc, _ := newTestService()

	first := admit(t, svc, "1")
	admit(t, svc, "1")
	if err := svc.CompleteByAppointment(context.Background(), "1", *first.AppointmentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := svc.Skip(context.Background(), "1", 0)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestSkipOutOfRange(t *testing.T) {
	svc, _ := newTestService()

	admit(t, svc, "1")
	if err := svc.Skip(context.Background(), "1", 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

// -- SetCurrentToken --

func TestSetCurrentTokenRecallsOutOfOrder(t *testing.T) {
	svc, repo := newTestService()

	admit(t, svc, "1")
	admit(t, svc, "1")
	admit(t, svc, "1")

	entry, err := svc.SetCurrentToken(context.Background(), "1", "T-1-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Token != "T-1-3" || entry.State != StateServing {
		t.Errorf("recalled entry: token=%s state=%s", entry.Token, entry.State)
	}
	q := repo.queues["1"]
	if q.Entries[0].State != StateCompleted {
		t.Errorf("previous serving entry not completed: %s", q.Entries[0].State)
	}
	if q.CurrentToken != "T-1-3" || q.CurrentIndex != 2 {
		t.Errorf("cursor: token=%s index=%d", q.CurrentToken, q.CurrentIndex)
	}
	// Single-serving invariant.
	serving := 0
	for _, e := range q.Entries {
		if e.State == StateServing {
			serving++
		}
	}
	if serving != 1 {
		t.Errorf("expected exactly one serving entry, got %d", serving)
	}
}

func TestSetCurrentTokenTerminalIsNoop(t *testing.T) {
	svc, repo := newTestService()

	first := admit(t, svc, "1")
	admit(t, svc, "1")
	if err := svc.CompleteByAppointment(context.Background(), "1", *first.AppointmentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	saves := repo.saves

	entry, err := svc.SetCurrentToken(context.Background(), "1", "T-1-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.State != StateCompleted {
		t.Errorf("terminal entry state changed: %s", entry.State)
	}
	if repo.saves != saves {
		t.Errorf("no-op recall persisted a write")
	}
	if repo.queues["1"].CurrentToken != "T-1-2" {
		t.Errorf("cursor changed on no-op recall: %s", repo.queues["1"].CurrentToken)
	}
}

func TestSetCurrentTokenUnknown(t *testing.T) {
	svc, _ := newTestService()

	admit(t, svc, "1")
	_, err := svc.SetCurrentToken(context.Background(), "1", "T-1-9")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

// -- UpdateStateByAppointment --

func TestUpdateStateRecordsVitals(t *testing.T) {
	svc, repo := newTestService()

	admit(t, svc, "1")
	second := admit(t, svc, "1")

	if err := svc.UpdateStateByAppointment(context.Background(), "1", *second.AppointmentID, StateVitalsRecorded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.queues["1"].Entries[1].State != StateVitalsRecorded {
		t.Errorf("state not updated: %s", repo.queues["1"].Entries[1].State)
	}
}

func TestUpdateStateRejectsCursorStates(t *testing.T) {
	svc, _ := newTestService()

	entry := admit(t, svc, "1")
	err := svc.UpdateStateByAppointment(context.Background(), "1", *entry.AppointmentID, StateServing)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// -- Views --

func TestGetQueueViewCounts(t *testing.T) {
	svc, _ := newTestService()

	admit(t, svc, "1")
	admit(t, svc, "1")
	second := admit(t, svc, "1")
	if err := svc.UpdateStateByAppointment(context.Background(), "1", *second.AppointmentID, StateVitalsRecorded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	view, err := svc.GetQueueView(context.Background(), "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.TotalCount != 3 {
		t.Errorf("total: %d", view.TotalCount)
	}
	// vitals_recorded still counts as waiting for the doctor.
	if view.WaitingCount != 2 {
		t.Errorf("waiting: %d", view.WaitingCount)
	}
	if view.CurrentEntry == nil || view.CurrentEntry.Token != "T-1-1" {
		t.Errorf("current entry: %+v", view.CurrentEntry)
	}
	if view.Entries[2].Position != 3 {
		t.Errorf("positions not assigned: %+v", view.Entries[2])
	}
}

func TestListActiveQueues(t *testing.T) {
	svc, repo := newTestService()

	admit(t, svc, "1")
	admit(t, svc, "1")
	repo.queues["2"] = &Queue{Room: "2", Status: StatusClosed}

	queues, err := svc.ListActiveQueues(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queues) != 1 {
		t.Fatalf("expected 1 active queue, got %d", len(queues))
	}
	if queues[0].Room != "1" || queues[0].WaitingCount != 1 || queues[0].CurrentToken != "T-1-1" {
		t.Errorf("overview: %+v", queues[0])
	}
}

// -- Daily lifecycle --

func TestSweepStaleRemovesOnlyYesterday(t *testing.T) {
	svc, repo := newTestService()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	repo.queues["1"] = &Queue{
		Room:   "1",
		Status: StatusActive,
		Entries: []Entry{
			{Token: "T-1-1", State: StateCompleted, InsertedAt: now.AddDate(0, 0, -1)},
			{Token: "T-1-2", State: StateWaiting, InsertedAt: now.AddDate(0, 0, -1)},
			{Token: "T-1-1", State: StateServing, InsertedAt: now.Add(-time.Hour)},
		},
		CurrentToken: "T-1-1",
		CurrentIndex: 2,
	}

	if err := svc.SweepStale(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := repo.queues["1"]
	if len(q.Entries) != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", len(q.Entries))
	}
	if q.Entries[0].State != StateServing {
		t.Errorf("surviving entry state: %s", q.Entries[0].State)
	}
	if q.CurrentToken != "T-1-1" || q.CurrentIndex != 0 {
		t.Errorf("cursor not relocated: token=%s index=%d", q.CurrentToken, q.CurrentIndex)
	}
}

func TestSweepStaleFreshQueueUntouched(t *testing.T) {
	svc, repo := newTestService()

	admit(t, svc, "1")
	saves := repo.saves
	if err := svc.SweepStale(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.saves != saves {
		t.Errorf("sweep wrote an unchanged queue")
	}
}

func TestClearAllResetsNumbering(t *testing.T) {
	svc, repo := newTestService()

	admit(t, svc, "1")
	admit(t, svc, "1")
	admit(t, svc, "2")

	if err := svc.ClearAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for room, q := range repo.queues {
		if len(q.Entries) != 0 || q.CurrentToken != "" {
			t.Errorf("room %s not cleared: %+v", room, q)
		}
	}

	entry := admit(t, svc, "1")
	if entry.Token != "T-1-1" {
		t.Errorf("numbering did not restart: %s", entry.Token)
	}
}
