package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ViewPublisher pushes a fresh queue view to display-board clients after a
// mutation. Implementations must not block.
type ViewPublisher interface {
	PublishQueueView(room string, view *QueueView)
}

// AdmitParams carries everything needed to queue a patient into a room.
// Staff and department fields are only used when the room's queue record is
// created lazily on first admission.
type AdmitParams struct {
	AppointmentID     *uuid.UUID
	PatientID         uuid.UUID
	PatientName       string
	PatientNo         string
	AssignedStaffID   *uuid.UUID
	AssignedStaffName string
	Department        string
}

// Service is the queue engine. Every operation is a read-modify-write on one
// room's queue record, serialized by a per-room mutex so overlapping requests
// against the same room cannot lose updates. The persisted write itself is
// still last-write-wins at the storage layer.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	rooms map[string]*sync.Mutex

	cache     SnapshotCache
	publisher ViewPublisher
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		rooms:  make(map[string]*sync.Mutex),
	}
}

// SetSnapshotCache enables caching of the active-queues overview.
func (s *Service) SetSnapshotCache(c SnapshotCache) { s.cache = c }

// SetPublisher enables display-board broadcasts after mutations.
func (s *Service) SetPublisher(p ViewPublisher) { s.publisher = p }

// SetClock overrides the engine's clock. Used in tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) roomLock(room string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rooms[room]
	if !ok {
		l = &sync.Mutex{}
		s.rooms[room] = l
	}
	return l
}

// load fetches the room's queue, or a fresh active record when allowCreate is
// set and none exists yet.
func (s *Service) load(ctx context.Context, room string, allowCreate bool) (*Queue, error) {
	q, err := s.repo.GetByRoom(ctx, room)
	if errors.Is(err, ErrNotFound) && allowCreate {
		return &Queue{Room: room, Status: StatusActive}, nil
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Service) persist(ctx context.Context, q *Queue) error {
	if err := s.repo.Save(ctx, q); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if s.publisher != nil {
		s.publisher.PublishQueueView(q.Room, s.buildView(q))
	}
	return nil
}

// AddPatient queues a patient into a room, creating the queue record lazily.
// The first patient admitted to an empty queue is served immediately. An
// appointment with a live entry in the room cannot be admitted twice.
func (s *Service) AddPatient(ctx context.Context, room string, p AdmitParams) (*Entry, error) {
	if room == "" {
		return nil, fmt.Errorf("room is required: %w", ErrValidation)
	}
	if p.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required: %w", ErrValidation)
	}

	lock := s.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	q, err := s.load(ctx, room, true)
	if err != nil {
		return nil, err
	}
	if p.AppointmentID != nil {
		if i := q.EntryByAppointment(*p.AppointmentID); i >= 0 && !q.Entries[i].State.Terminal() {
			return nil, fmt.Errorf("appointment %s already holds token %s in room %s: %w",
				*p.AppointmentID, q.Entries[i].Token, room, ErrConflict)
		}
	}
	if q.AssignedStaffID == nil && p.AssignedStaffID != nil {
		q.AssignedStaffID = p.AssignedStaffID
		q.AssignedStaffName = p.AssignedStaffName
	}
	if q.Department == "" {
		q.Department = p.Department
	}

	entry := Entry{
		AppointmentID: p.AppointmentID,
		Token:         NextToken(room, q.Entries, s.now()),
		PatientID:     p.PatientID,
		PatientName:   p.PatientName,
		PatientNo:     p.PatientNo,
		State:         StateWaiting,
		InsertedAt:    s.now(),
	}
	if len(q.Entries) == 0 {
		entry.State = StateServing
		q.CurrentToken = entry.Token
		q.CurrentIndex = 0
	}
	q.Entries = append(q.Entries, entry)

	if err := s.persist(ctx, q); err != nil {
		return nil, err
	}

	out := q.Entries[len(q.Entries)-1]
	out.Position = len(q.Entries)
	return &out, nil
}

// AdvanceToNext completes the entry under the cursor and moves the cursor to
// the next positional entry, promoting it to serving. Once the queue is
// exhausted the call is an idempotent no-op and returns nil.
func (s *Service) AdvanceToNext(ctx context.Context, room string) (*Entry, error) {
	lock := s.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	q, err := s.load(ctx, room, false)
	if err != nil {
		return nil, err
	}
	if len(q.Entries) == 0 {
		return nil, nil
	}

	prev := q.CurrentIndex
	if prev >= 0 && prev < len(q.Entries) {
		q.Entries[prev].State = StateCompleted
	}
	next := prev + 1
	if next > len(q.Entries)-1 {
		next = len(q.Entries) - 1
	}
	q.CurrentIndex = next

	var served *Entry
	if next != prev {
		q.Entries[next].State = StateServing
		q.CurrentToken = q.Entries[next].Token
		e := q.Entries[next]
		e.Position = next + 1
		served = &e
	}

	if err := s.persist(ctx, q); err != nil {
		return nil, err
	}
	return served, nil
}

// CompleteByAppointment completes the entry belonging to an appointment.
// Unlike AdvanceToNext it tolerates out-of-order completion: when the
// completed entry was the one being served, the cursor jumps forward to the
// next entry still waiting, skipping entries already completed or skipped.
// When none is found, no one is serving and the current token is cleared.
func (s *Service) CompleteByAppointment(ctx context.Context, room string, appointmentID uuid.UUID) error {
	lock := s.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	q, err := s.load(ctx, room, false)
	if err != nil {
		return err
	}
	idx := q.EntryByAppointment(appointmentID)
	if idx < 0 {
		return fmt.Errorf("entry for appointment %s in room %s: %w", appointmentID, room, ErrNotFound)
	}

	wasCurrent := idx == q.CurrentIndex
	q.Entries[idx].State = StateCompleted

	if wasCurrent {
		q.CurrentToken = ""
		for i := idx + 1; i < len(q.Entries); i++ {
			if q.Entries[i].State == StateWaiting {
				q.Entries[i].State = StateServing
				q.CurrentToken = q.Entries[i].Token
				q.CurrentIndex = i
				break
			}
		}
	}
	return s.persist(ctx, q)
}

// RemoveByAppointment deletes the entry belonging to an appointment,
// preserving the order of the remaining entries. A missing queue or entry is
// not an error: deleting an appointment that was never queued must not fail
// the caller's delete. Removing the serving head promotes the new head to
// serving; removing a serving entry elsewhere (reachable after a recall)
// clears the current token instead of guessing a successor.
func (s *Service) RemoveByAppointment(ctx context.Context, room string, appointmentID uuid.UUID) error {
	lock := s.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	q, err := s.load(ctx, room, false)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	idx := q.EntryByAppointment(appointmentID)
	if idx < 0 {
		return nil
	}

	wasCurrent := idx == q.CurrentIndex
	q.Entries = append(q.Entries[:idx], q.Entries[idx+1:]...)

	switch {
	case len(q.Entries) == 0:
		q.CurrentToken = ""
		q.CurrentIndex = 0
	case wasCurrent && idx == 0:
		q.Entries[0].State = StateServing
		q.CurrentToken = q.Entries[0].Token
		q.CurrentIndex = 0
	case wasCurrent:
		// Nobody is serving now. The cursor parks on the entry before the
		// removed one so AdvanceToNext picks up from there.
		q.CurrentToken = ""
		q.CurrentIndex = idx - 1
	case idx < q.CurrentIndex:
		q.CurrentIndex--
	case q.CurrentIndex > len(q.Entries)-1:
		q.CurrentIndex = len(q.Entries) - 1
	}
	return s.persist(ctx, q)
}

// Skip marks the entry at the given index skipped without moving the cursor.
// callers advance separately when they want the next patient called.
func (s *Service) Skip(ctx context.Context, room string, entryIndex int) error {
	lock := s.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	q, err := s.load(ctx, room, false)
	if err != nil {
		return err
	}
	if entryIndex < 0 || entryIndex >= len(q.Entries) {
		return fmt.Errorf("entry %d in room %s: %w", entryIndex, room, ErrNotFound)
	}
	if q.Entries[entryIndex].State.Terminal() {
		return fmt.Errorf("entry %d in room %s already %s: %w",
			entryIndex, room, q.Entries[entryIndex].State, ErrConflict)
	}
	q.Entries[entryIndex].State = StateSkipped
	return s.persist(ctx, q)
}

// SetCurrentToken recalls a specific token out of order: the prior serving
// entry is demoted to completed and the named entry becomes the one being
// served. Recalling a token already in a terminal state is a logged no-op.
func (s *Service) SetCurrentToken(ctx context.Context, room, token string) (*Entry, error) {
	lock := s.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	q, err := s.load(ctx, room, false)
	if err != nil {
		return nil, err
	}
	idx := q.EntryByToken(token)
	if idx < 0 {
		return nil, fmt.Errorf("token %s in room %s: %w", token, room, ErrNotFound)
	}
	if q.Entries[idx].State.Terminal() {
		s.logger.Warn().Str("room", room).Str("token", token).
			Str("state", string(q.Entries[idx].State)).
			Msg("recall of entry in terminal state ignored")
		e := q.Entries[idx]
		e.Position = idx + 1
		return &e, nil
	}

	for i := range q.Entries {
		if q.Entries[i].State == StateServing {
			q.Entries[i].State = StateCompleted
		}
	}
	q.Entries[idx].State = StateServing
	q.CurrentToken = token
	q.CurrentIndex = idx

	if err := s.persist(ctx, q); err != nil {
		return nil, err
	}
	e := q.Entries[idx]
	e.Position = idx + 1
	return &e, nil
}

// UpdateStateByAppointment sets the state of an appointment's entry without
// moving the cursor. Only the vitals_recorded and skipped targets are
// allowed; cursor transitions go through the dedicated operations.
func (s *Service) UpdateStateByAppointment(ctx context.Context, room string, appointmentID uuid.UUID, state EntryState) error {
	if state != StateVitalsRecorded && state != StateSkipped {
		return fmt.Errorf("state %s not settable by appointment: %w", state, ErrValidation)
	}

	lock := s.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	q, err := s.load(ctx, room, false)
	if err != nil {
		return err
	}
	idx := q.EntryByAppointment(appointmentID)
	if idx < 0 {
		return fmt.Errorf("entry for appointment %s in room %s: %w", appointmentID, room, ErrNotFound)
	}
	if q.Entries[idx].State.Terminal() {
		return fmt.Errorf("entry for appointment %s already %s: %w",
			appointmentID, q.Entries[idx].State, ErrConflict)
	}
	q.Entries[idx].State = state
	return s.persist(ctx, q)
}

// GetQueueView returns the read-only projection of one room's queue.
func (s *Service) GetQueueView(ctx context.Context, room string) (*QueueView, error) {
	q, err := s.load(ctx, room, false)
	if err != nil {
		return nil, err
	}
	return s.buildView(q), nil
}

func (s *Service) buildView(q *Queue) *QueueView {
	q.Renumber()
	view := &QueueView{
		Room:         q.Room,
		CurrentToken: q.CurrentToken,
		TotalCount:   len(q.Entries),
		Entries:      q.Entries,
	}
	if view.Entries == nil {
		view.Entries = []Entry{}
	}
	if q.CurrentToken != "" && q.CurrentIndex >= 0 && q.CurrentIndex < len(q.Entries) {
		e := q.Entries[q.CurrentIndex]
		view.CurrentEntry = &e
	}
	view.WaitingCount = waitingCount(q)
	return view
}

// waitingCount counts entries still ahead of the doctor: waiting plus
// vitals_recorded.
func waitingCount(q *Queue) int {
	n := 0
	for i := range q.Entries {
		if q.Entries[i].State == StateWaiting || q.Entries[i].State == StateVitalsRecorded {
			n++
		}
	}
	return n
}

// ListActiveQueues returns the display-board overview of every active room,
// served from the snapshot cache when one is configured.
func (s *Service) ListActiveQueues(ctx context.Context) ([]ActiveQueue, error) {
	if s.cache != nil {
		if cached, ok := s.cache.GetActive(ctx); ok {
			return cached, nil
		}
	}
	queues, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ActiveQueue, 0, len(queues))
	for _, q := range queues {
		out = append(out, ActiveQueue{
			Room:         q.Room,
			StaffName:    q.AssignedStaffName,
			Department:   q.Department,
			CurrentToken: q.CurrentToken,
			WaitingCount: waitingCount(q),
		})
	}
	if s.cache != nil {
		s.cache.SetActive(ctx, out)
	}
	return out, nil
}

// SweepStale removes entries inserted before today's local midnight from
// every queue. Run once at process start so a restart across midnight still
// converges on correct daily numbering.
func (s *Service) SweepStale(ctx context.Context) error {
	queues, err := s.repo.ListAll(ctx)
	if err != nil {
		return err
	}
	midnight := localMidnight(s.now())
	for _, q := range queues {
		lock := s.roomLock(q.Room)
		lock.Lock()

		kept := q.Entries[:0]
		removed := 0
		for _, e := range q.Entries {
			if e.InsertedAt.In(midnight.Location()).Before(midnight) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if removed == 0 {
			lock.Unlock()
			continue
		}
		q.Entries = kept
		if len(q.Entries) == 0 {
			q.CurrentToken = ""
			q.CurrentIndex = 0
		} else if i := q.EntryByToken(q.CurrentToken); i >= 0 {
			q.CurrentIndex = i
		} else {
			q.CurrentToken = ""
			q.CurrentIndex = 0
		}
		err := s.persist(ctx, q)
		lock.Unlock()
		if err != nil {
			return err
		}
		s.logger.Info().Str("room", q.Room).Int("removed", removed).Msg("swept stale queue entries")
	}
	return nil
}

// ClearAll wipes every queue's entries and cursor. Invoked by the midnight
// reset so daily token numbering starts over at 1.
func (s *Service) ClearAll(ctx context.Context) error {
	queues, err := s.repo.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, q := range queues {
		lock := s.roomLock(q.Room)
		lock.Lock()
		q.Entries = nil
		q.CurrentToken = ""
		q.CurrentIndex = 0
		err := s.persist(ctx, q)
		lock.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}
