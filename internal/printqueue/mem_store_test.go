package printqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/tableservice/internal/database"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error          { return m.commitErr }
func (m *mockTx) Rollback(ctx context.Context) error        { return nil }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &mockTx{}, nil
}

// memStore is an in-memory Store. Every method holds the mutex for its whole
// body, which models the single-statement atomicity the SQL relies on and
// nothing more: row locking and isolation under real PostgreSQL are covered
// by the integration tests in internal/handler.
type memStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*database.PrintQueueJob
	commands map[uuid.UUID]*database.Command
	clock    time.Time
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     map[uuid.UUID]*database.PrintQueueJob{},
		commands: map[uuid.UUID]*database.Command{},
		clock:    time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addCommand() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.commands[id] = &database.Command{ID: id, OrderID: uuid.New(), CommandNumber: 1, Status: database.CommandStatusSent}
	return id
}

func (s *memStore) command(id uuid.UUID) database.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.commands[id]
}

func (s *memStore) job(id uuid.UUID) database.PrintQueueJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

// now is the store's clock, standing in for the database now().
func (s *memStore) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

func (s *memStore) setClaimedAt(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].ClaimedAt = pgtype.Timestamptz{Time: at, Valid: true}
}

func (s *memStore) CreatePrintJob(ctx context.Context, arg database.CreatePrintJobParams) (database.PrintQueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	job := &database.PrintQueueJob{
		ID:          uuid.New(),
		PrintType:   arg.PrintType,
		OrderID:     arg.OrderID,
		CommandID:   arg.CommandID,
		TableID:     arg.TableID,
		Printer:     arg.Printer,
		Status:      database.PrintJobStatusPending,
		MaxAttempts: arg.MaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[job.ID] = job
	return *job, nil
}

func (s *memStore) GetPrintJob(ctx context.Context, id uuid.UUID) (database.PrintQueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return database.PrintQueueJob{}, pgx.ErrNoRows
	}
	return *j, nil
}

func (s *memStore) ListPendingPrintJobIDs(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []*database.PrintQueueJob
	for _, j := range s.jobs {
		if j.Status == database.PrintJobStatusPending {
			pending = append(pending, j)
		}
	}
	sort.Slice(pending, func(a, b int) bool { return pending[a].CreatedAt.Before(pending[b].CreatedAt) })
	ids := []uuid.UUID{}
	for i, j := range pending {
		if int32(i) >= limit {
			break
		}
		ids = append(ids, j.ID)
	}
	return ids, nil
}

func (s *memStore) ClaimPrintJob(ctx context.Context, arg database.ClaimPrintJobParams) (database.PrintQueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[arg.ID]
	if !ok || j.Status != database.PrintJobStatusPending {
		return database.PrintQueueJob{}, pgx.ErrNoRows
	}
	j.Status = database.PrintJobStatusPrinting
	j.ClaimedBy = pgtype.Text{String: arg.ClaimedBy, Valid: true}
	j.ClaimedAt = pgtype.Timestamptz{Time: s.tick(), Valid: true}
	return *j, nil
}

// held reports whether workerID still owns j's claim, the guard both
// settle statements carry.
func held(j *database.PrintQueueJob, workerID string) bool {
	return j.Status == database.PrintJobStatusPrinting && j.ClaimedBy.Valid && j.ClaimedBy.String == workerID
}

func (s *memStore) MarkPrintJobPrinted(ctx context.Context, arg database.MarkPrintJobPrintedParams) (database.PrintQueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[arg.ID]
	if !ok || !held(j, arg.ClaimedBy) {
		return database.PrintQueueJob{}, pgx.ErrNoRows
	}
	j.Status = database.PrintJobStatusPrinted
	j.PrintedAt = pgtype.Timestamptz{Time: s.tick(), Valid: true}
	j.ErrorMessage = pgtype.Text{}
	j.ErrorStack = pgtype.Text{}
	return *j, nil
}

func (s *memStore) fail(j *database.PrintQueueJob, message, stack pgtype.Text) {
	j.Attempts++
	if j.Attempts >= j.MaxAttempts {
		j.Status = database.PrintJobStatusFailed
		j.FailedAt = pgtype.Timestamptz{Time: s.tick(), Valid: true}
	} else {
		j.Status = database.PrintJobStatusPending
	}
	j.ErrorMessage = message
	j.ErrorStack = stack
	j.ClaimedBy = pgtype.Text{}
	j.ClaimedAt = pgtype.Timestamptz{}
}

func (s *memStore) RecordPrintJobFailure(ctx context.Context, arg database.RecordPrintJobFailureParams) (database.PrintQueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[arg.ID]
	if !ok || !held(j, arg.ClaimedBy) {
		return database.PrintQueueJob{}, pgx.ErrNoRows
	}
	s.fail(j, arg.ErrorMessage, arg.ErrorStack)
	return *j, nil
}

func (s *memStore) RetryPrintJob(ctx context.Context, id uuid.UUID) (database.PrintQueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != database.PrintJobStatusFailed {
		return database.PrintQueueJob{}, pgx.ErrNoRows
	}
	j.Status = database.PrintJobStatusPending
	j.Attempts = 0
	j.ErrorMessage = pgtype.Text{}
	j.ErrorStack = pgtype.Text{}
	j.FailedAt = pgtype.Timestamptz{}
	return *j, nil
}

func (s *memStore) DeletePrintJob(ctx context.Context, id uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status == database.PrintJobStatusPrinting {
		return 0, nil
	}
	delete(s.jobs, id)
	return 1, nil
}

func (s *memStore) ListPrintJobs(ctx context.Context, arg database.ListPrintJobsParams) ([]database.PrintQueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []database.PrintQueueJob{}
	for _, j := range s.jobs {
		if arg.Status == nil || j.Status == *arg.Status {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if int(arg.Offset) >= len(out) {
		return []database.PrintQueueJob{}, nil
	}
	out = out[arg.Offset:]
	if int(arg.Limit) < len(out) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (s *memStore) ReapStalePrintJobs(ctx context.Context, lease time.Duration) ([]database.PrintQueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clock.Add(-lease)
	out := []database.PrintQueueJob{}
	for _, j := range s.jobs {
		if j.Status == database.PrintJobStatusPrinting && j.ClaimedAt.Time.Before(cutoff) {
			s.fail(j, pgtype.Text{String: "print lease expired", Valid: true}, pgtype.Text{})
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *memStore) CountPrintJobsByStatus(ctx context.Context) ([]database.CountPrintJobsByStatusRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[database.PrintJobStatus]int64{}
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	rows := []database.CountPrintJobsByStatusRow{}
	for st, n := range counts {
		rows = append(rows, database.CountPrintJobsByStatusRow{Status: st, Count: n})
	}
	return rows, nil
}

func (s *memStore) UpdateCommandStatus(ctx context.Context, arg database.UpdateCommandStatusParams) (database.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commands[arg.ID]
	if !ok {
		return database.Command{}, pgx.ErrNoRows
	}
	c.Status = arg.Status
	return *c, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	topics []string
}

func (n *recordingNotifier) Notify(topic string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.topics = append(n.topics, topic)
}

func newTestQueue(store *memStore) (*Queue, *recordingNotifier) {
	n := &recordingNotifier{}
	q := NewQueue(&mockTxBeginner{}, func(db database.DBTX) Store { return store }, Config{
		MaxAttempts: 3,
		Notifier:    n,
	})
	return q, n
}
