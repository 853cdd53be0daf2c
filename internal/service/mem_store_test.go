package service

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
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// memTx implements pgx.Tx over memDB. Rollback restores the snapshot taken
// at Begin; the unused methods panic so we catch accidental calls.
type memTx struct {
	db        *memDB
	snap      memData
	done      bool
	commitErr error
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	if t.commitErr != nil {
		return t.commitErr
	}
	t.done = true
	t.db.txMu.Unlock()
	return nil
}
func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.db.mu.Lock()
	t.db.data = t.snap
	t.db.mu.Unlock()
	t.db.txMu.Unlock()
	return nil
}
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (t *memTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (t *memTx) Conn() *pgx.Conn { panic("not implemented") }

type memData struct {
	tables      map[uuid.UUID]database.DiningTable
	orders      map[uuid.UUID]database.Order
	items       map[uuid.UUID]database.OrderItem
	commands    map[uuid.UUID]database.Command
	jobs        map[uuid.UUID]database.PrintQueueJob
	products    map[uuid.UUID]database.Product
	supplements map[uuid.UUID]database.Supplement
	seq         int64
}

func (d memData) clone() memData {
	c := memData{
		tables:      make(map[uuid.UUID]database.DiningTable, len(d.tables)),
		orders:      make(map[uuid.UUID]database.Order, len(d.orders)),
		items:       make(map[uuid.UUID]database.OrderItem, len(d.items)),
		commands:    make(map[uuid.UUID]database.Command, len(d.commands)),
		jobs:        make(map[uuid.UUID]database.PrintQueueJob, len(d.jobs)),
		products:    d.products,
		supplements: d.supplements,
		seq:         d.seq,
	}
	for k, v := range d.tables {
		c.tables[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.items {
		c.items[k] = v
	}
	for k, v := range d.commands {
		c.commands[k] = v
	}
	for k, v := range d.jobs {
		c.jobs[k] = v
	}
	return c
}

// memDB is an in-memory Store and TxBeginner. Transactions run one at a
// time, which stands in for the row locks the SQL takes. It models
// single-statement atomicity only; the concurrent acquire, open and claim
// properties are checked against PostgreSQL in internal/handler's
// integration tests.
type memDB struct {
	txMu      sync.Mutex
	mu        sync.Mutex
	data      memData
	clock     time.Time
	failures  map[string][]error
	commitErr error
	begins    int
}

func newMemDB() *memDB {
	return &memDB{
		data: memData{
			tables:      map[uuid.UUID]database.DiningTable{},
			orders:      map[uuid.UUID]database.Order{},
			items:       map[uuid.UUID]database.OrderItem{},
			commands:    map[uuid.UUID]database.Command{},
			jobs:        map[uuid.UUID]database.PrintQueueJob{},
			products:    map[uuid.UUID]database.Product{},
			supplements: map[uuid.UUID]database.Supplement{},
		},
		clock:    time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
		failures: map[string][]error{},
	}
}

func (db *memDB) Begin(ctx context.Context) (pgx.Tx, error) {
	db.txMu.Lock()
	db.mu.Lock()
	defer db.mu.Unlock()
	db.begins++
	if err := db.take("Begin"); err != nil {
		db.txMu.Unlock()
		return nil, err
	}
	return &memTx{db: db, snap: db.data.clone(), commitErr: db.take("Commit")}, nil
}

// failOn makes the next calls of method return errs, one per call.
func (db *memDB) failOn(method string, errs ...error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failures[method] = append(db.failures[method], errs...)
}

// take must be called with mu held.
func (db *memDB) take(method string) error {
	errs := db.failures[method]
	if len(errs) == 0 {
		return nil
	}
	db.failures[method] = errs[1:]
	return errs[0]
}

func (db *memDB) tick() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

func ts(t time.Time) pgtype.Timestamptz { return pgtype.Timestamptz{Time: t, Valid: true} }
func num(s string) pgtype.Numeric     { return database.DecimalToNumeric(decimal.RequireFromString(s)) }

// --- Fixtures ---

func (db *memDB) addTable(number int32) database.DiningTable {
	db.mu.Lock()
	defer db.mu.Unlock()
	t := database.DiningTable{ID: uuid.New(), Number: number, Status: database.TableStatusFree, Total: num("0")}
	db.data.tables[t.ID] = t
	return t
}

func (db *memDB) addProduct(name, price string, course int32) database.Product {
	db.mu.Lock()
	defer db.mu.Unlock()
	p := database.Product{ID: uuid.New(), Name: name, Price: num(price), Course: course, IsAvailable: true}
	db.data.products[p.ID] = p
	return p
}

func (db *memDB) addSupplement(name, price string) database.Supplement {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := database.Supplement{ID: uuid.New(), Name: name, Price: num(price)}
	db.data.supplements[s.ID] = s
	return s
}

func (db *memDB) setTable(t database.DiningTable) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data.tables[t.ID] = t
}

func (db *memDB) table(id uuid.UUID) database.DiningTable {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.data.tables[id]
}

func (db *memDB) order(id uuid.UUID) database.Order {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.data.orders[id]
}

func (db *memDB) jobs() []database.PrintQueueJob {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]database.PrintQueueJob, 0, len(db.data.jobs))
	for _, j := range db.data.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (db *memDB) commandsOf(orderID uuid.UUID) []database.Command {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.listCommands(orderID)
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// --- Store ---

func (db *memDB) GetDiningTable(ctx context.Context, id uuid.UUID) (database.DiningTable, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.take("GetDiningTable"); err != nil {
		return database.DiningTable{}, err
	}
	t, ok := db.data.tables[id]
	if !ok {
		return database.DiningTable{}, pgx.ErrNoRows
	}
	return t, nil
}

func (db *memDB) GetDiningTableForUpdate(ctx context.Context, id uuid.UUID) (database.DiningTable, error) {
	return db.GetDiningTable(ctx, id)
}

func (db *memDB) ListDiningTables(ctx context.Context) ([]database.DiningTable, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := []database.DiningTable{}
	for _, t := range db.data.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (db *memDB) AcquireTableLock(ctx context.Context, arg database.AcquireTableLockParams) (database.DiningTable, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.take("AcquireTableLock"); err != nil {
		return database.DiningTable{}, err
	}
	t, ok := db.data.tables[arg.ID]
	if !ok || (t.LockedBy.Valid && uuid.UUID(t.LockedBy.Bytes) != arg.LockedBy) {
		return database.DiningTable{}, pgx.ErrNoRows
	}
	t.LockedBy = pgtype.UUID{Bytes: arg.LockedBy, Valid: true}
	t.LockedAt = ts(db.tick())
	t.UpdatedAt = db.clock
	db.data.tables[t.ID] = t
	return t, nil
}

func (db *memDB) ReleaseTableLock(ctx context.Context, arg database.ReleaseTableLockParams) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.data.tables[arg.ID]
	if !ok || !t.LockedBy.Valid || uuid.UUID(t.LockedBy.Bytes) != arg.LockedBy {
		return 0, nil
	}
	t.LockedBy, t.LockedAt = pgtype.UUID{}, pgtype.Timestamptz{}
	db.data.tables[t.ID] = t
	return 1, nil
}

func (db *memDB) ForceReleaseTableLock(ctx context.Context, id uuid.UUID) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.data.tables[id]
	if !ok {
		return 0, nil
	}
	t.LockedBy, t.LockedAt = pgtype.UUID{}, pgtype.Timestamptz{}
	db.data.tables[t.ID] = t
	return 1, nil
}

func (db *memDB) SweepExpiredTableLocks(ctx context.Context, cutoff time.Time) ([]database.DiningTable, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := []database.DiningTable{}
	for id, t := range db.data.tables {
		if t.LockedBy.Valid && t.LockedAt.Time.Before(cutoff) {
			t.LockedBy, t.LockedAt = pgtype.UUID{}, pgtype.Timestamptz{}
			db.data.tables[id] = t
			out = append(out, t)
		}
	}
	return out, nil
}

func (db *memDB) UpdateDiningTableState(ctx context.Context, arg database.UpdateDiningTableStateParams) (database.DiningTable, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.take("UpdateDiningTableState"); err != nil {
		return database.DiningTable{}, err
	}
	t, ok := db.data.tables[arg.ID]
	if !ok {
		return database.DiningTable{}, pgx.ErrNoRows
	}
	t.Status, t.Covers, t.Total = arg.Status, arg.Covers, arg.Total
	t.UpdatedAt = db.tick()
	db.data.tables[t.ID] = t
	return t, nil
}

func (db *memDB) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.take("CreateOrder"); err != nil {
		return database.Order{}, err
	}
	if arg.TableID.Valid {
		if _, ok := db.activeOrder(uuid.UUID(arg.TableID.Bytes)); ok {
			return database.Order{}, uniqueViolation(activeOrderIndex)
		}
	}
	now := db.tick()
	o := database.Order{
		ID: uuid.New(), TableID: arg.TableID, UserID: arg.UserID,
		Status: database.OrderStatusPending, Covers: arg.Covers,
		Subtotal: num("0"), CoverCharge: num("0"), Total: num("0"),
		CreatedAt: now, UpdatedAt: now,
	}
	db.data.orders[o.ID] = o
	return o, nil
}

func (db *memDB) activeOrder(tableID uuid.UUID) (database.Order, bool) {
	for _, o := range db.data.orders {
		if o.TableID.Valid && uuid.UUID(o.TableID.Bytes) == tableID && isActive(o) {
			return o, true
		}
	}
	return database.Order{}, false
}

func (db *memDB) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, ok := db.data.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (db *memDB) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return db.GetOrder(ctx, id)
}

func (db *memDB) GetActiveOrderByTable(ctx context.Context, tableID uuid.UUID) (database.Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if o, ok := db.activeOrder(tableID); ok {
		return o, nil
	}
	return database.Order{}, pgx.ErrNoRows
}

func (db *memDB) FindActiveOrderByTable(ctx context.Context, tableID uuid.UUID) (database.Order, error) {
	return db.GetActiveOrderByTable(ctx, tableID)
}

func (db *memDB) UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, ok := db.data.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Covers, o.Subtotal, o.CoverCharge, o.Total = arg.Covers, arg.Subtotal, arg.CoverCharge, arg.Total
	o.UpdatedAt = db.tick()
	db.data.orders[o.ID] = o
	return o, nil
}

func (db *memDB) setOrderStatus(id uuid.UUID, method string, status database.OrderStatus, stamp func(*database.Order, time.Time)) (database.Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.take(method); err != nil {
		return database.Order{}, err
	}
	o, ok := db.data.orders[id]
	if !ok || !isActive(o) {
		return database.Order{}, pgx.ErrNoRows
	}
	now := db.tick()
	o.Status, o.UpdatedAt = status, now
	stamp(&o, now)
	db.data.orders[id] = o
	return o, nil
}

func (db *memDB) MarkOrderSent(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return db.setOrderStatus(id, "MarkOrderSent", database.OrderStatusSent, func(o *database.Order, now time.Time) {
		if !o.SentAt.Valid {
			o.SentAt = ts(now)
		}
	})
}

func (db *memDB) CompleteOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return db.setOrderStatus(id, "CompleteOrder", database.OrderStatusCompleted, func(o *database.Order, now time.Time) {
		o.CompletedAt = ts(now)
	})
}

func (db *memDB) CancelOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return db.setOrderStatus(id, "CancelOrder", database.OrderStatusCancelled, func(o *database.Order, now time.Time) {
		o.CancelledAt = ts(now)
	})
}

func (db *memDB) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.take("CreateOrderItem"); err != nil {
		return database.OrderItem{}, err
	}
	db.data.seq++
	it := database.OrderItem{
		ID: uuid.New(), OrderID: arg.OrderID, ProductID: arg.ProductID, ProductName: arg.ProductName,
		Flavors: arg.Flavors, Supplements: arg.Supplements, Quantity: arg.Quantity,
		UnitPrice: arg.UnitPrice, SupplementsTotal: arg.SupplementsTotal, TotalPrice: arg.TotalPrice,
		Course: arg.Course, CustomNote: arg.CustomNote, Seq: db.data.seq, CreatedAt: db.tick(),
	}
	db.data.items[it.ID] = it
	return it, nil
}

func (db *memDB) GetOrderItem(ctx context.Context, arg database.GetOrderItemParams) (database.OrderItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	it, ok := db.data.items[arg.ID]
	if !ok || it.OrderID != arg.OrderID {
		return database.OrderItem{}, pgx.ErrNoRows
	}
	return it, nil
}

func (db *memDB) listItems(keep func(database.OrderItem) bool) []database.OrderItem {
	out := []database.OrderItem{}
	for _, it := range db.data.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Course != out[j].Course {
			return out[i].Course < out[j].Course
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (db *memDB) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.listItems(func(it database.OrderItem) bool { return it.OrderID == orderID }), nil
}

func (db *memDB) ListUnsentOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.listItems(func(it database.OrderItem) bool { return it.OrderID == orderID && !it.CommandID.Valid }), nil
}

func (db *memDB) DeleteUnsentOrderItem(ctx context.Context, arg database.DeleteUnsentOrderItemParams) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	it, ok := db.data.items[arg.ID]
	if !ok || it.OrderID != arg.OrderID || it.CommandID.Valid {
		return 0, nil
	}
	delete(db.data.items, arg.ID)
	return 1, nil
}

func (db *memDB) DeleteUnsentOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var n int64
	for id, it := range db.data.items {
		if it.OrderID == orderID && !it.CommandID.Valid {
			delete(db.data.items, id)
			n++
		}
	}
	return n, nil
}

func (db *memDB) listCommands(orderID uuid.UUID) []database.Command {
	out := []database.Command{}
	for _, c := range db.data.commands {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommandNumber < out[j].CommandNumber })
	return out
}

func (db *memDB) ListCommandsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Command, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.listCommands(orderID), nil
}

func (db *memDB) GetMaxCommandNumber(ctx context.Context, orderID uuid.UUID) (int32, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var highest int32
	for _, c := range db.listCommands(orderID) {
		if c.CommandNumber > highest {
			highest = c.CommandNumber
		}
	}
	return highest, nil
}

func (db *memDB) CreateCommand(ctx context.Context, arg database.CreateCommandParams) (database.Command, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.take("CreateCommand"); err != nil {
		return database.Command{}, err
	}
	for _, c := range db.listCommands(arg.OrderID) {
		if c.CommandNumber == arg.CommandNumber {
			return database.Command{}, uniqueViolation(commandNumberConstraint)
		}
	}
	c := database.Command{
		ID: uuid.New(), OrderID: arg.OrderID, CommandNumber: arg.CommandNumber,
		Status: database.CommandStatusPending, CreatedAt: db.tick(),
	}
	db.data.commands[c.ID] = c
	return c, nil
}

func (db *memDB) AssignItemsToCommand(ctx context.Context, arg database.AssignItemsToCommandParams) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var n int64
	for id, it := range db.data.items {
		if it.OrderID == arg.OrderID && !it.CommandID.Valid {
			it.CommandID = pgtype.UUID{Bytes: arg.CommandID, Valid: true}
			db.data.items[id] = it
			n++
		}
	}
	return n, nil
}

func (db *memDB) UpdateCommandStatus(ctx context.Context, arg database.UpdateCommandStatusParams) (database.Command, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.data.commands[arg.ID]
	if !ok {
		return database.Command{}, pgx.ErrNoRows
	}
	now := db.tick()
	c.Status = arg.Status
	if arg.Status == database.CommandStatusSent && !c.SentAt.Valid {
		c.SentAt = ts(now)
	}
	if arg.Status == database.CommandStatusPrinted {
		c.PrintedAt = ts(now)
	}
	db.data.commands[c.ID] = c
	return c, nil
}

func (db *memDB) GetProductForOrder(ctx context.Context, id uuid.UUID) (database.Product, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.data.products[id]
	if !ok {
		return database.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (db *memDB) GetSupplementForOrder(ctx context.Context, id uuid.UUID) (database.Supplement, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.data.supplements[id]
	if !ok {
		return database.Supplement{}, pgx.ErrNoRows
	}
	return s, nil
}

func (db *memDB) CreatePrintJob(ctx context.Context, arg database.CreatePrintJobParams) (database.PrintQueueJob, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.take("CreatePrintJob"); err != nil {
		return database.PrintQueueJob{}, err
	}
	now := db.tick()
	j := database.PrintQueueJob{
		ID: uuid.New(), PrintType: arg.PrintType, OrderID: arg.OrderID, CommandID: arg.CommandID,
		TableID: arg.TableID, Printer: arg.Printer, Status: database.PrintJobStatusPending,
		MaxAttempts: arg.MaxAttempts, CreatedAt: now, UpdatedAt: now,
	}
	db.data.jobs[j.ID] = j
	return j, nil
}
