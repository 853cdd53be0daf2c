package enum

// ── Staff roles (JWT claim) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleWaiter  = "WAITER"
	UserRoleKitchen = "KITCHEN"
)

// ── Notification topics (post-commit, best effort) ──

const (
	TopicTableUpdated    = "table.updated"
	TopicOrderUpdated    = "order.updated"
	TopicCommandCreated  = "command.created"
	TopicPrintJobCreated = "print_job.created"
	TopicPrintJobUpdated = "print_job.updated"
	TopicTableLockSwept  = "table.lock_swept"
)

// ── Websocket rooms ──

const (
	RoomTables     = "tables"
	RoomOrders     = "orders"
	RoomPrintQueue = "print-queue"
)

// RoomForTopic maps a notification topic onto the websocket room that
// receives it. Unknown topics map to "".
func RoomForTopic(topic string) string {
	switch topic {
	case TopicTableUpdated, TopicTableLockSwept:
		return RoomTables
	case TopicOrderUpdated, TopicCommandCreated:
		return RoomOrders
	case TopicPrintJobCreated, TopicPrintJobUpdated:
		return RoomPrintQueue
	}
	return ""
}

// IsRoom reports whether name is a known websocket room.
func IsRoom(name string) bool {
	switch name {
	case RoomTables, RoomOrders, RoomPrintQueue:
		return true
	}
	return false
}
