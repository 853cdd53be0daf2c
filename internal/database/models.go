package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type TableStatus string

const (
	TableStatusFree     TableStatus = "free"
	TableStatusPending  TableStatus = "pending"
	TableStatusOccupied TableStatus = "occupied"
)

func (e *TableStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = TableStatus(s)
	case string:
		*e = TableStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for TableStatus: %T", src)
	}
	return nil
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusSent      OrderStatus = "sent"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (e *OrderStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = OrderStatus(s)
	case string:
		*e = OrderStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for OrderStatus: %T", src)
	}
	return nil
}

type CommandStatus string

const (
	CommandStatusPending     CommandStatus = "pending"
	CommandStatusSent        CommandStatus = "sent"
	CommandStatusPrinted     CommandStatus = "printed"
	CommandStatusPrintFailed CommandStatus = "print_failed"
)

func (e *CommandStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = CommandStatus(s)
	case string:
		*e = CommandStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for CommandStatus: %T", src)
	}
	return nil
}

type PrintType string

const (
	PrintTypeComanda  PrintType = "comanda"
	PrintTypePreconto PrintType = "preconto"
	PrintTypeTest     PrintType = "test"
)

func (e *PrintType) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = PrintType(s)
	case string:
		*e = PrintType(s)
	default:
		return fmt.Errorf("unsupported scan type for PrintType: %T", src)
	}
	return nil
}

type PrintJobStatus string

const (
	PrintJobStatusPending  PrintJobStatus = "pending"
	PrintJobStatusPrinting PrintJobStatus = "printing"
	PrintJobStatusPrinted  PrintJobStatus = "printed"
	PrintJobStatusFailed   PrintJobStatus = "failed"
)

func (e *PrintJobStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = PrintJobStatus(s)
	case string:
		*e = PrintJobStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for PrintJobStatus: %T", src)
	}
	return nil
}

type DiningTable struct {
	ID        uuid.UUID          `json:"id"`
	Number    int32              `json:"number"`
	Status    TableStatus        `json:"status"`
	Covers    int32              `json:"covers"`
	Total     pgtype.Numeric     `json:"total"`
	LockedBy  pgtype.UUID        `json:"locked_by"`
	LockedAt  pgtype.Timestamptz `json:"locked_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type Order struct {
	ID          uuid.UUID          `json:"id"`
	TableID     pgtype.UUID        `json:"table_id"`
	UserID      uuid.UUID          `json:"user_id"`
	Status      OrderStatus        `json:"status"`
	Covers      int32              `json:"covers"`
	Subtotal    pgtype.Numeric     `json:"subtotal"`
	CoverCharge pgtype.Numeric     `json:"cover_charge"`
	Total       pgtype.Numeric     `json:"total"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	SentAt      pgtype.Timestamptz `json:"sent_at"`
	CompletedAt pgtype.Timestamptz `json:"completed_at"`
	CancelledAt pgtype.Timestamptz `json:"cancelled_at"`
}

type OrderItem struct {
	ID               uuid.UUID      `json:"id"`
	OrderID          uuid.UUID      `json:"order_id"`
	CommandID        pgtype.UUID    `json:"command_id"`
	ProductID        uuid.UUID      `json:"product_id"`
	ProductName      string         `json:"product_name"`
	Flavors          []string       `json:"flavors"`
	Supplements      []byte         `json:"supplements"`
	Quantity         int32          `json:"quantity"`
	UnitPrice        pgtype.Numeric `json:"unit_price"`
	SupplementsTotal pgtype.Numeric `json:"supplements_total"`
	TotalPrice       pgtype.Numeric `json:"total_price"`
	Course           int32          `json:"course"`
	CustomNote       pgtype.Text    `json:"custom_note"`
	Seq              int64          `json:"seq"`
	CreatedAt        time.Time      `json:"created_at"`
}

type Command struct {
	ID            uuid.UUID          `json:"id"`
	OrderID       uuid.UUID          `json:"order_id"`
	CommandNumber int32              `json:"command_number"`
	Status        CommandStatus      `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	SentAt        pgtype.Timestamptz `json:"sent_at"`
	PrintedAt     pgtype.Timestamptz `json:"printed_at"`
}

type PrintQueueJob struct {
	ID           uuid.UUID          `json:"id"`
	PrintType    PrintType          `json:"print_type"`
	OrderID      pgtype.UUID        `json:"order_id"`
	CommandID    pgtype.UUID        `json:"command_id"`
	TableID      pgtype.UUID        `json:"table_id"`
	Printer      pgtype.Text        `json:"printer"`
	Status       PrintJobStatus     `json:"status"`
	Attempts     int32              `json:"attempts"`
	MaxAttempts  int32              `json:"max_attempts"`
	ErrorMessage pgtype.Text        `json:"error_message"`
	ErrorStack   pgtype.Text        `json:"error_stack"`
	ClaimedBy    pgtype.Text        `json:"claimed_by"`
	ClaimedAt    pgtype.Timestamptz `json:"claimed_at"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	PrintedAt    pgtype.Timestamptz `json:"printed_at"`
	FailedAt     pgtype.Timestamptz `json:"failed_at"`
}

type Product struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Price       pgtype.Numeric `json:"price"`
	Course      int32          `json:"course"`
	IsAvailable bool           `json:"is_available"`
}

type Supplement struct {
	ID    uuid.UUID      `json:"id"`
	Name  string         `json:"name"`
	Price pgtype.Numeric `json:"price"`
}
