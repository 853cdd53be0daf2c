package printqueue

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/tableservice/internal/database"
)

// Payload is the print_type-specific content of a job. The set of
// implementations is closed: ComandaPayload, PrecontoPayload, TestPayload.
type Payload interface {
	Type() database.PrintType
	params() database.CreatePrintJobParams
}

// ComandaPayload is a kitchen ticket for one command.
type ComandaPayload struct {
	OrderID   uuid.UUID
	CommandID uuid.UUID
	TableID   uuid.NullUUID
}

// PrecontoPayload is a customer pre-bill for an order.
type PrecontoPayload struct {
	OrderID uuid.UUID
	TableID uuid.NullUUID
}

// TestPayload is a diagnostic page for a named printer.
type TestPayload struct {
	Printer string
}

func (ComandaPayload) Type() database.PrintType  { return database.PrintTypeComanda }
func (PrecontoPayload) Type() database.PrintType { return database.PrintTypePreconto }
func (TestPayload) Type() database.PrintType     { return database.PrintTypeTest }

func (p ComandaPayload) params() database.CreatePrintJobParams {
	return database.CreatePrintJobParams{
		PrintType: database.PrintTypeComanda,
		OrderID:   pgUUID(p.OrderID),
		CommandID: pgUUID(p.CommandID),
		TableID:   pgNullUUID(p.TableID),
	}
}

func (p PrecontoPayload) params() database.CreatePrintJobParams {
	return database.CreatePrintJobParams{
		PrintType: database.PrintTypePreconto,
		OrderID:   pgUUID(p.OrderID),
		TableID:   pgNullUUID(p.TableID),
	}
}

func (p TestPayload) params() database.CreatePrintJobParams {
	return database.CreatePrintJobParams{
		PrintType: database.PrintTypeTest,
		Printer:   pgtype.Text{String: p.Printer, Valid: true},
	}
}

func validatePayload(p Payload) error {
	switch v := p.(type) {
	case ComandaPayload:
		if v.OrderID == uuid.Nil || v.CommandID == uuid.Nil {
			return fmt.Errorf("comanda job needs order and command")
		}
	case PrecontoPayload:
		if v.OrderID == uuid.Nil {
			return fmt.Errorf("preconto job needs an order")
		}
	case TestPayload:
		if strings.TrimSpace(v.Printer) == "" {
			return fmt.Errorf("test job needs a printer name")
		}
	case nil:
		return fmt.Errorf("payload is required")
	default:
		return fmt.Errorf("unsupported payload %T", p)
	}
	return nil
}

// PayloadOf decodes the typed payload from a stored job row.
func PayloadOf(job database.PrintQueueJob) (Payload, error) {
	switch job.PrintType {
	case database.PrintTypeComanda:
		if !job.OrderID.Valid || !job.CommandID.Valid {
			return nil, fmt.Errorf("job %s: comanda without order or command", job.ID)
		}
		return ComandaPayload{
			OrderID:   uuid.UUID(job.OrderID.Bytes),
			CommandID: uuid.UUID(job.CommandID.Bytes),
			TableID:   nullUUID(job.TableID),
		}, nil
	case database.PrintTypePreconto:
		if !job.OrderID.Valid {
			return nil, fmt.Errorf("job %s: preconto without order", job.ID)
		}
		return PrecontoPayload{
			OrderID: uuid.UUID(job.OrderID.Bytes),
			TableID: nullUUID(job.TableID),
		}, nil
	case database.PrintTypeTest:
		return TestPayload{Printer: job.Printer.String}, nil
	}
	return nil, fmt.Errorf("job %s: unknown print type %q", job.ID, job.PrintType)
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgNullUUID(id uuid.NullUUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id.UUID, Valid: id.Valid}
}

func nullUUID(id pgtype.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: uuid.UUID(id.Bytes), Valid: id.Valid}
}
