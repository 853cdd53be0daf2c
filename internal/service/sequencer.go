package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiwari-pos/tableservice/internal/database"
)

// commandNumberConstraint guards (order_id, command_number). Two sends racing
// on the same order collide here and the loser's transaction is replayed.
const commandNumberConstraint = "commands_order_id_command_number_key"

// CommandSequencer batches an order's unsent items into the next numbered
// kitchen command. It must run inside the transaction that holds the order row.
type CommandSequencer struct {
	store SequencerStore
}

func NewCommandSequencer(store SequencerStore) *CommandSequencer {
	return &CommandSequencer{store: store}
}

// CreateIfNeeded returns nil when the order has nothing unsent. Otherwise it
// creates command max+1, moves every unsent item onto it and marks it sent.
func (s *CommandSequencer) CreateIfNeeded(ctx context.Context, orderID uuid.UUID) (*database.Command, error) {
	unsent, err := s.store.ListUnsentOrderItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list unsent items: %w", err)
	}
	if len(unsent) == 0 {
		return nil, nil
	}

	last, err := s.store.GetMaxCommandNumber(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get max command number: %w", err)
	}
	cmd, err := s.store.CreateCommand(ctx, database.CreateCommandParams{
		OrderID:       orderID,
		CommandNumber: last + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}

	n, err := s.store.AssignItemsToCommand(ctx, database.AssignItemsToCommandParams{
		OrderID:   orderID,
		CommandID: cmd.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("assign items to command: %w", err)
	}
	if n != int64(len(unsent)) {
		return nil, fmt.Errorf("assign items to command: expected %d items, assigned %d", len(unsent), n)
	}

	cmd, err = s.store.UpdateCommandStatus(ctx, database.UpdateCommandStatusParams{
		ID:     cmd.ID,
		Status: database.CommandStatusSent,
	})
	if err != nil {
		return nil, fmt.Errorf("mark command sent: %w", err)
	}
	return &cmd, nil
}
