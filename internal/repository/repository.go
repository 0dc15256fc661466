// Package repository persists the debtor profile and the per-call turn archive.
package repository

import (
	"context"
	"errors"

	"collector-agent/internal/domain"
)

// ErrProfileNotFound is returned when no debtor has been registered yet.
var ErrProfileNotFound = errors.New("repository: debtor profile not found")

// ProfileStore holds the single current debtor profile.
type ProfileStore interface {
	LoadProfile(ctx context.Context) (domain.DebtorProfile, error)
	SaveProfile(ctx context.Context, p domain.DebtorProfile) error
}

// TurnArchive records completed call turns for audit.
type TurnArchive interface {
	SaveTurn(ctx context.Context, turn domain.Turn) error
	ListTurns(ctx context.Context, callSID string, limit int) ([]domain.Turn, error)
}

var (
	_ ProfileStore = (*Client)(nil)
	_ TurnArchive  = (*Client)(nil)
	_ ProfileStore = (*FileStore)(nil)
)
