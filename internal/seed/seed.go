package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"tenniscourts/internal/domain"
	"tenniscourts/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// File is the reference data loaded at startup: courts and guests.
type File struct {
	Courts []models.TennisCourt `yaml:"courts"`
	Guests []models.Guest       `yaml:"guests"`
}

type Store interface {
	domain.CourtRepository
	domain.GuestRepository
}

// Result counts rows created and rows left alone because they already existed.
type Result struct {
	CourtsCreated int
	GuestsCreated int
	Skipped       int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate requires explicit ids so that reloading the file is idempotent.
func (f *File) Validate() error {
	courtIDs := make(map[int64]struct{}, len(f.Courts))
	for i, c := range f.Courts {
		if c.ID <= 0 {
			return fmt.Errorf("court #%d: id must be positive", i)
		}
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("court %d: name is required", c.ID)
		}
		if _, dup := courtIDs[c.ID]; dup {
			return fmt.Errorf("court %d: duplicate id", c.ID)
		}
		courtIDs[c.ID] = struct{}{}
	}

	guestIDs := make(map[int64]struct{}, len(f.Guests))
	for i, g := range f.Guests {
		if g.ID <= 0 {
			return fmt.Errorf("guest #%d: id must be positive", i)
		}
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("guest %d: name is required", g.ID)
		}
		if _, dup := guestIDs[g.ID]; dup {
			return fmt.Errorf("guest %d: duplicate id", g.ID)
		}
		guestIDs[g.ID] = struct{}{}
	}
	return nil
}

// Apply creates the courts and guests that do not exist yet. Existing rows are never updated.
func Apply(ctx context.Context, store Store, f *File, logger *zerolog.Logger) (Result, error) {
	var res Result
	if f == nil {
		return res, errors.New("seed file is nil")
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	for i := range f.Courts {
		court := f.Courts[i]
		existing, err := store.GetTennisCourt(ctx, court.ID)
		if err != nil {
			return res, fmt.Errorf("lookup court %d: %w", court.ID, err)
		}
		if existing != nil {
			res.Skipped++
			continue
		}
		if err := store.CreateTennisCourt(ctx, &court); err != nil {
			return res, fmt.Errorf("create court %d: %w", court.ID, err)
		}
		res.CourtsCreated++
	}

	for i := range f.Guests {
		guest := f.Guests[i]
		existing, err := store.GetGuest(ctx, guest.ID)
		if err != nil {
			return res, fmt.Errorf("lookup guest %d: %w", guest.ID, err)
		}
		if existing != nil {
			res.Skipped++
			continue
		}
		if err := store.CreateGuest(ctx, &guest); err != nil {
			return res, fmt.Errorf("create guest %d: %w", guest.ID, err)
		}
		res.GuestsCreated++
	}

	logger.Info().
		Int("courts_created", res.CourtsCreated).
		Int("guests_created", res.GuestsCreated).
		Int("skipped", res.Skipped).
		Msg("seed data applied")
	return res, nil
}

// LoadAndApply is a no-op when path is empty.
func LoadAndApply(ctx context.Context, store Store, path string, logger *zerolog.Logger) (Result, error) {
	if path == "" {
		return Result{}, nil
	}
	f, err := Load(path)
	if err != nil {
		return Result{}, err
	}
	return Apply(ctx, store, f, logger)
}
