// Package fixtures seeds bookable items and their availability from a JSON file at startup.
package fixtures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"staybook/internal/app/commands"
	availabilityapp "staybook/internal/app/handlers/availability"
	itemsapp "staybook/internal/app/handlers/items"
)

// Item is one fixture entry: the registration fields plus optional availability batches. Batches
// without an item or host id inherit them from the item.
type Item struct {
	itemsapp.RegisterItemCommand
	Availability []availabilityapp.SetAvailabilityCommand `json:"availability"`
}

// Report summarizes a load. Invalid entries are logged and skipped.
type Report struct {
	Items   int
	Batches int
	Skipped int
}

// DefaultPath returns the first existing candidate, or "" when none exists.
func DefaultPath() string {
	for _, candidate := range []string{
		filepath.Join("data", "items.json"),
		filepath.Join("..", "..", "data", "items.json"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// LoadFile reads path and dispatches every entry through bus. A missing file is not an error.
func LoadFile(ctx context.Context, path string, bus commands.Bus, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return Report{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("item fixtures file not found, skipping", "path", path)
			return Report{}, nil
		}
		return Report{}, fmt.Errorf("read fixtures: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("item fixtures file empty", "path", path)
		return Report{}, nil
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return Report{}, fmt.Errorf("decode fixtures: %w", err)
	}
	return Load(ctx, items, bus, logger), nil
}

func Load(ctx context.Context, items []Item, bus commands.Bus, logger *slog.Logger) Report {
	var rep Report
	for _, fx := range items {
		if _, err := bus.Dispatch(ctx, fx.RegisterItemCommand); err != nil {
			logger.Error("fixture item rejected", "item_id", fx.ID, "error", err)
			rep.Skipped++
			continue
		}
		rep.Items++
		for _, batch := range fx.Availability {
			if batch.ItemID == "" {
				batch.ItemID = fx.ID
			}
			if batch.HostID == "" {
				batch.HostID = fx.HostID
			}
			if _, err := bus.Dispatch(ctx, batch); err != nil {
				logger.Error("fixture availability rejected", "item_id", fx.ID, "error", err)
				rep.Skipped++
				continue
			}
			rep.Batches++
		}
		logger.Info("item fixture imported", "item_id", fx.ID, "type", fx.Type)
	}
	return rep
}
