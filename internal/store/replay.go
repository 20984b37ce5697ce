package store

import (
	"context"
	"fmt"
	"sort"

	"gridsheet/internal/engine"
)

// Replay loads sheetID's saved cells and applies them to e in row-major
// index order, so that formulas referencing earlier cells see correct
// values by the time they are themselves evaluated.
func Replay(ctx context.Context, s Store, sheetID int, e *engine.Engine) error {
	cells, err := s.Load(ctx, sheetID)
	if err != nil {
		return err
	}

	width := e.Width()
	sort.Slice(cells, func(i, j int) bool {
		return cells[i].Row*width+cells[i].Col < cells[j].Row*width+cells[j].Col
	})

	for _, c := range cells {
		if _, err := e.Set(c.Row, c.Col, c.Raw); err != nil {
			return fmt.Errorf("store: replay (%d,%d) %q: %w", c.Row, c.Col, c.Raw, err)
		}
	}
	return nil
}
