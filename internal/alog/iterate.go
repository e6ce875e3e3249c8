package alog

import (
	"context"
	"fmt"

	"actionsync/internal/action"
	"actionsync/internal/store"
)

// EachOptions configures Each's iteration order. The zero value iterates
// by descending "added", matching store.Get's default.
type EachOptions struct {
	Order store.Order
}

// EachCallback is invoked once per entry. Returning false stops iteration
// early; returning an error aborts it and propagates.
type EachCallback func(act action.Action, meta *action.Meta) (bool, error)

// Each paginates through the Store via Get, invoking cb for every entry
// until cb returns false, an error occurs, or the store is exhausted.
func (l *Log) Each(ctx context.Context, opts EachOptions, cb EachCallback) error {
	order := opts.Order
	if order == "" {
		order = store.OrderAdded
	}

	page, err := l.store.Get(ctx, order)
	if err != nil {
		return fmt.Errorf("alog: each: %w", err)
	}
	for {
		for _, e := range page.Entries {
			meta := e.Meta
			cont, err := cb(e.Action, &meta)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		if page.Next == nil {
			return nil
		}
		page, err = page.Next(ctx)
		if err != nil {
			return fmt.Errorf("alog: each: %w", err)
		}
	}
}

// RemoveReason drops reason from every matching entry, deleting the
// action outright when reason was its last one, per spec section 4.1.
// It emits "clean" for every removed action.
func (l *Log) RemoveReason(ctx context.Context, reason string, criteria store.Criteria) error {
	var toRemove []action.Id
	var toStrip []action.Id

	err := l.Each(ctx, EachOptions{Order: store.OrderAdded}, func(act action.Action, meta *action.Meta) (bool, error) {
		if !meta.HasReason(reason) || !criteria.Match(*meta) {
			return true, nil
		}
		if len(meta.Reasons) == 1 {
			toRemove = append(toRemove, meta.ID)
		} else {
			toStrip = append(toStrip, meta.ID)
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	for _, id := range toRemove {
		act, meta, ok, err := l.store.ByID(ctx, id)
		if err != nil {
			return fmt.Errorf("alog: removeReason: %w", err)
		}
		if !ok {
			continue
		}
		if err := l.store.Remove(ctx, id); err != nil {
			return fmt.Errorf("alog: removeReason: %w", err)
		}
		l.fire(&l.clean, act, &meta)
	}

	for _, id := range toStrip {
		_, meta, ok, err := l.store.ByID(ctx, id)
		if err != nil {
			return fmt.Errorf("alog: removeReason: %w", err)
		}
		if !ok {
			continue
		}
		remaining := meta.WithoutReason(reason)
		if _, err := l.ChangeMeta(ctx, id, map[string]any{"reasons": remaining}); err != nil {
			return fmt.Errorf("alog: removeReason: %w", err)
		}
	}
	return nil
}
