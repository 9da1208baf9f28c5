package engine

import (
	"context"
	"fmt"
)

// PresenceLog implements spec §4.3: the ingest-facing surface that turns
// named START/STOP events into TIs, upholding I1 (at most one open interval
// per person) and I2 (a person's intervals never overlap).
type PresenceLog struct {
	names *NameTable
	store *IntervalStore
}

func newPresenceLog(names *NameTable, store *IntervalStore) *PresenceLog {
	return &PresenceLog{names: names, store: store}
}

// Start records that name became present at t: id <- intern(u); if
// isPresentAt(id,t) is false, insert(id,t,T_MAX). A START for someone
// already present at t is a no-op (R1) — it reports the person's open TI if
// there is one, or a zero TI if t is covered by a closed interval, rather
// than opening a second interval, which would violate I1.
func (p *PresenceLog) Start(ctx context.Context, name string, t T) (TI, error) {
	id, err := p.names.Intern(ctx, name)
	if err != nil {
		return TI{}, fmt.Errorf("presence: start: intern %q: %w", name, err)
	}

	present, err := p.store.IsPresentAt(ctx, id, t)
	if err != nil {
		return TI{}, fmt.Errorf("presence: start: check present: %w", err)
	}
	if present {
		open, err := p.store.FindLastOpen(ctx, id)
		if err == nil {
			return open, nil
		}
		if err != ErrNoOpenInterval {
			return TI{}, fmt.Errorf("presence: start: find open: %w", err)
		}
		// present at t but via a closed interval, not the open one: already
		// covered, nothing to insert.
		return TI{}, nil
	}

	ti, err := p.store.Insert(ctx, id, t, TMax)
	if err != nil {
		return TI{}, fmt.Errorf("presence: start: insert: %w", err)
	}
	return ti, nil
}

// Stop records that name stopped being present at t. Three cases per spec
// §4.3:
//   - name was never seen: a retroactive "never-seen-but-left" record,
//     insert(id, T_MIN, t).
//   - name is known and isPresentAt(id,t): closeLastOpen(id,t).
//   - name is known but not present at t (R2, already stopped): no-op.
func (p *PresenceLog) Stop(ctx context.Context, name string, t T) (TI, error) {
	id, err := p.names.Lookup(ctx, name)
	if err == ErrNotFound {
		id, err = p.names.Intern(ctx, name)
		if err != nil {
			return TI{}, fmt.Errorf("presence: stop: intern %q: %w", name, err)
		}
		ti, err := p.store.Insert(ctx, id, TMin, t)
		if err != nil {
			return TI{}, fmt.Errorf("presence: stop: retroactive insert: %w", err)
		}
		return ti, nil
	}
	if err != nil {
		return TI{}, fmt.Errorf("presence: stop: lookup %q: %w", name, err)
	}

	present, err := p.store.IsPresentAt(ctx, id, t)
	if err != nil {
		return TI{}, fmt.Errorf("presence: stop: check present: %w", err)
	}
	if !present {
		return TI{}, nil // R2: already stopped at or before t
	}

	closed, err := p.store.CloseLastOpen(ctx, id, t)
	if err != nil {
		return TI{}, fmt.Errorf("presence: stop: close open: %w", err)
	}
	return closed, nil
}
