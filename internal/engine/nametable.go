package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// maxUsernameBytes is the wire grammar's limit on a username token (spec
// §4.1): a non-empty whitespace-delimited token, <= 31 bytes.
const maxUsernameBytes = 31

// NameTable is the bidirectional username<->personId mapping described in
// spec §4.1. Entries are added by intern and never removed; ids come from a
// monotonic counter persisted alongside the table.
type NameTable struct {
	be        backend
	namespace string
}

func newNameTable(be backend, namespace string) *NameTable {
	return &NameTable{be: be, namespace: namespace}
}

func (n *NameTable) gKey() string   { return n.namespace + ":g" }
func (n *NameTable) igKey() string  { return n.namespace + ":ig" }
func (n *NameTable) seqKey() string { return n.namespace + ":g:seq" }

// Intern inserts the username if absent and returns its id. Keyed on the
// exact byte string, so differing names can never collide.
func (n *NameTable) Intern(ctx context.Context, name string) (PersonID, error) {
	if name == "" || len(name) > maxUsernameBytes || strings.ContainsAny(name, " \t\r\n") {
		return NotFound, fmt.Errorf("%w: %q", ErrInvalidUsername, name)
	}

	if id, err := n.Lookup(ctx, name); err == nil {
		return id, nil
	} else if err != ErrNotFound {
		return NotFound, err
	}

	next, err := n.be.Incr(ctx, n.seqKey())
	if err != nil {
		return NotFound, fmt.Errorf("allocate person id: %w", err)
	}
	id := PersonID(next - 1) // ids assigned from 0, counter starts at 1 on first Incr

	idStr := strconv.FormatInt(int64(id), 10)
	if err := n.be.Apply(ctx, []op{
		hset(n.gKey(), name, idStr),
		hset(n.igKey(), idStr, name),
	}); err != nil {
		return NotFound, fmt.Errorf("persist intern: %w", err)
	}
	return id, nil
}

// Lookup returns the id for name, or ErrNotFound if name was never interned.
func (n *NameTable) Lookup(ctx context.Context, name string) (PersonID, error) {
	v, ok, err := n.be.HGet(ctx, n.gKey(), name)
	if err != nil {
		return NotFound, fmt.Errorf("lookup: %w", err)
	}
	if !ok {
		return NotFound, ErrNotFound
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return NotFound, fmt.Errorf("corrupt g entry for %q: %w", name, err)
	}
	return PersonID(id), nil
}

// NameOf returns the username for id, or ErrNotFound if no such id exists.
func (n *NameTable) NameOf(ctx context.Context, id PersonID) (string, error) {
	v, ok, err := n.be.HGet(ctx, n.igKey(), strconv.FormatInt(int64(id), 10))
	if err != nil {
		return "", fmt.Errorf("nameOf: %w", err)
	}
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// All returns every known (id, name) pair. Used by the debug HTTP surface
// and by Engine.reconcile to rebuild the id counter on restart.
func (n *NameTable) All(ctx context.Context) (map[PersonID]string, error) {
	raw, err := n.be.HGetAll(ctx, n.igKey())
	if err != nil {
		return nil, fmt.Errorf("all: %w", err)
	}
	out := make(map[PersonID]string, len(raw))
	for idStr, name := range raw {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue // reconcile: drop malformed keys rather than abort
		}
		out[PersonID(id)] = name
	}
	return out, nil
}
