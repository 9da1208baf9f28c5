package engine

import "errors"

var (
	// ErrNotFound means the requested username or personId has no record.
	ErrNotFound = errors.New("engine: not found")

	// ErrNoOpenInterval means findLastOpen was called for a person with no
	// currently-open interval. IntervalStore.Insert and PresenceLog.Start
	// treat it as the ordinary "nothing open" answer; CloseLastOpen returns
	// it to its caller.
	ErrNoOpenInterval = errors.New("engine: no open interval for person")

	// ErrInvalidUsername means a username failed the non-empty/whitespace/
	// length validation from the wire grammar.
	ErrInvalidUsername = errors.New("engine: invalid username")

	// ErrInvariant marks a detected violation of the store's own invariants
	// (e.g. two open intervals for the same person). It is returned to the
	// caller like any other error: the daemon logs it and keeps ingesting,
	// and nothing in this module stops the process on it.
	ErrInvariant = errors.New("engine: invariant violation")
)
