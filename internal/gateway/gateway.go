package gateway

import "context"

// Gateway is the router capability the sentinel drives. Block and Unblock
// are idempotent setters: asserting a state the router is already in is a
// success, not an error, because every cycle re-asserts the same intent.
//
// Implementations report model.ErrUnreachable for transport failures and
// model.ErrAuthExpired when the router rejects the session credential.
type Gateway interface {
	Block(ctx context.Context, mac string) error
	Unblock(ctx context.Context, mac string) error

	// ListBlocked returns the full set of MAC addresses currently on the
	// router blocklist, lowercased. Used by the audit step only.
	ListBlocked(ctx context.Context) ([]string, error)

	// ResolveName is a best-effort hostname lookup for notifications. It
	// never fails; unresolvable addresses come back as "unknown".
	ResolveName(ctx context.Context, mac string) string
}

// Refresher renews the credential behind a Gateway.
type Refresher interface {
	RefreshSession(ctx context.Context) error
}
