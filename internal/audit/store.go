package audit

import "context"

// Store is the sink events are appended to.
type Store interface {
	Append(ctx context.Context, event Event) error
}
