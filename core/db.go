package core

import "context"

// TxRunner runs fn inside a database transaction.
// The transaction travels in the context passed to fn; repositories called with that context join it.
// fn's error rolls the transaction back.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
