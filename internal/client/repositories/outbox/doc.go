// Package outbox persists payments signed on this device until the server
// has reconciled them.
//
// Rows are appended in chain order (seq) and never reordered: the previous
// hash of each new payment is the hash of the latest row that is not FAILED.
// The sync loop reads PENDING and CONFLICT rows in seq order, submits them
// as one batch and then moves each row to the verdict the server returned.
//
// Typical usage:
//
//	repo := outbox.NewSQLiteRepository(db)
//	head, ok, _ := repo.Head(ctx)
//	_ = repo.Append(ctx, tx)
//	batch, _ := repo.Pending(ctx, 100)
//	_ = repo.UpdateStatus(ctx, tx.Hash, models.StatusSynced, "", time.Now())
package outbox
