package postgres

import (
	"context"
	"fmt"

	"stokado/internal/core/tenant"
)

// MustGetTxManager returns the *postgres.TxManager from context. Meant for
// infrastructure code that needs GetQuerier/GetTx; domain code depends only
// on internal/core/tx.Manager.
func MustGetTxManager(ctx context.Context) *TxManager {
	txm := tenant.MustGetTxManager(ctx)
	postgresTxm, ok := txm.(*TxManager)
	if !ok || postgresTxm == nil {
		panic(fmt.Sprintf("TxManager in context has unexpected type: %T", txm))
	}
	return postgresTxm
}
