/*
guard.go - Idempotency guard: has this event already been settled?

PURPOSE:
  Decides, for a (subject, event) pair, whether settlement already
  happened. Two independent checks, either treated as authoritative:

  1. State flag (fast path): the subject's interest_settled marker.
     Account-scoped global events carry no stored flag; only the
     receipt check applies to them.
  2. Receipt existence (authoritative): the deterministic receipt
     number is looked up in the ledger.

DRIFT RECONCILIATION:
  flag=false, receipt exists  -> settled. The flag is repaired to match
                                 the ledger rather than risking a
                                 duplicate credit.
  flag=true, receipt missing  -> data-integrity anomaly. The guard fails
                                 closed: reported as settled so nothing
                                 is paid, with an IntegrityError for
                                 manual remediation.
*/
package engine

import "context"

// Guard performs the settled-already check for the trigger engine.
type Guard struct {
	Store Store
}

func NewGuard(store Store) *Guard {
	return &Guard{Store: store}
}

// Decision is the guard's verdict for one (subject, event) pair.
type Decision struct {
	Settled    bool
	RepairFlag bool            // receipt exists but the flag lagged; caller should repair it
	Anomaly    *IntegrityError // flag set but no ledger record; fail closed
}

// Check combines the flag fast path with the authoritative receipt lookup.
// flagSettled is the subject's cached marker; pass false for account-scoped
// events, which have no stored flag.
func (g *Guard) Check(ctx context.Context, subjectID, receipt string, flagSettled bool) (Decision, error) {
	exists, err := g.Store.ReceiptExists(ctx, receipt)
	if err != nil {
		return Decision{}, err
	}

	switch {
	case exists && flagSettled:
		return Decision{Settled: true}, nil
	case exists && !flagSettled:
		return Decision{Settled: true, RepairFlag: true}, nil
	case !exists && flagSettled:
		return Decision{
			Settled: true,
			Anomaly: &IntegrityError{SubjectID: subjectID, Receipt: receipt},
		}, nil
	default:
		return Decision{}, nil
	}
}
