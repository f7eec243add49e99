/*
rules.go - Eligibility predicates and the investment state machine

STATE MACHINE (per investment):
  active --(as_of >= maturity_date)--> matured --(settlement commits)--> matured+settled

  The status flip and the settlement flag are committed together, in the
  same atomic unit as the ledger append. On failure the whole unit rolls
  back and the pair is retried on the next invocation.

ELIGIBILITY IS DATE-BASED:
  Maturity eligibility is decided purely on the date comparison. The stored
  Status field may lag (nothing guarantees a nightly updater ran) and is
  treated as a display cache, never a precondition. A status-gated check
  would silently miss payments for investments whose status was never
  flipped.

GLOBAL EVENTS GATE ON-OR-AFTER:
  The two calendar events fire on or after their event date, paired with
  per-account idempotency. An account with no activity on the exact day
  still settles on its next visit; an account already settled is skipped.
*/
package engine

// MaturityDue reports whether a matured investment is owed its interest
// as of the given date.
func MaturityDue(inv Investment, asOf Date) bool {
	if inv.InterestSettled {
		return false
	}
	if !inv.MaturedAsOf(asOf) {
		return false
	}
	expected, err := inv.ExpectedInterest()
	if err != nil {
		return false
	}
	return expected.IsPositive()
}

// GlobalEventDue reports whether a calendar-gated event is due.
func GlobalEventDue(asOf, eventDate Date) bool {
	return !eventDate.IsZero() && asOf.AfterOrEqual(eventDate)
}
