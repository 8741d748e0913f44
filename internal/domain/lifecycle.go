package domain

import "fmt"

type TransactionStatus string

const (
	TxStatusCompleted     TransactionStatus = "completed"
	TxStatusPartialRefund TransactionStatus = "partial-refund"
	TxStatusRefunded      TransactionStatus = "refunded"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TxStatusCompleted, TxStatusPartialRefund, TxStatusRefunded:
		return true
	}
	return false
}

// Refundable reports whether another return may be recorded against a
// transaction in this status.
func (s TransactionStatus) Refundable() bool {
	return s == TxStatusCompleted || s == TxStatusPartialRefund
}

// AfterReturn returns the status a transaction moves to once a return has been
// recorded. allReturned is true when every sold unit has now been returned
// across all refunds for the invoice.
func (s TransactionStatus) AfterReturn(allReturned bool) (TransactionStatus, error) {
	switch s {
	case TxStatusCompleted, TxStatusPartialRefund:
		if allReturned {
			return TxStatusRefunded, nil
		}
		return TxStatusPartialRefund, nil
	case TxStatusRefunded:
		return s, ErrAlreadyRefunded
	default:
		return s, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, s)
	}
}

// BillPhase is the position of a bill in its lifecycle.
type BillPhase string

const (
	PhaseDraft     BillPhase = "draft"
	PhaseHeld      BillPhase = "held"
	PhaseCompleted BillPhase = "completed"
	PhaseRefunded  BillPhase = "refunded"
	PhaseDiscarded BillPhase = "discarded"
)

var phaseTransitions = map[BillPhase][]BillPhase{
	PhaseDraft:     {PhaseHeld, PhaseCompleted, PhaseDiscarded},
	PhaseHeld:      {PhaseDraft, PhaseDiscarded},
	PhaseCompleted: {PhaseRefunded},
}

// Transition returns the next phase or ErrInvalidTransition. Refunded and
// discarded are terminal; a partial refund keeps the bill in PhaseCompleted.
func (p BillPhase) Transition(to BillPhase) (BillPhase, error) {
	for _, allowed := range phaseTransitions[p] {
		if allowed == to {
			return to, nil
		}
	}
	return p, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p, to)
}

// PhaseOf maps a transaction status onto the bill lifecycle.
func PhaseOf(status TransactionStatus) BillPhase {
	if status == TxStatusRefunded {
		return PhaseRefunded
	}
	return PhaseCompleted
}

// EvaluateReturn checks return lines against the quantities sold on tx and
// already returned by earlier refunds, and returns the status tx moves to
// once the lines are recorded.
func EvaluateReturn(tx Transaction, returned map[string]int, lines []ReturnLine) (TransactionStatus, error) {
	if tx.Status == TxStatusRefunded {
		return tx.Status, ErrAlreadyRefunded
	}
	if len(lines) == 0 {
		return tx.Status, ErrEmptyReturn
	}
	sold := tx.SoldQtyByLine()
	pending := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Qty < 1 {
			return tx.Status, ErrInvalidQuantity
		}
		soldQty, ok := sold[line.LineID]
		if !ok {
			return tx.Status, fmt.Errorf("%w: line %s is not on invoice %s", ErrExceedsSoldQuantity, line.LineID, tx.InvoiceNumber)
		}
		pending[line.LineID] += line.Qty
		if returned[line.LineID]+pending[line.LineID] > soldQty {
			return tx.Status, fmt.Errorf("%w: line %s sold %d, returned %d, requested %d",
				ErrExceedsSoldQuantity, line.LineID, soldQty, returned[line.LineID], pending[line.LineID])
		}
	}
	allReturned := true
	for lineID, soldQty := range sold {
		if returned[lineID]+pending[lineID] < soldQty {
			allReturned = false
			break
		}
	}
	return tx.Status.AfterReturn(allReturned)
}
