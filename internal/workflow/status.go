package workflow

// Status is the persisted lifecycle value of any workflow entity.
type Status string

const (
	BookingPending   Status = "PENDING"
	BookingConfirmed Status = "CONFIRMED"
	BookingDeclined  Status = "DECLINED"
	BookingCancelled Status = "CANCELLED"
)

const (
	AnalysisUnconfirmed   Status = "unconfirmed"
	AnalysisConfirmed     Status = "confirmed"
	AnalysisPendingResult Status = "pending_result"
	AnalysisCompleted     Status = "completed"
	AnalysisCancelled     Status = "cancelled"
)

const (
	TherapyDraft     Status = "draft"
	TherapyPending   Status = "pending"
	TherapyConfirmed Status = "confirmed"
	TherapyActive    Status = "active"
	TherapyOnHold    Status = "on_hold"
	TherapyCompleted Status = "completed"
	TherapyCancelled Status = "cancelled"
	TherapyOverdue   Status = "overdue"
)

const (
	ApplicationPending  Status = "pending"
	ApplicationApproved Status = "approved"
	ApplicationRejected Status = "rejected"
)

// PaymentStatus tracks money on a booking independently of its lifecycle status.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Table maps each status to the statuses directly reachable from it.
type Table map[Status][]Status

func (t Table) Allows(from, to Status) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outgoing edge.
func (t Table) Terminal(s Status) bool {
	return len(t[s]) == 0
}

func (t Table) statuses() map[Status]struct{} {
	out := make(map[Status]struct{})
	for from, targets := range t {
		out[from] = struct{}{}
		for _, to := range targets {
			out[to] = struct{}{}
		}
	}
	return out
}
