package domain

import (
	"time"
)

// WorkflowPhase is the derived view of a vendor order's workflow position.
// Phases extend the persisted statuses with two time-derived states that are
// computed on every read and never written back.
type WorkflowPhase string

const (
	// PhaseVendorPending mirrors StatusVendorPending within the acceptance window.
	PhaseVendorPending WorkflowPhase = "vendor_pending"
	// PhaseVendorExpired colors an unaccepted order whose deadline has passed.
	// Acceptance remains legal from this phase; expiry affects urgency, not
	// eligibility.
	PhaseVendorExpired WorkflowPhase = "vendor_expired"
	// PhaseVendorAccepted mirrors StatusVendorAccepted within the planning window.
	PhaseVendorAccepted WorkflowPhase = "vendor_accepted"
	// PhaseAdminOverdue colors an accepted order whose planning deadline has passed.
	PhaseAdminOverdue WorkflowPhase = "admin_overdue"
	// PhasePickupAssigned mirrors StatusPickupAssigned; not subject to expiry.
	PhasePickupAssigned WorkflowPhase = "pickup_assigned"
	// PhaseDispatched mirrors StatusDispatched; not subject to expiry.
	PhaseDispatched WorkflowPhase = "dispatched"
)

const (
	// VendorAcceptWindow is the open-window time a seller has to accept.
	VendorAcceptWindow = 3 * time.Hour
	// AdminPlanWindow is the wall-clock time an admin has to plan pickup after
	// acceptance. Deliberately not business-hours-aware.
	AdminPlanWindow = 30 * time.Minute
)

// Countdown is the active deadline timer surfaced to callers. A non-positive
// Remaining signals the deadline has passed and should render as overdue.
type Countdown struct {
	Label     string
	Remaining time.Duration
}

// AcceptDeadline resolves the seller acceptance deadline, preferring an
// explicitly stored value over the derived business-hours default.
func (o VendorOrder) AcceptDeadline(hours BusinessHours) time.Time {
	if o.VendorAcceptBy != nil {
		return *o.VendorAcceptBy
	}
	return hours.AddBusinessDuration(o.CreatedAt, VendorAcceptWindow)
}

// PlanDeadline resolves the admin pickup-planning deadline. Orders that were
// accepted without a recorded timestamp (legacy documents) anchor on now.
func (o VendorOrder) PlanDeadline(now time.Time) time.Time {
	if o.AdminPlanBy != nil {
		return *o.AdminPlanBy
	}
	anchor := now
	if o.VendorAcceptedAt != nil {
		anchor = *o.VendorAcceptedAt
	}
	return anchor.Add(AdminPlanWindow)
}

// Phase derives the workflow phase of o at now. The derivation is read-only
// and idempotent: repeated calls with an advancing clock never mutate stored
// state, and an order can move between an explicit phase and its expired twin
// as the clock crosses the deadline. A missing or unrecognised persisted
// status derives like vendor_pending so legacy documents stay classified.
func Phase(o VendorOrder, now time.Time, hours BusinessHours) WorkflowPhase {
	switch o.WorkflowStatus {
	case StatusPickupAssigned:
		return PhasePickupAssigned
	case StatusDispatched:
		return PhaseDispatched
	case StatusVendorAccepted:
		if now.After(o.PlanDeadline(now)) {
			return PhaseAdminOverdue
		}
		return PhaseVendorAccepted
	default:
		if now.After(o.AcceptDeadline(hours)) {
			return PhaseVendorExpired
		}
		return PhaseVendorPending
	}
}

// ActiveCountdown returns the running timer for o at now, or nil once the
// order has a pickup plan or has been dispatched. The remaining duration goes
// negative past the deadline rather than clamping to zero.
func ActiveCountdown(o VendorOrder, now time.Time, hours BusinessHours) *Countdown {
	switch Phase(o, now, hours) {
	case PhasePickupAssigned, PhaseDispatched:
		return nil
	case PhaseVendorAccepted, PhaseAdminOverdue:
		return &Countdown{Label: "plan by", Remaining: o.PlanDeadline(now).Sub(now)}
	default:
		return &Countdown{Label: "accept by", Remaining: o.AcceptDeadline(hours).Sub(now)}
	}
}
