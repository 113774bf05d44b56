package domain

import (
	"testing"
	"time"
)

func pendingOrder(createdAt time.Time) VendorOrder {
	return VendorOrder{
		ID:             "ord_1",
		MerchantID:     "merch_1",
		CreatedAt:      createdAt,
		WorkflowStatus: StatusVendorPending,
	}
}

func TestPhasePendingAndExpired(t *testing.T) {
	h := mustHours(t, 10, 22)
	o := pendingOrder(at(11, 0)) // accept by 14:00

	if got := Phase(o, at(13, 59), h); got != PhaseVendorPending {
		t.Fatalf("phase before deadline = %q, want %q", got, PhaseVendorPending)
	}
	if got := Phase(o, at(14, 0), h); got != PhaseVendorPending {
		t.Fatalf("phase at deadline = %q, want %q", got, PhaseVendorPending)
	}
	if got := Phase(o, at(14, 1), h); got != PhaseVendorExpired {
		t.Fatalf("phase past deadline = %q, want %q", got, PhaseVendorExpired)
	}
}

func TestPhaseExpiryCrossesClosure(t *testing.T) {
	h := mustHours(t, 10, 22)
	// Created at 20:00: 2h remain today, 1h spills into tomorrow.
	o := pendingOrder(at(20, 0))

	if got := Phase(o, at(23, 30), h); got != PhaseVendorPending {
		t.Fatalf("phase overnight = %q, want %q", got, PhaseVendorPending)
	}
	nextDay := at(11, 30).AddDate(0, 0, 1)
	if got := Phase(o, nextDay, h); got != PhaseVendorExpired {
		t.Fatalf("phase next day past deadline = %q, want %q", got, PhaseVendorExpired)
	}
}

func TestPhaseStoredDeadlineWins(t *testing.T) {
	h := mustHours(t, 10, 22)
	o := pendingOrder(at(11, 0))
	by := at(18, 0)
	o.VendorAcceptBy = &by

	if got := Phase(o, at(15, 0), h); got != PhaseVendorPending {
		t.Fatalf("phase with stored deadline = %q, want %q", got, PhaseVendorPending)
	}
	if got := Phase(o, at(18, 30), h); got != PhaseVendorExpired {
		t.Fatalf("phase past stored deadline = %q, want %q", got, PhaseVendorExpired)
	}
}

func TestPhaseAcceptedAndOverdue(t *testing.T) {
	h := mustHours(t, 10, 22)
	o := pendingOrder(at(11, 0))
	acceptedAt := at(12, 0)
	planBy := acceptedAt.Add(AdminPlanWindow)
	o.WorkflowStatus = StatusVendorAccepted
	o.VendorAcceptedAt = &acceptedAt
	o.AdminPlanBy = &planBy

	if got := Phase(o, at(12, 29), h); got != PhaseVendorAccepted {
		t.Fatalf("phase within plan window = %q, want %q", got, PhaseVendorAccepted)
	}
	if got := Phase(o, at(12, 31), h); got != PhaseAdminOverdue {
		t.Fatalf("phase past plan window = %q, want %q", got, PhaseAdminOverdue)
	}
}

func TestPlanWindowIgnoresBusinessHours(t *testing.T) {
	h := mustHours(t, 10, 22)
	o := pendingOrder(at(11, 0))
	acceptedAt := at(21, 50) // ten minutes before close
	o.WorkflowStatus = StatusVendorAccepted
	o.VendorAcceptedAt = &acceptedAt

	// Wall clock: the 30m window ends 22:20 regardless of closing at 22:00.
	if got := Phase(o, at(22, 15), h); got != PhaseVendorAccepted {
		t.Fatalf("phase after close, within window = %q, want %q", got, PhaseVendorAccepted)
	}
	if got := Phase(o, at(22, 25), h); got != PhaseAdminOverdue {
		t.Fatalf("phase after wall-clock window = %q, want %q", got, PhaseAdminOverdue)
	}
}

func TestPhaseTerminalStatuses(t *testing.T) {
	h := mustHours(t, 10, 22)
	farFuture := at(12, 0).AddDate(1, 0, 0)

	o := pendingOrder(at(11, 0))
	o.WorkflowStatus = StatusPickupAssigned
	if got := Phase(o, farFuture, h); got != PhasePickupAssigned {
		t.Fatalf("phase = %q, want %q", got, PhasePickupAssigned)
	}

	o.WorkflowStatus = StatusDispatched
	if got := Phase(o, farFuture, h); got != PhaseDispatched {
		t.Fatalf("phase = %q, want %q", got, PhaseDispatched)
	}
}

func TestPhaseUnknownStatusDerivesLikePending(t *testing.T) {
	h := mustHours(t, 10, 22)
	o := pendingOrder(at(11, 0))
	o.WorkflowStatus = "migrating"

	if got := Phase(o, at(12, 0), h); got != PhaseVendorPending {
		t.Fatalf("phase = %q, want %q", got, PhaseVendorPending)
	}
	if got := Phase(o, at(15, 0), h); got != PhaseVendorExpired {
		t.Fatalf("phase = %q, want %q", got, PhaseVendorExpired)
	}
}

func TestActiveCountdown(t *testing.T) {
	h := mustHours(t, 10, 22)

	t.Run("pending counts toward accept deadline", func(t *testing.T) {
		o := pendingOrder(at(11, 0))
		cd := ActiveCountdown(o, at(12, 0), h)
		if cd == nil {
			t.Fatalf("expected countdown")
		}
		if cd.Label != "accept by" {
			t.Fatalf("label = %q, want %q", cd.Label, "accept by")
		}
		if cd.Remaining != 2*time.Hour {
			t.Fatalf("remaining = %v, want 2h", cd.Remaining)
		}
	})

	t.Run("expired goes negative", func(t *testing.T) {
		o := pendingOrder(at(11, 0))
		cd := ActiveCountdown(o, at(15, 0), h)
		if cd == nil || cd.Remaining >= 0 {
			t.Fatalf("expected negative remaining, got %+v", cd)
		}
	})

	t.Run("accepted counts toward plan deadline", func(t *testing.T) {
		o := pendingOrder(at(11, 0))
		acceptedAt := at(12, 0)
		o.WorkflowStatus = StatusVendorAccepted
		o.VendorAcceptedAt = &acceptedAt
		cd := ActiveCountdown(o, at(12, 10), h)
		if cd == nil {
			t.Fatalf("expected countdown")
		}
		if cd.Label != "plan by" {
			t.Fatalf("label = %q, want %q", cd.Label, "plan by")
		}
		if cd.Remaining != 20*time.Minute {
			t.Fatalf("remaining = %v, want 20m", cd.Remaining)
		}
	})

	t.Run("terminal phases have no countdown", func(t *testing.T) {
		o := pendingOrder(at(11, 0))
		o.WorkflowStatus = StatusPickupAssigned
		if cd := ActiveCountdown(o, at(12, 0), h); cd != nil {
			t.Fatalf("expected nil countdown, got %+v", cd)
		}
		o.WorkflowStatus = StatusDispatched
		if cd := ActiveCountdown(o, at(12, 0), h); cd != nil {
			t.Fatalf("expected nil countdown, got %+v", cd)
		}
	})
}
