package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/sellerhub/api/internal/domain"
	"github.com/sellerhub/api/internal/repositories"
)

func inMemoryTransition(store map[string]domain.VendorOrder) func(ctx context.Context, orderID string, mutate func(domain.VendorOrder) (domain.VendorOrder, error)) (domain.VendorOrder, error) {
	return func(_ context.Context, orderID string, mutate func(domain.VendorOrder) (domain.VendorOrder, error)) (domain.VendorOrder, error) {
		order, ok := store[orderID]
		if !ok {
			return domain.VendorOrder{}, stubRepoError{msg: "order " + orderID + " not found", notFound: true}
		}
		updated, err := mutate(order)
		if err != nil {
			return domain.VendorOrder{}, err
		}
		store[orderID] = updated
		return updated, nil
	}
}

func newWorkflowServiceForTest(t *testing.T, deps WorkflowServiceDeps) WorkflowService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepository{}
	}
	if deps.Hours == (domain.BusinessHours{}) {
		deps.Hours = testHours(t)
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time {
			return time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
		}
	}
	svc, err := NewWorkflowService(deps)
	if err != nil {
		t.Fatalf("NewWorkflowService: %v", err)
	}
	return svc
}

func pendingStoredOrder(createdAt time.Time, hours domain.BusinessHours) domain.VendorOrder {
	acceptBy := hours.AddBusinessDuration(createdAt, domain.VendorAcceptWindow)
	return domain.VendorOrder{
		ID:             "5001_m_alpha",
		ShopifyID:      "5001",
		MerchantID:     "m_alpha",
		CreatedAt:      createdAt,
		WorkflowStatus: domain.StatusVendorPending,
		VendorAcceptBy: &acceptBy,
		UpdatedAt:      createdAt,
	}
}

func TestAcceptFromVendorPending(t *testing.T) {
	hours := testHours(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	store := map[string]domain.VendorOrder{
		"5001_m_alpha": pendingStoredOrder(now.Add(-time.Hour), hours),
	}
	publisher := &stubEventPublisher{}
	svc := newWorkflowServiceForTest(t, WorkflowServiceDeps{
		Orders: &stubOrderRepository{transition: inMemoryTransition(store)},
		Hours:  hours,
		Clock:  func() time.Time { return now },
		Events: publisher,
	})

	view, err := svc.Accept(context.Background(), AcceptOrderCommand{
		OrderID:    "5001_m_alpha",
		MerchantID: "m_alpha",
		ActorID:    "uid_seller",
	})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if view.Order.WorkflowStatus != domain.StatusVendorAccepted {
		t.Fatalf("expected vendor_accepted, got %q", view.Order.WorkflowStatus)
	}
	if view.Phase != domain.PhaseVendorAccepted {
		t.Fatalf("expected vendor_accepted phase, got %q", view.Phase)
	}
	if view.Order.VendorAcceptedAt == nil || !view.Order.VendorAcceptedAt.Equal(now) {
		t.Fatalf("expected acceptance stamp %v, got %v", now, view.Order.VendorAcceptedAt)
	}
	if view.Order.AdminPlanBy == nil || !view.Order.AdminPlanBy.Equal(now.Add(30*time.Minute)) {
		t.Fatalf("expected plan deadline 30m after acceptance, got %v", view.Order.AdminPlanBy)
	}
	if view.Countdown == nil || view.Countdown.Label != "plan by" {
		t.Fatalf("expected plan countdown, got %+v", view.Countdown)
	}
	if len(view.Order.Timeline) != 1 {
		t.Fatalf("expected timeline entry, got %d", len(view.Order.Timeline))
	}
	if len(publisher.published) != 1 || publisher.published[0].message.Type != "vendor_order.accepted" {
		t.Fatalf("expected vendor_order.accepted event, got %+v", publisher.published)
	}
}

func TestAcceptLateFromVendorExpired(t *testing.T) {
	hours := testHours(t)
	// Created early enough that the 3h business window has long passed.
	created := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	store := map[string]domain.VendorOrder{
		"5001_m_alpha": pendingStoredOrder(created, hours),
	}
	svc := newWorkflowServiceForTest(t, WorkflowServiceDeps{
		Orders: &stubOrderRepository{transition: inMemoryTransition(store)},
		Hours:  hours,
		Clock:  func() time.Time { return now },
	})

	view, err := svc.Accept(context.Background(), AcceptOrderCommand{
		OrderID:    "5001_m_alpha",
		MerchantID: "m_alpha",
	})
	if err != nil {
		t.Fatalf("late acceptance must be allowed: %v", err)
	}
	if view.Order.WorkflowStatus != domain.StatusVendorAccepted {
		t.Fatalf("expected vendor_accepted, got %q", view.Order.WorkflowStatus)
	}
}

func TestAcceptTwiceIsIllegal(t *testing.T) {
	hours := testHours(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	store := map[string]domain.VendorOrder{
		"5001_m_alpha": pendingStoredOrder(now.Add(-time.Hour), hours),
	}
	svc := newWorkflowServiceForTest(t, WorkflowServiceDeps{
		Orders: &stubOrderRepository{transition: inMemoryTransition(store)},
		Hours:  hours,
		Clock:  func() time.Time { return now },
	})

	cmd := AcceptOrderCommand{OrderID: "5001_m_alpha", MerchantID: "m_alpha"}
	if _, err := svc.Accept(context.Background(), cmd); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := svc.Accept(context.Background(), cmd)
	if !errors.Is(err, ErrOrderIllegalPhase) {
		t.Fatalf("expected ErrOrderIllegalPhase, got %v", err)
	}
	if !strings.Contains(err.Error(), string(domain.PhaseVendorAccepted)) {
		t.Fatalf("error should name the current phase, got %q", err.Error())
	}
}

func TestAcceptForbiddenForNonOwner(t *testing.T) {
	hours := testHours(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	store := map[string]domain.VendorOrder{
		"5001_m_alpha": pendingStoredOrder(now.Add(-time.Hour), hours),
	}
	svc := newWorkflowServiceForTest(t, WorkflowServiceDeps{
		Orders: &stubOrderRepository{transition: inMemoryTransition(store)},
		Hours:  hours,
		Clock:  func() time.Time { return now },
	})

	_, err := svc.Accept(context.Background(), AcceptOrderCommand{
		OrderID:    "5001_m_alpha",
		MerchantID: "m_other",
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestAcceptUnknownOrder(t *testing.T) {
	svc := newWorkflowServiceForTest(t, WorkflowServiceDeps{
		Orders: &stubOrderRepository{transition: inMemoryTransition(map[string]domain.VendorOrder{})},
	})

	_, err := svc.Accept(context.Background(), AcceptOrderCommand{OrderID: "missing"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestAssignPickupFromAcceptedAndOverdue(t *testing.T) {
	hours := testHours(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	for name, acceptedAgo := range map[string]time.Duration{
		"within plan window": 10 * time.Minute,
		"admin overdue":      2 * time.Hour,
	} {
		t.Run(name, func(t *testing.T) {
			acceptedAt := now.Add(-acceptedAgo)
			planBy := acceptedAt.Add(domain.AdminPlanWindow)
			order := pendingStoredOrder(acceptedAt.Add(-time.Hour), hours)
			order.WorkflowStatus = domain.StatusVendorAccepted
			order.VendorAcceptedAt = &acceptedAt
			order.AdminPlanBy = &planBy
			store := map[string]domain.VendorOrder{order.ID: order}

			svc := newWorkflowServiceForTest(t, WorkflowServiceDeps{
				Orders: &stubOrderRepository{transition: inMemoryTransition(store)},
				Hours:  hours,
				Clock:  func() time.Time { return now },
			})

			view, err := svc.AssignPickup(context.Background(), AssignPickupCommand{
				OrderID: order.ID,
				ActorID: "uid_admin",
				PickupPlan: domain.PickupPlan{
					Window:  "2026-03-03 14:00-16:00",
					Address: "Warehouse 4, Sector 18",
				},
				DeliveryPartner: domain.DeliveryPartner{
					Name:  "Swift Couriers",
					Phone: "+91-90000-00000",
				},
			})
			if err != nil {
				t.Fatalf("AssignPickup: %v", err)
			}
			if view.Order.WorkflowStatus != domain.StatusPickupAssigned {
				t.Fatalf("expected pickup_assigned, got %q", view.Order.WorkflowStatus)
			}
			if view.Order.PickupPlan == nil || view.Order.PickupPlan.Window == "" {
				t.Fatalf("expected pickup plan on aggregate")
			}
			if view.Order.AdminPlannedAt == nil || !view.Order.AdminPlannedAt.Equal(now) {
				t.Fatalf("expected planned stamp %v, got %v", now, view.Order.AdminPlannedAt)
			}
			if view.Countdown != nil {
				t.Fatalf("pickup_assigned must have no countdown, got %+v", view.Countdown)
			}
		})
	}
}

func TestAssignPickupRejectedBeforeAcceptance(t *testing.T) {
	hours := testHours(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	store := map[string]domain.VendorOrder{
		"5001_m_alpha": pendingStoredOrder(now.Add(-time.Hour), hours),
	}
	svc := newWorkflowServiceForTest(t, WorkflowServiceDeps{
		Orders: &stubOrderRepository{transition: inMemoryTransition(store)},
		Hours:  hours,
		Clock:  func() time.Time { return now },
	})

	_, err := svc.AssignPickup(context.Background(), AssignPickupCommand{
		OrderID:         "5001_m_alpha",
		PickupPlan:      domain.PickupPlan{Window: "2026-03-03 14:00-16:00"},
		DeliveryPartner: domain.DeliveryPartner{Name: "Swift Couriers"},
	})
	if !errors.Is(err, ErrOrderIllegalPhase) {
		t.Fatalf("expected ErrOrderIllegalPhase, got %v", err)
	}
	if !strings.Contains(err.Error(), string(domain.PhaseVendorPending)) {
		t.Fatalf("error should name the current phase, got %q", err.Error())
	}
}

func TestAssignPickupValidatesPayload(t *testing.T) {
	svc := newWorkflowServiceForTest(t, WorkflowServiceDeps{})

	_, err := svc.AssignPickup(context.Background(), AssignPickupCommand{
		OrderID:         "5001_m_alpha",
		DeliveryPartner: domain.DeliveryPartner{Name: "Swift Couriers"},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput for missing window, got %v", err)
	}
}

func TestMarkDispatchedOnlyFromPickupAssigned(t *testing.T) {
	hours := testHours(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	order := pendingStoredOrder(now.Add(-3*time.Hour), hours)
	order.WorkflowStatus = domain.StatusPickupAssigned
	plannedAt := now.Add(-time.Hour)
	order.AdminPlannedAt = &plannedAt
	store := map[string]domain.VendorOrder{order.ID: order}

	publisher := &stubEventPublisher{}
	svc := newWorkflowServiceForTest(t, WorkflowServiceDeps{
		Orders: &stubOrderRepository{transition: inMemoryTransition(store)},
		Hours:  hours,
		Clock:  func() time.Time { return now },
		Events: publisher,
	})

	view, err := svc.MarkDispatched(context.Background(), DispatchOrderCommand{
		OrderID:    order.ID,
		MerchantID: "m_alpha",
		ActorID:    "uid_seller",
	})
	if err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	if view.Order.WorkflowStatus != domain.StatusDispatched {
		t.Fatalf("expected dispatched, got %q", view.Order.WorkflowStatus)
	}
	if view.Order.DispatchedAt == nil || !view.Order.DispatchedAt.Equal(now) {
		t.Fatalf("expected dispatch stamp %v, got %v", now, view.Order.DispatchedAt)
	}
	if len(publisher.published) != 1 || publisher.published[0].message.Type != "vendor_order.dispatched" {
		t.Fatalf("expected vendor_order.dispatched event, got %+v", publisher.published)
	}

	// Dispatching again must be rejected.
	_, err = svc.MarkDispatched(context.Background(), DispatchOrderCommand{OrderID: order.ID, MerchantID: "m_alpha"})
	if !errors.Is(err, ErrOrderIllegalPhase) {
		t.Fatalf("expected ErrOrderIllegalPhase on double dispatch, got %v", err)
	}
}

func TestMarkDispatchedSkipsOwnershipForAdmins(t *testing.T) {
	hours := testHours(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	order := pendingStoredOrder(now.Add(-3*time.Hour), hours)
	order.WorkflowStatus = domain.StatusPickupAssigned
	store := map[string]domain.VendorOrder{order.ID: order}

	svc := newWorkflowServiceForTest(t, WorkflowServiceDeps{
		Orders: &stubOrderRepository{transition: inMemoryTransition(store)},
		Hours:  hours,
		Clock:  func() time.Time { return now },
	})

	// Empty merchant id means the caller passed the admin gate upstream.
	if _, err := svc.MarkDispatched(context.Background(), DispatchOrderCommand{OrderID: order.ID}); err != nil {
		t.Fatalf("admin dispatch: %v", err)
	}
}

func TestGetForMerchantEnforcesOwnership(t *testing.T) {
	hours := testHours(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	order := pendingStoredOrder(now.Add(-time.Hour), hours)
	orders := &stubOrderRepository{
		findByID: func(_ context.Context, orderID string) (domain.VendorOrder, error) {
			if orderID != order.ID {
				return domain.VendorOrder{}, stubRepoError{msg: "not found", notFound: true}
			}
			return order, nil
		},
	}
	svc := newWorkflowServiceForTest(t, WorkflowServiceDeps{
		Orders: orders,
		Hours:  hours,
		Clock:  func() time.Time { return now },
	})

	view, err := svc.GetForMerchant(context.Background(), "m_alpha", order.ID)
	if err != nil {
		t.Fatalf("GetForMerchant: %v", err)
	}
	if view.Phase != domain.PhaseVendorPending {
		t.Fatalf("expected vendor_pending phase, got %q", view.Phase)
	}
	if view.Countdown == nil || view.Countdown.Label != "accept by" {
		t.Fatalf("expected accept countdown, got %+v", view.Countdown)
	}

	if _, err := svc.GetForMerchant(context.Background(), "m_other", order.ID); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestListForMerchantDerivesPhases(t *testing.T) {
	hours := testHours(t)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	fresh := pendingStoredOrder(now.Add(-time.Hour), hours)
	stale := pendingStoredOrder(time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC), hours)
	stale.ID = "5002_m_alpha"

	orders := &stubOrderRepository{
		listByMerchant: func(_ context.Context, merchantID string, query repositories.OrderListQuery) (repositories.OrderPage, error) {
			if merchantID != "m_alpha" {
				t.Fatalf("unexpected merchant %q", merchantID)
			}
			return repositories.OrderPage{Orders: []domain.VendorOrder{fresh, stale}, NextPageToken: "tok_next"}, nil
		},
	}
	svc := newWorkflowServiceForTest(t, WorkflowServiceDeps{
		Orders: orders,
		Hours:  hours,
		Clock:  func() time.Time { return now },
	})

	result, err := svc.ListForMerchant(context.Background(), "m_alpha", OrderListQuery{})
	if err != nil {
		t.Fatalf("ListForMerchant: %v", err)
	}
	if len(result.Views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(result.Views))
	}
	if result.Views[0].Phase != domain.PhaseVendorPending {
		t.Fatalf("expected vendor_pending, got %q", result.Views[0].Phase)
	}
	if result.Views[1].Phase != domain.PhaseVendorExpired {
		t.Fatalf("expected vendor_expired, got %q", result.Views[1].Phase)
	}
	if result.Views[1].Countdown == nil || result.Views[1].Countdown.Remaining >= 0 {
		t.Fatalf("expected negative countdown for expired order, got %+v", result.Views[1].Countdown)
	}
	if result.NextPageToken != "tok_next" {
		t.Fatalf("expected next page token to pass through, got %q", result.NextPageToken)
	}
}
