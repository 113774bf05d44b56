package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/sellerhub/api/internal/domain"
	"github.com/sellerhub/api/internal/repositories"
)

const (
	orderEventAccepted       = "vendor_order.accepted"
	orderEventPickupAssigned = "vendor_order.pickup_assigned"
	orderEventDispatched     = "vendor_order.dispatched"
)

var (
	// ErrOrderNotFound indicates no aggregate exists for the requested id.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the caller does not own the aggregate.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderIllegalPhase indicates the action is not legal from the order's current phase.
	ErrOrderIllegalPhase = errors.New("order: illegal phase")
	// ErrOrderInvalidInput indicates a malformed action payload.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderUnavailable indicates the persistence layer failed transiently.
	ErrOrderUnavailable = errors.New("order: repository unavailable")
)

// WorkflowServiceDeps bundles collaborators required to construct the workflow service.
type WorkflowServiceDeps struct {
	Orders      repositories.OrderRepository
	Hours       domain.BusinessHours
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type workflowService struct {
	orders repositories.OrderRepository
	hours  domain.BusinessHours
	clock  func() time.Time
	newID  func() string
	events OrderEventPublisher
	logger func(context.Context, string, map[string]any)
}

// NewWorkflowService wires dependencies into a concrete WorkflowService implementation.
func NewWorkflowService(deps WorkflowServiceDeps) (WorkflowService, error) {
	if deps.Orders == nil {
		return nil, errors.New("workflow service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &workflowService{
		orders: deps.Orders,
		hours:  deps.Hours,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *workflowService) ListForMerchant(ctx context.Context, merchantID string, query OrderListQuery) (OrderListResult, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return OrderListResult{}, fmt.Errorf("%w: merchant id is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.ListByMerchant(ctx, merchantID, repositories.OrderListQuery{
		Limit:          query.Limit,
		WorkflowStatus: query.WorkflowStatus,
		PageToken:      query.PageToken,
	})
	if err != nil {
		return OrderListResult{}, s.mapRepositoryError(err)
	}
	return OrderListResult{Views: s.views(page.Orders), NextPageToken: page.NextPageToken}, nil
}

func (s *workflowService) ListAll(ctx context.Context, query OrderListQuery) (OrderListResult, error) {
	page, err := s.orders.List(ctx, repositories.OrderListQuery{
		Limit:          query.Limit,
		WorkflowStatus: query.WorkflowStatus,
		PageToken:      query.PageToken,
	})
	if err != nil {
		return OrderListResult{}, s.mapRepositoryError(err)
	}
	return OrderListResult{Views: s.views(page.Orders), NextPageToken: page.NextPageToken}, nil
}

func (s *workflowService) GetForMerchant(ctx context.Context, merchantID, orderID string) (OrderView, error) {
	view, err := s.Get(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if view.Order.MerchantID != strings.TrimSpace(merchantID) {
		return OrderView{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
	}
	return view, nil
}

func (s *workflowService) Get(ctx context.Context, orderID string) (OrderView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderView{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderView{}, s.mapRepositoryError(err)
	}
	return s.view(order), nil
}

func (s *workflowService) Accept(ctx context.Context, cmd AcceptOrderCommand) (OrderView, error) {
	if strings.TrimSpace(cmd.OrderID) == "" {
		return OrderView{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	now := s.clock()

	order, err := s.orders.Transition(ctx, cmd.OrderID, func(order domain.VendorOrder) (domain.VendorOrder, error) {
		if cmd.MerchantID != "" && order.MerchantID != cmd.MerchantID {
			return domain.VendorOrder{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, cmd.OrderID)
		}
		phase := domain.Phase(order, now, s.hours)
		// Acceptance after the deadline is allowed until an admin intervenes.
		if phase != domain.PhaseVendorPending && phase != domain.PhaseVendorExpired {
			return domain.VendorOrder{}, fmt.Errorf("%w: cannot accept from %s", ErrOrderIllegalPhase, phase)
		}

		order.WorkflowStatus = domain.StatusVendorAccepted
		if order.VendorAcceptedAt == nil {
			acceptedAt := now
			order.VendorAcceptedAt = &acceptedAt
		}
		planBy := order.VendorAcceptedAt.Add(domain.AdminPlanWindow)
		order.AdminPlanBy = &planBy
		order.Timeline = append(order.Timeline, domain.TimelineEntry{
			ID:    timelineEntryIDPrefix + s.newID(),
			At:    now,
			Actor: cmd.ActorID,
			Note:  "seller accepted the order",
		})
		order.UpdatedAt = now
		return order, nil
	})
	if err != nil {
		return OrderView{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, orderEventAccepted, order, now)
	return s.view(order), nil
}

func (s *workflowService) AssignPickup(ctx context.Context, cmd AssignPickupCommand) (OrderView, error) {
	if strings.TrimSpace(cmd.OrderID) == "" {
		return OrderView{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.PickupPlan.Window) == "" {
		return OrderView{}, fmt.Errorf("%w: pickup window is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.DeliveryPartner.Name) == "" {
		return OrderView{}, fmt.Errorf("%w: delivery partner name is required", ErrOrderInvalidInput)
	}
	now := s.clock()

	order, err := s.orders.Transition(ctx, cmd.OrderID, func(order domain.VendorOrder) (domain.VendorOrder, error) {
		phase := domain.Phase(order, now, s.hours)
		if phase != domain.PhaseVendorAccepted && phase != domain.PhaseAdminOverdue {
			return domain.VendorOrder{}, fmt.Errorf("%w: cannot assign pickup from %s", ErrOrderIllegalPhase, phase)
		}

		plan := cmd.PickupPlan
		partner := cmd.DeliveryPartner
		order.WorkflowStatus = domain.StatusPickupAssigned
		order.PickupPlan = &plan
		order.DeliveryPartner = &partner
		plannedAt := now
		order.AdminPlannedAt = &plannedAt
		order.Timeline = append(order.Timeline, domain.TimelineEntry{
			ID:    timelineEntryIDPrefix + s.newID(),
			At:    now,
			Actor: cmd.ActorID,
			Note:  fmt.Sprintf("pickup assigned to %s (%s)", partner.Name, plan.Window),
		})
		order.UpdatedAt = now
		return order, nil
	})
	if err != nil {
		return OrderView{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, orderEventPickupAssigned, order, now)
	return s.view(order), nil
}

func (s *workflowService) MarkDispatched(ctx context.Context, cmd DispatchOrderCommand) (OrderView, error) {
	if strings.TrimSpace(cmd.OrderID) == "" {
		return OrderView{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	now := s.clock()

	order, err := s.orders.Transition(ctx, cmd.OrderID, func(order domain.VendorOrder) (domain.VendorOrder, error) {
		if cmd.MerchantID != "" && order.MerchantID != cmd.MerchantID {
			return domain.VendorOrder{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, cmd.OrderID)
		}
		phase := domain.Phase(order, now, s.hours)
		if phase != domain.PhasePickupAssigned {
			return domain.VendorOrder{}, fmt.Errorf("%w: cannot dispatch from %s", ErrOrderIllegalPhase, phase)
		}

		order.WorkflowStatus = domain.StatusDispatched
		dispatchedAt := now
		order.DispatchedAt = &dispatchedAt
		order.Timeline = append(order.Timeline, domain.TimelineEntry{
			ID:    timelineEntryIDPrefix + s.newID(),
			At:    now,
			Actor: cmd.ActorID,
			Note:  "order dispatched",
		})
		order.UpdatedAt = now
		return order, nil
	})
	if err != nil {
		return OrderView{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, orderEventDispatched, order, now)
	return s.view(order), nil
}

func (s *workflowService) view(order domain.VendorOrder) OrderView {
	now := s.clock()
	return OrderView{
		Order:     order,
		Phase:     domain.Phase(order, now, s.hours),
		Countdown: domain.ActiveCountdown(order, now, s.hours),
	}
}

func (s *workflowService) views(orders []domain.VendorOrder) []OrderView {
	now := s.clock()
	views := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, OrderView{
			Order:     order,
			Phase:     domain.Phase(order, now, s.hours),
			Countdown: domain.ActiveCountdown(order, now, s.hours),
		})
	}
	return views
}

func (s *workflowService) publishEvent(ctx context.Context, eventType string, order domain.VendorOrder, occurredAt time.Time) {
	if s.events == nil {
		return
	}
	_, err := s.events.PublishOrderEvent(ctx, OrderEventMessage{
		Type:           eventType,
		OrderID:        order.ID,
		MerchantID:     order.MerchantID,
		ShopifyOrderID: order.ShopifyID,
		WorkflowStatus: string(order.WorkflowStatus),
		OccurredAt:     occurredAt,
	})
	if err != nil {
		s.logger(ctx, "workflow.event.publish.failed", map[string]any{
			"type":  eventType,
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

func (s *workflowService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOrderForbidden) || errors.Is(err, ErrOrderIllegalPhase) || errors.Is(err, ErrOrderInvalidInput) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}
