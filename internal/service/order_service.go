package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"procurement/internal/domain"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService defines the interface for checkout and the order lifecycle
type OrderService interface {
	PlaceOrder(ctx context.Context, buyerID, contactID uuid.UUID) (*domain.Order, error)
	TransitionOrder(ctx context.Context, actor domain.Actor, orderID uuid.UUID, to domain.OrderState) (*domain.Order, error)
	GetOrderForBuyer(ctx context.Context, buyerID, orderID uuid.UUID) (*domain.BuyerOrderView, error)
	ListOrdersForBuyer(ctx context.Context, buyerID uuid.UUID) ([]domain.BuyerOrderView, error)
	ListOrdersForPartner(ctx context.Context, shopID uuid.UUID) ([]domain.PartnerOrderView, error)
}

type orderService struct {
	store    repository.Storage
	notifier Notifier
	logger   *zap.Logger
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(store repository.Storage, notifier Notifier, logger *zap.Logger) OrderService {
	return &orderService{store: store, notifier: notifier, logger: logger}
}

func lessUUID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// PlaceOrder converts the buyer's open basket into an order in one transaction.
// Either every line is reserved and the order exists, or nothing changed.
func (s *orderService) PlaceOrder(ctx context.Context, buyerID, contactID uuid.UUID) (*domain.Order, error) {
	var (
		order  *domain.Order
		owners map[uuid.UUID]uuid.UUID
	)

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		order, owners = nil, make(map[uuid.UUID]uuid.UUID)

		basket, err := tx.Baskets().LockOpen(ctx, buyerID)
		if errors.Is(err, repository.ErrBasketNotFound) {
			return domain.ErrEmptyBasket
		}
		if err != nil {
			return err
		}
		if len(basket.Items) == 0 {
			return domain.ErrEmptyBasket
		}

		if _, err := tx.Contacts().FindForUser(ctx, contactID, buyerID); err != nil {
			return err
		}

		lines := append([]domain.BasketItem(nil), basket.Items...)
		sort.Slice(lines, func(i, j int) bool { return lessUUID(lines[i].ListingID, lines[j].ListingID) })

		shopIDs := make([]uuid.UUID, 0, len(lines))
		seen := make(map[uuid.UUID]bool)
		for _, ln := range lines {
			if !seen[ln.ShopID] {
				seen[ln.ShopID] = true
				shopIDs = append(shopIDs, ln.ShopID)
			}
		}
		sort.Slice(shopIDs, func(i, j int) bool { return lessUUID(shopIDs[i], shopIDs[j]) })

		for _, id := range shopIDs {
			shop, err := tx.Shops().LockForCheckout(ctx, id)
			if err != nil {
				return err
			}
			if !shop.AcceptingOrders {
				return &domain.ShopClosedError{ShopID: shop.ID}
			}
			owners[shop.ID] = shop.OwnerID
		}

		o := &domain.Order{
			ID:        uuid.New(),
			BuyerID:   buyerID,
			ContactID: contactID,
			State:     domain.OrderNew,
			Items:     make([]domain.OrderItem, 0, len(lines)),
		}
		for _, ln := range lines {
			listing, err := tx.Listings().Reserve(ctx, ln.ListingID, ln.Quantity)
			if err != nil {
				return err
			}
			listingID := listing.ID
			o.Items = append(o.Items, domain.OrderItem{
				ID:          uuid.New(),
				ListingID:   &listingID,
				ShopID:      listing.ShopID,
				ProductID:   listing.ProductID,
				ProductName: listing.ProductName,
				ExternalSKU: listing.ExternalSKU,
				Quantity:    ln.Quantity,
				Price:       listing.Price,
			})
		}

		if err := tx.Orders().Create(ctx, o); err != nil {
			return err
		}
		if err := tx.Baskets().Close(ctx, basket.ID, domain.BasketOrdered); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("buyer_id", buyerID.String()),
		zap.Int("items", len(order.Items)),
	)

	s.notifier.Enqueue(domain.NewJob(domain.JobOrderPlaced, buyerID, domain.OrderPlacedPayload{
		OrderID:   order.ID,
		ItemCount: len(order.Items),
		Total:     order.Total(),
	}))
	for _, shopID := range order.ShopIDs() {
		view, _ := order.PartnerView(shopID)
		s.notifier.Enqueue(domain.NewJob(domain.JobOrderReceived, owners[shopID], domain.OrderReceivedPayload{
			OrderID:   order.ID,
			ShopID:    shopID,
			ItemCount: len(view.Items),
			Subtotal:  view.Subtotal,
		}))
	}
	return order, nil
}

// TransitionOrder moves an order along its lifecycle. Partners may only act on
// orders that contain their lines; buyers cannot change state after placement.
func (s *orderService) TransitionOrder(ctx context.Context, actor domain.Actor, orderID uuid.UUID, to domain.OrderState) (*domain.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown order state %q", domain.ErrValidation, to)
	}

	var (
		order *domain.Order
		from  domain.OrderState
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		o, err := tx.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, tx, actor, o); err != nil {
			return err
		}
		if !domain.CanTransition(o.State, to) {
			return &domain.TransitionError{From: o.State, To: to}
		}

		if to == domain.OrderCanceled {
			if err := releaseReservations(ctx, tx, o.ID); err != nil {
				return err
			}
		}

		if err := tx.Orders().UpdateState(ctx, o.ID, o.State, to); err != nil {
			return err
		}
		from = o.State
		o.State = to
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order state changed",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	s.notifier.Enqueue(domain.NewJob(domain.JobOrderStateChanged, order.BuyerID, domain.OrderStateChangedPayload{
		OrderID: order.ID,
		From:    from,
		To:      to,
	}))
	return order, nil
}

func (s *orderService) authorize(ctx context.Context, tx repository.Store, actor domain.Actor, o *domain.Order) error {
	switch actor.Role {
	case domain.RoleSystem:
		return nil
	case domain.RoleShop:
		shop, err := tx.Shops().FindByOwner(ctx, actor.ID)
		if errors.Is(err, repository.ErrShopNotFound) {
			return domain.ErrForbidden
		}
		if err != nil {
			return err
		}
		if !o.HasShop(shop.ID) {
			return domain.ErrForbidden
		}
		return nil
	default:
		return domain.ErrForbidden
	}
}

// releaseReservations returns reserved stock. Listings removed by a sync since
// checkout have nothing to return to.
func releaseReservations(ctx context.Context, tx repository.Store, orderID uuid.UUID) error {
	reservations, err := tx.Orders().ActiveReservations(ctx, orderID)
	if err != nil {
		return err
	}
	for _, r := range reservations {
		if r.ListingID == nil {
			continue
		}
		err := tx.Listings().Release(ctx, *r.ListingID, r.Quantity)
		if err != nil && !errors.Is(err, repository.ErrListingNotFound) {
			return err
		}
	}
	return tx.Orders().MarkReservationsReleased(ctx, orderID)
}

func (s *orderService) GetOrderForBuyer(ctx context.Context, buyerID, orderID uuid.UUID) (*domain.BuyerOrderView, error) {
	o, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, repository.ErrOrderNotFound
	}
	view := o.BuyerView()
	return &view, nil
}

func (s *orderService) ListOrdersForBuyer(ctx context.Context, buyerID uuid.UUID) ([]domain.BuyerOrderView, error) {
	orders, err := s.store.Orders().ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	views := make([]domain.BuyerOrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, o.BuyerView())
	}
	return views, nil
}

func (s *orderService) ListOrdersForPartner(ctx context.Context, shopID uuid.UUID) ([]domain.PartnerOrderView, error) {
	orders, err := s.store.Orders().ListByShop(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	views := make([]domain.PartnerOrderView, 0, len(orders))
	for _, o := range orders {
		if view, ok := o.PartnerView(shopID); ok {
			views = append(views, view)
		}
	}
	return views, nil
}
