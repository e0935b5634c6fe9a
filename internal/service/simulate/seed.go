package simulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/store"
)

var (
	firstNames = []string{"Camille", "Lucas", "Léa", "Hugo", "Chloé", "Louis", "Manon", "Nathan", "Inès", "Jules"}
	lastNames  = []string{"Martin", "Bernard", "Dubois", "Thomas", "Robert", "Richard", "Petit", "Durand", "Leroy", "Moreau"}
	kitchens   = []string{"Chez Mario", "Sushi Zen", "Le Bistrot", "Burger Hub", "Taj Mahal", "La Crêperie"}
	menu       = []string{"pizza margherita", "maki saumon", "burger", "salade niçoise", "curry", "crêpe", "tiramisu"}
)

// Seeded counts the documents a Seed call created.
type Seeded struct {
	Couriers    int
	Restaurants int
}

// Seed creates SeedCouriers available couriers and SeedRestaurants open
// restaurants with stable identifiers. Existing ones are left untouched.
func (s *Simulator) Seed(ctx context.Context) (Seeded, error) {
	var res Seeded
	for i := 1; i <= s.cfg.SeedCouriers; i++ {
		c := domain.Courier{
			CourierID: fmt.Sprintf("L%03d", i),
			FirstName: firstNames[(i-1)%len(firstNames)],
			LastName:  lastNames[(i-1)/len(firstNames)%len(lastNames)],
			Phone:     fmt.Sprintf("+33 6 %02d %02d %02d %02d", i%100, (i*7)%100, (i*13)%100, (i*29)%100),
			Status:    domain.CourierAvailable,
		}
		created, err := s.insert(ctx, store.Couriers, c.Doc())
		if err != nil {
			return res, fmt.Errorf("seed courier %s: %w", c.CourierID, err)
		}
		if created {
			res.Couriers++
		}
	}
	for i := 1; i <= s.cfg.SeedRestaurants; i++ {
		r := domain.Restaurant{
			RestaurantID: fmt.Sprintf("R%02d", i),
			Name:         kitchens[(i-1)%len(kitchens)],
			Status:       domain.RestaurantOpen,
		}
		created, err := s.insert(ctx, store.Restaurants, r.Doc())
		if err != nil {
			return res, fmt.Errorf("seed restaurant %s: %w", r.RestaurantID, err)
		}
		if created {
			res.Restaurants++
		}
	}
	if res.Couriers+res.Restaurants > 0 {
		s.logger.Info("store seeded", logx.Int("couriers", res.Couriers), logx.Int("restaurants", res.Restaurants))
	}
	return res, nil
}

func (s *Simulator) insert(ctx context.Context, collection string, d store.Doc) (bool, error) {
	err := s.st.Insert(ctx, collection, d)
	if errors.Is(err, apperr.ErrDuplicate) {
		return false, nil
	}
	return err == nil, err
}

// NewOrder builds a pending order for one of restaurants. Up to three
// restaurants are listed in priority order.
func (s *Simulator) NewOrder(restaurants []string, now time.Time) domain.Order {
	o := domain.Order{
		OrderNo:   "CMD-" + uuid.NewString(),
		ClientID:  fmt.Sprintf("C%04d", s.intn(10000)),
		CreatedAt: now,
		Status:    domain.OrderPending,
	}
	picked := make([]string, 0, 3)
	seen := map[int]bool{}
	for want := 1 + s.intn(min(3, len(restaurants))); len(picked) < want; {
		i := s.intn(len(restaurants))
		if !seen[i] {
			seen[i] = true
			picked = append(picked, restaurants[i])
		}
	}
	o.RestaurantID = picked[0]
	if len(picked) > 1 {
		o.RestaurantIDs = picked
	}
	for n := 1 + s.intn(3); n > 0; n-- {
		o.Items = append(o.Items, domain.Item{Name: menu[s.intn(len(menu))], Quantity: 1 + s.intn(2)})
	}
	return o
}

// generateOrders places an order every OrderInterval until Orders were
// placed or ctx is done.
func (s *Simulator) generateOrders(ctx context.Context) error {
	if s.cfg.OrderInterval <= 0 {
		return nil
	}
	docs, err := s.st.FindMany(ctx, store.Restaurants, store.Where(store.Ne("status", domain.RestaurantClosed)),
		store.FindOptions{Sort: []store.SortKey{store.Asc("restaurantId")}})
	if err != nil {
		return fmt.Errorf("list restaurants: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no open restaurant to order from: %w", apperr.ErrNotFound)
	}
	restaurants := make([]string, 0, len(docs))
	for _, d := range docs {
		restaurants = append(restaurants, d.String("restaurantId"))
	}

	ticker := time.NewTicker(s.cfg.OrderInterval)
	defer ticker.Stop()
	for placed := 0; s.cfg.Orders == 0 || placed < s.cfg.Orders; {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		o := s.NewOrder(restaurants, s.m.Now())
		if err := s.st.Insert(ctx, store.Orders, o.Doc()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("order not placed", logx.String("orderNo", o.OrderNo), logx.Err(err))
			continue
		}
		placed++
		s.logger.Info("order placed",
			logx.String("orderNo", o.OrderNo),
			logx.String("clientId", o.ClientID),
			logx.Any("restaurants", o.Restaurants()),
		)
	}
	s.logger.Info("order generator done", logx.Int("orders", s.cfg.Orders))
	return nil
}
