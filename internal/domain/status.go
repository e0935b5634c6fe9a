package domain

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderPending              OrderStatus = "pending"
	OrderAcceptedByRestaurant OrderStatus = "accepted_by_restaurant"
	OrderSearchingCourier     OrderStatus = "searching_courier"
	OrderInProgress           OrderStatus = "in_progress"
	OrderDelivered            OrderStatus = "delivered"
	OrderCancelled            OrderStatus = "cancelled"
	OrderFailed               OrderStatus = "failed"
)

var orderRank = map[OrderStatus]int{
	OrderPending:              0,
	OrderAcceptedByRestaurant: 1,
	OrderSearchingCourier:     2,
	OrderInProgress:           3,
	OrderDelivered:            4,
	OrderCancelled:            4,
	OrderFailed:               4,
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	_, ok := orderRank[s]
	return ok
}

// Terminal reports whether no further transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled || s == OrderFailed
}

// Settled reports whether the orchestrator has nothing left to do for s:
// the order is terminal or a courier is on it.
func (s OrderStatus) Settled() bool {
	return s.Terminal() || s == OrderInProgress
}

// CanMoveTo reports whether s -> next follows the order DAG. The DAG is
// monotone except for the committer's compensation in_progress ->
// accepted_by_restaurant|searching_courier.
func (s OrderStatus) CanMoveTo(next OrderStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	switch next {
	case OrderFailed:
		return true
	case OrderCancelled:
		return s != OrderInProgress
	case OrderDelivered:
		return s == OrderInProgress
	}
	return orderRank[next] > orderRank[s]
}

// Cancellable are the order statuses a client cancellation applies to.
func Cancellable() []OrderStatus {
	return []OrderStatus{OrderPending, OrderAcceptedByRestaurant, OrderSearchingCourier}
}

// Dispatching are the statuses in which courier offers may be outstanding.
func Dispatching() []OrderStatus {
	return []OrderStatus{OrderAcceptedByRestaurant, OrderSearchingCourier}
}

// Failure reasons recorded on failed or cancelled orders.
const (
	ReasonRestaurantDeclined = "restaurant_declined"
	ReasonNoCourierAvailable = "no_courier_available"
	ReasonCourierDeclined    = "courier_declined"
	ReasonCancelledByClient  = "cancelled_by_client"
	ReasonInvariantViolation = "invariant_violation"
)

// CourierStatus is the availability of a courier.
type CourierStatus string

const (
	CourierAvailable CourierStatus = "available"
	CourierOffered   CourierStatus = "offered"
	CourierEnCourse  CourierStatus = "en_course"
	CourierOffline   CourierStatus = "offline"
)

var allowedCourierStatus = [...]CourierStatus{CourierAvailable, CourierOffered, CourierEnCourse, CourierOffline}

// Valid reports whether s is a known courier status.
func (s CourierStatus) Valid() bool {
	for _, v := range allowedCourierStatus {
		if s == v {
			return true
		}
	}
	return false
}

// RequestStatus is the state of a RestaurantRequest or DeliveryRequest.
type RequestStatus string

const (
	RequestRequested RequestStatus = "requested"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestExpired   RequestStatus = "expired"
	RequestCancelled RequestStatus = "cancelled"
)

// Terminal reports whether the request got an answer or was withdrawn.
func (s RequestStatus) Terminal() bool {
	return s != RequestRequested
}

// Declined reports whether the request ended without acceptance.
func (s RequestStatus) Declined() bool {
	return s == RequestRejected || s == RequestExpired
}

// RestaurantStatus tells whether a restaurant takes orders.
type RestaurantStatus string

const (
	RestaurantOpen   RestaurantStatus = "open"
	RestaurantClosed RestaurantStatus = "closed"
)
