package economy

import "errors"

// Validation errors: the request is malformed and nothing was changed.
var (
	ErrInvalidAmount        = errors.New("amount must be a non-negative integer")
	ErrInvalidCapacity      = errors.New("new capacity must exceed the current capacity")
	ErrCapacityLimit        = errors.New("inventory is at its maximum capacity")
	ErrIndexOutOfRange      = errors.New("inventory index out of range")
	ErrNotFusable           = errors.New("selection cannot be fused")
	ErrItemLocked           = errors.New("item is locked")
	ErrMaxLevel             = errors.New("item is already at max enhancement level")
	ErrMaxLuckLevel         = errors.New("permanent luck is already at max level")
	ErrNotForSale           = errors.New("effect is not sold in the shop")
	ErrInvalidPrice         = errors.New("price must be positive")
	ErrInvalidProbabilities = errors.New("probabilities must sum to 100")
	ErrSelfPurchase         = errors.New("cannot buy your own listing")
	ErrItemNotFound         = errors.New("item not found at inventory index")
	ErrNotOwner             = errors.New("listing belongs to another player")
	ErrTooManyListings      = errors.New("too many active listings")
	ErrUnknownEffect        = errors.New("unknown effect kind")
	ErrUnknownMutation      = errors.New("unknown mutation kind")
)

// Resource errors: the player lacks what the operation needs.
var (
	ErrInsufficientFunds = errors.New("insufficient coins")
	ErrInventoryFull     = errors.New("inventory is full")
	ErrCooldown          = errors.New("draw is on cooldown")
)

// Conflict errors: concurrent activity invalidated the request.
var (
	ErrListingGone = errors.New("listing no longer available")
	ErrConflict    = errors.New("concurrent modification")
)

// ErrPersistence marks failures of the backing store. Wrap it together with
// the driver error: fmt.Errorf("%w: %w", ErrPersistence, err).
var ErrPersistence = errors.New("persistence failure")

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrorKind groups errors by how callers should react to them.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindResource
	KindConflict
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindResource:
		return "resource"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidAmount, KindValidation},
	{ErrInvalidCapacity, KindValidation},
	{ErrCapacityLimit, KindValidation},
	{ErrIndexOutOfRange, KindValidation},
	{ErrNotFusable, KindValidation},
	{ErrItemLocked, KindValidation},
	{ErrMaxLevel, KindValidation},
	{ErrMaxLuckLevel, KindValidation},
	{ErrNotForSale, KindValidation},
	{ErrInvalidPrice, KindValidation},
	{ErrInvalidProbabilities, KindValidation},
	{ErrSelfPurchase, KindValidation},
	{ErrItemNotFound, KindValidation},
	{ErrNotOwner, KindValidation},
	{ErrTooManyListings, KindValidation},
	{ErrUnknownEffect, KindValidation},
	{ErrUnknownMutation, KindValidation},
	{ErrInsufficientFunds, KindResource},
	{ErrInventoryFull, KindResource},
	{ErrCooldown, KindResource},
	{ErrListingGone, KindConflict},
	{ErrConflict, KindConflict},
	{ErrPersistence, KindPersistence},
}

// Classify reports the ErrorKind of err.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}
