package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"storecount/internal/core/apperror"
	"storecount/internal/core/id"
	"storecount/pkg/logger"
)

// Service validates and records ledger movements.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new ledger service.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// AppendMovement validates in and appends it to the ledger.
func (s *Service) AppendMovement(ctx context.Context, in AppendInput) (*AppendResult, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	m := Movement{
		StoreID:        in.StoreID,
		StoreProductID: in.StoreProductID,
		Type:           in.Type,
		Quantity:       in.Quantity,
		Description:    in.Description,
		CreatedBy:      in.Actor,
		CreatedAt:      s.now(),
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		m.IdempotencyKey = &key
		m.ID = id.FromKey("movement", key)
	} else {
		m.ID = id.New()
	}

	stored, replayed, err := s.repo.Append(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("append movement: %w", err)
	}

	if replayed {
		if stored.StoreProductID != m.StoreProductID || stored.Type != m.Type || stored.Quantity != m.Quantity {
			return nil, apperror.NewIdempotencyMismatch(in.IdempotencyKey).
				WithDetail("stored_quantity", stored.Quantity).
				WithDetail("request_quantity", m.Quantity)
		}
		logger.Debug(ctx, "ledger movement replayed", "key", in.IdempotencyKey, "id", stored.ID)
	} else {
		logger.Info(ctx, "ledger movement appended",
			"id", stored.ID,
			"store_product_id", stored.StoreProductID,
			"type", stored.Type,
			"quantity", stored.Quantity,
		)
	}

	return &AppendResult{Movement: stored, Replayed: replayed}, nil
}

// TheoreticalStock returns the stock per product for the store. Products named
// in productIDs that have no movements are reported with quantity 0.
func (s *Service) TheoreticalStock(ctx context.Context, storeID id.ID, productIDs ...id.ID) ([]StockLevel, error) {
	levels, err := s.repo.StockLevels(ctx, storeID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("stock levels: %w", err)
	}

	if len(productIDs) > 0 {
		seen := make(map[id.ID]bool, len(levels))
		for _, l := range levels {
			seen[l.StoreProductID] = true
		}
		for _, pid := range productIDs {
			if !seen[pid] {
				seen[pid] = true
				levels = append(levels, StockLevel{StoreProductID: pid})
			}
		}
	}

	sort.Slice(levels, func(i, j int) bool {
		return levels[i].StoreProductID.String() < levels[j].StoreProductID.String()
	})
	return levels, nil
}

// ProductStock returns the theoretical stock of a single product.
func (s *Service) ProductStock(ctx context.Context, storeID, productID id.ID) (int64, error) {
	levels, err := s.repo.StockLevels(ctx, storeID, []id.ID{productID})
	if err != nil {
		return 0, fmt.Errorf("stock level: %w", err)
	}
	for _, l := range levels {
		if l.StoreProductID == productID {
			return l.Quantity, nil
		}
	}
	return 0, nil
}

// Movements returns movement history.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	return s.repo.ListMovements(ctx, filter)
}

func validate(in AppendInput) error {
	if id.IsNil(in.StoreID) {
		return apperror.NewValidation("store_id is required")
	}
	if id.IsNil(in.StoreProductID) {
		return apperror.NewValidation("store_product_id is required")
	}
	if !in.Type.Valid() {
		return apperror.NewValidation("unknown movement type").WithDetail("type", string(in.Type))
	}
	if in.Type == TypeAdjust {
		if in.Quantity == 0 {
			return apperror.NewInvalidQuantity("adjustment quantity must be non-zero", in.Quantity)
		}
		return nil
	}
	if in.Quantity <= 0 {
		return apperror.NewInvalidQuantity(
			fmt.Sprintf("%s quantity must be positive", in.Type), in.Quantity,
		).WithDetail("type", string(in.Type))
	}
	return nil
}
