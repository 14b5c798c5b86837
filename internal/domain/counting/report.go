package counting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"storecount/internal/core/id"
	"storecount/internal/domain/catalog"
)

// Report is the immutable snapshot of a session handed to renderers.
// It is always derived from the stored session, items and product metadata.
type Report struct {
	Session     SessionInfo  `json:"session"`
	Summary     Summary      `json:"summary"`
	Items       []ReportItem `json:"items"`
	GeneratedAt time.Time    `json:"generatedAt"`
}

// SessionInfo is the session projection carried by a report.
type SessionInfo struct {
	ID          id.ID      `json:"id"`
	Name        string     `json:"name"`
	CreatedAt   time.Time  `json:"createdAt"`
	FinalizedAt *time.Time `json:"finalizedAt"`
	StoreID     id.ID      `json:"storeId"`
	CreatedBy   string     `json:"createdBy"`
	Reconciled  bool       `json:"reconciled"`
	Scope       string     `json:"scope,omitempty"`
}

// Summary aggregates item classifications.
type Summary struct {
	TotalProducts         int `json:"totalProducts"`
	CorrectCount          int `json:"correctCount"`
	Discrepancies         int `json:"discrepancies"`
	PositiveDiscrepancies int `json:"positiveDiscrepancies"`
	NegativeDiscrepancies int `json:"negativeDiscrepancies"`

	// Valuation at product unit cost.
	SurplusValue  decimal.Decimal `json:"surplusValue"`
	ShortageValue decimal.Decimal `json:"shortageValue"`
}

// ReportItem is one counted product.
type ReportItem struct {
	StoreProductID  id.ID           `json:"storeProductId"`
	ProductName     string          `json:"productName"`
	SKU             string          `json:"sku"`
	ExpectedStock   int64           `json:"expectedStock"`
	PhysicalStock   int64           `json:"physicalStock"`
	Difference      int64           `json:"difference"`
	Classification  Classification  `json:"classification"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	DifferenceValue decimal.Decimal `json:"differenceValue"`
}

// BuildReport folds items into a report. Products missing from the catalog
// are reported with an empty name and zero cost.
func BuildReport(s *Session, items []Item, products map[id.ID]catalog.StoreProduct, at time.Time) *Report {
	r := &Report{
		Session: SessionInfo{
			ID:          s.ID,
			Name:        s.Name,
			CreatedAt:   s.CreatedAt,
			FinalizedAt: s.FinalizedAt,
			StoreID:     s.StoreID,
			CreatedBy:   s.CreatedBy,
			Reconciled:  s.Reconciled,
			Scope:       s.Scope,
		},
		Summary: Summary{
			SurplusValue:  decimal.Zero,
			ShortageValue: decimal.Zero,
		},
		Items:       make([]ReportItem, 0, len(items)),
		GeneratedAt: at,
	}

	for _, it := range items {
		p := products[it.StoreProductID]
		value := p.UnitCost.Mul(decimal.NewFromInt(it.Difference))
		ri := ReportItem{
			StoreProductID:  it.StoreProductID,
			ProductName:     p.Name,
			SKU:             p.SKU,
			ExpectedStock:   it.ExpectedStock,
			PhysicalStock:   it.PhysicalStock,
			Difference:      it.Difference,
			Classification:  it.Classification(),
			UnitCost:        p.UnitCost,
			DifferenceValue: value,
		}
		r.Items = append(r.Items, ri)

		r.Summary.TotalProducts++
		switch ri.Classification {
		case Correct:
			r.Summary.CorrectCount++
		case Surplus:
			r.Summary.Discrepancies++
			r.Summary.PositiveDiscrepancies++
			r.Summary.SurplusValue = r.Summary.SurplusValue.Add(value)
		case Shortage:
			r.Summary.Discrepancies++
			r.Summary.NegativeDiscrepancies++
			r.Summary.ShortageValue = r.Summary.ShortageValue.Add(value.Neg())
		}
	}

	sort.SliceStable(r.Items, func(i, j int) bool {
		if r.Items[i].ProductName != r.Items[j].ProductName {
			return r.Items[i].ProductName < r.Items[j].ProductName
		}
		return r.Items[i].StoreProductID.String() < r.Items[j].StoreProductID.String()
	})
	return r
}

// ReportGenerator assembles reports from storage. It never writes and never
// re-reads the ledger: each item carries the difference captured at count time.
type ReportGenerator struct {
	sessions SessionRepository
	items    ItemRepository
	products catalog.Repository
	now      func() time.Time
}

// NewReportGenerator creates a report generator.
func NewReportGenerator(sessions SessionRepository, items ItemRepository, products catalog.Repository) *ReportGenerator {
	return &ReportGenerator{
		sessions: sessions,
		items:    items,
		products: products,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Generate builds the current report of a session.
func (g *ReportGenerator) Generate(ctx context.Context, sessionID id.ID) (*Report, error) {
	s, err := g.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	items, err := g.items.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return g.build(ctx, s, items)
}

func (g *ReportGenerator) build(ctx context.Context, s *Session, items []Item) (*Report, error) {
	ids := make([]id.ID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.StoreProductID)
	}
	products, err := g.products.GetByIDs(ctx, s.StoreID, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	return BuildReport(s, items, catalog.Index(products), g.now()), nil
}
