package pricing

import (
	"fmt"

	"skyport/pkg/model"
)

const basisPoints = 10000

// Rates applied when none are configured: 10% tax, 5% off full payment.
const (
	DefaultTaxBasisPoints   = 1000
	DefaultFullPlanDiscount = 500
)

// Quote is the breakdown of one seat's price, all in minor currency units.
type Quote struct {
	Subtotal int64  `json:"subtotal"`
	Discount int64  `json:"discount"`
	Tax      int64  `json:"tax"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type Calculator struct {
	taxBasisPoints int64
	discounts      map[model.PaymentPlan]int64
}

// NewCalculator returns a calculator applying fullPlanDiscount to full
// payments and taxing the discounted subtotal. Rates are in basis points.
func NewCalculator(taxBasisPoints, fullPlanDiscount int64) *Calculator {
	return &Calculator{
		taxBasisPoints: taxBasisPoints,
		discounts: map[model.PaymentPlan]int64{
			model.PlanFull:    fullPlanDiscount,
			model.PlanSplit:   0,
			model.PlanDeposit: 0,
		},
	}
}

// Quote prices one seat on course. An empty plan is treated as full payment.
func (c *Calculator) Quote(course *model.Course, plan model.PaymentPlan) (Quote, error) {
	if plan == "" {
		plan = model.PlanFull
	}
	rate, ok := c.discounts[plan]
	if !ok {
		return Quote{}, fmt.Errorf("unknown payment plan %q", plan)
	}

	discount := applyRate(course.Price, rate)
	tax := applyRate(course.Price-discount, c.taxBasisPoints)
	return Quote{
		Subtotal: course.Price,
		Discount: discount,
		Tax:      tax,
		Total:    course.Price - discount + tax,
		Currency: course.Currency,
	}, nil
}

// applyRate returns amount*rate/10000 rounded half up.
func applyRate(amount, rate int64) int64 {
	return (amount*rate + basisPoints/2) / basisPoints
}
