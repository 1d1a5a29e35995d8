package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/buyerd/internal/catalog"
	"github.com/fyrsmithlabs/buyerd/internal/compliance"
)

func mouse() catalog.ProductRow {
	return catalog.ProductRow{
		ID: "prod_mouse", Title: "Logitech M185", Price: "₹899", Amount: 899,
		Rating: 4.4, Reviews: 1200, Source: "amazon",
	}
}

func keyboard() catalog.ProductRow {
	return catalog.ProductRow{
		ID: "prod_kbd", Title: "Dell KB216", Price: "₹1,099", Amount: 1099,
		Rating: 4.2, Reviews: 600, Source: "flipkart",
	}
}

func TestAdd(t *testing.T) {
	st := NewStore()

	item, err := st.Add("u1", mouse(), 3)
	require.NoError(t, err)
	assert.Equal(t, StatusInCart, item.Status)
	assert.Equal(t, 3, item.Quantity)
	assert.NotEmpty(t, item.ID)

	_, err = st.Add("u1", mouse(), 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = st.Add("u1", mouse(), -2)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAdd_SameProductReplaces(t *testing.T) {
	st := NewStore()
	first, err := st.Add("u1", mouse(), 1)
	require.NoError(t, err)

	_, err = st.ApplyVerdict("u1", "prod_mouse", compliance.VerdictCompliant, "ok")
	require.NoError(t, err)

	again, err := st.Add("u1", mouse(), 5)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 5, again.Quantity)
	assert.Equal(t, StatusInCart, again.Status)
	assert.Empty(t, again.Narrative)
	assert.Len(t, st.Items("u1"), 1)
}

func TestRemove(t *testing.T) {
	st := NewStore()
	_, err := st.Add("u1", mouse(), 1)
	require.NoError(t, err)

	require.NoError(t, st.Remove("u1", "prod_mouse"))
	assert.Empty(t, st.Items("u1"))

	err = st.Remove("u1", "prod_mouse")
	assert.ErrorIs(t, err, ErrStaleReference)
}

func TestCartsAreIndependent(t *testing.T) {
	st := NewStore()
	_, err := st.Add("u1", mouse(), 1)
	require.NoError(t, err)
	_, err = st.Add("u2", keyboard(), 2)
	require.NoError(t, err)

	assert.Len(t, st.Items("u1"), 1)
	assert.Len(t, st.Items("u2"), 1)
	assert.Equal(t, "prod_mouse", st.Items("u1")[0].Row.ID)

	st.Clear("u1")
	assert.Empty(t, st.Items("u1"))
	assert.Len(t, st.Items("u2"), 1)
}

func TestApplyVerdict(t *testing.T) {
	tests := []struct {
		verdict compliance.Verdict
		want    Status
	}{
		{compliance.VerdictCompliant, StatusRecommended},
		{compliance.VerdictNeedsApproval, StatusAwaitingApproval},
		{compliance.VerdictNonCompliant, StatusNonCompliant},
		{compliance.Verdict("garbage"), StatusNonCompliant},
	}
	for _, tt := range tests {
		t.Run(string(tt.verdict), func(t *testing.T) {
			st := NewStore()
			_, err := st.Add("u1", mouse(), 1)
			require.NoError(t, err)

			item, err := st.ApplyVerdict("u1", "prod_mouse", tt.verdict, "ruling")
			require.NoError(t, err)
			assert.Equal(t, tt.want, item.Status)
			assert.Equal(t, "ruling", item.Narrative)
		})
	}

	st := NewStore()
	_, err := st.ApplyVerdict("u1", "prod_missing", compliance.VerdictCompliant, "")
	assert.ErrorIs(t, err, ErrStaleReference)
}

func TestResolve(t *testing.T) {
	st := NewStore()
	_, err := st.Add("u1", mouse(), 1)
	require.NoError(t, err)

	// Not awaiting yet.
	_, err = st.Resolve("u1", "prod_mouse", true)
	assert.ErrorIs(t, err, ErrNotAwaiting)

	_, err = st.ApplyVerdict("u1", "prod_mouse", compliance.VerdictNeedsApproval, "over limit")
	require.NoError(t, err)

	item, err := st.Resolve("u1", "prod_mouse", true)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, item.Status)
	assert.True(t, item.Eligible())

	// Already settled.
	_, err = st.Resolve("u1", "prod_mouse", false)
	assert.ErrorIs(t, err, ErrNotAwaiting)
}

func TestResolve_Rejection(t *testing.T) {
	st := NewStore()
	_, err := st.Add("u1", mouse(), 1)
	require.NoError(t, err)
	_, err = st.ApplyVerdict("u1", "prod_mouse", compliance.VerdictNeedsApproval, "")
	require.NoError(t, err)

	item, err := st.Resolve("u1", "prod_mouse", false)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, item.Status)
	assert.False(t, item.Eligible())
}

func TestBuildOrder(t *testing.T) {
	items := []Item{
		{ID: "i1", Row: mouse(), Quantity: 3, Status: StatusRecommended},
		{ID: "i2", Row: keyboard(), Quantity: 1, Status: StatusApproved},
		{ID: "i3", Row: catalog.ProductRow{ID: "prod_x", Title: "Banned", Amount: 10, Source: "amazon"}, Quantity: 1, Status: StatusNonCompliant},
		{ID: "i4", Row: catalog.ProductRow{ID: "prod_y", Title: "Pending", Amount: 10, Source: "amazon"}, Quantity: 1, Status: StatusAwaitingApproval},
	}

	po := BuildOrder(context.Background(), items, nil)
	require.NotNil(t, po)
	assert.Regexp(t, `^PO\d+$`, po.OrderNumber)
	assert.Equal(t, "INR", po.Currency)
	require.Len(t, po.Groups, 2)

	amazon := po.Groups[0]
	assert.Equal(t, "amazon", amazon.Vendor)
	require.Len(t, amazon.Lines, 1)
	assert.Equal(t, 899.0, amazon.Lines[0].UnitPrice)
	assert.Equal(t, 3, amazon.Lines[0].Quantity)
	assert.Equal(t, 2697.0, amazon.Lines[0].Extended)
	assert.Equal(t, 2697.0, amazon.Subtotal)

	flipkart := po.Groups[1]
	assert.Equal(t, "flipkart", flipkart.Vendor)
	assert.Equal(t, 1099.0, flipkart.Subtotal)

	assert.Equal(t, 2697.0+1099.0, po.Total)
}

func TestBuildOrder_SkipsUnparseablePrice(t *testing.T) {
	items := []Item{
		{ID: "i1", Row: catalog.ProductRow{ID: "prod_a", Title: "No price", Price: "call us", Source: "amazon"}, Quantity: 1, Status: StatusRecommended},
		{ID: "i2", Row: mouse(), Quantity: 1, Status: StatusRecommended},
	}

	po := BuildOrder(context.Background(), items, nil)
	require.NotNil(t, po)
	require.Len(t, po.Groups, 1)
	require.Len(t, po.Groups[0].Lines, 1)
	assert.Equal(t, "prod_mouse", po.Groups[0].Lines[0].ProductID)
}

func TestBuildOrder_NilWhenNothingEligible(t *testing.T) {
	assert.Nil(t, BuildOrder(context.Background(), nil, nil))

	items := []Item{
		{ID: "i1", Row: mouse(), Quantity: 1, Status: StatusInCart},
		{ID: "i2", Row: keyboard(), Quantity: 1, Status: StatusRejected},
	}
	assert.Nil(t, BuildOrder(context.Background(), items, nil))
}

func TestOrderNumbersAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		po := BuildOrder(context.Background(), []Item{{ID: "i", Row: mouse(), Quantity: 1, Status: StatusRecommended}}, nil)
		require.NotNil(t, po)
		assert.False(t, seen[po.OrderNumber], "duplicate order number %s", po.OrderNumber)
		seen[po.OrderNumber] = true
	}
}
