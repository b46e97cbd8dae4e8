package derive

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbase/internal/db"
	"gridbase/internal/db/repository"
	"gridbase/internal/domain"
)

type engineFixture struct {
	engine  *Engine
	records domain.RecordRepository

	orders   *domain.Table
	products *domain.Table

	widget *domain.Record
	gadget *domain.Record
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)
	ctx := context.Background()

	bases := repository.NewBaseRepo(writeDB)
	tables := repository.NewTableRepo(writeDB)
	records := repository.NewRecordRepo(writeDB)

	base, err := bases.Create(ctx, &domain.Base{Name: "Shop", CreatedBy: "u1"})
	require.NoError(t, err)
	products, err := tables.Create(ctx, &domain.Table{BaseID: base.ID, Name: "Products"})
	require.NoError(t, err)
	orders, err := tables.Create(ctx, &domain.Table{BaseID: base.ID, Name: "Orders"})
	require.NoError(t, err)

	widget, err := records.Create(ctx, &domain.Record{
		TableID: products.ID,
		Fields:  map[string]any{"name": "Widget", "price": 10.0},
	})
	require.NoError(t, err)
	gadget, err := records.Create(ctx, &domain.Record{
		TableID: products.ID,
		Fields:  map[string]any{"name": "Gadget", "price": 25.0},
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &engineFixture{
		engine:   NewEngine(records, logger),
		records:  records,
		orders:   orders,
		products: products,
		widget:   widget,
		gadget:   gadget,
	}
}

func orderColumns(productsTableID string) []domain.Column {
	return []domain.Column{
		{Name: "qty", DataType: domain.TypeNumber},
		{Name: "product", DataType: domain.TypeLinkedTable,
			Options: domain.ColumnOptions{LinkedTableID: productsTableID}},
		{Name: "product_name", DataType: domain.TypeLookup,
			Options: domain.ColumnOptions{LinkColumn: "product", TargetColumn: "name"}},
	}
}

func TestDeriveLookupBatch(t *testing.T) {
	f := newEngineFixture(t)
	batch := []domain.Record{
		{ID: "o1", Fields: map[string]any{"qty": 2.0, "product": f.widget.ID}},
		{ID: "o2", Fields: map[string]any{"qty": 1.0, "product": f.gadget.ID}},
		{ID: "o3", Fields: map[string]any{"qty": 5.0}},
	}

	derived, err := f.engine.Derive(context.Background(), orderColumns(f.products.ID), batch)

	require.NoError(t, err)
	require.Len(t, derived, 3)
	assert.Equal(t, domain.LookupValue{Value: "Widget", RecordID: f.widget.ID}, derived[0]["product_name"])
	assert.Equal(t, domain.LookupValue{Value: "Gadget", RecordID: f.gadget.ID}, derived[1]["product_name"])
	assert.Nil(t, derived[2]["product_name"], "unlinked rows derive nil")
}

func TestDeriveLookupMultiLink(t *testing.T) {
	f := newEngineFixture(t)
	batch := []domain.Record{
		{ID: "o1", Fields: map[string]any{"product": []any{f.widget.ID, f.gadget.ID}}},
	}

	derived, err := f.engine.Derive(context.Background(), orderColumns(f.products.ID), batch)

	require.NoError(t, err)
	assert.Equal(t, []domain.LookupValue{
		{Value: "Widget", RecordID: f.widget.ID},
		{Value: "Gadget", RecordID: f.gadget.ID},
	}, derived[0]["product_name"])
}

func TestDeriveLookupDanglingLinkDegradesToNil(t *testing.T) {
	f := newEngineFixture(t)
	batch := []domain.Record{
		{ID: "o1", Fields: map[string]any{"product": "no-such-record"}},
	}

	derived, err := f.engine.Derive(context.Background(), orderColumns(f.products.ID), batch)

	require.NoError(t, err)
	assert.Nil(t, derived[0]["product_name"])
}

func TestDeriveLookupMisconfiguredColumnDegradesToNil(t *testing.T) {
	f := newEngineFixture(t)
	columns := []domain.Column{
		{Name: "broken", DataType: domain.TypeLookup,
			Options: domain.ColumnOptions{LinkColumn: "nope", TargetColumn: "name"}},
	}
	batch := []domain.Record{{ID: "o1", Fields: map[string]any{"qty": 1.0}}}

	derived, err := f.engine.Derive(context.Background(), columns, batch)

	require.NoError(t, err)
	assert.Nil(t, derived[0]["broken"])
}

func TestDeriveFormulaSeesLookupResults(t *testing.T) {
	f := newEngineFixture(t)
	columns := append(orderColumns(f.products.ID), domain.Column{
		Name: "label", DataType: domain.TypeFormula,
		Options: domain.ColumnOptions{
			Expression: `product_name + " x" + str(int(qty))`,
			ResultType: domain.TypeText,
		},
	})
	batch := []domain.Record{
		{ID: "o1", Fields: map[string]any{"qty": 2.0, "product": f.widget.ID}},
	}

	derived, err := f.engine.Derive(context.Background(), columns, batch)

	require.NoError(t, err)
	assert.Equal(t, "Widget x2", derived[0]["label"])
}

func TestDerivePreservesOrderAcrossParallelism(t *testing.T) {
	f := newEngineFixture(t)
	columns := []domain.Column{
		{Name: "n", DataType: domain.TypeNumber},
		{Name: "doubled", DataType: domain.TypeFormula,
			Options: domain.ColumnOptions{Expression: "n * 2", ResultType: domain.TypeNumber}},
	}
	batch := make([]domain.Record, 50)
	for i := range batch {
		batch[i] = domain.Record{ID: domain.NewID(), Fields: map[string]any{"n": float64(i)}}
	}

	derived, err := f.engine.Derive(context.Background(), columns, batch)

	require.NoError(t, err)
	for i := range batch {
		assert.Equal(t, float64(i*2), derived[i]["doubled"])
	}
}

func TestDeriveDoesNotMutateInput(t *testing.T) {
	f := newEngineFixture(t)
	columns := []domain.Column{
		{Name: "n", DataType: domain.TypeNumber},
		{Name: "doubled", DataType: domain.TypeFormula,
			Options: domain.ColumnOptions{Expression: "n * 2", ResultType: domain.TypeNumber}},
	}
	batch := []domain.Record{{ID: "o1", Fields: map[string]any{"n": 3.0}}}

	_, err := f.engine.Derive(context.Background(), columns, batch)

	require.NoError(t, err)
	_, present := batch[0].Fields["doubled"]
	assert.False(t, present)
}
