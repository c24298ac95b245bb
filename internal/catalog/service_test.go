package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaytrack/relaytrack/internal/shared"
)

// fakeRepo is an in-memory Repository. Only the methods the tests reach are
// implemented; the embedded interface panics on anything else.
type fakeRepo struct {
	Repository
	donors map[int64]Donor
	items  map[int64]Item
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		donors: make(map[int64]Donor),
		items:  make(map[int64]Item),
	}
}

func (f *fakeRepo) CreateDonor(_ context.Context, d Donor) (Donor, error) {
	for _, existing := range f.donors {
		if existing.Name == d.Name {
			return Donor{}, shared.ErrConflict
		}
	}
	f.nextID++
	d.ID = f.nextID
	f.donors[d.ID] = d
	return d, nil
}

func (f *fakeRepo) GetDonor(_ context.Context, id int64) (Donor, error) {
	d, ok := f.donors[id]
	if !ok {
		return Donor{}, shared.ErrNotFound
	}
	return d, nil
}

func (f *fakeRepo) CreateItem(_ context.Context, it Item) (Item, error) {
	f.nextID++
	it.ID = f.nextID
	f.items[it.ID] = it
	return it, nil
}

func (f *fakeRepo) GetItem(_ context.Context, id int64) (Item, error) {
	it, ok := f.items[id]
	if !ok {
		return Item{}, shared.ErrNotFound
	}
	return it, nil
}

func TestCreateDonorRequiresName(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.CreateDonor(context.Background(), Donor{Name: "   "})
	require.Error(t, err)

	d, err := svc.CreateDonor(context.Background(), Donor{Name: "Global Relief"})
	require.NoError(t, err)
	require.NotZero(t, d.ID)
}

func TestCreateDonorDuplicateNameConflicts(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.CreateDonor(context.Background(), Donor{Name: "Global Relief"})
	require.NoError(t, err)

	_, err = svc.CreateDonor(context.Background(), Donor{Name: "Global Relief"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestGetDonorNotFound(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.GetDonor(context.Background(), 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestItemValidation(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, Item{Description: ""})
	require.Error(t, err)

	_, err = svc.CreateItem(ctx, Item{Description: "Blanket", PriceUSD: -1})
	require.Error(t, err)

	_, err = svc.CreateItem(ctx, Item{Description: "Blanket", Weight: -0.5})
	require.Error(t, err)

	it, err := svc.CreateItem(ctx, Item{Description: "Blanket", Unit: "pcs", PriceUSD: 4.5, Weight: 1.2})
	require.NoError(t, err)
	require.NotZero(t, it.ID)

	got, err := svc.GetItem(ctx, it.ID)
	require.NoError(t, err)
	require.Equal(t, "Blanket", got.Description)
}
