package shipments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseStatusName(t *testing.T) {
	s, ok := ParseStatusName("STATUS_PICKED_UP")
	require.True(t, ok)
	require.Equal(t, StatusPickedUp, s)

	_, ok = ParseStatusName("STATUS_TELEPORTED")
	require.False(t, ok)
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "Ready for pickup", StatusReady.String())
	require.Equal(t, "Status(42)", Status(42).String())
}

func TestShipmentTransitionGuards(t *testing.T) {
	cases := []struct {
		status   Status
		finalize bool
		cancel   bool
		reopen   bool
		lose     bool
	}{
		{StatusInProgress, true, true, false, false},
		{StatusReady, false, true, true, false},
		{StatusPickedUp, false, true, false, true},
		{StatusInTransit, false, true, false, true},
		{StatusReceived, false, false, false, true},
		{StatusOverdue, false, true, false, true},
		{StatusLost, false, false, false, false},
		{StatusCanceled, false, false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.status.String(), func(t *testing.T) {
			sh := &Shipment{ID: 1, Status: tc.status}
			require.Equal(t, tc.finalize, sh.MayFinalize())
			require.Equal(t, tc.cancel, sh.MayCancel())
			require.Equal(t, tc.reopen, sh.MayReopen())
			require.Equal(t, tc.lose, sh.MayLose())
		})
	}

	unsaved := &Shipment{Status: StatusInProgress}
	require.False(t, unsaved.MayFinalize())
	require.False(t, unsaved.MayCancel())
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -3)
	future := now.AddDate(0, 0, 3)

	status := func(s Status) *Status { return &s }

	t.Run("stored status wins for authoritative states", func(t *testing.T) {
		received := now.AddDate(0, 0, -1)
		for _, s := range []Status{StatusCanceled, StatusLost, StatusInProgress} {
			p := &Package{Status: status(s), DateReceived: &received}
			require.Equal(t, s, p.EffectiveStatus(nil, now))
		}
	})

	t.Run("date markers decide otherwise", func(t *testing.T) {
		p := &Package{Status: status(StatusInTransit)}
		require.Equal(t, StatusReady, p.EffectiveStatus(nil, now))

		p.DatePickedUp = &past
		require.Equal(t, StatusPickedUp, p.EffectiveStatus(nil, now))

		p.DateInTransit = &past
		require.Equal(t, StatusInTransit, p.EffectiveStatus(nil, now))

		p.DateReceived = &past
		require.Equal(t, StatusReceived, p.EffectiveStatus(nil, now))
	})

	t.Run("in transit past expected date is overdue", func(t *testing.T) {
		p := &Package{DateInTransit: &past}
		require.Equal(t, StatusOverdue, p.EffectiveStatus(&past, now))
		require.Equal(t, StatusInTransit, p.EffectiveStatus(&future, now))
	})

	t.Run("received is never overdue", func(t *testing.T) {
		p := &Package{DateInTransit: &past, DateReceived: &past}
		require.Equal(t, StatusReceived, p.EffectiveStatus(&past, now))
	})

	t.Run("no stored status and no markers is ready", func(t *testing.T) {
		p := &Package{}
		require.Equal(t, StatusReady, p.EffectiveStatus(nil, now))
	})
}

func TestVerboseStatus(t *testing.T) {
	require.Equal(t, "In transit (33%)", VerboseStatus(StatusInTransit, 1, 3))
	require.Equal(t, "Received (66%)", VerboseStatus(StatusReceived, 2, 3))

	// No parenthetical at 100%, without packages, or for other states.
	require.Equal(t, "Received", VerboseStatus(StatusReceived, 3, 3))
	require.Equal(t, "In transit", VerboseStatus(StatusInTransit, 0, 0))
	require.Equal(t, "Picked up", VerboseStatus(StatusPickedUp, 1, 3))
	require.Equal(t, "In progress", VerboseStatus(StatusInProgress, 0, 5))
}

func TestPackageCode(t *testing.T) {
	require.Equal(t, "/RT27.3", PackageCode("/RT", 27, 3))
}

func TestDisplayName(t *testing.T) {
	sh := &Shipment{
		Description:  "Winter kits",
		PartnerName:  "ACME",
		StoreRelease: "SR-9",
		ShipmentDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.Equal(t, "Winter kits", sh.DisplayName())

	sh.Description = "  "
	require.Equal(t, "ACME-SR-9-2024-02-01", sh.DisplayName())
}

func TestDeliveryDays(t *testing.T) {
	date := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	expected := date.AddDate(0, 0, 14)
	sh := &Shipment{ShipmentDate: date, DateExpected: &expected}
	require.Equal(t, 14, sh.DeliveryDays())

	sh.DateExpected = nil
	require.Equal(t, 0, sh.DeliveryDays())
}

func TestExtendedPrices(t *testing.T) {
	it := &PackageItem{PriceUSD: 2.5, PriceLocal: 10, Quantity: 4}
	require.InDelta(t, 10.0, it.ExtendedPriceUSD(), 1e-9)
	require.InDelta(t, 40.0, it.ExtendedPriceLocal(), 1e-9)
}
