package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaytrack/relaytrack/internal/fieldapi"
	"github.com/relaytrack/relaytrack/internal/shared"
	"github.com/relaytrack/relaytrack/internal/shipments"
)

type fakeAPI struct {
	submissions []json.RawMessage
	err         error
	calls       int
}

func (f *fakeAPI) GetFormSubmissions(_ context.Context, _ int64, _ time.Time) ([]json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.submissions, nil
}

type fakeDefinitions struct {
	def   *fieldapi.FormDefinition
	err   error
	calls int
}

func (f *fakeDefinitions) Definition(_ context.Context, _ int64) (*fieldapi.FormDefinition, error) {
	f.calls++
	return f.def, f.err
}

type fakeStore struct {
	byUUID map[string]*FormSubmission
}

func newFakeStore() *fakeStore {
	return &fakeStore{byUUID: make(map[string]*FormSubmission)}
}

func (f *fakeStore) Insert(_ context.Context, sub *FormSubmission) (bool, error) {
	if _, dup := f.byUUID[sub.UUID]; dup {
		return false, nil
	}
	f.byUUID[sub.UUID] = sub
	return true, nil
}

func (f *fakeStore) MostRecentTime(_ context.Context, formID int64) (*time.Time, error) {
	var most *time.Time
	for _, sub := range f.byUUID {
		if sub.FormID != formID {
			continue
		}
		t := sub.SubmissionTime
		if most == nil || t.After(*most) {
			most = &t
		}
	}
	return most, nil
}

type fakeCheckpoints struct {
	watermarks map[int64]time.Time
	saved      map[int64]time.Time
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{watermarks: make(map[int64]time.Time), saved: make(map[int64]time.Time)}
}

func (f *fakeCheckpoints) Get(_ context.Context, formID int64) (time.Time, error) {
	if ts, ok := f.watermarks[formID]; ok {
		return ts, nil
	}
	f.watermarks[formID] = MinRetrievalTime
	return MinRetrievalTime, nil
}

func (f *fakeCheckpoints) Save(_ context.Context, formID int64, ts time.Time) error {
	f.watermarks[formID] = ts
	f.saved[formID] = ts
	return nil
}

type appliedScan struct {
	code   string
	status string
	when   time.Time
}

type fakeApplier struct {
	applied  []appliedScan
	failCode string
}

func (f *fakeApplier) ApplyScan(_ context.Context, in shipments.ScanInput) error {
	if in.Code == f.failCode {
		return shared.ErrNotFound
	}
	if _, ok := shipments.ParseStatusName(in.StatusName); !ok {
		return fmt.Errorf("%w: %q", shipments.ErrUnknownStatusName, in.StatusName)
	}
	f.applied = append(f.applied, appliedScan{code: in.Code, status: in.StatusName, when: in.When})
	return nil
}

type fakeBinder struct {
	codes    map[string]bool
	rebounds []string
}

func (f *fakeBinder) UserCodeExists(_ context.Context, code string) (bool, error) {
	return f.codes[code], nil
}

func (f *fakeBinder) ReassignDevice(_ context.Context, userCode, deviceID string) error {
	f.rebounds = append(f.rebounds, userCode+":"+deviceID)
	return nil
}

func scanSubmission(uuid, submissionTime, qrCode, location string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"_uuid": %q, "_submission_time": %q, "qr_code": %q, "current_location": %q, "gps": "31.1 35.5 0 5"}`,
		uuid, submissionTime, qrCode, location))
}

func deviceSubmission(uuid, submissionTime, userCode, deviceID string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"_uuid": %q, "_submission_time": %q, "qr_code": %q, "deviceid": %q}`,
		uuid, submissionTime, userCode, deviceID))
}

func testPipeline(api *fakeAPI, defs *fakeDefinitions, store *fakeStore,
	cps *fakeCheckpoints, applier *fakeApplier, binder *fakeBinder) *Pipeline {
	if defs.def == nil && defs.err == nil {
		defs.def = &fieldapi.FormDefinition{Choices: map[string][]fieldapi.FormChoice{
			"location_list": {
				{Name: "STATUS_IN_TRANSIT-Zero_Point", Label: map[string]string{"English": "Zero Point"}},
			},
		}}
	}
	return NewPipeline(api, defs, store, cps, applier, binder, nil)
}

func TestPollPackageScansAppliesInTimestampOrder(t *testing.T) {
	api := &fakeAPI{submissions: []json.RawMessage{
		scanSubmission("6ba7b810-9dad-11d1-80b4-00c04fd430c1", "2015-03-04T11:00:00", "/RT1.2", "STATUS_RECEIVED"),
		scanSubmission("6ba7b810-9dad-11d1-80b4-00c04fd430c0", "2015-03-04T10:00:00", "/RT1.1", "STATUS_IN_TRANSIT-Zero_Point"),
	}}
	applier := &fakeApplier{}
	p := testPipeline(api, &fakeDefinitions{}, newFakeStore(), newFakeCheckpoints(), applier, &fakeBinder{})

	p.PollPackageScans(context.Background(), 42)

	require.Len(t, applier.applied, 2)
	require.Equal(t, "/RT1.1", applier.applied[0].code)
	require.Equal(t, "/RT1.2", applier.applied[1].code)
	require.True(t, applier.applied[0].when.Before(applier.applied[1].when))
}

func TestPollPackageScansIdempotentByUUID(t *testing.T) {
	api := &fakeAPI{submissions: []json.RawMessage{
		scanSubmission("6ba7b810-9dad-11d1-80b4-00c04fd430c0", "2015-03-04T10:00:00", "/RT1.1", "STATUS_RECEIVED"),
	}}
	applier := &fakeApplier{}
	p := testPipeline(api, &fakeDefinitions{}, newFakeStore(), newFakeCheckpoints(), applier, &fakeBinder{})
	ctx := context.Background()

	p.PollPackageScans(ctx, 42)
	p.PollPackageScans(ctx, 42)

	require.Len(t, applier.applied, 1)
}

func TestPollPackageScansSkipsMalformedUUID(t *testing.T) {
	api := &fakeAPI{submissions: []json.RawMessage{
		scanSubmission("not-a-uuid", "2015-03-04T10:00:00", "/RT1.1", "STATUS_RECEIVED"),
	}}
	applier := &fakeApplier{}
	store := newFakeStore()
	p := testPipeline(api, &fakeDefinitions{}, store, newFakeCheckpoints(), applier, &fakeBinder{})

	p.PollPackageScans(context.Background(), 42)

	require.Empty(t, applier.applied)
	require.Empty(t, store.byUUID)
}

func TestPollPackageScansUnknownCodeDoesNotSinkBatch(t *testing.T) {
	raw := json.RawMessage(`{
		"_uuid": "6ba7b810-9dad-11d1-80b4-00c04fd430c0",
		"_submission_time": "2015-03-04T10:00:00",
		"current_location": "STATUS_RECEIVED",
		"package": "[{\"package/qr_code\": \"/RT9.9\"}, {\"package/qr_code\": \"/RT1.1\"}]"
	}`)
	api := &fakeAPI{submissions: []json.RawMessage{raw}}
	applier := &fakeApplier{failCode: "/RT9.9"}
	p := testPipeline(api, &fakeDefinitions{}, newFakeStore(), newFakeCheckpoints(), applier, &fakeBinder{})

	p.PollPackageScans(context.Background(), 42)

	require.Len(t, applier.applied, 1)
	require.Equal(t, "/RT1.1", applier.applied[0].code)
}

func TestEmptyFormDefinitionMemorizedUntilReset(t *testing.T) {
	api := &fakeAPI{}
	defs := &fakeDefinitions{def: &fieldapi.FormDefinition{}}
	p := NewPipeline(api, defs, newFakeStore(), newFakeCheckpoints(), &fakeApplier{}, &fakeBinder{}, nil)
	ctx := context.Background()

	p.PollPackageScans(ctx, 42)
	p.PollPackageScans(ctx, 42)
	require.Equal(t, 1, defs.calls)
	require.Equal(t, 0, api.calls)

	p.ResetBadFormIDs()
	p.PollPackageScans(ctx, 42)
	require.Equal(t, 2, defs.calls)
}

func TestDefinitionFetchErrorRetriedOnNextPoll(t *testing.T) {
	api := &fakeAPI{submissions: []json.RawMessage{
		scanSubmission("6ba7b810-9dad-11d1-80b4-00c04fd430c0", "2015-03-04T10:00:00", "/RT1.1", "STATUS_RECEIVED"),
	}}
	defs := &fakeDefinitions{err: errors.New("dial tcp: connection refused")}
	applier := &fakeApplier{}
	p := NewPipeline(api, defs, newFakeStore(), newFakeCheckpoints(), applier, &fakeBinder{}, nil)
	ctx := context.Background()

	p.PollPackageScans(ctx, 42)
	require.Equal(t, 0, api.calls)
	require.Empty(t, applier.applied)

	// The outage clears before the next schedule fires.
	defs.err = nil
	defs.def = &fieldapi.FormDefinition{IDString: "package_tracking"}
	p.PollPackageScans(ctx, 42)
	require.Equal(t, 2, defs.calls)
	require.Len(t, applier.applied, 1)
}

func TestPollDeviceBindingsReassignsAndAdvancesWatermark(t *testing.T) {
	api := &fakeAPI{submissions: []json.RawMessage{
		deviceSubmission("6ba7b810-9dad-11d1-80b4-00c04fd430c0", "2015-03-04T10:00:00", "W001", "dev-1"),
		deviceSubmission("6ba7b810-9dad-11d1-80b4-00c04fd430c1", "2015-03-05T10:00:00", "ghost", "dev-2"),
	}}
	binder := &fakeBinder{codes: map[string]bool{"W001": true}}
	store := newFakeStore()
	cps := newFakeCheckpoints()
	p := testPipeline(api, &fakeDefinitions{}, store, cps, &fakeApplier{}, binder)

	p.PollDeviceBindings(context.Background(), 77)

	require.Equal(t, []string{"W001:dev-1"}, binder.rebounds)
	// The invalid code leaves no submission behind but still advances the
	// watermark.
	require.Len(t, store.byUUID, 1)
	require.Equal(t, time.Date(2015, 3, 5, 10, 0, 0, 0, time.UTC), cps.saved[77])
}

func TestPollDeviceBindingsFormNotFound(t *testing.T) {
	api := &fakeAPI{err: &fieldapi.ClientError{StatusCode: 404, Message: "not found"}}
	cps := newFakeCheckpoints()
	p := testPipeline(api, &fakeDefinitions{}, newFakeStore(), cps, &fakeApplier{}, &fakeBinder{})

	p.PollDeviceBindings(context.Background(), 77)

	// Watermark row was created at the default and saved unchanged.
	require.Equal(t, MinRetrievalTime, cps.saved[77])
}

func TestPollPackageScansSwallowsAPIErrors(t *testing.T) {
	api := &fakeAPI{err: errors.New("connection refused")}
	p := testPipeline(api, &fakeDefinitions{}, newFakeStore(), newFakeCheckpoints(), &fakeApplier{}, &fakeBinder{})

	require.NotPanics(t, func() {
		p.PollPackageScans(context.Background(), 42)
	})
}
