package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaytrack/relaytrack/internal/fieldapi"
	"github.com/relaytrack/relaytrack/internal/shipments"
)

// SubmissionsAPI fetches submissions from the survey platform.
type SubmissionsAPI interface {
	GetFormSubmissions(ctx context.Context, formID int64, since time.Time) ([]json.RawMessage, error)
}

// Definitions resolves form definitions, normally through the redis cache.
type Definitions interface {
	Definition(ctx context.Context, formID int64) (*fieldapi.FormDefinition, error)
}

// ScanApplier pushes one parsed scan into the shipment domain.
type ScanApplier interface {
	ApplyScan(ctx context.Context, in shipments.ScanInput) error
}

// DeviceBinder reassigns field devices to users by user code.
type DeviceBinder interface {
	UserCodeExists(ctx context.Context, code string) (bool, error)
	ReassignDevice(ctx context.Context, userCode, deviceID string) error
}

// Pipeline owns the two pollers and their shared state. The bad-form-ID
// set lives on the instance, not in a package variable, so tests can reset
// it and two pipelines never interfere.
type Pipeline struct {
	api         SubmissionsAPI
	definitions Definitions
	store       SubmissionStore
	checkpoints CheckpointStore
	scans       ScanApplier
	devices     DeviceBinder
	logger      *slog.Logger

	mu         sync.Mutex
	badFormIDs map[int64]struct{}
}

func NewPipeline(api SubmissionsAPI, definitions Definitions, store SubmissionStore,
	checkpoints CheckpointStore, scans ScanApplier, devices DeviceBinder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		api:         api,
		definitions: definitions,
		store:       store,
		checkpoints: checkpoints,
		scans:       scans,
		devices:     devices,
		logger:      logger,
		badFormIDs:  make(map[int64]struct{}),
	}
}

// ResetBadFormIDs clears the memorized failing form IDs.
func (p *Pipeline) ResetBadFormIDs() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.badFormIDs = make(map[int64]struct{})
}

func (p *Pipeline) isBadForm(formID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, bad := p.badFormIDs[formID]
	return bad
}

func (p *Pipeline) markBadForm(formID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.badFormIDs[formID] = struct{}{}
}

// formDefinition fetches the definition. Only an empty definition marks
// the form ID bad: that means the ID does not identify a form, which no
// amount of retrying will cure until the configuration changes and the
// process restarts (or a test resets the set). Fetch errors are treated
// as transient and abort just the current run.
func (p *Pipeline) formDefinition(ctx context.Context, formID int64) (*fieldapi.FormDefinition, bool) {
	def, err := p.definitions.Definition(ctx, formID)
	if err != nil {
		p.logger.Error("fetch form definition", "form_id", formID, "error", err)
		return nil, false
	}
	if def == nil || def.Empty() {
		p.logger.Error("bad form ID", "form_id", formID)
		p.markBadForm(formID)
		return nil, false
	}
	return def, true
}

// PollPackageScans fetches new package tracking submissions and applies
// them. All failures are logged and swallowed; the scheduler must never
// see a panic or an error from a routine data problem.
func (p *Pipeline) PollPackageScans(ctx context.Context, formID int64) {
	if p.isBadForm(formID) {
		return
	}
	def, ok := p.formDefinition(ctx, formID)
	if !ok {
		return
	}

	var since time.Time
	mostRecent, err := p.store.MostRecentTime(ctx, formID)
	if err != nil {
		p.logger.Error("read most recent submission time", "form_id", formID, "error", err)
		return
	}
	if mostRecent != nil {
		since = *mostRecent
	}

	raws, err := p.api.GetFormSubmissions(ctx, formID, since)
	if err != nil {
		p.logger.Error("fetch package scan submissions", "form_id", formID, "error", err)
		return
	}

	subs := make([]fieldapi.PackageScanSubmission, 0, len(raws))
	for _, raw := range raws {
		sub, err := fieldapi.ParsePackageScan(formID, raw)
		if err != nil {
			p.logger.Error("unparseable package scan submission", "form_id", formID, "error", err)
			continue
		}
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].SubmissionTime.Before(subs[j].SubmissionTime)
	})

	for i := range subs {
		p.processPackageScan(ctx, def, &subs[i])
	}
}

func (p *Pipeline) processPackageScan(ctx context.Context, def *fieldapi.FormDefinition, sub *fieldapi.PackageScanSubmission) {
	if _, err := uuid.Parse(sub.UUID); err != nil {
		p.logger.Error("submission with malformed uuid not imported", "uuid", sub.UUID)
		return
	}
	created, err := p.store.Insert(ctx, &FormSubmission{
		FormID:         sub.FormID,
		UUID:           sub.UUID,
		Data:           sub.Raw,
		SubmissionTime: sub.SubmissionTime,
	})
	if err != nil {
		p.logger.Error("store form submission", "uuid", sub.UUID, "error", err)
		return
	}
	if !created {
		return
	}

	label := fieldapi.ResolveScanLabel(def, sub.CurrentLocation)
	for _, code := range sub.QRCodes {
		err := p.scans.ApplyScan(ctx, shipments.ScanInput{
			Code:        code,
			When:        sub.SubmissionTime,
			Latitude:    sub.Latitude,
			Longitude:   sub.Longitude,
			Altitude:    sub.Altitude,
			Accuracy:    sub.Accuracy,
			StatusName:  sub.StatusName(),
			StatusLabel: label,
		})
		switch {
		case errors.Is(err, shipments.ErrUnknownStatusName):
			p.logger.Error("submission has invalid package status",
				"form_id", sub.FormID, "status", sub.StatusName())
		case err != nil:
			// One bad code must not sink the rest of the batch.
			p.logger.Error("apply package scan", "code", code, "error", err)
		}
	}
}

// PollDeviceBindings fetches new device verification submissions and
// reassigns devices. The watermark advances to the max submission time
// seen, valid or not, and is saved even when a later submission fails.
func (p *Pipeline) PollDeviceBindings(ctx context.Context, formID int64) {
	if p.isBadForm(formID) {
		return
	}
	if _, ok := p.formDefinition(ctx, formID); !ok {
		return
	}

	watermark, err := p.checkpoints.Get(ctx, formID)
	if err != nil {
		p.logger.Error("read device form watermark", "form_id", formID, "error", err)
		return
	}
	defer func() {
		if err := p.checkpoints.Save(ctx, formID, watermark); err != nil {
			p.logger.Error("save device form watermark", "form_id", formID, "error", err)
		}
	}()

	raws, err := p.api.GetFormSubmissions(ctx, formID, watermark)
	if err != nil {
		var ce *fieldapi.ClientError
		if errors.As(err, &ce) && ce.StatusCode == http.StatusNotFound {
			p.logger.Error("device form not found", "form_id", formID)
			return
		}
		p.logger.Error("fetch device binding submissions", "form_id", formID, "error", err)
		return
	}

	subs := make([]fieldapi.DeviceBindingSubmission, 0, len(raws))
	for _, raw := range raws {
		sub, err := fieldapi.ParseDeviceBinding(formID, raw)
		if err != nil {
			p.logger.Error("unparseable device binding submission", "form_id", formID, "error", err)
			continue
		}
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].SubmissionTime.Before(subs[j].SubmissionTime)
	})

	for i := range subs {
		sub := &subs[i]
		if sub.SubmissionTime.After(watermark) {
			watermark = sub.SubmissionTime
		}
		p.processDeviceBinding(ctx, sub)
	}
}

func (p *Pipeline) processDeviceBinding(ctx context.Context, sub *fieldapi.DeviceBindingSubmission) {
	if _, err := uuid.Parse(sub.UUID); err != nil {
		p.logger.Error("submission with malformed uuid not imported", "uuid", sub.UUID)
		return
	}
	valid, err := p.devices.UserCodeExists(ctx, sub.UserCode)
	if err != nil {
		p.logger.Error("look up user code", "code", sub.UserCode, "error", err)
		return
	}
	if !valid {
		// Invalid codes leave no FormSubmission behind, so a later scan with
		// the same UUID can still be imported once the user exists.
		p.logger.Error("submission has invalid user QR code",
			"form", sub.XFormIDString, "code", sub.UserCode)
		return
	}
	created, err := p.store.Insert(ctx, &FormSubmission{
		FormID:         sub.FormID,
		UUID:           sub.UUID,
		Data:           sub.Raw,
		SubmissionTime: sub.SubmissionTime,
	})
	if err != nil {
		p.logger.Error("store form submission", "uuid", sub.UUID, "error", err)
		return
	}
	if !created {
		return
	}
	if err := p.devices.ReassignDevice(ctx, sub.UserCode, sub.DeviceID); err != nil {
		p.logger.Error("reassign device", "code", sub.UserCode, "error", err)
	}
}
