package fieldapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Submission is the typed envelope around one raw form submission. All
// extraction happens once here, at the boundary, instead of deferred
// lookups into the payload.
type Submission struct {
	UUID           string
	FormID         int64
	XFormIDString  string
	SubmissionTime time.Time
	Raw            json.RawMessage

	fields map[string]json.RawMessage
}

// DeviceBindingSubmission is a user-device binding form submission.
type DeviceBindingSubmission struct {
	Submission
	UserCode string
	DeviceID string
}

// PackageScanSubmission is a package tracking form submission.
type PackageScanSubmission struct {
	Submission
	Latitude        *float64
	Longitude       *float64
	Altitude        *float64
	Accuracy        *float64
	QRCodes         []string
	CurrentLocation string
}

func (s *Submission) stringField(key string) string {
	raw, ok := s.fields[key]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

// parseSubmissionTime handles both the naive layout (assumed UTC) and
// timestamps that carry an explicit offset.
func parseSubmissionTime(value string) (time.Time, error) {
	if t, err := time.ParseInLocation(timestampFormat, value, time.UTC); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

// ParseSubmission extracts the envelope fields from one raw submission.
func ParseSubmission(formID int64, raw json.RawMessage) (Submission, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Submission{}, fmt.Errorf("submission is not a JSON object: %w", err)
	}
	s := Submission{FormID: formID, Raw: raw, fields: fields}
	s.UUID = s.stringField("_uuid")
	s.XFormIDString = s.stringField("_xform_id_string")
	if s.UUID == "" {
		return Submission{}, fmt.Errorf("submission has no _uuid")
	}
	ts := s.stringField("_submission_time")
	if ts == "" {
		return Submission{}, fmt.Errorf("submission %s has no _submission_time", s.UUID)
	}
	t, err := parseSubmissionTime(ts)
	if err != nil {
		return Submission{}, fmt.Errorf("submission %s has bad _submission_time %q: %w", s.UUID, ts, err)
	}
	s.SubmissionTime = t
	return s, nil
}

// ParseDeviceBinding extracts a device binding submission.
func ParseDeviceBinding(formID int64, raw json.RawMessage) (DeviceBindingSubmission, error) {
	base, err := ParseSubmission(formID, raw)
	if err != nil {
		return DeviceBindingSubmission{}, err
	}
	return DeviceBindingSubmission{
		Submission: base,
		UserCode:   base.stringField("qr_code"),
		DeviceID:   base.stringField("deviceid"),
	}, nil
}

// ParsePackageScan extracts a package scan submission, including the GPS
// tuple and the QR codes in either of the two historical payload shapes.
func ParsePackageScan(formID int64, raw json.RawMessage) (PackageScanSubmission, error) {
	base, err := ParseSubmission(formID, raw)
	if err != nil {
		return PackageScanSubmission{}, err
	}
	s := PackageScanSubmission{
		Submission:      base,
		CurrentLocation: base.stringField("current_location"),
	}
	s.Latitude, s.Longitude, s.Altitude, s.Accuracy = parseGPS(base.stringField("gps"))
	s.QRCodes = parseQRCodes(&base)
	return s, nil
}

// parseGPS splits the space-delimited "lat lng altitude accuracy" tuple.
// Missing or malformed elements come back nil rather than failing the
// whole submission.
func parseGPS(gps string) (lat, lng, altitude, accuracy *float64) {
	if gps == "" {
		return nil, nil, nil, nil
	}
	parts := strings.Split(gps, " ")
	at := func(i int) *float64 {
		if i >= len(parts) {
			return nil
		}
		var v float64
		if _, err := fmt.Sscanf(parts[i], "%g", &v); err != nil {
			return nil
		}
		return &v
	}
	return at(0), at(1), at(2), at(3)
}

// parseQRCodes returns the deduplicated package QR codes. Newer forms put a
// JSON-encoded list of objects under "package" with "package/qr_code" keys;
// older ones have a single flat "qr_code" field.
func parseQRCodes(s *Submission) []string {
	seen := make(map[string]struct{})
	var codes []string
	add := func(code string) {
		if code == "" {
			return
		}
		if _, dup := seen[code]; dup {
			return
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	if pkgList := s.stringField("package"); pkgList != "" {
		var entries []map[string]string
		if err := json.Unmarshal([]byte(pkgList), &entries); err == nil {
			for _, entry := range entries {
				add(entry["package/qr_code"])
			}
			return codes
		}
	}
	add(s.stringField("qr_code"))
	return codes
}

// StatusName is the status prefix of the current location code, the part
// before the first hyphen.
func (s *PackageScanSubmission) StatusName() string {
	return strings.SplitN(s.CurrentLocation, "-", 2)[0]
}

// FormDefinition is the subset of an XLSForm definition needed for label
// resolution.
type FormDefinition struct {
	IDString string                  `json:"id_string"`
	Choices  map[string][]FormChoice `json:"choices"`
}

// Empty reports whether the platform returned a definition with no
// content, which is what an unknown or misconfigured form ID yields.
func (d *FormDefinition) Empty() bool {
	return d.IDString == "" && len(d.Choices) == 0
}

// FormChoice is one entry in a choice list.
type FormChoice struct {
	Name  string            `json:"name"`
	Label map[string]string `json:"label"`
}

// ResolveScanLabel finds the human-readable label for a current location
// code in the form definition's location_list choices. The lookup key is
// the part after the first hyphen when present, otherwise the whole code;
// the first choice whose name contains the key wins. No match resolves to
// the empty string.
func ResolveScanLabel(def *FormDefinition, currentLocation string) string {
	parts := strings.SplitN(currentLocation, "-", 2)
	key := parts[0]
	if len(parts) == 2 {
		key = parts[1]
	}
	for _, choice := range def.Choices["location_list"] {
		if strings.Contains(choice.Name, key) {
			return choice.Label["English"]
		}
	}
	return ""
}
