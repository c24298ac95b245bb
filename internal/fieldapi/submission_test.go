package fieldapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseSubmissionEnvelope(t *testing.T) {
	raw := json.RawMessage(`{
		"_uuid": "c3a9e2d4-8f1b-4e6a-9c2d-1a2b3c4d5e6f",
		"_xform_id_string": "package_tracking",
		"_submission_time": "2015-03-04T10:20:30",
		"deviceid": "359001"
	}`)
	s, err := ParseSubmission(42, raw)
	require.NoError(t, err)
	require.Equal(t, "c3a9e2d4-8f1b-4e6a-9c2d-1a2b3c4d5e6f", s.UUID)
	require.Equal(t, int64(42), s.FormID)
	require.Equal(t, "package_tracking", s.XFormIDString)
	require.Equal(t, time.Date(2015, 3, 4, 10, 20, 30, 0, time.UTC), s.SubmissionTime)
}

func TestParseSubmissionRejectsMissingFields(t *testing.T) {
	_, err := ParseSubmission(1, json.RawMessage(`{"_submission_time": "2015-03-04T10:20:30"}`))
	require.Error(t, err)

	_, err = ParseSubmission(1, json.RawMessage(`{"_uuid": "x"}`))
	require.Error(t, err)

	_, err = ParseSubmission(1, json.RawMessage(`[1, 2]`))
	require.Error(t, err)
}

func TestParsePackageScanGPS(t *testing.T) {
	raw := json.RawMessage(`{
		"_uuid": "u1",
		"_submission_time": "2015-03-04T10:20:30",
		"gps": "31.1 35.5 720.0 4.8",
		"current_location": "STATUS_IN_TRANSIT-Zero_Point"
	}`)
	s, err := ParsePackageScan(9, raw)
	require.NoError(t, err)
	require.NotNil(t, s.Latitude)
	require.Equal(t, 31.1, *s.Latitude)
	require.Equal(t, 35.5, *s.Longitude)
	require.Equal(t, 720.0, *s.Altitude)
	require.Equal(t, 4.8, *s.Accuracy)
	require.Equal(t, "STATUS_IN_TRANSIT", s.StatusName())
}

func TestParsePackageScanPartialGPS(t *testing.T) {
	raw := json.RawMessage(`{
		"_uuid": "u2",
		"_submission_time": "2015-03-04T10:20:30",
		"gps": "31.1 35.5"
	}`)
	s, err := ParsePackageScan(9, raw)
	require.NoError(t, err)
	require.NotNil(t, s.Latitude)
	require.NotNil(t, s.Longitude)
	require.Nil(t, s.Altitude)
	require.Nil(t, s.Accuracy)
}

func TestParsePackageScanMissingGPS(t *testing.T) {
	raw := json.RawMessage(`{"_uuid": "u3", "_submission_time": "2015-03-04T10:20:30"}`)
	s, err := ParsePackageScan(9, raw)
	require.NoError(t, err)
	require.Nil(t, s.Latitude)
	require.Nil(t, s.Longitude)
}

func TestQRCodesFromPackageList(t *testing.T) {
	raw := json.RawMessage(`{
		"_uuid": "u4",
		"_submission_time": "2015-03-04T10:20:30",
		"package": "[{\"package/qr_code\": \"/RT12.1\"}, {\"package/qr_code\": \"/RT12.2\"}, {\"package/qr_code\": \"/RT12.1\"}, {\"other\": \"x\"}]"
	}`)
	s, err := ParsePackageScan(9, raw)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"/RT12.1", "/RT12.2"}, s.QRCodes)
}

func TestQRCodesFromFlatField(t *testing.T) {
	raw := json.RawMessage(`{
		"_uuid": "u5",
		"_submission_time": "2015-03-04T10:20:30",
		"qr_code": "/RT7.3"
	}`)
	s, err := ParsePackageScan(9, raw)
	require.NoError(t, err)
	require.Equal(t, []string{"/RT7.3"}, s.QRCodes)
}

func locationListDefinition() *FormDefinition {
	return &FormDefinition{
		Choices: map[string][]FormChoice{
			"location_list": {
				{Name: "STATUS_IN_TRANSIT-Zero_Point", Label: map[string]string{"English": "Zero Point"}},
				{Name: "STATUS_IN_TRANSIT-Partner_Warehouse", Label: map[string]string{"English": "Partner Warehouse"}},
				{Name: "STATUS_RECEIVED", Label: map[string]string{"English": "Distribution Point"}},
			},
		},
	}
}

func TestResolveScanLabelBySuffix(t *testing.T) {
	def := locationListDefinition()
	require.Equal(t, "Zero Point", ResolveScanLabel(def, "STATUS_IN_TRANSIT-Zero_Point"))
	require.Equal(t, "Partner Warehouse", ResolveScanLabel(def, "STATUS_IN_TRANSIT-Partner_Warehouse"))
}

func TestResolveScanLabelWholeCodeFallback(t *testing.T) {
	def := locationListDefinition()
	require.Equal(t, "Distribution Point", ResolveScanLabel(def, "STATUS_RECEIVED"))
}

func TestResolveScanLabelNoMatch(t *testing.T) {
	def := locationListDefinition()
	require.Equal(t, "", ResolveScanLabel(def, "STATUS_LOST-Somewhere"))
}
