package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediabridge/mediabridge/common/models"
)

func testBlob(data []byte) models.MediaBlob {
	return models.MediaBlob{
		ID:     uuid.NewString(),
		Data:   data,
		SHA256: models.HashBytes(data),
		Size:   int64(len(data)),
		Mime:   "application/octet-stream",
	}
}

func TestClientFrameRoundTrip(t *testing.T) {
	limit, offset := 10, 5
	frames := []ClientFrame{
		&Heartbeat{},
		&ListBlobs{},
		&ListBlobs{Limit: &limit, Offset: &offset},
		&UploadBlob{Blob: testBlob([]byte("round trip payload"))},
		&GetBlob{ID: uuid.NewString()},
		&GetBlobData{ID: uuid.NewString()},
	}

	for _, f := range frames {
		t.Run(f.FrameType(), func(t *testing.T) {
			raw, err := EncodeClient(f)
			require.NoError(t, err)

			parsed, err := ParseClient(raw)
			require.NoError(t, err)
			assert.Equal(t, f, parsed)
		})
	}
}

func TestServerFrameRoundTrip(t *testing.T) {
	blob := testBlob([]byte("server payload"))
	frames := []ServerFrame{
		&Welcome{Message: "connected", ConnectionID: "conn_" + uuid.NewString()},
		&HeartbeatAck{},
		&BlobList{Blobs: []models.MediaBlob{blob}, TotalCount: 1},
		&BlobList{TotalCount: 0},
		&BlobMeta{Blob: blob},
		&BlobData{ID: blob.ID, Data: blob.Data, Mime: blob.Mime, Size: blob.Size},
		&Error{Message: "boom", Code: "not_found"},
		&PresenceUpdate{Connected: true, UserCount: 3},
	}

	for _, f := range frames {
		t.Run(f.FrameType(), func(t *testing.T) {
			raw, err := EncodeServer(f)
			require.NoError(t, err)

			parsed, err := ParseServer(raw)
			require.NoError(t, err)
			assert.Equal(t, f, parsed)
		})
	}
}

func TestUnitFramesOmitDataKey(t *testing.T) {
	raw, err := EncodeClient(&Heartbeat{})
	require.NoError(t, err)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Contains(t, env, "type")
	assert.NotContains(t, env, "data")

	raw, err = EncodeServer(&HeartbeatAck{})
	require.NoError(t, err)

	env = nil
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.NotContains(t, env, "data")
}

func TestParseRejectsMalformedInput(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"not json", `{{{`},
		{"empty object", `{}`},
		{"missing type", `{"data": {}}`},
		{"unknown type", `{"type": "SelfDestruct", "data": {}}`},
		{"bad payload shape", `{"type": "GetBlob", "data": {"id": 42}}`},
		{"non-uuid id", `{"type": "GetBlob", "data": {"id": "not-a-uuid"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := ParseClient([]byte(tc.input))
			assert.Nil(t, frame)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Reason)
		})
	}
}

func TestParseServerRejectsUnknownType(t *testing.T) {
	frame, err := ParseServer([]byte(`{"type": "Telemetry", "data": {"cpu": 93}}`))
	assert.Nil(t, frame)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "Telemetry")
}

func TestEncodeClientRejectsInvalidFrames(t *testing.T) {
	neg := -1

	t.Run("negative list limit", func(t *testing.T) {
		_, err := EncodeClient(&ListBlobs{Limit: &neg})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("upload without inline data", func(t *testing.T) {
		blob := testBlob([]byte("x"))
		blob.Data = nil
		_, err := EncodeClient(&UploadBlob{Blob: blob})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("upload with corrupted digest", func(t *testing.T) {
		blob := testBlob([]byte("payload"))
		blob.SHA256 = models.HashBytes([]byte("other"))
		_, err := EncodeClient(&UploadBlob{Blob: blob})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestEncodeServerRejectsInvalidFrames(t *testing.T) {
	t.Run("welcome without connection id", func(t *testing.T) {
		_, err := EncodeServer(&Welcome{Message: "hi"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("blob data with wrong size", func(t *testing.T) {
		_, err := EncodeServer(&BlobData{ID: uuid.NewString(), Data: []byte("abc"), Size: 99})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("error without message", func(t *testing.T) {
		_, err := EncodeServer(&Error{Code: "oops"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("list with malformed digest", func(t *testing.T) {
		_, err := EncodeServer(&BlobList{
			Blobs:      []models.MediaBlob{{ID: uuid.NewString(), SHA256: "nope"}},
			TotalCount: 1,
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestParseIsTotalOverArbitraryBytes(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		[]byte("\x00\x01\x02"),
		[]byte(`"just a string"`),
		[]byte(`[1,2,3]`),
		[]byte(`{"type": 7}`),
	}

	for _, in := range inputs {
		frame, err := ParseClient(in)
		assert.Nil(t, frame)
		assert.Error(t, err)

		sframe, err := ParseServer(in)
		assert.Nil(t, sframe)
		assert.Error(t, err)
	}
}
