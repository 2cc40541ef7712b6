package wire

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "register",
			msg:  NewRegister(2),
		},
		{
			name: "shutdown",
			msg:  NewShutdown(3),
		},
		{
			name: "sync point with fingerprint",
			msg: func() Message {
				m, err := NewSyncPoint(1, 7, "energy=1.0 step=1")
				require.NoError(t, err)
				return m
			}(),
		},
		{
			name: "validation result mismatch",
			msg: func() Message {
				m, err := NewValidationResult(7, false, "Sync point 7: Instance 0='a' vs Instance 1='b'")
				require.NoError(t, err)
				return m
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tt.msg.Encode(&buf))
			assert.Equal(t, wireSize, buf.Len())

			decoded, err := Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.msg.Type, decoded.Type)
			assert.Equal(t, tt.msg.InstanceID, decoded.InstanceID)
			assert.Equal(t, tt.msg.SyncPoint, decoded.SyncPoint)
			assert.Equal(t, tt.msg.ValidationPassed, decoded.ValidationPassed)
			assert.Equal(t, tt.msg.FingerprintString(), decoded.FingerprintString())
			assert.Equal(t, tt.msg.MismatchDetailsString(), decoded.MismatchDetailsString())
		})
	}
}

func TestNewSyncPointRejectsOversizeFingerprint(t *testing.T) {
	_, err := NewSyncPoint(0, 1, strings.Repeat("x", MaxFingerprintLen))
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	var buf bytes.Buffer
	raw := make([]byte, wireSize)
	raw[0] = 0xFF
	buf.Write(raw)

	_, err := Decode(&buf)
	assert.Error(t, err)
}

func TestDecodePartialRecordIsUnexpectedEOF(t *testing.T) {
	m := NewRegister(0)
	var buf bytes.Buffer
	require.NoError(t, m.Encode(&buf))

	truncated := bytes.NewReader(buf.Bytes()[:wireSize-10])
	_, err := Decode(truncated)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "REGISTER", Register.String())
	assert.Equal(t, "SYNC_POINT", SyncPoint.String())
	assert.Equal(t, "VALIDATION_RESULT", ValidationResult.String())
	assert.Equal(t, "SHUTDOWN", Shutdown.String())
	assert.Contains(t, MessageType(200).String(), "UNKNOWN")
}

func TestFixedStringTruncatesAtNUL(t *testing.T) {
	var m Message
	copy(m.Fingerprint[:], "energy=1.0\x00garbage-after-nul")
	assert.Equal(t, "energy=1.0", m.FingerprintString())
}
