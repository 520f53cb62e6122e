package event_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeytrack-collector/internal/errorkind"
	"honeytrack-collector/internal/event"
)

func validRaw() event.RawEvent {
	return event.RawEvent{
		ObservedAt:    "2024-06-01T10:15:00Z",
		SourceAddress: "203.0.113.42",
		TargetService: "Git",
		Action:        "File_Access",
		TargetPath:    "secrets.yml",
		SessionID:     "s1",
	}
}

func TestCanonicalize_LowercasesAndTrims(t *testing.T) {
	raw := validRaw()
	raw.TargetService = "  Git "
	raw.Action = "\tFile_Access "
	e, err := event.Canonicalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "git", e.TargetService)
	assert.Equal(t, "file_access", e.Action)
}

func TestCanonicalize_MissingRequiredField(t *testing.T) {
	raw := validRaw()
	raw.SourceAddress = ""
	_, err := event.Canonicalize(raw)
	require.Error(t, err)
	ke, ok := errorkind.As(err)
	require.True(t, ok)
	assert.Equal(t, errorkind.SchemaError, ke.Kind)
}

func TestCanonicalize_InvalidAddress(t *testing.T) {
	raw := validRaw()
	raw.SourceAddress = "not-an-ip"
	_, err := event.Canonicalize(raw)
	require.Error(t, err)
}

func TestCanonicalize_PayloadTooLarge(t *testing.T) {
	raw := validRaw()
	big := `"` + strings.Repeat("a", event.MaxPayloadBytes+1) + `"`
	raw.Payload = json.RawMessage(big)
	_, err := event.Canonicalize(raw)
	require.Error(t, err)
	ke, ok := errorkind.As(err)
	require.True(t, ok)
	assert.Equal(t, errorkind.PayloadTooLarge, ke.Kind)
}

func TestCanonicalize_Idempotent(t *testing.T) {
	e1, err := event.Canonicalize(validRaw())
	require.NoError(t, err)

	reRaw := event.RawEvent{
		ObservedAt:    e1.ObservedAt.Format("2006-01-02T15:04:05Z07:00"),
		SourceAddress: e1.SourceAddress,
		Protocol:      e1.Protocol,
		TargetService: e1.TargetService,
		Action:        e1.Action,
		TargetPath:    e1.TargetPath,
		SessionID:     e1.SessionID,
		UserAgent:     e1.UserAgent,
		Payload:       e1.Payload,
	}
	e2, err := event.Canonicalize(reRaw)
	require.NoError(t, err)
	assert.Equal(t, event.ContentHash(e1), event.ContentHash(e2))
}

func TestContentHash_DeterministicAndDistinguishesFields(t *testing.T) {
	e1, err := event.Canonicalize(validRaw())
	require.NoError(t, err)
	e2 := e1

	assert.Equal(t, event.ContentHash(e1), event.ContentHash(e2))

	e2.Action = "scan_attempt"
	assert.NotEqual(t, event.ContentHash(e1), event.ContentHash(e2))
}
