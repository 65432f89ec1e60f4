package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "intake/pkg/domain"
	audit "intake/pkg/platform/audit"
)

func TestRecord(t *testing.T) {
	appID := id.NewApplicationID()
	event := audit.Event{
		ID:            uuid.New(),
		Category:      audit.CategoryCompliance,
		Timestamp:     time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		ApplicationID: appID,
		Subject:       "photo",
		Action:        string(audit.EventDocumentRejected),
		Decision:      "rejected",
		Reason:        "face not visible",
		ActorID:       "staff-2",
	}

	record, err := Record("intake.audit", event)
	require.NoError(t, err)
	assert.Equal(t, "intake.audit", record.Topic)
	assert.Equal(t, []byte(appID.String()), record.Key)
	require.Len(t, record.Headers, 2)
	assert.Equal(t, "compliance", string(record.Headers[0].Value))

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(record.Value, &decoded))
	assert.Equal(t, "document_rejected", decoded["action"])
	assert.Equal(t, "face not visible", decoded["reason"])
	assert.Equal(t, "2026-02-03T04:05:06Z", decoded["timestamp"])
}

func TestRecord_ApplicationlessEventHasNoKey(t *testing.T) {
	record, err := Record("t", audit.Event{Action: "application_created"})
	require.NoError(t, err)
	assert.Nil(t, record.Key)
}

func TestNew_RequiresBrokersAndTopic(t *testing.T) {
	_, err := New(nil, "t")
	assert.Error(t, err)
	_, err = New([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}
