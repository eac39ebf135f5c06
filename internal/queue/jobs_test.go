package queue

import (
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/afesign/internal/notify"
)

func TestDecodeNotification(t *testing.T) {
	msg := notify.Message{
		Kind:          notify.KindFullySigned,
		To:            "creator@example.com",
		Data:          notify.Data{AFEID: "a1", AFEName: "Well 7"},
		AttachmentKey: "final/a1.pdf",
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	got, err := DecodeNotification(asynq.NewTask(SendNotificationTask, data))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestDecodeFinalize(t *testing.T) {
	p, err := DecodeFinalize(asynq.NewTask(FinalizeTask, []byte(`{"afe_id":"a1"}`)))
	require.NoError(t, err)
	assert.Equal(t, "a1", p.AFEID)

	_, err = DecodeFinalize(asynq.NewTask(FinalizeTask, []byte(`{}`)))
	assert.Error(t, err)
	_, err = DecodeFinalize(asynq.NewTask(FinalizeTask, []byte(`nope`)))
	assert.Error(t, err)
}
