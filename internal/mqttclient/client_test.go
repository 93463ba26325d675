package mqttclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopics(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", []string{"+/merge/#"}},
		{" , ", []string{"+/merge/#"}},
		{"segmerge/merge/#", []string{"segmerge/merge/#"}},
		{"a/merge, b/merge/# ,", []string{"a/merge", "b/merge/#"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTopics(tt.raw), "ParseTopics(%q)", tt.raw)
	}
}

func TestOnMessageDispatchesToHandler(t *testing.T) {
	c := &Client{}
	var gotTopic string
	var gotPayload []byte
	c.SetMessageHandler(func(topic string, payload []byte) {
		gotTopic, gotPayload = topic, payload
	})

	h := c.handler.Load()
	require.NotNil(t, h, "handler not stored")
	(*h)("segmerge/merge/call-1", []byte("{}"))
	assert.Equal(t, "segmerge/merge/call-1", gotTopic)
	assert.Equal(t, "{}", string(gotPayload))
}
