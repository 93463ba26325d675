package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		want    *Route
		wantNil bool
	}{
		{name: "merge", topic: "segmerge/merge", want: &Route{Handler: "merge"}},
		{name: "merge_with_source", topic: "segmerge/merge/call-17", want: &Route{Handler: "merge", SourceID: "call-17"}},
		{name: "deep_prefix", topic: "org/radio/site1/merge/abc", want: &Route{Handler: "merge", SourceID: "abc"}},

		{name: "empty_string", topic: "", wantNil: true},
		{name: "single_segment", topic: "merge", wantNil: true},
		{name: "bare_merge_source", topic: "merge/abc", wantNil: true},
		{name: "trailing_slash", topic: "segmerge/merge/", wantNil: true},
		{name: "unknown_suffix", topic: "segmerge/results/abc", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTopic(tt.topic)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}
