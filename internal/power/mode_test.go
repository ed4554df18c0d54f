package power

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    Mode
		wantErr bool
	}{
		{raw: "resume", want: Resume},
		{raw: " Suspend ", want: Suspend},
		{raw: "status-change", want: StatusChange},
		{raw: "STATUS_CHANGE", want: StatusChange},
		{raw: "hibernate", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, mustParse(t, got.String()), "round trip %s", got)
	}
}

func mustParse(t *testing.T, s string) Mode {
	t.Helper()
	m, err := ParseMode(s)
	require.NoError(t, err)
	return m
}
