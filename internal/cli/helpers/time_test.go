package helpers

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeFlags_Parse(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		flags   TimeFlags
		want    time.Time
		wantErr bool
	}{
		{name: "unset", flags: TimeFlags{}, want: time.Time{}},
		{name: "since", flags: TimeFlags{Since: "24h"}, want: now.Add(-24 * time.Hour)},
		{name: "from rfc3339", flags: TimeFlags{From: "2026-03-01T00:00:00Z"}, want: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "from wins over since", flags: TimeFlags{Since: "1h", From: "now"}, want: now},
		{name: "bad since", flags: TimeFlags{Since: "yesterday"}, wantErr: true},
		{name: "negative since", flags: TimeFlags{Since: "-1h"}, wantErr: true},
		{name: "bad from", flags: TimeFlags{From: "03/01/2026"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.Parse(now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestTimeFlags_AddFlags(t *testing.T) {
	var f TimeFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--since", "30m"}))
	assert.Equal(t, "30m", f.Since)
	assert.Empty(t, f.From)
}
