package database

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		blob     string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{
			name:     "plain host uses default port",
			blob:     `{"USER":"u","PASSWORD":"p","HOST":"h","DB":"d"}`,
			wantHost: "h",
			wantPort: DefaultPort,
		},
		{
			name:     "host with port",
			blob:     `{"USER":"u","PASSWORD":"p","HOST":"db.school-a:3307","DB":"d"}`,
			wantHost: "db.school-a",
			wantPort: 3307,
		},
		{
			name:     "explicit PORT wins",
			blob:     `{"USER":"u","PASSWORD":"p","HOST":"h","DB":"d","PORT":3310}`,
			wantHost: "h",
			wantPort: 3310,
		},
		{
			name:    "missing DB",
			blob:    `{"USER":"u","PASSWORD":"p","HOST":"h"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			blob:    `USER=u`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Decode("school-a", tt.blob)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedConfig)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "school-a", cfg.Domain)
			assert.Equal(t, tt.wantHost, cfg.Host)
			assert.Equal(t, tt.wantPort, cfg.Port)
		})
	}
}

func TestDSN(t *testing.T) {
	cfg, err := Decode("school-a", `{"USER":"u","PASSWORD":"p@ss","HOST":"h","DB":"d"}`)
	require.NoError(t, err)

	parsed, err := mysql.ParseDSN(cfg.DSN(5 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "u", parsed.User)
	assert.Equal(t, "p@ss", parsed.Passwd)
	assert.Equal(t, "h:3306", parsed.Addr)
	assert.Equal(t, "d", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, 5*time.Second, parsed.Timeout)

	assert.NotContains(t, cfg.String(), "p@ss")
}
