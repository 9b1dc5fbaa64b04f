package config_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/docket/internal/config"
)

func TestLoad(t *testing.T) {
	type testCase struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, cfg *config.Config)
		wantErr bool
	}

	tests := []testCase{
		{
			name: "Defaults",
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, 8080, cfg.App.Port)
				assert.Equal(t, config.StoreDriverPostgres, cfg.App.StoreDriver)
				assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
				assert.Equal(t, "postgres://postgres:@localhost:5432/docket?sslmode=disable", cfg.ConnectionString())

				pc, err := cfg.PipelineConfig()
				require.NoError(t, err)
				assert.InDelta(t, 0.60, pc.ReuploadThreshold, 1e-9)
				assert.InDelta(t, 0.85, pc.AutoTrustThreshold, 1e-9)
				assert.Equal(t, 30*time.Second, pc.ExtractTimeout)
				assert.True(t, decimal.RequireFromString("0.05").Equal(pc.Tolerance))
			},
		},
		{
			name: "Overrides",
			env: map[string]string{
				"STORE_DRIVER":                  "memory",
				"STORAGE_DRIVER":                "minio",
				"PIPELINE_AUTO_TRUST_THRESHOLD": "0.9",
				"PIPELINE_WORKERS":              "2",
			},
			check: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, config.StoreDriverMemory, cfg.App.StoreDriver)
				assert.Equal(t, "docket", cfg.MinIO().Bucket)

				pc, err := cfg.PipelineConfig()
				require.NoError(t, err)
				assert.InDelta(t, 0.9, pc.AutoTrustThreshold, 1e-9)
				assert.Equal(t, 2, pc.Workers)
			},
		},
		{
			name:    "ThresholdsOutOfOrder",
			env:     map[string]string{"PIPELINE_REUPLOAD_THRESHOLD": "0.9", "PIPELINE_AUTO_TRUST_THRESHOLD": "0.5"},
			wantErr: true,
		},
		{
			name:    "UnknownStoreDriver",
			env:     map[string]string{"STORE_DRIVER": "sqlite"},
			wantErr: true,
		},
		{
			name:    "BadTolerance",
			env:     map[string]string{"PIPELINE_RECONCILIATION_TOLERANCE": "five cents"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := config.Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
