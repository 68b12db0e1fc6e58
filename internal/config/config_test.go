// SPDX-License-Identifier: MIT

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseString(t *testing.T) {
	t.Setenv("GF_TEST_STR", "value")
	require.Equal(t, "value", ParseString("GF_TEST_STR", "fallback"))
	require.Equal(t, "fallback", ParseString("GF_TEST_STR_UNSET", "fallback"))

	t.Setenv("GF_TEST_EMPTY", "")
	require.Equal(t, "fallback", ParseString("GF_TEST_EMPTY", "fallback"))
}

func TestParseInt(t *testing.T) {
	t.Setenv("GF_TEST_INT", "42")
	require.Equal(t, 42, ParseInt("GF_TEST_INT", 7))

	t.Setenv("GF_TEST_INT_BAD", "not-a-number")
	require.Equal(t, 7, ParseInt("GF_TEST_INT_BAD", 7))

	require.Equal(t, 7, ParseInt("GF_TEST_INT_UNSET", 7))
}

func TestParseDuration(t *testing.T) {
	t.Setenv("GF_TEST_DUR", "90s")
	require.Equal(t, 90*time.Second, ParseDuration("GF_TEST_DUR", time.Minute))

	t.Setenv("GF_TEST_DUR_BAD", "ninety")
	require.Equal(t, time.Minute, ParseDuration("GF_TEST_DUR_BAD", time.Minute))
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "1", "YES"} {
		t.Setenv("GF_TEST_BOOL", v)
		require.True(t, ParseBool("GF_TEST_BOOL", false), v)
	}
	for _, v := range []string{"false", "0", "No"} {
		t.Setenv("GF_TEST_BOOL", v)
		require.False(t, ParseBool("GF_TEST_BOOL", true), v)
	}
	t.Setenv("GF_TEST_BOOL", "maybe")
	require.True(t, ParseBool("GF_TEST_BOOL", true))
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, "memory", cfg.StoreBackend)
	require.Equal(t, "default", cfg.ProjectID)
	require.Equal(t, 300, cfg.RateLimit)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_StoreBackendVar(t *testing.T) {
	t.Setenv("GUESTFLOW_STORE_BACKEND", "sqlite")
	t.Setenv("GUESTFLOW_CACHE_TTL", "90s")
	cfg := FromEnv()
	require.Equal(t, "sqlite", cfg.StoreBackend)
	require.Equal(t, 90*time.Second, cfg.CacheTTL)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *AppConfig {
		return &AppConfig{
			ListenAddr:   ":8080",
			DataDir:      "/var/lib/guestflow",
			StoreBackend: "memory",
			ProjectID:    "p1",
		}
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.ListenAddr = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.StoreBackend = "dynamodb"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.ProjectID = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.RateLimit = -1
	require.Error(t, cfg.Validate())
}

func TestValidate_DerivesStorePaths(t *testing.T) {
	t.Parallel()

	cfg := &AppConfig{ListenAddr: ":8080", DataDir: "/data", StoreBackend: "badger", ProjectID: "p"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, filepath.Join("/data", "journey"), cfg.StorePath)

	cfg = &AppConfig{ListenAddr: ":8080", DataDir: "/data", StoreBackend: "sqlite", ProjectID: "p"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, filepath.Join("/data", "journey.db"), cfg.StorePath)

	// An explicit path wins over the derived default.
	cfg = &AppConfig{ListenAddr: ":8080", DataDir: "/data", StoreBackend: "sqlite", StorePath: "/elsewhere/j.db", ProjectID: "p"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, "/elsewhere/j.db", cfg.StorePath)
}
