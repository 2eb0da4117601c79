package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBackendURL    = "https://lol-voice.onrender.com"
	DefaultLiveClientURL = "https://127.0.0.1:2999/liveclientdata"

	envBackendURL    = "SWELL_BACKEND_URL"
	envWakeTimeout   = "SWELL_WAKE_TIMEOUT"
	envJoinTimeout   = "SWELL_JOIN_TIMEOUT"
	envJoinAttempts  = "SWELL_JOIN_ATTEMPTS"
	envLiveClientURL = "SWELL_LIVECLIENT_URL"
	envPollInterval  = "SWELL_POLL_INTERVAL"
	envGraceWindow   = "SWELL_GRACE_WINDOW"
	envRoomPrefix    = "SWELL_ROOM_PREFIX"
	envLCUEnabled    = "SWELL_LCU_ENABLED"
	envLockfile      = "SWELL_LCU_LOCKFILE"
	envStorePath     = "SWELL_STORE_PATH"
	envLogLevel      = "SWELL_LOG_LEVEL"
	envLogFormat     = "SWELL_LOG_FORMAT"
	envMetrics       = "SWELL_METRICS_ENABLED"
	envMetricsAddr   = "SWELL_METRICS_ADDR"
)

func applyEnv(cfg *Config) {
	cfg.Backend.URL = strings.TrimRight(envOrDefault(envBackendURL, cfg.Backend.URL), "/")
	cfg.Backend.WakeTimeout = durationEnvOrDefault(envWakeTimeout, cfg.Backend.WakeTimeout)
	cfg.Backend.JoinTimeout = durationEnvOrDefault(envJoinTimeout, cfg.Backend.JoinTimeout)
	cfg.Backend.MaxAttempts = intEnvOrDefault(envJoinAttempts, cfg.Backend.MaxAttempts)
	cfg.LiveClient.BaseURL = strings.TrimRight(envOrDefault(envLiveClientURL, cfg.LiveClient.BaseURL), "/")
	cfg.LiveClient.PollInterval = durationEnvOrDefault(envPollInterval, cfg.LiveClient.PollInterval)
	cfg.Presence.GraceWindow = durationEnvOrDefault(envGraceWindow, cfg.Presence.GraceWindow)
	cfg.Presence.RoomPrefix = envOrDefault(envRoomPrefix, cfg.Presence.RoomPrefix)
	cfg.LCU.Enabled = boolEnvOrDefault(envLCUEnabled, cfg.LCU.Enabled)
	cfg.LCU.LockfilePath = envOrDefault(envLockfile, cfg.LCU.LockfilePath)
	cfg.Store.Path = envOrDefault(envStorePath, cfg.Store.Path)
	cfg.Log.Level = envOrDefault(envLogLevel, cfg.Log.Level)
	cfg.Log.Format = envOrDefault(envLogFormat, cfg.Log.Format)
	cfg.Metrics.Enabled = boolEnvOrDefault(envMetrics, cfg.Metrics.Enabled)
	cfg.Metrics.Addr = envOrDefault(envMetricsAddr, cfg.Metrics.Addr)
}

func envOrDefault(key, defaultValue string) string {
	val := os.Getenv(key)
	if val != "" {
		return val
	}
	return defaultValue
}

func durationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}

func intEnvOrDefault(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return defaultValue
	}
	return val
}

func boolEnvOrDefault(key string, defaultValue bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	if raw == "1" || strings.EqualFold(raw, "true") || strings.EqualFold(raw, "yes") {
		return true
	}
	if raw == "0" || strings.EqualFold(raw, "false") || strings.EqualFold(raw, "no") {
		return false
	}
	return defaultValue
}
