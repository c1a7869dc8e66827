package config

import (
	"os"
	"testing"
)

// unsetenv clears key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"QUEUE_ADDR", "QUEUE_PROJECT_ID", "QUEUE_EVENTS_TOPIC", "QUEUE_LOG_NAME", "QUEUE_ALLOWED_ORIGINS"} {
		unsetenv(t, key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load gave error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %s, want :8080", cfg.Addr)
	}
	if cfg.ProjectID != "queue-society" {
		t.Errorf("ProjectID = %s, want queue-society", cfg.ProjectID)
	}
	if cfg.LogName != "queue_info" {
		t.Errorf("LogName = %s, want queue_info", cfg.LogName)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Errorf("AllowedOrigins = %v, want none", cfg.AllowedOrigins)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("QUEUE_PROJECT_ID", "test-project")
	t.Setenv("QUEUE_ADDR", ":9000")
	t.Setenv("QUEUE_ALLOWED_ORIGINS", "http://localhost:5173,https://queue.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load gave error: %v", err)
	}
	if cfg.ProjectID != "test-project" {
		t.Errorf("ProjectID = %s, want test-project", cfg.ProjectID)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %s, want :9000", cfg.Addr)
	}
	if cfg.EventsTopic != "queue_events" {
		t.Errorf("EventsTopic = %s, want default queue_events", cfg.EventsTopic)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want two entries", cfg.AllowedOrigins)
	}
}

func TestOriginAllowed(t *testing.T) {
	cases := []struct {
		name     string
		allowed  []string
		origin   string
		expected bool
	}{
		{
			name:     "empty list allows everything",
			origin:   "http://anywhere",
			expected: true,
		},
		{
			name:     "listed origin",
			allowed:  []string{"http://localhost:5173"},
			origin:   "http://localhost:5173",
			expected: true,
		},
		{
			name:     "unlisted origin",
			allowed:  []string{"http://localhost:5173"},
			origin:   "http://evil.example.com",
			expected: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{AllowedOrigins: tc.allowed}
			if got := cfg.OriginAllowed(tc.origin); got != tc.expected {
				t.Errorf("OriginAllowed(%s) = %t, want %t", tc.origin, got, tc.expected)
			}
		})
	}
}
