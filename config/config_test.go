package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Region:      "us-east-2",
		Output:      OutputJSON,
		LogLevel:    "info",
		WaitTimeout: time.Minute,
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config to pass validation, got: %v", err)
	}
}

func TestInvalidOutput(t *testing.T) {
	for _, output := range []string{"", "JSON", "text", "xml"} {
		t.Run(output, func(t *testing.T) {
			cfg := validConfig()
			cfg.Output = output
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for invalid output: %s", output)
			}
		})
	}
}

func TestValidOutputs(t *testing.T) {
	for _, output := range []string{OutputJSON, OutputYAML} {
		t.Run(output, func(t *testing.T) {
			cfg := validConfig()
			cfg.Output = output
			if err := cfg.Validate(); err != nil {
				t.Errorf("expected valid output %s to pass, got: %v", output, err)
			}
		})
	}
}

func TestInvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "loud"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestInvalidEndpoint(t *testing.T) {
	testCases := []struct {
		name     string
		endpoint string
	}{
		{"s3 scheme", "s3://bucket"},
		{"no scheme", "localhost:4566"},
		{"no host", "http://"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Endpoint = tc.endpoint
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for invalid endpoint: %s", tc.endpoint)
			}
		})
	}
}

func TestValidEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Endpoint = "http://localhost:4566"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid endpoint to pass, got: %v", err)
	}
}

func TestShortWaitTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.WaitTimeout = 500 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for wait timeout below 1 second")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("OUTPUT", "yaml")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("WAIT_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Region != "eu-west-1" || cfg.Output != OutputYAML || cfg.LogLevel != "debug" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.WaitTimeout != 30*time.Second {
		t.Errorf("expected wait timeout 30s, got %v", cfg.WaitTimeout)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("AWS_PROFILE", "")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("AWS_PROFILE=sandbox\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set
	os.Unsetenv("AWS_PROFILE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Profile != "sandbox" {
		t.Errorf("expected profile from .env, got %q", cfg.Profile)
	}
}

func TestLoadInvalidWaitTimeout(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WAIT_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid WAIT_TIMEOUT")
	}
}

func TestRegisterFlagsOverrides(t *testing.T) {
	cfg := validConfig()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	if err := fs.Parse([]string{"-region", "ap-south-1", "-output", "yaml"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	if cfg.Region != "ap-south-1" {
		t.Errorf("expected region override, got %q", cfg.Region)
	}
	if cfg.Output != OutputYAML {
		t.Errorf("expected output override, got %q", cfg.Output)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected untouched default log level, got %q", cfg.LogLevel)
	}
}
