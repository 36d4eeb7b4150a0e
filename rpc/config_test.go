package rpc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/linchenxuan/uvbus/codes"
)

func TestServerCfgValidate(t *testing.T) {
	cfg := &ServerCfg{Address: "tcp://127.0.0.1:9000"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid cfg: %v", err)
	}

	bad := []*ServerCfg{
		{Address: "nope"},
		{Address: "ftp://x:1"},
		{Address: "tcp://127.0.0.1:9000", TimeoutMS: -1},
		{Address: "tcp://127.0.0.1:9000", SchedulerConcurrency: -1},
	}
	for i, c := range bad {
		if err := c.Validate(); codes.CodeOf(err) != codes.ErrInvalidParam {
			t.Errorf("case %d: got %v", i, err)
		}
	}
}

func TestClientCfgDefaults(t *testing.T) {
	cfg := &ClientCfg{Address: "inproc://x"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.MaxPending != _defaultMaxPending {
		t.Fatalf("default pending cap %d", cfg.MaxPending)
	}
}

func TestLoadServerCfgYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	content := "address: tcp://127.0.0.1:9100\ntimeoutMS: 500\nschedulerConcurrency: 8\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadServerCfg(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address != "tcp://127.0.0.1:9100" || cfg.TimeoutMS != 500 || cfg.SchedulerConcurrency != 8 {
		t.Fatalf("cfg %+v", cfg)
	}
}

func TestLoadClientCfgYamlInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	os.WriteFile(path, []byte("address: bogus\n"), 0o644)
	if _, err := LoadClientCfg(path); codes.CodeOf(err) != codes.ErrInvalidParam {
		t.Fatalf("got %v", err)
	}
}
