package robot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armctl.json")

	cfg := DefaultConfig()
	cfg.Driver.Kind = DriverSim
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}

	if loaded.Driver.Kind != DriverSim {
		t.Errorf("Driver.Kind = %q, want %q", loaded.Driver.Kind, DriverSim)
	}
	if len(loaded.Joints) != 6 {
		t.Fatalf("loaded %d joints, want 6", len(loaded.Joints))
	}
	if loaded.Joints[0].Interval.D() != 30*time.Millisecond {
		t.Errorf("interval = %v, want 30ms", loaded.Joints[0].Interval.D())
	}
	if loaded.Joints[2].Gravity == nil || loaded.Joints[2].Gravity.UpwardBoost != 1.0 {
		t.Errorf("elbow gravity not preserved: %+v", loaded.Joints[2].Gravity)
	}
	if loaded.Presets["pick"][Gripper] != 2000 {
		t.Errorf("pick gripper = %d, want 2000", loaded.Presets["pick"][Gripper])
	}
	if _, err := loaded.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfigFrom_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armctl.json")
	data := `{"joints":[{"name":"BASE","channel":24,"min_pw":600,"max_pw":2400,"step_size":10,"interval":30}]}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}
	if cfg.Driver.Kind != DriverPigpio {
		t.Errorf("Driver.Kind = %q, want %q", cfg.Driver.Kind, DriverPigpio)
	}
	if cfg.Tuning != (Tuning{
		Acceleration:          0.2,
		Deceleration:          0.3,
		Smoothing:             0.8,
		Epsilon:               1,
		NormalizationDistance: 100,
		SpeedFactor:           1,
	}) {
		t.Errorf("Tuning defaults = %+v", cfg.Tuning)
	}
}

func TestLoadConfigFrom_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armctl.json")
	if err := DefaultConfig().SaveTo(path); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ARMCTL_DRIVER", DriverMaestro)
	t.Setenv("ARMCTL_PORT", "/dev/ttyACM0")
	t.Setenv("ARMCTL_BAUD", "115200")

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}
	if cfg.Driver.Kind != DriverMaestro || cfg.Driver.Port != "/dev/ttyACM0" || cfg.Driver.BaudRate != 115200 {
		t.Errorf("driver overrides not applied: %+v", cfg.Driver)
	}
	if cfg.Driver.Address != "localhost:8888" {
		t.Errorf("unset override changed Address to %q", cfg.Driver.Address)
	}
}

func TestLoadConfigOrDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ARMCTL_DRIVER", DriverSim)

	cfg, found, err := LoadConfigOrDefault(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("LoadConfigOrDefault(missing): %v", err)
	}
	if found {
		t.Error("found = true for a missing file")
	}
	if cfg.Driver.Kind != DriverSim {
		t.Errorf("Driver.Kind = %q, want %q from environment", cfg.Driver.Kind, DriverSim)
	}
	if len(cfg.Joints) != 6 {
		t.Errorf("default config has %d joints, want 6", len(cfg.Joints))
	}

	path := filepath.Join(dir, "armctl.json")
	if err := DefaultConfig().SaveTo(path); err != nil {
		t.Fatal(err)
	}
	cfg, found, err = LoadConfigOrDefault(path)
	if err != nil {
		t.Fatalf("LoadConfigOrDefault(existing): %v", err)
	}
	if !found || cfg.Driver.Kind != DriverSim {
		t.Errorf("found = %v, Driver.Kind = %q, want true, %q", found, cfg.Driver.Kind, DriverSim)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadConfigOrDefault(bad); err == nil {
		t.Error("LoadConfigOrDefault(bad json) = nil error")
	}
}

func TestConfig_ValidatePresets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Presets["broken"] = Preset{"TAIL": 1500}

	_, err := cfg.Validate()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Validate error = %v, want *ConfigError", err)
	}
	if cfgErr.Joint != "TAIL" {
		t.Errorf("ConfigError.Joint = %q, want TAIL", cfgErr.Joint)
	}
}
