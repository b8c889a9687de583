package config

import (
	"testing"
	"time"
)

func TestGetFlagExactTrue(t *testing.T) {
	cases := map[string]bool{"true": true, "TRUE": false, "1": false, "yes": false, " true": false, "": false}
	for value, want := range cases {
		t.Setenv("TEST_FLAG", value)
		if got := GetFlag("TEST_FLAG"); got != want {
			t.Fatalf("GetFlag(%q) = %v, want %v", value, got, want)
		}
	}
}

func TestGetDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "30")
	if got := GetDuration("TEST_DURATION", time.Second, time.Minute); got != 30*time.Second {
		t.Fatalf("expected 30s, got %s", got)
	}
	t.Setenv("TEST_DURATION", "250ms")
	if got := GetDuration("TEST_DURATION", time.Second, time.Minute); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", got)
	}
	t.Setenv("TEST_DURATION", "soon")
	if got := GetDuration("TEST_DURATION", time.Second, time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
}

func TestGetIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("TEST_INT", "abc")
	if got := GetInt("TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}

func TestLoadFaultSettingsDefaults(t *testing.T) {
	for _, key := range []string{"INJECT_LATENCY", "LATENCY_AMOUNT", "INJECT_WRONG_IDS", "WRONG_ID_PROBABILITY", "SIMULATE_THROTTLING", "SIMULATE_DYNAMODB_THROTTLING", "SIMULATE_S3_ACCESS_ERRORS"} {
		t.Setenv(key, "")
	}
	t.Setenv("LATENCY_AMOUNT", "800")
	t.Setenv("WRONG_ID_PROBABILITY", "50")
	s := LoadFaultSettings()
	if s.InjectLatency || s.InjectWrongIDs || s.SimulateThrottling || s.SimulateStoreAccessDenied {
		t.Fatalf("expected all flags off, got %+v", s)
	}
	if s.LatencyAmountMS != 800 || s.WrongIDProbabilityPct != 50 {
		t.Fatalf("unexpected numeric defaults %+v", s)
	}
}

func TestLoadAPIConfigStoreCapacity(t *testing.T) {
	t.Setenv("STORE_READ_CAPACITY", "")
	t.Setenv("SIMULATE_DYNAMODB_THROTTLING", "true")
	t.Setenv("BLOB_DENY_OPERATIONS", "get, put")
	t.Setenv("ALARM_PERIOD_SECONDS", "5")
	cfg := LoadAPIConfig()
	if cfg.StoreWriteCapacity != 1 {
		t.Fatalf("expected single write unit, got %d", cfg.StoreWriteCapacity)
	}
	if len(cfg.BlobDenyOps) != 2 || cfg.BlobDenyOps[1] != "put" {
		t.Fatalf("unexpected deny ops %v", cfg.BlobDenyOps)
	}
	if cfg.AlarmPeriod != 5*time.Second {
		t.Fatalf("unexpected alarm period %s", cfg.AlarmPeriod)
	}
}

func TestLoadAPIConfigAlarmGraceCoversInjectedLatency(t *testing.T) {
	t.Setenv("INJECT_LATENCY", "true")
	t.Setenv("LATENCY_AMOUNT", "1500")
	if got := LoadAPIConfig().AlarmGrace; got != 3500*time.Millisecond {
		t.Fatalf("expected 3.5s grace, got %s", got)
	}
	t.Setenv("INJECT_LATENCY", "false")
	if got := LoadAPIConfig().AlarmGrace; got != 2*time.Second {
		t.Fatalf("expected 2s grace, got %s", got)
	}
	t.Setenv("ALARM_GRACE_SECONDS", "10")
	if got := LoadAPIConfig().AlarmGrace; got != 10*time.Second {
		t.Fatalf("expected override, got %s", got)
	}
}

func TestGetBoolAcceptsParseBoolForms(t *testing.T) {
	t.Setenv("TRACE_STDOUT", "1")
	t.Setenv("ALARM_NOTIFY_RECOVERY", "TRUE")
	cfg := LoadAPIConfig()
	if !cfg.TraceStdout || !cfg.AlarmNotifyRecovery {
		t.Fatalf("expected toggles on, got trace=%v recovery=%v", cfg.TraceStdout, cfg.AlarmNotifyRecovery)
	}
	t.Setenv("TRACE_STDOUT", "maybe")
	if LoadAPIConfig().TraceStdout {
		t.Fatal("expected fallback for unparseable value")
	}
}
