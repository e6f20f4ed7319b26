package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

func newTestService() *Service {
	return NewService(arbor.NewLogger()).(*Service)
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Condition not met within %v", timeout)
}

func TestRegisterJob(t *testing.T) {
	service := newTestService()

	err := service.RegisterJob("ingestion", "*/15 * * * *", "Scheduled pipeline run", func() error { return nil })
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	status, err := service.GetJobStatus("ingestion")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if status.Name != "ingestion" {
		t.Errorf("Expected name ingestion, got %s", status.Name)
	}
	if !status.Enabled {
		t.Errorf("Expected job enabled by default")
	}
	if status.Schedule != "*/15 * * * *" {
		t.Errorf("Expected schedule preserved, got %s", status.Schedule)
	}
	if status.LastRun != nil {
		t.Errorf("Expected no last run before execution")
	}
	if status.IsRunning {
		t.Errorf("Expected job not running")
	}

	err = service.RegisterJob("ingestion", "*/15 * * * *", "Duplicate", func() error { return nil })
	if err == nil {
		t.Errorf("Expected error for duplicate job name")
	}
}

func TestRegisterJobInvalidSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{name: "not a cron expression", schedule: "every minute", wantErr: true},
		{name: "every minute rejected", schedule: "* * * * *", wantErr: true},
		{name: "below minimum interval", schedule: "*/2 * * * *", wantErr: true},
		{name: "valid quarter hour", schedule: "*/15 * * * *", wantErr: false},
		{name: "valid six hourly", schedule: "0 */6 * * *", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestService()
			err := service.RegisterJob("job", tt.schedule, "", func() error { return nil })
			if tt.wantErr && err == nil {
				t.Errorf("Expected error for schedule %q", tt.schedule)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestStartStop(t *testing.T) {
	service := newTestService()

	if service.IsRunning() {
		t.Errorf("Expected scheduler stopped before Start")
	}
	if err := service.Start(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !service.IsRunning() {
		t.Errorf("Expected scheduler running after Start")
	}
	if err := service.Start(); err == nil {
		t.Errorf("Expected error starting twice")
	}
	if err := service.Stop(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if service.IsRunning() {
		t.Errorf("Expected scheduler stopped after Stop")
	}
	if err := service.Stop(); err != nil {
		t.Errorf("Expected second Stop to be a no-op, got %v", err)
	}
}

func TestNextRunExposedAfterStart(t *testing.T) {
	service := newTestService()
	if err := service.RegisterJob("ingestion", "*/15 * * * *", "", func() error { return nil }); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := service.Start(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer service.Stop()

	status, err := service.GetJobStatus("ingestion")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if status.NextRun == nil || status.NextRun.IsZero() {
		t.Fatalf("Expected next run to be scheduled, got %v", status.NextRun)
	}
	if !status.NextRun.After(time.Now()) {
		t.Errorf("Expected next run in the future, got %v", status.NextRun)
	}
}

func TestTriggerJobRunsHandler(t *testing.T) {
	service := newTestService()
	done := make(chan struct{})
	err := service.RegisterJob("sync", "*/15 * * * *", "", func() error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := service.TriggerJob("sync"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Handler did not run")
	}

	waitFor(t, 2*time.Second, func() bool {
		status, err := service.GetJobStatus("sync")
		return err == nil && status.LastRun != nil && !status.IsRunning
	})

	status, _ := service.GetJobStatus("sync")
	if status.LastError != "" {
		t.Errorf("Expected no error after successful run, got %s", status.LastError)
	}
}

func TestTriggerJobUnknown(t *testing.T) {
	service := newTestService()
	if err := service.TriggerJob("missing"); err == nil {
		t.Fatalf("Expected error for unknown job")
	}
}

func TestTriggerJobAlreadyRunning(t *testing.T) {
	service := newTestService()
	block := make(chan struct{})
	err := service.RegisterJob("slow", "*/15 * * * *", "", func() error {
		<-block
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := service.TriggerJob("slow"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		status, err := service.GetJobStatus("slow")
		return err == nil && status.IsRunning
	})

	if err := service.TriggerJob("slow"); err == nil {
		t.Errorf("Expected error triggering a running job")
	}

	close(block)
	waitFor(t, 2*time.Second, func() bool {
		status, err := service.GetJobStatus("slow")
		return err == nil && !status.IsRunning
	})
}

func TestExecuteJobSkipsWhenRunning(t *testing.T) {
	service := newTestService()
	var runs atomic.Int32
	block := make(chan struct{})
	err := service.RegisterJob("slow", "*/15 * * * *", "", func() error {
		runs.Add(1)
		<-block
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	go service.executeJob("slow")
	waitFor(t, 2*time.Second, func() bool {
		status, err := service.GetJobStatus("slow")
		return err == nil && status.IsRunning
	})

	// Second invocation sees the running entry and skips
	service.executeJob("slow")

	close(block)
	waitFor(t, 2*time.Second, func() bool {
		status, err := service.GetJobStatus("slow")
		return err == nil && !status.IsRunning
	})

	if got := runs.Load(); got != 1 {
		t.Errorf("Expected 1 run, got %d", got)
	}
}

func TestJobFailureRecordsLastError(t *testing.T) {
	service := newTestService()
	var fail atomic.Bool
	fail.Store(true)
	err := service.RegisterJob("flaky", "*/15 * * * *", "", func() error {
		if fail.Load() {
			return errors.New("connector down")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := service.TriggerJob("flaky"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		status, err := service.GetJobStatus("flaky")
		return err == nil && status.LastError == "connector down"
	})

	fail.Store(false)
	if err := service.TriggerJob("flaky"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		status, err := service.GetJobStatus("flaky")
		return err == nil && status.LastError == "" && status.LastRun != nil
	})
}

func TestPanicRecovery(t *testing.T) {
	service := newTestService()
	err := service.RegisterJob("panicky", "*/15 * * * *", "", func() error {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := service.TriggerJob("panicky"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		status, err := service.GetJobStatus("panicky")
		return err == nil && status.LastError == "panic: boom" && !status.IsRunning
	})

	status, _ := service.GetJobStatus("panicky")
	if status.LastRun != nil {
		t.Errorf("Expected no last run recorded after panic")
	}
}

func TestDisableEnableJob(t *testing.T) {
	service := newTestService()
	if err := service.RegisterJob("ingestion", "*/15 * * * *", "", func() error { return nil }); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := service.Start(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer service.Stop()

	if err := service.DisableJob("ingestion"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	status, _ := service.GetJobStatus("ingestion")
	if status.Enabled {
		t.Errorf("Expected job disabled")
	}
	if status.NextRun != nil {
		t.Errorf("Expected no next run for disabled job, got %v", status.NextRun)
	}

	// Disabling twice is a no-op
	if err := service.DisableJob("ingestion"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	if err := service.EnableJob("ingestion"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	status, _ = service.GetJobStatus("ingestion")
	if !status.Enabled {
		t.Errorf("Expected job enabled")
	}
	if status.NextRun == nil || !status.NextRun.After(time.Now()) {
		t.Errorf("Expected next run scheduled after enable, got %v", status.NextRun)
	}

	if err := service.EnableJob("missing"); err == nil {
		t.Errorf("Expected error enabling unknown job")
	}
}

func TestGetAllJobStatuses(t *testing.T) {
	service := newTestService()
	if err := service.RegisterJob("ingestion", "0 */6 * * *", "Pipeline run", func() error { return nil }); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := service.RegisterJob("email_sync", "*/15 * * * *", "Mailbox sync", func() error { return nil }); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	statuses := service.GetAllJobStatuses()
	if len(statuses) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(statuses))
	}
	if statuses["ingestion"].Description != "Pipeline run" {
		t.Errorf("Expected description preserved, got %s", statuses["ingestion"].Description)
	}
	if statuses["email_sync"].Schedule != "*/15 * * * *" {
		t.Errorf("Expected schedule preserved, got %s", statuses["email_sync"].Schedule)
	}
}
