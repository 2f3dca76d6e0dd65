package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/models"
)

func TestNewRunManager(t *testing.T) {
	rm := NewRunManager("test-run")
	run := rm.GetRun()
	if run.ID != "test-run" {
		t.Errorf("Expected run ID 'test-run', got '%s'", run.ID)
	}
	if run.Status != models.RunStatusPending {
		t.Errorf("Expected status pending, got %s", run.Status)
	}
}

func TestRunManagerLifecycle(t *testing.T) {
	rm := NewRunManager("test-run")
	rm.Start()
	if rm.GetRun().Status != models.RunStatusRunning {
		t.Errorf("Expected status running, got %s", rm.GetRun().Status)
	}

	rm.Complete(Stats{SimTime: 21 * time.Second, EventsProcessed: 42})
	run := rm.GetRun()
	if run.Status != models.RunStatusCompleted {
		t.Errorf("Expected status completed, got %s", run.Status)
	}
	if run.SimTime != 21*time.Second || run.EventsProcessed != 42 {
		t.Errorf("stats not recorded: %+v", run)
	}
	if run.EndTime.Before(run.StartTime) {
		t.Error("End time should not be before start time")
	}

	rm.Fail(Stats{}, errors.New("late"))
	if rm.GetRun().Status != models.RunStatusCompleted {
		t.Error("terminal status should not change")
	}
}

func TestRunManagerFail(t *testing.T) {
	rm := NewRunManager("test-run")
	rm.Start()
	rm.Fail(Stats{}, errors.New("boom"))
	run := rm.GetRun()
	if run.Status != models.RunStatusFailed || run.Error != "boom" {
		t.Errorf("unexpected run %+v", run)
	}
}

func TestRunManagerCancelled(t *testing.T) {
	rm := NewRunManager("test-run")
	rm.Start()
	rm.Cancel()
	rm.Fail(Stats{}, rm.Context().Err())
	if rm.GetRun().Status != models.RunStatusCancelled {
		t.Errorf("Expected status cancelled, got %s", rm.GetRun().Status)
	}
	if !errors.Is(rm.Context().Err(), context.Canceled) {
		t.Error("context should be cancelled")
	}
}

func TestRunManagerMetadata(t *testing.T) {
	rm := NewRunManager("test-run")
	rm.SetMetadata("transport", "cubic")
	v, ok := rm.GetMetadata("transport")
	if !ok || v != "cubic" {
		t.Errorf("Expected cubic, got %q", v)
	}

	run := rm.GetRun()
	run.Metadata["transport"] = "reno"
	if v, _ := rm.GetMetadata("transport"); v != "cubic" {
		t.Error("GetRun should return a copy of the metadata")
	}
}
