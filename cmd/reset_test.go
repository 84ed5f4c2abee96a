package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresmejia3/pupilscan/internal/store"
)

// restoreRootState undoes the global state a full command run leaves behind.
func restoreRootState(t *testing.T) {
	prevConfig, prevLog := configPath, Log
	t.Cleanup(func() {
		resetTables, resetFiles, resetYes = false, false, false
		dbURL, configPath, Log, DB = "", prevConfig, prevLog, nil
		rootCmd.SetArgs(nil)
	})
}

func TestResetDropsTablesOfSelectedDatabase(t *testing.T) {
	restoreRootState(t)
	ctx := context.Background()
	dsn := "sqlite:" + filepath.Join(t.TempDir(), "results.db")

	st, err := store.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := st.SaveResult(ctx, store.Record{ID: "r1", PatientName: "Jane", RecordedAt: time.Now()}); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	st.Close(ctx)

	rootCmd.SetArgs([]string{"reset", "--db", dsn, "--tables", "--yes", "--config", ""})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if dbURL != dsn {
		t.Errorf("Global --db not applied, got %q", dbURL)
	}

	st, err = store.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer st.Close(ctx)
	results, err := st.ListResults(ctx)
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected the SQLite tables to be dropped, still have %d results", len(results))
	}
}

func TestResetRejectsPositionalArgs(t *testing.T) {
	restoreRootState(t)
	rootCmd.SetArgs([]string{"reset", "sqlite:stray.db", "--yes", "--config", ""})
	if err := rootCmd.Execute(); err == nil {
		t.Error("Expected a stray argument to be rejected")
	}
}
