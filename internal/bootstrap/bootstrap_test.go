package bootstrap

import (
	"context"
	"testing"
)

func TestCheckQueueBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		queued  bool
		wantErr bool
	}{
		{name: "InlineMemory", backend: "memory", queued: false},
		{name: "InlineDefault", backend: "", queued: false},
		{name: "QueuedDefault", backend: "", queued: true, wantErr: true},
		{name: "QueuedMemory", backend: "memory", queued: true, wantErr: true},
		{name: "QueuedPostgres", backend: "postgres", queued: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STORE_BACKEND", tt.backend)
			err := CheckQueueBackend(tt.queued)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckQueueBackend(%v) with %q = %v, wantErr %v", tt.queued, tt.backend, err, tt.wantErr)
			}
		})
	}
}

func TestNewStoreRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")
	if _, _, err := NewStore(context.Background()); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	if _, _, err := NewStore(context.Background()); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}
