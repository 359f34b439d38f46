package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/config"
	"go.uber.org/zap"
)

func TestServeRunsHooksAfterDrain(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cfg := config.Config{ShutdownTimeout: 2 * time.Second}
	router := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})

	ctx, cancel := context.WithCancel(context.Background())
	var order []string
	boom := errors.New("checkpoint failed")
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, ln, cfg, router, zap.NewNop(), []ShutdownHook{
			func(context.Context) error { order = append(order, "checkpoint"); return boom },
			func(context.Context) error { order = append(order, "flush"); return nil },
		})
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Fatalf("body = %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Fatalf("serve err = %v, want %v", err, boom)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	if len(order) != 2 || order[0] != "checkpoint" || order[1] != "flush" {
		t.Fatalf("hooks ran as %v", order)
	}
}
