package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		logDebug bool
		wantJSON bool
	}{
		{"json info", "info", "json", false, true},
		{"text debug", "debug", "text", true, false},
		{"unknown level defaults to info", "verbose", "json", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.level, tt.format)

			logger.Debug("debug line")
			logger.Info("info line", "wallet", "0xabc")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.logDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.logDebug)
			}

			lines := strings.Split(strings.TrimSpace(out), "\n")
			last := lines[len(lines)-1]
			if tt.wantJSON {
				var m map[string]any
				if err := json.Unmarshal([]byte(last), &m); err != nil {
					t.Fatalf("not JSON: %q", last)
				}
				if m["wallet"] != "0xabc" {
					t.Errorf("wallet = %v", m["wallet"])
				}
			} else if !strings.Contains(last, "wallet=0xabc") {
				t.Errorf("text line = %q", last)
			}
		})
	}
}

func TestNewLogger_WarnSuppressesInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %q", buf.String())
	}
}

type funcRunner func(ctx context.Context) error

func (f funcRunner) RunForever(ctx context.Context) error { return f(ctx) }

func TestRunGuarded(t *testing.T) {
	stopped := errors.New("wallet file unreadable")

	tests := []struct {
		name      string
		run       funcRunner
		wantErr   string
		wantPanic bool
	}{
		{"clean exit", func(context.Context) error { return nil }, "", false},
		{"error passes through", func(context.Context) error { return stopped }, stopped.Error(), false},
		{"panic becomes error", func(context.Context) error { panic("nil observer") }, "scheduler panic: nil observer", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, "info", "json")

			err := runGuarded(context.Background(), tt.run, logger)

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("runGuarded = %v, want nil", err)
				}
			} else if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("runGuarded = %v, want %q", err, tt.wantErr)
			}
			if got := strings.Contains(buf.String(), "scheduler panic"); got != tt.wantPanic {
				t.Errorf("panic logged = %v, want %v; output %q", got, tt.wantPanic, buf.String())
			}
		})
	}
}

func TestRunGuarded_PanicOnOtherGoroutineReachesCaller(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	errc := make(chan error, 1)
	go func() {
		errc <- runGuarded(context.Background(), funcRunner(func(context.Context) error {
			var m map[string]int
			m["wallet"]++
			return nil
		}), logger)
	}()

	if err := <-errc; err == nil || !strings.Contains(err.Error(), "scheduler panic") {
		t.Errorf("err = %v, want scheduler panic", err)
	}
}

type fakeChainID struct {
	id  *big.Int
	err error
}

func (f fakeChainID) ChainID(context.Context) (*big.Int, error) { return f.id, f.err }

func TestCheckChainID(t *testing.T) {
	tests := []struct {
		name     string
		client   fakeChainID
		wantWarn string
	}{
		{"match", fakeChainID{id: big.NewInt(10143)}, ""},
		{"mismatch", fakeChainID{id: big.NewInt(1)}, "RPC chain ID differs from configuration"},
		{"rpc error", fakeChainID{err: errors.New("connection refused")}, "could not verify chain ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			checkChainID(context.Background(), tt.client, 10143, newLogger(&buf, "info", "json"))

			out := buf.String()
			if tt.wantWarn == "" {
				if out != "" {
					t.Errorf("unexpected log output %q", out)
				}
				return
			}
			if !strings.Contains(out, tt.wantWarn) {
				t.Errorf("output = %q, want %q", out, tt.wantWarn)
			}
		})
	}
}
