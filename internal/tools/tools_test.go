package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echo " + name,
		Handler: func(_ context.Context, args map[string]any) (Result, error) {
			return Result{"args": args}, nil
		},
	}
}

func TestRegistry_SchemaOrder(t *testing.T) {
	r := NewRegistry(quietLogger())
	for _, n := range []string{"zeta", "alpha", "mid"} {
		r.Register(echoTool(n))
	}
	r.Register(echoTool("alpha")) // re-register keeps position

	schema := r.Schema()
	var got []string
	for _, s := range schema {
		fn := s["function"].(map[string]any)
		got = append(got, fn["name"].(string))
		if s["type"] != "function" {
			t.Errorf("type = %v, want function", s["type"])
		}
		if fn["parameters"] == nil {
			t.Errorf("%s: parameters should default to an empty object schema", fn["name"])
		}
	}
	if strings.Join(got, ",") != "zeta,alpha,mid" {
		t.Errorf("schema order = %v, want zeta,alpha,mid", got)
	}
	if strings.Join(r.Names(), ",") != "zeta,alpha,mid" {
		t.Errorf("Names() = %v", r.Names())
	}
}

func TestDispatch(t *testing.T) {
	r := NewRegistry(quietLogger())
	r.Register(echoTool("echo"))
	r.Register(&Tool{
		Name: "fails",
		Handler: func(context.Context, map[string]any) (Result, error) {
			return nil, errors.New("backend down")
		},
	})
	r.Register(&Tool{
		Name: "panics",
		Handler: func(context.Context, map[string]any) (Result, error) {
			panic("boom")
		},
	})
	r.Register(&Tool{
		Name: "empty",
		Handler: func(context.Context, map[string]any) (Result, error) {
			return nil, nil
		},
	})

	ctx := context.Background()
	tests := []struct {
		name, tool, args string
		wantErr          string // substring; "" means success
	}{
		{"ok", "echo", `{"a":1}`, ""},
		{"empty args", "echo", "", ""},
		{"null args", "echo", "null", ""},
		{"unknown tool", "nope", `{}`, "unknown tool: nope"},
		{"malformed json", "echo", `{"a":`, "invalid arguments: "},
		{"non-object json", "echo", `[1,2]`, "invalid arguments: "},
		{"handler error", "fails", `{}`, "backend down"},
		{"handler panic", "panics", `{}`, "panics panicked: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Dispatch(ctx, tt.tool, tt.args)
			errMsg, hasErr := res["error"].(string)
			if tt.wantErr == "" {
				if hasErr {
					t.Fatalf("Dispatch() = %v, want success", res)
				}
				return
			}
			if !hasErr || !strings.Contains(errMsg, tt.wantErr) {
				t.Errorf("Dispatch() error = %q, want containing %q", errMsg, tt.wantErr)
			}
		})
	}

	if res := r.Dispatch(ctx, "empty", ""); res == nil || len(res) != 0 {
		t.Errorf("nil handler result should become {}, got %v", res)
	}
	if got := r.Dispatch(ctx, "nope", "")["error"]; got != "unknown tool: nope" {
		t.Errorf("unknown tool error = %q", got)
	}
}

func TestEncode(t *testing.T) {
	got := Encode(Result{"ok": true})
	if got != `{"ok":true}` {
		t.Errorf("Encode() = %s", got)
	}

	bad := Encode(Result{"ch": make(chan int)})
	var decoded map[string]any
	if err := json.Unmarshal([]byte(bad), &decoded); err != nil {
		t.Fatalf("Encode fallback is not JSON: %s", bad)
	}
	if _, ok := decoded["error"]; !ok {
		t.Errorf("Encode fallback = %s, want error result", bad)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if got := UserIDFromContext(context.Background(), "default"); got != "default" {
		t.Errorf("fallback = %q", got)
	}
	ctx := WithUserID(context.Background(), "alice")
	if got := UserIDFromContext(ctx, "default"); got != "alice" {
		t.Errorf("UserIDFromContext = %q, want alice", got)
	}
}
