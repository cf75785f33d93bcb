package safe

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestCall_Success(t *testing.T) {
	v, err := Call(func() (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Errorf("Call() = (%d, %v), want (42, nil)", v, err)
	}
}

func TestCall_Panic(t *testing.T) {
	v, err := Call(func() (int, error) { panic("boom") })
	if v != 0 {
		t.Errorf("expected zero value, got %d", v)
	}
	if !IsPanic(err) {
		t.Fatalf("expected PanicError, got %v", err)
	}

	var pe *PanicError
	errors.As(err, &pe)
	if pe.Value != "boom" {
		t.Errorf("expected panic value boom, got %v", pe.Value)
	}
	if len(pe.Stack) == 0 {
		t.Error("stack must be captured")
	}
}

func TestCall_PanicWithError(t *testing.T) {
	cause := errors.New("inner")
	err := Run(func() error { panic(cause) })
	if !errors.Is(err, cause) {
		t.Errorf("expected panic error to unwrap to cause, got %v", err)
	}
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name      string
		fn        func() (string, error)
		recoverFn func(error) (string, error)
		want      string
	}{
		{
			name:      "success skips recovery",
			fn:        func() (string, error) { return "ok", nil },
			recoverFn: func(error) (string, error) { t.Fatal("recovery must not run"); return "", nil },
			want:      "ok",
		},
		{
			name:      "error is recovered",
			fn:        func() (string, error) { return "", errors.New("x") },
			recoverFn: func(err error) (string, error) { return "recovered:" + err.Error(), nil },
			want:      "recovered:x",
		},
		{
			name:      "panic is recovered",
			fn:        func() (string, error) { panic("p") },
			recoverFn: func(err error) (string, error) { return "recovered", nil },
			want:      "recovered",
		},
		{
			name:      "failing recovery falls back",
			fn:        func() (string, error) { return "", errors.New("x") },
			recoverFn: func(err error) (string, error) { return "", errors.New("y") },
			want:      "fallback",
		},
		{
			name:      "panicking recovery falls back",
			fn:        func() (string, error) { return "", errors.New("x") },
			recoverFn: func(err error) (string, error) { panic("again") },
			want:      "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Handle(discard, tt.fn, tt.recoverFn, "fallback")
			if got != tt.want {
				t.Errorf("Handle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApply_HandlerSeesBothSides(t *testing.T) {
	got := Apply(discard, 7, nil, func(v int, err error) (int, error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		return v * 2, nil
	}, -1)
	if got != 14 {
		t.Errorf("expected 14, got %d", got)
	}

	got = Apply(discard, 0, errors.New("x"), func(v int, err error) (int, error) {
		var m map[string]int
		m["boom"] = 1 // nil map write panics
		return 0, nil
	}, -1)
	if got != -1 {
		t.Errorf("expected fallback -1, got %d", got)
	}
}
