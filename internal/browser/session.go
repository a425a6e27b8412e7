package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTimeout marks any operation that ran out of time: page loads,
	// element waits and text reads.
	ErrTimeout = errors.New("timeout")
	// ErrSessionLost means the underlying browser is gone and the session
	// cannot serve further checks.
	ErrSessionLost = errors.New("browser session lost")
)

const (
	EnginePlaywright = "playwright"
	EngineStatic     = "static"
)

// Session is one long-lived web session. Calls are never made concurrently.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitForClass blocks until at least one element carrying all the given
	// class names is attached, or returns an error wrapping ErrTimeout.
	WaitForClass(ctx context.Context, className string, timeout time.Duration) error
	FindByClass(ctx context.Context, className string) ([]Element, error)
	Close() error
}

// Element is a DOM element matched by FindByClass.
type Element interface {
	Text(ctx context.Context) (string, error)
}

// ClassSelector turns a class attribute value such as "cart_button soldout"
// into the compound CSS selector ".cart_button.soldout".
func ClassSelector(className string) string {
	fields := strings.Fields(className)
	if len(fields) == 0 {
		return ""
	}
	return "." + strings.Join(fields, ".")
}

// Open starts a session for the named engine.
func Open(ctx context.Context, engine string, opts *Options) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch engine {
	case "", EnginePlaywright:
		return New(opts)
	case EngineStatic:
		return NewStaticSession(opts), nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", engine)
	}
}
