package nodegraph

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	kind int
	data string
}

// scriptedConn replays frames, then blocks until closed.
type scriptedConn struct {
	frames []frame
	closed chan struct{}
}

func newScriptedConn(frames ...frame) *scriptedConn {
	return &scriptedConn{frames: frames, closed: make(chan struct{})}
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	if len(c.frames) > 0 {
		f := c.frames[0]
		c.frames = c.frames[1:]
		return f.kind, []byte(f.data), nil
	}
	<-c.closed
	return 0, nil, io.EOF
}

func (c *scriptedConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func text(s string) frame { return frame{kind: websocket.TextMessage, data: s} }

func TestWaitForCompletionOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		frames []frame
		want   Outcome
		detail string
	}{
		{
			name: "completed",
			frames: []frame{
				text(`{"type":"status","data":{"status":{}}}`),
				{kind: websocket.BinaryMessage, data: "preview"},
				text(`{"type":"executing","data":{"node":"3","prompt_id":"p1"}}`),
				text(`{"type":"executing","data":{"node":null,"prompt_id":"other"}}`),
				text(`not json`),
				text(`{"type":"executing","data":{"node":null,"prompt_id":"p1"}}`),
			},
			want: OutcomeCompleted,
		},
		{
			name: "error",
			frames: []frame{
				text(`{"type":"execution_error","data":{"prompt_id":"p1","node_type":"KSampler","exception_message":"out of memory"}}`),
			},
			want:   OutcomeFailed,
			detail: "KSampler: out of memory",
		},
		{
			name:   "interrupted",
			frames: []frame{text(`{"type":"execution_interrupted","data":{"prompt_id":"p1"}}`)},
			want:   OutcomeFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := waitForCompletion(context.Background(), newScriptedConn(tc.frames...), "p1")
			if res.Outcome != tc.want {
				t.Fatalf("outcome = %s, want %s", res.Outcome, tc.want)
			}
			if tc.detail != "" && res.Detail != tc.detail {
				t.Fatalf("detail = %q, want %q", res.Detail, tc.detail)
			}
		})
	}
}

func TestWaitForCompletionChannelClosed(t *testing.T) {
	conn := newScriptedConn()
	conn.Close()
	res := waitForCompletion(context.Background(), conn, "p1")
	if res.Outcome != OutcomeChannelClosed {
		t.Fatalf("outcome = %s", res.Outcome)
	}
}

func TestWaitForCompletionDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := waitForCompletion(ctx, newScriptedConn(), "p1")
	if res.Outcome != OutcomeTimedOut {
		t.Fatalf("outcome = %s", res.Outcome)
	}
}

func TestWaitForCompletionCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	res := waitForCompletion(ctx, newScriptedConn(), "p1")
	if res.Outcome != OutcomeCanceled {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatalf("ctx err = %v", ctx.Err())
	}
}
