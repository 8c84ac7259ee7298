package nodegraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// Outcome is the terminal state of a completion wait.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeTimedOut
	OutcomeCanceled
	OutcomeChannelClosed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed-out"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeChannelClosed:
		return "channel-closed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// WaitResult carries the outcome and, for failures, the server's message.
type WaitResult struct {
	Outcome Outcome
	Detail  string
}

type event struct {
	Type string `json:"type"`
	Data struct {
		Node             json.RawMessage `json:"node"`
		PromptID         string          `json:"prompt_id"`
		ExceptionType    string          `json:"exception_type"`
		ExceptionMessage string          `json:"exception_message"`
		NodeType         string          `json:"node_type"`
	} `json:"data"`
}

// eventConn is the read side of the event channel.
type eventConn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

// waitForCompletion reads events until the graph identified by promptID has
// finished executing, failed, or ctx expires. The whole graph is done when
// an "executing" event reports a null node for that prompt.
func waitForCompletion(ctx context.Context, conn eventConn, promptID string) WaitResult {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(ctx.Err(), context.DeadlineExceeded):
				return WaitResult{Outcome: OutcomeTimedOut, Detail: "deadline exceeded waiting for completion"}
			case ctx.Err() != nil:
				return WaitResult{Outcome: OutcomeCanceled, Detail: ctx.Err().Error()}
			default:
				return WaitResult{Outcome: OutcomeChannelClosed, Detail: err.Error()}
			}
		}
		if kind != websocket.TextMessage {
			continue
		}
		var ev event
		if err := json.Unmarshal(payload, &ev); err != nil || ev.Data.PromptID != promptID {
			continue
		}
		switch ev.Type {
		case "executing":
			if string(ev.Data.Node) == "null" {
				return WaitResult{Outcome: OutcomeCompleted}
			}
		case "execution_error":
			detail := ev.Data.ExceptionMessage
			if ev.Data.NodeType != "" {
				detail = ev.Data.NodeType + ": " + detail
			}
			return WaitResult{Outcome: OutcomeFailed, Detail: detail}
		case "execution_interrupted":
			return WaitResult{Outcome: OutcomeFailed, Detail: "execution interrupted"}
		}
	}
}
