package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/abelt/coinflip-services/internal/comm"
)

// NatsSubmitter delivers submissions to the engine over NATS
// request/reply. The reply is the engine's acceptance verdict, not the
// eventual match outcome.
type NatsSubmitter struct {
	Conn *nats.Conn
}

func NewNatsSubmitter(nc *nats.Conn) *NatsSubmitter {
	return &NatsSubmitter{Conn: nc}
}

func (s *NatsSubmitter) Submit(ctx context.Context, sub *comm.Submission) (*comm.SubmissionResult, error) {
	data, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}

	msg, err := s.Conn.RequestWithContext(ctx, comm.SubjectSubmit, data)
	if err != nil {
		return nil, fmt.Errorf("submission transport: %w", err)
	}

	result := &comm.SubmissionResult{}
	if err := json.Unmarshal(msg.Data, result); err != nil {
		return nil, fmt.Errorf("unmarshal submission result: %w", err)
	}
	return result, nil
}
