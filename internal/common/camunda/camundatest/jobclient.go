// Package camundatest provides an in-memory worker.JobClient for handler tests.
package camundatest

import (
	"context"
	"sync"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"google.golang.org/grpc"
)

// Sent is one job command received by the gateway.
type Sent struct {
	Command      string
	JobKey       int64
	Retries      int32
	ErrorCode    string
	ErrorMessage string
	Variables    string
	// CtxErr is the state of the send context when the command arrived.
	CtxErr       error
}

// JobClient records every complete, fail and throw-error command sent through it.
type JobClient struct {
	gw *gateway
}

func NewJobClient() *JobClient {
	return &JobClient{gw: &gateway{}}
}

func (c *JobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gw, noRetry)
}

func (c *JobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gw, noRetry)
}

func (c *JobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gw, noRetry)
}

// FailWith makes every later command return err.
func (c *JobClient) FailWith(err error) {
	c.gw.mu.Lock()
	defer c.gw.mu.Unlock()
	c.gw.err = err
}

// Sent returns the recorded commands in arrival order.
func (c *JobClient) Sent() []Sent {
	c.gw.mu.Lock()
	defer c.gw.mu.Unlock()
	return append([]Sent(nil), c.gw.sent...)
}

func noRetry(context.Context, error) bool { return false }

type gateway struct {
	pb.GatewayClient

	mu   sync.Mutex
	sent []Sent
	err  error
}

func (g *gateway) record(ctx context.Context, s Sent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s.CtxErr = ctx.Err()
	g.sent = append(g.sent, s)
	return g.err
}

func (g *gateway) CompleteJob(ctx context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	if err := g.record(ctx, Sent{Command: "complete", JobKey: in.JobKey, Variables: in.Variables}); err != nil {
		return nil, err
	}
	return &pb.CompleteJobResponse{}, nil
}

func (g *gateway) FailJob(ctx context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	err := g.record(ctx, Sent{
		Command:      "fail",
		JobKey:       in.JobKey,
		Retries:      in.Retries,
		ErrorMessage: in.ErrorMessage,
		Variables:    in.Variables,
	})
	if err != nil {
		return nil, err
	}
	return &pb.FailJobResponse{}, nil
}

func (g *gateway) ThrowError(ctx context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	err := g.record(ctx, Sent{
		Command:      "throwError",
		JobKey:       in.JobKey,
		ErrorCode:    in.ErrorCode,
		ErrorMessage: in.ErrorMessage,
		Variables:    in.Variables,
	})
	if err != nil {
		return nil, err
	}
	return &pb.ThrowErrorResponse{}, nil
}
