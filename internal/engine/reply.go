package engine

import (
	"context"

	"github.com/ggoodman/mcp-bridge-go/internal/jsonrpc"
)

// Reply is the outcome of routing one request. Wait returns the response to
// write. For most methods the response is ready when Route returns; a tool
// that deferred its result makes Wait block until the result settles or ctx
// ends. Wait is called outside the serialized execution context.
type Reply interface {
	Wait(ctx context.Context) *jsonrpc.Response
}

type immediateReply struct {
	resp *jsonrpc.Response
}

func (r immediateReply) Wait(context.Context) *jsonrpc.Response { return r.resp }

// Respond wraps a ready response.
func Respond(resp *jsonrpc.Response) Reply {
	if resp == nil {
		return nil
	}
	return immediateReply{resp: resp}
}

type deferredReply struct {
	build func(ctx context.Context) *jsonrpc.Response
}

func (r *deferredReply) Wait(ctx context.Context) *jsonrpc.Response {
	return r.build(ctx)
}

// IsDeferred reports whether waiting on rep may block.
func IsDeferred(rep Reply) bool {
	_, ok := rep.(*deferredReply)
	return ok
}
