package proxy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/abdhe/chat-router/pkg/provider"
	"github.com/abdhe/chat-router/pkg/resilience"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "chatrouter.v1.ChatRouter"

// RequestIDHeader carries the request id in gRPC headers.
const RequestIDHeader = "x-request-id"

// ChatRouterServer is the server API for the ChatRouter service. Messages are
// well-known Struct values shaped like the HTTP JSON bodies.
type ChatRouterServer interface {
	Generate(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

func generateHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatRouterServer).Generate(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc describes the ChatRouter service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatRouterServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Generate",
			Handler:       generateHandler,
			ServerStreams: true,
		},
	},
	Metadata: "chatrouter/v1/chatrouter.proto",
}

// RegisterChatRouterServer registers srv with s.
func RegisterChatRouterServer(s grpc.ServiceRegistrar, srv ChatRouterServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// GRPCServer implements ChatRouterServer on top of a Handler.
type GRPCServer struct {
	h *Handler
}

// NewGRPCServer creates the gRPC service.
func NewGRPCServer(h *Handler) *GRPCServer {
	return &GRPCServer{h: h}
}

// Generate streams the events of one request. Failures end the stream with a
// status instead of an error event.
func (s *GRPCServer) Generate(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	req, err := decodeRequest(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	ctx := stream.Context()
	requestID, events, err := s.h.Stream(ctx, req)
	if err != nil {
		return statusFromError(err)
	}
	if err := stream.SendHeader(metadata.Pairs(RequestIDHeader, requestID)); err != nil {
		return err
	}

	for ev := range events {
		if ev.Kind == provider.EventError {
			return statusFromError(ev.Err)
		}
		msg, err := encodeEvent(ev, requestID)
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		if err := stream.Send(msg); err != nil {
			return fmt.Errorf("stream send: %w", err)
		}
	}
	return nil
}

// statusFromError maps the error taxonomy onto gRPC codes.
func statusFromError(err error) error {
	if errors.Is(err, ErrInvalidRequest) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	switch resilience.Classify(err) {
	case resilience.KindCanceled:
		return status.Error(codes.Canceled, err.Error())
	case resilience.KindConfiguration:
		return status.Error(codes.FailedPrecondition, err.Error())
	case resilience.KindTransient:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Client calls a remote ChatRouter service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Generate sends req and delivers the decoded events to emit until the
// stream ends. It returns the final result.
func (c *Client) Generate(ctx context.Context, req GenerateRequest, emit provider.Emitter) (provider.Result, error) {
	in, err := encodeRequest(req)
	if err != nil {
		return provider.Result{}, err
	}

	// Cancelling releases the stream once the result arrived.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cs, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Generate")
	if err != nil {
		return provider.Result{}, errorFromStatus(err)
	}
	stream := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: cs}
	if err := stream.SendMsg(in); err != nil {
		return provider.Result{}, errorFromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return provider.Result{}, errorFromStatus(err)
	}

	for {
		msg, err := stream.Recv()
		if err != nil {
			return provider.Result{}, errorFromStatus(err)
		}
		ev, err := DecodeEvent(msg)
		if err != nil {
			return provider.Result{}, err
		}
		if ev.Kind == provider.EventDone {
			return *ev.Result, nil
		}
		emit.Emit(ev)
	}
}

// RemoteError is a failure reported over gRPC. It keeps the status for
// status.Code and unwraps to the local error taxonomy.
type RemoteError struct {
	st    *status.Status
	cause error
}

func (e *RemoteError) Error() string {
	return e.st.Message()
}

// GRPCStatus returns the status the server ended the stream with.
func (e *RemoteError) GRPCStatus() *status.Status { return e.st }

func (e *RemoteError) Unwrap() error { return e.cause }

// errorFromStatus is the inverse of statusFromError.
func errorFromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		if resilience.IsCanceled(err) {
			return &RemoteError{st: status.FromContextError(err), cause: resilience.Canceled(err)}
		}
		return err
	}
	var cause error
	switch st.Code() {
	case codes.OK:
		return err
	case codes.Canceled:
		cause = resilience.Canceled(context.Canceled)
	case codes.DeadlineExceeded:
		cause = resilience.Canceled(context.DeadlineExceeded)
	case codes.InvalidArgument:
		cause = ErrInvalidRequest
	case codes.FailedPrecondition:
		cause = resilience.ErrConfiguration
	case codes.Unavailable, codes.ResourceExhausted:
		cause = resilience.ErrUnavailable
	}
	if cause != nil && strings.TrimSpace(st.Message()) == "" {
		st = status.New(st.Code(), cause.Error())
	}
	return &RemoteError{st: st, cause: cause}
}
