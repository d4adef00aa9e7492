package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "ai.speech.pacing.PacedTranscriptionService"

	// StreamAudioMethod is the full method name of the audio stream.
	StreamAudioMethod = "/" + ServiceName + "/StreamAudio"
)

// Stream metadata keys.
const (
	MetadataInteractionID = "interaction-id"
	MetadataTenantID      = "tenant-id"
	MetadataEmitAt        = "emit-at"
	MetadataDelayMs       = "delay-ms"
	MetadataObjectMode    = "object-mode"
)

// AudioStream is the server side of StreamAudio: audio frames in, paced
// events out.
type AudioStream = grpc.BidiStreamingServer[wrapperspb.BytesValue, structpb.Struct]

// PacedTranscriptionServiceServer is the server API.
type PacedTranscriptionServiceServer interface {
	StreamAudio(AudioStream) error
}

// ServiceDesc describes the service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PacedTranscriptionServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamAudio",
			Handler:       streamAudioHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func streamAudioHandler(srv any, stream grpc.ServerStream) error {
	return srv.(PacedTranscriptionServiceServer).StreamAudio(
		&grpc.GenericServerStream[wrapperspb.BytesValue, structpb.Struct]{ServerStream: stream})
}

// RegisterPacedTranscriptionServiceServer registers srv with s.
func RegisterPacedTranscriptionServiceServer(s grpc.ServiceRegistrar, srv PacedTranscriptionServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is the client API.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client on an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// StreamAudio opens an audio stream. Per-stream options travel as outgoing
// metadata on ctx.
func (c *Client) StreamAudio(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[wrapperspb.BytesValue, structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], StreamAudioMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[wrapperspb.BytesValue, structpb.Struct]{ClientStream: stream}, nil
}
