package turns

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// TurnServer is the server API for the turn service.
type TurnServer interface {
	SubmitTurn(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TurnServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubmitTurn",
			Handler:       submitTurnHandler,
			ServerStreams: true,
		},
	},
}

func submitTurnHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TurnServer).SubmitTurn(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// Client calls the turn service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// SubmitTurn sends one round and returns the event stream.
func (c *Client) SubmitTurn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], SubmitTurnMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
