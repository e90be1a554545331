package inference

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

// LandmarkServer is the server side of the landmark service.
type LandmarkServer interface {
	Detect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var landmarkServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*LandmarkServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Detect",
		Handler:    detectHandler,
	}},
	Streams:  []grpc.StreamDesc{},
	Metadata: "landmarks.proto",
}

func detectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LandmarkServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: detectMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LandmarkServer).Detect(ctx, req.(*structpb.Struct))
	})
}

// modelService serves any LandmarkModel over gRPC.
type modelService struct {
	model  ports.LandmarkModel
	logger *zap.SugaredLogger
}

// RegisterLandmarkService exposes model on s.
func RegisterLandmarkService(s *grpc.Server, model ports.LandmarkModel, logger *zap.SugaredLogger) {
	s.RegisterService(&landmarkServiceDesc, &modelService{model: model, logger: logger.With("component", "landmark-service")})
}

func (s *modelService) Detect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	frame, ts, err := decodeFrame(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	landmarks, err := s.model.Detect(ctx, frame, ts)
	if err != nil {
		s.logger.Debugw("detect failed", "error", err)
		return nil, status.Error(statusCode(err), err.Error())
	}
	resp, err := encodeLandmarks(landmarks)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrModelReleased), errors.Is(err, domain.ErrModelNotReady):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, domain.ErrMalformedPayload):
		return codes.InvalidArgument
	}
	return codes.Internal
}
