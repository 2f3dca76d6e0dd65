package simd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/config"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/logger"
)

// ExperimentServiceName is the fully qualified gRPC service name
const ExperimentServiceName = "tcpsim.v1.ExperimentService"

// ExperimentServiceServer is the server API of the experiment service. Requests
// and responses are google.protobuf.Struct documents.
type ExperimentServiceServer interface {
	CreateRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(call func(ExperimentServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error), method string) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ExperimentServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ExperimentServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ExperimentServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ExperimentServiceDesc describes the experiment service for grpc.Server
var ExperimentServiceDesc = grpc.ServiceDesc{
	ServiceName: ExperimentServiceName,
	HandlerType: (*ExperimentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateRun", Handler: unaryHandler(ExperimentServiceServer.CreateRun, "CreateRun")},
		{MethodName: "GetRun", Handler: unaryHandler(ExperimentServiceServer.GetRun, "GetRun")},
		{MethodName: "ListRuns", Handler: unaryHandler(ExperimentServiceServer.ListRuns, "ListRuns")},
		{MethodName: "StopRun", Handler: unaryHandler(ExperimentServiceServer.StopRun, "StopRun")},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tcpsim/v1/experiment.proto",
}

// ExperimentGRPCServer implements ExperimentServiceServer on a RunStore and RunExecutor.
type ExperimentGRPCServer struct {
	store    *RunStore
	Executor *RunExecutor
	health   *health.Server
}

func NewExperimentGRPCServer(store *RunStore, executor *RunExecutor) *ExperimentGRPCServer {
	return &ExperimentGRPCServer{
		store:    store,
		Executor: executor,
		health:   health.NewServer(),
	}
}

// Register adds the experiment service and the standard health service to gs
func (s *ExperimentGRPCServer) Register(gs *grpc.Server) {
	gs.RegisterService(&ExperimentServiceDesc, s)
	healthpb.RegisterHealthServer(gs, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ExperimentServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Shutdown reports NOT_SERVING to health checkers
func (s *ExperimentGRPCServer) Shutdown() {
	s.health.Shutdown()
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	if v, ok := req.Fields[name]; ok {
		return v.GetStringValue()
	}
	return ""
}

func numberField(req *structpb.Struct, name string) int {
	if req == nil {
		return 0
	}
	if v, ok := req.Fields[name]; ok {
		return int(v.GetNumberValue())
	}
	return 0
}

// decodeConfig overlays a config document onto the defaults
func decodeConfig(doc map[string]interface{}) (*config.Config, error) {
	cfg := config.Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFromRequest(req *structpb.Struct) (*config.Config, error) {
	var doc *structpb.Struct
	if req != nil {
		if v, ok := req.Fields["config"]; ok {
			doc = v.GetStructValue()
		}
	}
	yamlText := stringField(req, "config_yaml")
	switch {
	case doc != nil && yamlText != "":
		return nil, errors.New("only one of config and config_yaml may be set")
	case doc != nil:
		return decodeConfig(doc.AsMap())
	case yamlText != "":
		return config.ParseConfigYAMLString(yamlText)
	}
	return nil, errors.New("config or config_yaml is required")
}

// toStruct converts a JSON-encodable value to a Struct
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrRunExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrRunTerminal):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrRunIDMissing), errors.Is(err, ErrRunIDInvalid):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func (s *ExperimentGRPCServer) CreateRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cfg, err := configFromRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	callbackURL := stringField(req, "callback_url")
	if err := validateCallbackURL(callbackURL); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rec, err := s.store.Create(stringField(req, "run_id"), cfg, callbackURL)
	if err != nil {
		return nil, grpcError(err)
	}
	started, err := s.Executor.Start(rec.Run.ID)
	if err != nil {
		return nil, grpcError(err)
	}

	logger.Info("run created (gRPC)", "run_id", started.Run.ID)
	return toStruct(map[string]any{"run": newRunView(started, s.Executor)})
}

func (s *ExperimentGRPCServer) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID := stringField(req, "run_id")
	if runID == "" {
		return nil, status.Error(codes.InvalidArgument, ErrRunIDMissing.Error())
	}
	rec, ok := s.store.Get(runID)
	if !ok {
		return nil, status.Error(codes.NotFound, "run not found")
	}
	resp := map[string]any{"run": newRunView(rec, s.Executor)}
	if rec.Summary != nil {
		resp["summary"] = rec.Summary.GoodputSummary
	}
	return toStruct(resp)
}

func (s *ExperimentGRPCServer) ListRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := numberField(req, "limit")
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := numberField(req, "offset")
	if offset < 0 {
		offset = 0
	}
	filter, ok := parseRunStatus(stringField(req, "status"))
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "invalid status filter")
	}

	recs := s.store.List(limit, offset, filter)
	views := make([]runView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, newRunView(rec, s.Executor))
	}
	return toStruct(map[string]any{"runs": views})
}

func (s *ExperimentGRPCServer) StopRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID := stringField(req, "run_id")
	if runID == "" {
		return nil, status.Error(codes.InvalidArgument, ErrRunIDMissing.Error())
	}
	updated, err := s.Executor.Stop(runID)
	if err != nil {
		return nil, grpcError(err)
	}
	logger.Info("run cancelled (gRPC)", "run_id", runID)
	return toStruct(map[string]any{"run": newRunView(updated, s.Executor)})
}
