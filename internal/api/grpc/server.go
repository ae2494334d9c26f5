package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/hrload/hrload/internal/auth"
	hrerrors "github.com/hrload/hrload/internal/errors"
	"github.com/hrload/hrload/internal/loader"
)

// Loader runs insert requests.
type Loader interface {
	Load(ctx context.Context, batches []loader.TableBatch) (*loader.Result, error)
}

// BackupService backs up and restores whole tables.
type BackupService interface {
	Backup(ctx context.Context, table string) (string, error)
	Restore(ctx context.Context, table string) (string, error)
}

// Server implements LoaderServer on top of the same loader and backup
// service as the HTTP API.
type Server struct {
	loader  Loader
	backups BackupService
}

// NewServer creates a new gRPC loader server.
func NewServer(l Loader, backups BackupService) *Server {
	return &Server{loader: l, backups: backups}
}

// Insert handles a batch of table-groups. The request list has the same
// shape as the HTTP insert body.
func (s *Server) Insert(ctx context.Context, req *structpb.ListValue) (*structpb.Struct, error) {
	raw, err := json.Marshal(req.AsSlice())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	var batches []loader.TableBatch
	if err := json.Unmarshal(raw, &batches); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	result, err := s.loader.Load(ctx, batches)
	if err != nil {
		return nil, toStatus(ctx, "insert", err)
	}
	return toStruct(result)
}

// Backup snapshots one table.
func (s *Server) Backup(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	table := req.GetValue()
	location, err := s.backups.Backup(ctx, table)
	if err != nil {
		return nil, toStatus(ctx, "backup", err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"message": "Backup of " + table + " completed",
		"file":    location,
	})
}

// Restore replays one table's snapshot.
func (s *Server) Restore(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	msg, err := s.backups.Restore(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(ctx, "restore", err)
	}
	return structpb.NewStruct(map[string]interface{}{"message": msg})
}

// toStruct converts a JSON-serializable value into a protobuf Struct.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "Internal Server Error")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "Internal Server Error")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "Internal Server Error")
	}
	return out, nil
}

// toStatus maps error kinds to gRPC codes. Internal details are logged and
// not returned.
func toStatus(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, hrerrors.ErrInvalidTableName):
		return status.Error(codes.InvalidArgument, "Invalid table name")
	case errors.Is(err, hrerrors.ErrBackupNotFound):
		return status.Error(codes.NotFound, "Backup not found")
	case errors.Is(err, hrerrors.ErrCorruptSnapshot):
		logFailure(ctx, op, err)
		return status.Error(codes.DataLoss, "Corrupt snapshot")
	case errors.Is(err, hrerrors.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "Unauthorized")
	default:
		logFailure(ctx, op, err)
		return status.Error(codes.Internal, "Internal Server Error")
	}
}

func logFailure(ctx context.Context, op string, err error) {
	category, code := string(hrerrors.GetCategory(err)), hrerrors.GetCode(err)
	if category == "" {
		category, code = "UNCLASSIFIED", "-"
	}
	log.Printf("grpc: %s failed [%s/%s] (request %s): %v", op, category, code, extractRequestID(ctx), err)
}

type requestIDKey struct{}

// extractRequestID returns the request ID set by the interceptor, the one
// sent in metadata, or a fresh one.
func extractRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}

// AuthInterceptor requires a valid bearer token in the "authorization"
// metadata key on every call.
func AuthInterceptor(authn *auth.Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx = context.WithValue(ctx, requestIDKey{}, extractRequestID(ctx))

		md, _ := metadata.FromIncomingContext(ctx)
		var header string
		if values := md.Get("authorization"); len(values) > 0 {
			header = values[0]
		}
		if _, err := authn.VerifyHeader(header); err != nil {
			return nil, status.Error(codes.Unauthenticated, "Unauthorized")
		}
		return handler(ctx, req)
	}
}
