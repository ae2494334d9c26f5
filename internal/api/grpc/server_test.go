package grpc

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/hrload/hrload/internal/auth"
	"github.com/hrload/hrload/internal/backup"
	"github.com/hrload/hrload/internal/loader"
	"github.com/hrload/hrload/internal/schema"
	"github.com/hrload/hrload/internal/storage"
	"github.com/hrload/hrload/internal/store"
)

type testEnv struct {
	client *LoaderClient
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "hr.db"), schema.DefaultRegistry(), store.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	objects, err := storage.NewLocalStorage(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	authn, err := auth.New(auth.Config{Username: "admin", Password: "s3cret", Secret: "test-secret", TokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}
	token, err := authn.Login("admin", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(AuthInterceptor(authn)))
	RegisterLoaderServer(srv, NewServer(
		loader.New(st.Registry(), st, st),
		backup.NewService(st.Registry(), st, objects, backup.DefaultConfig()),
	))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &testEnv{client: NewLoaderClient(conn), token: token}
}

func (e *testEnv) ctx() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+e.token)
}

func TestServer_Insert(t *testing.T) {
	env := newTestEnv(t)

	req, err := structpb.NewList([]interface{}{
		map[string]interface{}{
			"table": "departments",
			"data": []interface{}{
				map[string]interface{}{"department": "Sales"},
				map[string]interface{}{"department": ""},
			},
		},
	})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	resp, err := env.client.Insert(env.ctx(), req)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	invalid := resp.GetFields()["invalid_data"].GetListValue().GetValues()
	inserted := resp.GetFields()["inserted_data"].GetListValue().GetValues()
	if len(invalid) != 1 {
		t.Errorf("invalid_data count mismatch: got %d, want 1", len(invalid))
	}
	if len(inserted) != 1 {
		t.Fatalf("inserted_data count mismatch: got %d, want 1", len(inserted))
	}
	row := inserted[0].GetStructValue().GetFields()
	if row["department"].GetStringValue() != "Sales" {
		t.Errorf("department mismatch: got %v", row["department"])
	}
	if row["id"].GetNumberValue() < 1 {
		t.Errorf("expected an assigned id, got %v", row["id"])
	}
}

func TestServer_ErrorCodes(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client.Backup(env.ctx(), wrapperspb.String("unknown_table"))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("unknown table code mismatch: got %v, want %v", status.Code(err), codes.InvalidArgument)
	}

	_, err = env.client.Restore(env.ctx(), wrapperspb.String("jobs"))
	if status.Code(err) != codes.NotFound {
		t.Errorf("missing backup code mismatch: got %v, want %v", status.Code(err), codes.NotFound)
	}

	_, err = env.client.Backup(context.Background(), wrapperspb.String("jobs"))
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("missing token code mismatch: got %v, want %v", status.Code(err), codes.Unauthenticated)
	}
}

func TestServer_BackupRestore(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.client.Backup(env.ctx(), wrapperspb.String("jobs"))
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if file := resp.GetFields()["file"].GetStringValue(); !strings.HasSuffix(file, "jobs.snap") {
		t.Errorf("file mismatch: got %q", file)
	}

	resp, err = env.client.Restore(env.ctx(), wrapperspb.String("jobs"))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if msg := resp.GetFields()["message"].GetStringValue(); !strings.HasPrefix(msg, "restored 0 rows into jobs") {
		t.Errorf("message mismatch: got %q", msg)
	}
}
