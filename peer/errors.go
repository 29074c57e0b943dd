package peer

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/dagstore/dag"
	"xdao.co/dagstore/storage"
)

// ErrIncomplete is returned by Pull when a Full response omits a node
// reachable from the root.
var ErrIncomplete = errors.New("peer: incomplete dag in response")

// mapRPC turns a gRPC status back into the storage/dag errors the server
// started from.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		// Server uses InvalidArgument for malformed/undefined CIDs.
		return storage.ErrInvalidCID
	case codes.DataLoss:
		// Server uses DataLoss when a stored node fails verification.
		return storage.ErrCIDMismatch
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", dag.ErrTraversalLimit, st.Message())
	default:
		return err
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case storage.IsNotFound(err):
		return status.Error(codes.NotFound, storage.ErrNotFound.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, dag.ErrTraversalLimit):
		return status.Error(codes.ResourceExhausted, err.Error())
	case dag.IsKind(err, dag.KindIntegrity):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, storage.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
