package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/crackersbazaar/api/internal/repositories"
)

var errNoDocument = status.Error(codes.NotFound, "firestore: no matching document")

// WrapError annotates Firestore errors with repository semantics. Context cancellations and errors that
// already carry repository semantics are passed through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}

	return &repositories.Error{Op: op, Kind: kindForCode(code), Err: err}
}

// IsNotFound reports whether err is a Firestore NotFound status.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func kindForCode(code codes.Code) repositories.ErrorKind {
	switch code {
	case codes.NotFound:
		return repositories.ErrorKindNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return repositories.ErrorKindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		return repositories.ErrorKindUnavailable
	}
	return repositories.ErrorKindUnknown
}
