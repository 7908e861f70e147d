package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("pool exhausted")
	err := Wrap(Unavailable, root, "sandbox connection pool exhausted").
		WithAction(ActionRetry)

	require.Equal(t, Unavailable, KindOf(err))
	require.True(t, Is(err, Unavailable))
	require.True(t, errors.Is(err, root))
	require.Equal(t, 503, HTTPStatus(KindOf(err)))
	require.NotEmpty(t, err.Error())
}

func TestHTTPStatus_AllKinds(t *testing.T) {
	t.Parallel()

	cases := map[Kind]int{
		InvalidArgument:    400,
		Unauthorized:       401,
		NotFound:           404,
		Duplicate:          409,
		PreconditionFailed: 412,
		Unavailable:        503,
		Runtime:            500,
	}
	for kind, want := range cases {
		require.Equal(t, want, HTTPStatus(kind), "kind=%s", kind)
	}
}

func TestKindOf_NonTaggedError(t *testing.T) {
	t.Parallel()

	require.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
