package claims

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelguard/insurance-core/errs"
)

func TestValidateReadOnly_AcceptsSelect(t *testing.T) {
	require.NoError(t, ValidateReadOnly("SELECT * FROM claims WHERE id = 1"))
}

func TestValidateReadOnly_AcceptsWithCTE(t *testing.T) {
	require.NoError(t, ValidateReadOnly("WITH cte AS (SELECT 1) SELECT * FROM cte"))
}

func TestValidateReadOnly_RejectsDelete(t *testing.T) {
	err := ValidateReadOnly("DELETE FROM claims WHERE 1=1")
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

func TestValidateReadOnly_StripsLineComments(t *testing.T) {
	require.NoError(t, ValidateReadOnly("SELECT * FROM claims -- DROP TABLE claims"))
}

func TestValidateReadOnly_WholeWordAvoidsFalsePositive(t *testing.T) {
	require.NoError(t, ValidateReadOnly("SELECT INSERTED_AT FROM claims"))
}

func TestValidateReadOnly_WholeWordCatchesColumnNamedDropMe(t *testing.T) {
	err := ValidateReadOnly("SELECT DROP_ME FROM claims")
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

func TestValidateReadOnly_RejectsNonSelectShape(t *testing.T) {
	err := ValidateReadOnly("EXPLAIN SELECT * FROM claims")
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

func TestValidateReadOnly_EmptyRejected(t *testing.T) {
	err := ValidateReadOnly("   ")
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}
