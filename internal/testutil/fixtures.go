package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rxdoc/internal/schema"
	"github.com/roach88/rxdoc/internal/store"
)

// HumanSchema is the schema most tests use.
const HumanSchema = `
#Document: {
	passportId: string @primary()
	firstName:  string
	lastName?:  string
	age?:       int & >=0 & <=150
}
`

// CompileHuman compiles HumanSchema under the id "human".
func CompileHuman(t testing.TB) *schema.Schema {
	t.Helper()
	s, err := schema.Compile("human", HumanSchema)
	require.NoError(t, err)
	return s
}

// OpenStore opens a store in a temp dir that is closed when the test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
