package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	values map[string]string
}

func (f fakeStore) Resolve(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

func TestGetPrecedenceRuntimeOverridesEnv(t *testing.T) {
	t.Setenv("SECRET_TEST_KEY", "from-env")
	c := New(nil)
	c.Set("SECRET_TEST_KEY", "from-runtime")
	assert.Equal(t, "from-runtime", c.Get("SECRET_TEST_KEY"))
}

func TestGetFallsBackToEnv(t *testing.T) {
	t.Setenv("SECRET_TEST_KEY_2", "from-env")
	c := New(nil)
	assert.Equal(t, "from-env", c.Get("SECRET_TEST_KEY_2"))
}

func TestGetFallsBackToBackingStore(t *testing.T) {
	c := New(fakeStore{values: map[string]string{"VAULT_KEY": "from-vault"}})
	assert.Equal(t, "from-vault", c.Get("VAULT_KEY"))
}

func TestGetMissesEverywhereReturnsEmpty(t *testing.T) {
	c := New(nil)
	assert.Equal(t, "", c.Get("TOTALLY_UNSET_KEY_XYZ"))
}

func TestNilStoreDefaultsToNoop(t *testing.T) {
	c := New(nil)
	assert.Equal(t, "", c.Get("ANYTHING"))
}
