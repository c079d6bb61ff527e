package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePort_DeterministicForSameRepoID(t *testing.T) {
	p1 := DerivePort("repo-abc", 10000, 20000)
	p2 := DerivePort("repo-abc", 10000, 20000)
	assert.Equal(t, p1, p2)
	assert.GreaterOrEqual(t, p1, 10000)
	assert.Less(t, p1, 20000)
}

func TestDerivePort_DifferentRepoIDsLikelyDiffer(t *testing.T) {
	p1 := DerivePort("repo-abc", 10000, 20000)
	p2 := DerivePort("repo-xyz", 10000, 20000)
	assert.NotEqual(t, p1, p2)
}

func TestDerivePort_DegenerateRangeReturnsStart(t *testing.T) {
	assert.Equal(t, 5000, DerivePort("anything", 5000, 5000))
	assert.Equal(t, 5000, DerivePort("anything", 5000, 4000))
}

func TestPublicCloneURL_UsesConfiguredPublicBase(t *testing.T) {
	out, err := PublicCloneURL("http://forge-internal:3000/acme/proj.git", "https://git.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://git.example.com/acme/proj.git", out)
}

func TestPublicCloneURL_StripsPortWhenNoPublicBaseConfigured(t *testing.T) {
	out, err := PublicCloneURL("http://forge-internal:3000/acme/proj.git", "")
	require.NoError(t, err)
	assert.Equal(t, "https://forge-internal/acme/proj.git", out)
}

func TestBaseEnvVars_IncludesAllFields(t *testing.T) {
	env := BaseEnvVars(4096, "0.0.0.0", "https://forge/repo.git", "bot", "tok", "bot@example.com", "Bot", "my-project")
	assert.Equal(t, "4096", env["OPENCODE_PORT"])
	assert.Equal(t, "https://forge/repo.git", env["FORGEJO_REPO_URL"])
	assert.Equal(t, "my-project", env["PROJECT_NAME"])
}

func TestMergeEnv_BaseWinsOnCollision(t *testing.T) {
	credential := map[string]string{"SHARED": "from-credential", "ONLY_CRED": "cred-value"}
	base := map[string]string{"SHARED": "from-base", "ONLY_BASE": "base-value"}

	merged := MergeEnv(credential, base)
	assert.Equal(t, "from-base", merged["SHARED"])
	assert.Equal(t, "cred-value", merged["ONLY_CRED"])
	assert.Equal(t, "base-value", merged["ONLY_BASE"])
}

func TestPortsExposesString(t *testing.T) {
	assert.Equal(t, "4096,4097,4098", PortsExposesString([]int{4096, 4097, 4098}))
	assert.Equal(t, "", PortsExposesString(nil))
}
