package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_FollowsSemverOrDev(t *testing.T) {
	if Version == "dev" {
		return
	}
	semver := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	require.True(t, semver.MatchString(Version), "got %s", Version)
}

func TestString_ContainsBuildInfo(t *testing.T) {
	// Given: the default build variables

	// When: formatting the version line
	str := String()

	// Then: program name, version, commit and platform are present
	assert.Contains(t, str, Name)
	assert.Contains(t, str, Version)
	assert.Contains(t, str, "commit: "+Commit)
	assert.Contains(t, str, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestShort_ReturnsVersion(t *testing.T) {
	assert.Equal(t, Version, Short())
}

func TestGetInfo_JSON(t *testing.T) {
	info := GetInfo()

	data, err := json.Marshal(info)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Version, decoded["version"])
	assert.Equal(t, runtime.GOOS, decoded["os"])
	assert.Equal(t, runtime.Version(), decoded["go_version"])
}
