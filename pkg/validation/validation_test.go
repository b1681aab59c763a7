package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRepositoryName(t *testing.T) {
	tests := []struct {
		name    string
		repo    string
		wantErr bool
	}{
		{"simple name", "myapp", false},
		{"nested path", "myorg/myapp", false},
		{"deeply nested", "a/b/c/d", false},
		{"with separators", "my-org/my_app.v2", false},
		{"empty", "", true},
		{"uppercase rejected", "MyApp", true},
		{"leading separator", "-myapp", true},
		{"trailing separator", "myapp-", true},
		{"adjacent separators", "my--app", true},
		{"path traversal", "../etc/passwd", true},
		{"empty component", "myorg//myapp", true},
		{"too long", strings.Repeat("a", 257), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRepositoryName(tt.repo)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		wantErr bool
	}{
		{"latest", "latest", false},
		{"semver", "v1.0.0", false},
		{"underscore start", "_internal", false},
		{"mixed case", "Build-42", false},
		{"empty", "", true},
		{"dot start", ".hidden", true},
		{"dash start", "-bad", true},
		{"too long", strings.Repeat("a", 129), true},
		{"max length ok", strings.Repeat("a", 128), false},
		{"slash rejected", "a/b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTag(tt.tag)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDigest(t *testing.T) {
	valid := "sha256:" + strings.Repeat("a", 64)

	assert.NoError(t, ValidateDigest(valid))
	assert.True(t, IsDigest(valid))

	for _, bad := range []string{
		"",
		"sha256",
		"sha256:",
		"sha256:xyz",
		"sha256:" + strings.Repeat("a", 63),
		"latest",
		"uploads/" + strings.Repeat("a", 64),
	} {
		assert.Error(t, ValidateDigest(bad), "expected %q to be invalid", bad)
		assert.False(t, IsDigest(bad))
	}
}

func TestValidateUUID(t *testing.T) {
	assert.NoError(t, ValidateUUID("550e8400-e29b-41d4-a716-446655440000"))
	assert.Error(t, ValidateUUID(""))
	assert.Error(t, ValidateUUID("not-a-uuid"))
	assert.Error(t, ValidateUUID("550E8400-E29B-41D4-A716-446655440000"))
	assert.Error(t, ValidateUUID("../../etc/passwd"))
}

func TestValidatePathWithinRoot(t *testing.T) {
	assert.NoError(t, ValidatePathWithinRoot("/data", "/data/blobs/sha256/ab"))
	assert.NoError(t, ValidatePathWithinRoot("/data", "/data"))
	assert.Error(t, ValidatePathWithinRoot("/data", "/data/../etc"))
	assert.Error(t, ValidatePathWithinRoot("/data", "/databad/file"))
}
