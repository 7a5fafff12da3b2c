package version

import "testing"

func TestString(t *testing.T) {
	oldV, oldSHA, oldT := Version, GitSHA, BuildTime
	defer func() { Version, GitSHA, BuildTime = oldV, oldSHA, oldT }()

	Version, GitSHA, BuildTime = "v1.2.3", "0123456789abcdef", "2024-05-01T10:00:00Z"
	if got, want := String(), "v1.2.3 (0123456, built 2024-05-01T10:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	GitSHA = "abc"
	if got, want := String(), "v1.2.3 (abc, built 2024-05-01T10:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if info := Get(); info.GitSHA != "abc" || info.Version != "v1.2.3" {
		t.Errorf("Get() = %+v", info)
	}
}
