package buildinfo

import "testing"

func TestInfoOverrides(t *testing.T) {
	old := Version
	defer func() { Version = old }()
	Version = "1.2.3"
	info := Info()
	if info["version"] != "1.2.3" {
		t.Fatalf("version %q", info["version"])
	}
	if _, ok := info["commit"]; !ok {
		t.Fatalf("commit key missing: %v", info)
	}
}
