package pathmap

import (
	"testing"

	"github.com/ocfl-archive/ocflkit/pkg/ocflerrors"
)

func TestPercentEncodingMapper(t *testing.T) {
	m := NewPercentEncodingLogicalPathMapper()
	tests := []struct {
		logical string
		result  string
	}{
		{"plain/file.txt", "plain/file.txt"},
		{"a:b", "a%3ab"},
		{"que?stion", "que%3fstion"},
		{"100%", "100%25"},
		{"dir/trailing.", "dir/trailing%2e"},
		{"dir/trailing ", "dir/trailing%20"},
		{"back\\slash", "back%5cslash"},
	}
	for _, test := range tests {
		result, err := m.ToContentPathPart(test.logical)
		if err != nil {
			t.Errorf("ToContentPathPart(%s) - %v", test.logical, err)
			continue
		}
		if result != test.result {
			t.Errorf("ToContentPathPart(%s) -> %s != %s", test.logical, result, test.result)
		}
	}
}

func TestDirectMapper(t *testing.T) {
	m := NewDirectLogicalPathMapper()
	result, err := m.ToContentPathPart("a:b/c")
	if err != nil || result != "a:b/c" {
		t.Errorf("ToContentPathPart(a:b/c) -> %s, %v", result, err)
	}
}

func TestValidateLogicalPath(t *testing.T) {
	valid := []string{"f.txt", "a/b/c", "with space.txt"}
	for _, p := range valid {
		if err := ValidateLogicalPath(p); err != nil {
			t.Errorf("ValidateLogicalPath(%s) - %v", p, err)
		}
	}
	invalid := []string{"", "/abs", "trail/", "a//b", "a/./b", "a/../b"}
	for _, p := range invalid {
		if err := ValidateLogicalPath(p); !ocflerrors.Is(err, ocflerrors.ErrInvalidPath) {
			t.Errorf("ValidateLogicalPath(%s) should fail with ErrInvalidPath, got %v", p, err)
		}
	}
}

func TestDefaultConstraints(t *testing.T) {
	p := DefaultConstraints()
	if err := p.Apply("v1/content/some:file"); err != nil {
		t.Errorf("colon is fine on the default profile - %v", err)
	}
	if err := p.Apply("v1/content/../escape"); !ocflerrors.Is(err, ocflerrors.ErrInvalidPath) {
		t.Errorf("dot-dot segment should fail, got %v", err)
	}
	if err := p.Apply("v1/content/nul\x00byte"); !ocflerrors.Is(err, ocflerrors.ErrInvalidPath) {
		t.Errorf("control character should fail, got %v", err)
	}
}

func TestWindowsConstraints(t *testing.T) {
	p := WindowsConstraints()
	if err := p.Apply("v1/content/some:file"); !ocflerrors.Is(err, ocflerrors.ErrInvalidPath) {
		t.Errorf("colon should fail on windows profile, got %v", err)
	}
	if err := p.Apply("v1/content/CON.txt"); !ocflerrors.Is(err, ocflerrors.ErrInvalidPath) {
		t.Errorf("reserved name should fail, got %v", err)
	}
	if err := p.Apply("v1/content/trailing."); !ocflerrors.Is(err, ocflerrors.ErrInvalidPath) {
		t.Errorf("trailing period should fail, got %v", err)
	}
	if err := p.Apply("v1/content/regular.txt"); err != nil {
		t.Errorf("regular path should pass - %v", err)
	}
}
