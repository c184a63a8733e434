package busmsg

import "testing"

func TestValidateSignature(t *testing.T) {
	cases := []struct {
		sig string
		ok  bool
	}{
		{"", true},
		{"i", true},
		{"iii", true},
		{"a{sv}", true},
		{"a(ii)", true},
		{"(a{sv}(ii))", true},
		{"v", true},
		{"{sv}", false}, // dict entry illegal outside an array
		{"(", false},
		{"a", false},
		{"z", false},
		{"a{si", false},
	}
	for _, c := range cases {
		err := validateSignature(c.sig)
		if (err == nil) != c.ok {
			t.Errorf("validateSignature(%q) err = %v, want ok=%v", c.sig, err, c.ok)
		}
	}
}

func TestIsSingleCompleteType(t *testing.T) {
	cases := []struct {
		sig string
		ok  bool
	}{
		{"i", true},
		{"(ii)", true},
		{"{sv}", true}, // legal as the contents of an array
		{"ii", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isSingleCompleteType(c.sig); got != c.ok {
			t.Errorf("isSingleCompleteType(%q) = %v, want %v", c.sig, got, c.ok)
		}
	}
}

func TestContainerDepthMax(t *testing.T) {
	s := &containerStack{}
	for i := 0; i < ContainerDepthMax; i++ {
		if s.atDepthLimit() {
			t.Fatalf("atDepthLimit() true at depth %d, want false", i)
		}
		s.push(containerFrame{enclosing: ContainerStruct})
	}
	if !s.atDepthLimit() {
		t.Fatalf("atDepthLimit() false at depth %d, want true", ContainerDepthMax)
	}
}
