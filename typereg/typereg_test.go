package typereg

import "testing"

func TestStringCompareOrdersPrefixAsLesser(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"abc", "abc", 0},
		{"ab", "abc", -1},
		{"abc", "ab", 1},
		{"abd", "abc", 1},
		{"", "", 0},
		{"", "x", -1},
	}
	for _, c := range cases {
		if got := StringCompare(c.a, c.b); got != c.want {
			t.Errorf("StringCompare(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestRegistryRejectsDuplicateAndBadMD5(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(TypeDescriptor{Name: "std_msgs/String", MD5Sum: "992ce8a1687cec8c8bd883ec73ca41d1"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(TypeDescriptor{Name: "std_msgs/String", MD5Sum: "992ce8a1687cec8c8bd883ec73ca41d1"}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := r.Register(TypeDescriptor{Name: "bad/type", MD5Sum: "short"}); err == nil {
		t.Fatal("expected short md5sum to be rejected")
	}
	if _, ok := r.FindByName("std_msgs/String"); !ok {
		t.Fatal("expected FindByName to locate registered type")
	}
}

func TestRegistryFreezeRejectsFurtherRegistration(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	if err := r.Register(TypeDescriptor{Name: "x", MD5Sum: "d41d8cd98f00b204e9800998ecf8427e"}); err == nil {
		t.Fatal("expected registration into a frozen registry to fail")
	}
}

func TestDescriptorRefcountLifecycle(t *testing.T) {
	d := NewDescriptor("/chatter", TypeDescriptor{Name: "std_msgs/String"}, nil, Flags{})
	if d.RefCount() != 0 {
		t.Fatalf("new descriptor refcount = %d, want 0", d.RefCount())
	}
	d.Acquire()
	d.Acquire()
	if d.RefCount() != 2 {
		t.Fatalf("refcount after two Acquire = %d, want 2", d.RefCount())
	}
	if shouldFree := d.MarkDead(); shouldFree {
		t.Fatal("MarkDead with outstanding refs must not request free")
	}
	if shouldFree := d.Release(); shouldFree {
		t.Fatal("Release with one ref remaining must not request free")
	}
	if shouldFree := d.Release(); !shouldFree {
		t.Fatal("Release of last ref after MarkDead must request free")
	}
}
