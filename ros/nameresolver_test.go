package ros

import "testing"

func TestQualifyNodeName(t *testing.T) {
	cases := []struct {
		in        string
		namespace string
		base      string
	}{
		{"talker", "/", "talker"},
		{"/talker", "/", "talker"},
		{"/robot1/talker", "/robot1", "talker"},
	}
	for _, c := range cases {
		ns, base, err := qualifyNodeName(c.in)
		if err != nil {
			t.Fatalf("qualifyNodeName(%q): %v", c.in, err)
		}
		if ns != c.namespace || base != c.base {
			t.Fatalf("qualifyNodeName(%q) = (%q, %q), want (%q, %q)", c.in, ns, base, c.namespace, c.base)
		}
	}
}

func TestQualifyNodeNameRejectsEmptyAndWhitespace(t *testing.T) {
	if _, _, err := qualifyNodeName(""); err == nil {
		t.Fatal("expected error for empty name")
	}
	if _, _, err := qualifyNodeName("bad name"); err == nil {
		t.Fatal("expected error for whitespace in name")
	}
}

func TestNameResolverResolvesAbsoluteRelativeAndPrivate(t *testing.T) {
	nr := newNameResolver("/robot1", "talker", NameMap{})

	if got := nr.resolve("/chatter"); got != "/chatter" {
		t.Fatalf("absolute resolve = %q", got)
	}
	if got := nr.resolve("chatter"); got != "/robot1/chatter" {
		t.Fatalf("relative resolve = %q, want /robot1/chatter", got)
	}
	if got := nr.resolve("~rate"); got != "/robot1/talker/rate" {
		t.Fatalf("private resolve = %q, want /robot1/talker/rate", got)
	}
}

func TestNameResolverAppliesRemapping(t *testing.T) {
	nr := newNameResolver("/", "talker", NameMap{"chatter": "/loud_chatter"})
	if got := nr.remap("chatter"); got != "/loud_chatter" {
		t.Fatalf("remap = %q, want /loud_chatter", got)
	}
	if got := nr.remap("other"); got != "/other" {
		t.Fatalf("remap passthrough = %q, want /other", got)
	}
}
