package ros

import (
	"testing"

	"github.com/openrobots-dev/urosnode/typereg"
)

type fakeMsgType struct {
	name, text, md5sum string
}

func (f fakeMsgType) Text() string        { return f.text }
func (f fakeMsgType) MD5Sum() string      { return f.md5sum }
func (f fakeMsgType) Name() string        { return f.name }
func (f fakeMsgType) NewMessage() Message { return nil }

type fakeSrvType struct {
	name, md5sum string
}

func (f fakeSrvType) MD5Sum() string            { return f.md5sum }
func (f fakeSrvType) Name() string              { return f.name }
func (f fakeSrvType) RequestType() MessageType  { return nil }
func (f fakeSrvType) ResponseType() MessageType { return nil }
func (f fakeSrvType) NewService() Service       { return nil }

func TestRegisterMessageTypeIsIdempotent(t *testing.T) {
	mt := fakeMsgType{name: "test_msgs/TypeRegFixture", text: "string data", md5sum: "992ce8a1687cec8c8bd883ec73ca41d1"}

	registerMessageType(mt)
	registerMessageType(mt)

	td, ok := typereg.Messages.FindByName(mt.Name())
	if !ok {
		t.Fatal("expected message type to be registered")
	}
	if td.MD5Sum != mt.md5sum {
		t.Fatalf("registered md5sum = %q, want %q", td.MD5Sum, mt.md5sum)
	}
}

func TestRegisterServiceTypeIsIdempotent(t *testing.T) {
	st := fakeSrvType{name: "test_srvs/TypeRegFixture", md5sum: "d41d8cd98f00b204e9800998ecf8427e"}

	registerServiceType(st)
	registerServiceType(st)

	td, ok := typereg.Services.FindByName(st.Name())
	if !ok {
		t.Fatal("expected service type to be registered")
	}
	if td.MD5Sum != st.md5sum {
		t.Fatalf("registered md5sum = %q, want %q", td.MD5Sum, st.md5sum)
	}
}
