package ros

import (
	"bytes"
)

// MessageType identifies a registered ROS message type: wire name, full .msg
// text, MD5 digest, and a factory for zero-value instances. Per spec.md §6
// the actual field layout of a concrete type is supplied by generated code
// external to this middleware; MessageType only carries identity.
type MessageType interface {
	Text() string
	MD5Sum() string
	Name() string
	NewMessage() Message
}

// Message is implemented by every generated ROS message type.
type Message interface {
	GetType() MessageType
	Serialize(buf *bytes.Buffer) error
	Deserialize(buf *Reader) error
}
