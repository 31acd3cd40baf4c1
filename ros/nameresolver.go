package ros

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// NameMap is a string-to-string remapping table, used for both the `from:=to`
// command-line remappings and the `_name:=value` private parameter
// assignments a ROS node accepts on its argument list.
type NameMap map[string]string

// qualifyNodeName splits a possibly-namespaced node name into its namespace
// and base name, the way `rosrun pkg node __name:=foo` or a plain
// `/ns/node_name` argument would be interpreted.
func qualifyNodeName(name string) (namespace, base string, err error) {
	if name == "" {
		return "", "", fmt.Errorf("ros: node name must not be empty")
	}
	if strings.ContainsAny(name, " \t\n") {
		return "", "", fmt.Errorf("ros: node name %q contains whitespace", name)
	}
	if !strings.HasPrefix(name, "/") {
		return "/", name, nil
	}
	idx := strings.LastIndex(name, "/")
	if idx == 0 {
		return "/", name[1:], nil
	}
	return name[:idx], name[idx+1:], nil
}

// nameResolver remaps a graph resource name (topic, service, or parameter
// key) through the node's namespace and any explicit command-line
// remappings, the way ROS's rosgraph name resolution works: a name starting
// with '/' is absolute; a name starting with '~' is private to the node;
// anything else is relative to the node's namespace.
type nameResolver struct {
	namespace string
	nodeName  string
	remapping NameMap
}

func newNameResolver(namespace, nodeName string, remapping NameMap) *nameResolver {
	return &nameResolver{namespace: namespace, nodeName: nodeName, remapping: remapping}
}

func (nr *nameResolver) remap(name string) string {
	resolved := nr.resolve(name)
	if mapped, ok := nr.remapping[name]; ok {
		return nr.resolve(mapped)
	}
	if mapped, ok := nr.remapping[resolved]; ok {
		return nr.resolve(mapped)
	}
	return resolved
}

func (nr *nameResolver) resolve(name string) string {
	switch {
	case strings.HasPrefix(name, "/"):
		return name
	case strings.HasPrefix(name, "~"):
		return joinNamespace(nr.namespace, nr.nodeName) + "/" + name[1:]
	default:
		return joinNamespace(nr.namespace, name)
	}
}

func joinNamespace(namespace, name string) string {
	if namespace == "/" || namespace == "" {
		return "/" + name
	}
	return strings.TrimSuffix(namespace, "/") + "/" + name
}

// determineHost picks the hostname this node advertises in its XMLRPC/
// TCPROS URIs, reporting whether it resolved to a loopback-only address
// (in which case the caller should bind listeners to 127.0.0.1 rather than
// 0.0.0.0, matching spec.md §4.E's "resolve our own hostname" step).
func determineHost() (hostname string, onlyLocalhost bool) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "localhost", true
	}
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return "localhost", true
	}
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip != nil && !ip.IsLoopback() {
			return host, false
		}
	}
	return "localhost", true
}
