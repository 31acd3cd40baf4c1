// Package rlog provides the structured, per-module logging facade used
// across this repository, replacing the teacher's bespoke Logger interface
// with the logrus + logrus-modular stack the rosgo lineage settled on.
package rlog

import (
	modular "github.com/edwinhayes/logrus-modular"
	"github.com/sirupsen/logrus"
)

// root is the process-wide logrus logger all modules are carved from.
var root = logrus.New()

func init() {
	root.SetLevel(logrus.InfoLevel)
}

// SetLevel adjusts the verbosity of every module logger obtained via For.
func SetLevel(level logrus.Level) {
	root.SetLevel(level)
}

// For returns a module-scoped logger, tagging every entry with "module".
// Mirrors the *modular.ModuleLogger handles threaded through the
// rosgo-family subscription/publisher goroutines.
func For(module string) *modular.ModuleLogger {
	ml := modular.GetModuleLogger(root, module)
	return &ml
}
