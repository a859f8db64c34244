// Package xdblog centralizes the package-level loggers used across
// pagestore, logchain, and index. Each consuming package declares its own
// plog the way github.com/coreos/pkg/capnslog callers traditionally do;
// this package only owns the shared repo name and log-level wiring so all
// of them can be tuned together.
package xdblog

import "github.com/coreos/pkg/capnslog"

// repoName groups every package logger under one capnslog repository.
// SetLevel below sets capnslog's global level, which covers these loggers
// regardless of repository.
const repoName = "github.com/rishavbhowmik/xdb"

// NewPackageLogger returns a logger tagged with pkg, grouped under this
// module's capnslog repository.
func NewPackageLogger(pkg string) *capnslog.PackageLogger {
	return capnslog.NewPackageLogger(repoName, pkg)
}

// SetLevel sets the log level for every logger obtained from
// NewPackageLogger. Callers embedding this module call it once at startup;
// tests leave it at the capnslog default.
func SetLevel(level capnslog.LogLevel) {
	capnslog.SetGlobalLogLevel(level)
}
