// Package internal holds decoder plumbing shared by the grib package: the
// big-endian binary reader and the warn-policy logging shim.
package internal

import "github.com/golang/glog"

// Warnf logs a warn-policy message the way reddaly-gogrib2 wraps glog at its
// package boundary: callers never import glog directly, so swapping the
// backing logger later touches one file.
func Warnf(format string, args ...interface{}) {
	glog.Warningf(format, args...)
}

// Warn logs a warn-policy message without formatting.
func Warn(msg string) {
	glog.Warning(msg)
}
