package clock

import "time"

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = time.Now

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }

// Layout is the operator facing timestamp layout used by listings and snapshots.
const Layout = "01/02/2006 03:04:05PM"

// Stamp formats t with Layout, wrapped in parentheses the way listings print it.
func Stamp(t time.Time) string {
	return "(" + t.Format(Layout) + ")"
}
