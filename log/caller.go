package log

import "strconv"

// callerInfo holds resolved call-site information, cached per program
// counter to avoid repeated symbolization.
type callerInfo struct {
	file     string
	function string
	line     int
	rendered string
}

var _UnknownCallerInfo = &callerInfo{file: "???", function: "???", rendered: "???:0"}

func newCallerInfo(file, function string, line int) *callerInfo {
	return &callerInfo{
		file:     file,
		function: function,
		line:     line,
		rendered: file + ":" + strconv.Itoa(line),
	}
}

// String returns the "dir/file.go:line" form used in log output.
func (c *callerInfo) String() string {
	return c.rendered
}
