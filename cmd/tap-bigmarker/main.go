package main

import (
	"tap-bigmarker/cmd/tap-bigmarker/commands"
	"tap-bigmarker/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
