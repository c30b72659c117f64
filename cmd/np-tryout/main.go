// Command np-tryout drives a passwordless server through the auth and
// validation steps from a terminal.
//
// Run:
//
//	go run ./cmd/np-tryout --base-url http://localhost:27001 \
//	  --client-id c1 --secret s1 login --email you@example.com
//
// Settings may also come from NOPASS_* variables or a YAML file given with
// --config.
package main

import (
	"fmt"
	"os"

	"github.com/MrEthical07/goNoPass/internal/tryout"
)

func main() {
	if err := tryout.App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
