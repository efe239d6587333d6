/*
flag Package set up cli flags shared across services

Usage:

	Flags listed in this package are shared across boundaries and service-agnostic
	For service dependent flags please define in their respective package

Parse must be called from main before the flags are read. It is deliberately
not called from init so that test binaries can register their own flags first.
*/

package flag

import (
	"flag"
)

const (
	APIServer = "api_server"
)

var (
	IsDevelopment bool
	ServiceName   string
	Port          int
)

func init() {
	flag.BoolVar(&IsDevelopment, "dev", true, "set to true if the current run is for development. default value is true")
	flag.StringVar(&ServiceName, "service", APIServer, "name of the service for logging purposes")
	flag.IntVar(&Port, "port", 8080, "port the api server listens on")
}

// Parse parses the process arguments into the flags above.
func Parse() {
	flag.Parse()
}
