package log

import (
	"os"

	"github.com/lvoz2/weblib/utils/dotenv"
	"github.com/lvoz2/weblib/utils/flag"
	"github.com/sirupsen/logrus"
)

// global accessible logger
var (
	logger *logrus.Logger
	Log    *logrus.Entry
)

// This init function is only for testing cases, where the entry point is not
// main function. Unit test will fail with nil pointer dereference if we don't
// init here.
func init() {
	InitLogger()
}

func InitLogger() {
	logger = logrus.New()

	// Plain text to stderr for readability during development, structured JSON
	// in production where logs are shipped.
	logger.SetOutput(os.Stderr)
	if dotenv.RuntimeEnv() == dotenv.ProdEnv {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	Log = logger.WithFields(
		logrus.Fields{"service": flag.ServiceName, "is_development": dotenv.RuntimeEnv() != dotenv.ProdEnv},
	)
}
