package config

import "os"

func IsDebug() bool {
	return os.Getenv("CTXKEEPER_DEBUG") == "1"
}
