// Command pkg6repo administers a server-side package repository: create,
// publisher management, rebuild/refresh/verify, and serving the HTTP
// wire protocol. Grounded on cmd/registry's thin main-calls-cobra-
// RootCmd shape.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := RootCmd.Execute(); err != nil {
		logrus.Errorln(err)
		os.Exit(1)
	}
}
