// Command pkg6 is the client-side counterpart to pkg6repo: it manages
// one install image (publishers, locally-synced catalogs, manifests)
// against one or more pkg6repo servers. Grounded on cmd/registry's
// thin main-calls-cobra-RootCmd shape.
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
