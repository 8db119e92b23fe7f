/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"log"

	"github.com/acronis/go-admission/config"
)

func Example() {
	cfgData := bytes.NewBufferString(`
log:
  output: file
  node: node-0
  file:
    path: admission-{{node}}.log
    rotation:
      maxSize: 100M
`)

	cfg := NewConfig()
	if err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg); err != nil {
		log.Fatal(err)
	}

	logger, closeFn := NewLogger(cfg)
	defer closeFn()

	logger.Info("throttles resolved", Int("replicas", 2), Strings("buckets", []string{"A", "B"}))
}
