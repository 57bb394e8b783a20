// +build tools

package main

import (
	// shepherd/worker build dependencies
	_ "github.com/BurntSushi/toml"
	_ "github.com/howeyc/fsnotify"
	_ "github.com/mattn/go-colorable"

	// end shepherd/worker build dependencies

	// test dependencies
	_ "github.com/securego/gosec/cmd/gosec"
	_ "github.com/tsenart/vegeta"
	_ "github.com/xo/usql"
	_ "gotest.tools/gotestsum"
	// end test dependencies
)
