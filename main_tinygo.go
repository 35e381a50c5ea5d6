//go:build tinygo

package main

import (
	"hourmeter/app"
	"hourmeter/hal"
	"hourmeter/meter/config"
)

func main() {
	app.Run(hal.New(), config.Default())
}
