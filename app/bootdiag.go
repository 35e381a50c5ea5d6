//go:build !(tinygo && bootdebug)

package app

import "hourmeter/hal"

func bootStep(string) {}

func bootDiagStart(hal.HAL) {}
