//go:build tools

// Package tools pins code generators invoked through go generate, so go.mod tracks them.
package chatrelay

import (
	_ "go.uber.org/mock/mockgen"
)
