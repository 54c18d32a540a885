//go:build !linux

package session

import (
	"fmt"

	"github.com/ngrantham/go-binder/internal/abi"
)

// openPlatform is unavailable off Linux; the binder driver is Linux-only.
func openPlatform(path string, desc *abi.Descriptor) (Device, error) {
	return nil, fmt.Errorf("session: binder is only available on linux")
}
