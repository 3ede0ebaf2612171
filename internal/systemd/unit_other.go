//go:build !linux

package systemd

import "context"

func QueryUnit(ctx context.Context, name string, user bool) (*UnitStatus, error) {
	return nil, ErrUnsupported
}
