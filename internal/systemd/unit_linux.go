//go:build linux

package systemd

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

// QueryUnit reads the state of name (".service" is implied) from the system
// bus, or the user bus when user is true.
func QueryUnit(ctx context.Context, name string, user bool) (*UnitStatus, error) {
	connect := dbus.NewSystemConnectionContext
	if user {
		connect = dbus.NewUserConnectionContext
	}
	conn, err := connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	unit := unitName(name)
	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		if isNoSuchUnit(err) {
			return notFound(unit), nil
		}
		return nil, fmt.Errorf("status of %s: %w", unit, err)
	}
	return statusFromProps(unit, props), nil
}

func isNoSuchUnit(err error) bool {
	es := err.Error()
	return strings.Contains(es, "NoSuchUnit") || strings.Contains(es, "not-found")
}
