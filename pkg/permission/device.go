package permission

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"
)

// DeviceNodeAuthorizer derives the authorization status from the access bits of a video
// device node. It cannot ask the user, so access is either granted or denied.
type DeviceNodeAuthorizer struct {
	Path string
}

func (a DeviceNodeAuthorizer) Status() Status {
	err := unix.Access(a.Path, unix.R_OK|unix.W_OK)
	switch {
	case err == nil:
		return Authorized
	case errors.Is(err, unix.ENOENT):
		// a missing node is reported by device resolution, not as a permission problem
		return Authorized
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return Denied
	case errors.Is(err, unix.EROFS):
		return Restricted
	}
	logger.Warnf("permission: access %s: %s", a.Path, err)
	return Denied
}

func (a DeviceNodeAuthorizer) RequestAccess(context.Context) (bool, error) {
	return a.Status() == Authorized, nil
}
