package permission

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"qrprocess-pi/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Status is the camera authorization state as reported by the platform.
type Status int

const (
	NotDetermined Status = iota
	Restricted
	Denied
	Authorized
)

func (s Status) String() string {
	switch s {
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	default:
		return "notDetermined"
	}
}

var ErrNotAuthorized = errors.New("camera access not authorized")

// Authorizer is the platform permission facility.
type Authorizer interface {
	Status() Status
	// RequestAccess prompts the user. It is only called while Status is NotDetermined.
	RequestAccess(ctx context.Context) (bool, error)
}

// Gate resolves camera access before any capture work. The decision is never cached: every
// call consults the authorizer again.
type Gate struct {
	auth Authorizer
}

func NewGate(auth Authorizer) *Gate {
	return &Gate{auth: auth}
}

// Resolve blocks until access is known. It returns nil when authorized and an error
// wrapping ErrNotAuthorized otherwise.
func (g *Gate) Resolve(ctx context.Context) error {
	if g.auth == nil {
		return ErrNotAuthorized
	}

	status := g.auth.Status()
	switch status {
	case Authorized:
		return nil
	case NotDetermined:
		granted, err := g.auth.RequestAccess(ctx)
		if err != nil {
			logger.Warnf("permission: request access: %s", err)
			return errors.Join(ErrNotAuthorized, err)
		}
		if granted {
			return nil
		}
		logger.Infof("permission: access refused by user")
		return ErrNotAuthorized
	default:
		logger.Infof("permission: camera access %s", status)
		return ErrNotAuthorized
	}
}

// Check resolves access off the caller's goroutine and reports the outcome to completion
// exactly once.
func (g *Gate) Check(ctx context.Context, completion func(granted bool)) {
	go func() {
		completion(g.Resolve(ctx) == nil)
	}()
}

// Static is an Authorizer with a fixed answer.
type Static struct {
	State Status
	Grant bool
}

func (s Static) Status() Status {
	return s.State
}

func (s Static) RequestAccess(context.Context) (bool, error) {
	return s.Grant, nil
}
