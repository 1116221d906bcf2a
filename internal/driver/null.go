package driver

import (
	"context"

	"github.com/ir-server/ir-server/internal/remotes"
)

func init() {
	Register("null", func(device string) Driver {
		if device == "" {
			device = "/dev/null"
		}
		return &nullDriver{device: device}
	})
}

// nullDriver has no hardware at all. A daemon running it is only useful
// when peer connections feed the broadcast stream.
type nullDriver struct {
	device string
	inited bool
}

func (d *nullDriver) Name() string       { return "null" }
func (d *nullDriver) Device() string     { return d.device }
func (d *nullDriver) Features() Features { return 0 }

func (d *nullDriver) Init() error {
	d.inited = true
	return nil
}

func (d *nullDriver) Deinit() error {
	d.inited = false
	return nil
}

func (d *nullDriver) Send(*remotes.Remote, *remotes.Code, uint32) error {
	return ErrUnsupported
}

func (d *nullDriver) ReadRaw(ctx context.Context) (RawSequence, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (d *nullDriver) Decode(RawSequence) (string, bool) { return "", false }

func (d *nullDriver) Ioctl(IoctlOp, interface{}) error { return ErrUnsupported }
