package mgmt

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wavyindustries/gatt/smp"
)

// BasicManager sends the device's housekeeping commands.
type BasicManager struct {
	r Requester
}

func NewBasicManager(r Requester) *BasicManager {
	return &BasicManager{r: r}
}

// Poll checks that the device answers.
func (m *BasicManager) Poll(ctx context.Context) error {
	return errors.WithMessage(m.r.Send(ctx, smp.OpWrite, GroupBasic, CmdBasicPoll, nil, nil), "poll")
}
