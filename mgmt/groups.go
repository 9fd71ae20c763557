// Package mgmt implements the management command groups the device
// serves over SMP.
package mgmt

import (
	"github.com/wavyindustries/gatt/smp"
	"github.com/wavyindustries/gatt/transfer"
)

// Command groups.
const (
	GroupImage   smp.Group = 1
	GroupSamples smp.Group = 100
	GroupBasic   smp.Group = 101
)

// Image group commands.
const (
	CmdImageState  uint8 = 0
	CmdImageUpload uint8 = 1
)

// Samples group commands. Upload and download share a command and differ
// in the op.
const (
	CmdSampleIDs       uint8 = 0
	CmdSampleData      uint8 = 1
	CmdSampleIsSet     uint8 = 2
	CmdSampleSpaceUsed uint8 = 3
	CmdSampleMode      uint8 = 4
)

// Basic group commands.
const (
	CmdBasicPoll uint8 = 0
)

// Requester sends one SMP request. *smp.Client implements it.
type Requester = transfer.Exchanger
