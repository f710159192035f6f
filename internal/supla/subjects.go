package supla

import (
	"context"
	"sync"

	"github.com/lesny8/supla-cloud/internal/schedule"
)

// Function describes what a channel is configured to do; it determines the
// channel's capability set.
type Function string

const (
	FunctionLightSwitch   Function = "light-switch"
	FunctionPowerSwitch   Function = "power-switch"
	FunctionRollerShutter Function = "roller-shutter"
	FunctionGate          Function = "gate"
	FunctionRGBLighting   Function = "rgb-lighting"
	FunctionDimmer        Function = "dimmer"
)

var functionCapabilities = map[Function][]schedule.Action{
	FunctionLightSwitch:   {schedule.ActionTurnOn, schedule.ActionTurnOff},
	FunctionPowerSwitch:   {schedule.ActionTurnOn, schedule.ActionTurnOff},
	FunctionRollerShutter: {schedule.ActionShut, schedule.ActionReveal, schedule.ActionRevealPartially},
	FunctionGate:          {schedule.ActionOpen, schedule.ActionClose},
	FunctionRGBLighting:   {schedule.ActionTurnOn, schedule.ActionTurnOff, schedule.ActionSetRGBW},
	FunctionDimmer:        {schedule.ActionTurnOn, schedule.ActionTurnOff, schedule.ActionSetRGBW},
}

// Channel is a single I/O device channel.
type Channel struct {
	ID         int64
	IODeviceID int64
	UserID     int64
	Function   Function
	Enabled    bool
}

func (c *Channel) SubjectID() int64                  { return c.ID }
func (c *Channel) SubjectType() schedule.SubjectType { return schedule.SubjectChannel }
func (c *Channel) DeviceID() int64                   { return c.IODeviceID }
func (c *Channel) SubjectEnabled() bool              { return c.Enabled }
func (c *Channel) Capabilities() []schedule.Action   { return functionCapabilities[c.Function] }

// ChannelGroup addresses several same-function channels as one subject.
type ChannelGroup struct {
	ID       int64
	UserID   int64
	Function Function
	Enabled  bool
}

func (g *ChannelGroup) SubjectID() int64                  { return g.ID }
func (g *ChannelGroup) SubjectType() schedule.SubjectType { return schedule.SubjectChannelGroup }
func (g *ChannelGroup) DeviceID() int64                   { return 0 }
func (g *ChannelGroup) SubjectEnabled() bool              { return g.Enabled }
func (g *ChannelGroup) Capabilities() []schedule.Action   { return functionCapabilities[g.Function] }

// Directory is an in-memory subject registry implementing subject resolution
// for the engine. In a full deployment resolution is backed by the cloud
// database; the engine only depends on the lookup behavior.
type Directory struct {
	mu       sync.RWMutex
	channels map[int64]*Channel
	groups   map[int64]*ChannelGroup
}

func NewDirectory() *Directory {
	return &Directory{
		channels: map[int64]*Channel{},
		groups:   map[int64]*ChannelGroup{},
	}
}

func (d *Directory) AddChannel(c *Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[c.ID] = c
}

func (d *Directory) AddGroup(g *ChannelGroup) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[g.ID] = g
}

// Resolve returns the subject for (subjectType, id) owned by userID. It fails
// with schedule.ErrSubjectNotFound for unknown ids and ErrNotOwnedByAccount
// when the subject belongs to someone else.
func (d *Directory) Resolve(ctx context.Context, userID int64, st schedule.SubjectType, id int64) (schedule.Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch st {
	case schedule.SubjectChannel:
		c, ok := d.channels[id]
		if !ok {
			return nil, schedule.ErrSubjectNotFound
		}
		if c.UserID != userID {
			return nil, schedule.ErrNotOwnedByAccount
		}
		return c, nil
	case schedule.SubjectChannelGroup:
		g, ok := d.groups[id]
		if !ok {
			return nil, schedule.ErrSubjectNotFound
		}
		if g.UserID != userID {
			return nil, schedule.ErrNotOwnedByAccount
		}
		return g, nil
	}
	return nil, schedule.ErrSubjectNotFound
}

// DeviceChannels lists the channel ids belonging to an I/O device.
func (d *Directory) DeviceChannels(ctx context.Context, deviceID int64) ([]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []int64
	for id, c := range d.channels {
		if c.IODeviceID == deviceID {
			out = append(out, id)
		}
	}
	return out, nil
}
