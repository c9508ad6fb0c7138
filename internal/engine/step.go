package engine

import (
	"context"
	"errors"
	"fmt"

	"lpukit/internal/device"
	"lpukit/internal/input"
)

// Step advances the unit by one tick. Kernels are issued in dependency order
// on the unit's stream; Step only waits for them when persisting state.
func (u *Unit) Step(ctx context.Context) error {
	switch u.state {
	case Uninitialized:
		return ErrNotStarted
	case Stopped:
		return ErrStopped
	}
	if err := u.stream.Err(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := u.gpotBind.Pull(u.gateway, u.ports.Gpot, u.gpot); err != nil {
		return fmt.Errorf("gather graded ports: %w", err)
	}
	if err := u.spikeBind.Pull(u.gateway, u.ports.Spike, u.spike); err != nil {
		return fmt.Errorf("gather spiking ports: %w", err)
	}
	if err := u.injectInput(); err != nil {
		return err
	}

	if u.state == Primed {
		u.state = Running
	} else if err := u.evaluate(); err != nil {
		return err
	}

	if err := u.gpotBind.Push(u.gateway, u.gpot, u.ports.Gpot); err != nil {
		return fmt.Errorf("scatter graded ports: %w", err)
	}
	if err := u.spikeBind.Push(u.gateway, u.spike, u.ports.Spike); err != nil {
		return fmt.Errorf("scatter spiking ports: %w", err)
	}
	if err := u.persist(ctx); err != nil {
		return err
	}
	u.tick++
	return nil
}

// Run steps the unit n times and waits for the last tick to drain.
func (u *Unit) Run(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := u.Step(ctx); err != nil {
			return fmt.Errorf("tick %d: %w", u.tick, err)
		}
	}
	return u.Sync(ctx)
}

// Sync blocks until every issued kernel has run.
func (u *Unit) Sync(ctx context.Context) error {
	if u.state == Stopped {
		return ErrStopped
	}
	return u.stream.Synchronize(ctx)
}

func (u *Unit) injectInput() error {
	if u.feeder == nil {
		return nil
	}
	frame, err := u.feeder.Next()
	if err != nil && !errors.Is(err, input.ErrExhausted) {
		return err
	}
	offset := u.space.NumSynapses
	state := u.synState
	return u.stream.Launch("input.inject", func() error {
		copy(state.Data()[offset:offset+len(frame)], frame)
		return nil
	})
}

// evaluate issues the model kernels: neurons, buffer store, synapses, buffer
// rotate. Synapse kernels capture the ring cursors at issue time.
func (u *Unit) evaluate() error {
	for i := range u.neurons {
		if err := u.launchNeuron(&u.neurons[i]); err != nil {
			return err
		}
	}
	if err := u.buffer.Store(u.stream, u.gpot, u.spike); err != nil {
		return err
	}
	if u.modulation != nil {
		if err := u.launchModulation(); err != nil {
			return err
		}
	}
	for i := range u.synapses {
		if err := u.launchSynapse(&u.synapses[i]); err != nil {
			return err
		}
	}
	u.buffer.Rotate()
	return nil
}

func (u *Unit) launchNeuron(g *neuronGroup) error {
	l := g.layout
	impl := g.impl
	dt := u.space.DT
	workers := u.opts.Workers
	syn := u.synState
	return u.stream.Launch("neuron."+l.Group.Model, func() error {
		state := syn.Data()
		return device.ParallelFor(l.Count, workers, func(lo, hi int) error {
			for i := lo; i < hi; i++ {
				current := 0.0
				a, b := l.Current.Range(i)
				for k := a; k < b; k++ {
					current += state[l.Current.Pre[k]]
				}
				if a, b = l.Cond.Range(i); a < b {
					v := impl.Potential(i)
					for k := a; k < b; k++ {
						current += state[l.Cond.Pre[k]] * (l.Cond.Reverse[k] - v)
					}
				}
				impl.Update(i, dt, current)
			}
			return nil
		})
	})
}

// launchModulation sums, for every synapse, the states of the synapses and
// input channels targeting it. It runs before any synapse update so that
// updates never read a state written in the same tick.
func (u *Unit) launchModulation() error {
	layouts := u.space.Synapses
	workers := u.opts.Workers
	syn, mod := u.synState, u.modulation
	return u.stream.Launch("synapse.modulation", func() error {
		state, out := syn.Data(), mod.Data()
		for li := range layouts {
			l := &layouts[li]
			if l.Cond.Len()+l.Current.Len() == 0 {
				continue
			}
			err := device.ParallelFor(l.Count, workers, func(lo, hi int) error {
				for i := lo; i < hi; i++ {
					own := state[l.Start+i]
					sum := 0.0
					a, b := l.Current.Range(i)
					for k := a; k < b; k++ {
						sum += state[l.Current.Pre[k]]
					}
					a, b = l.Cond.Range(i)
					for k := a; k < b; k++ {
						sum += state[l.Cond.Pre[k]] * (l.Cond.Reverse[k] - own)
					}
					out[l.Start+i] = sum
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (u *Unit) launchSynapse(g *synapseGroup) error {
	l := g.layout
	impl := g.impl
	dt := u.space.DT
	workers := u.opts.Workers
	gpotRing, spikeRing := u.buffer.Gpot, u.buffer.Spike
	gpotCursor, spikeCursor := u.buffer.Cursors()
	var mod *device.Array[float64]
	if l.Cond.Len()+l.Current.Len() > 0 {
		mod = u.modulation
	}
	return u.stream.Launch("synapse."+l.Group.Model, func() error {
		var modulation []float64
		if mod != nil {
			modulation = mod.Data()[l.Start : l.Start+l.Count]
		}
		return device.ParallelFor(l.Count, workers, func(lo, hi int) error {
			for i := lo; i < hi; i++ {
				var pre float64
				if l.Group.Class[i].PreSpiking() {
					pre = float64(spikeRing.Delayed(spikeCursor, l.DelaySteps[i], int(l.Pre[i])))
				} else {
					pre = gpotRing.Delayed(gpotCursor, l.DelaySteps[i], int(l.Pre[i]))
				}
				m := 0.0
				if modulation != nil {
					m = modulation[i]
				}
				impl.Update(i, dt, pre, m)
			}
			return nil
		})
	})
}
