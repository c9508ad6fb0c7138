package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"lpukit/internal/delay"
	"lpukit/internal/device"
	"lpukit/internal/index"
	"lpukit/internal/input"
	"lpukit/internal/model"
	"lpukit/internal/models"
	"lpukit/internal/port"
	"lpukit/internal/storage"
)

type neuronGroup struct {
	layout *index.NeuronLayout
	impl   models.Neuron
}

type synapseGroup struct {
	layout *index.SynapseLayout
	impl   models.Synapse
}

// Outputs are the persistence series of a unit; nil entries are disabled.
type Outputs struct {
	Gpot     storage.Series
	Spike    storage.Series
	Buffer   storage.Series
	Synapses storage.Series
}

// Unit is a single processing unit. It is driven from one goroutine.
type Unit struct {
	id       string
	opts     Options
	logger   *slog.Logger
	registry *models.Registry

	space   *index.Space
	dev     *device.Device
	stream  *device.Stream
	cache   *device.KernelCache
	gateway *port.Gateway

	ports     *port.Data
	ownsPorts bool
	gpotBind  *port.Binding
	spikeBind *port.Binding

	gpot       *device.Array[float64]
	spike      *device.Array[int32]
	synState   *device.Array[float64]
	modulation *device.Array[float64]
	buffer     *delay.Buffer
	feeder     *input.Feeder

	neurons  []neuronGroup
	synapses []synapseGroup
	omitted  []string

	outputs   Outputs
	gpotByID  []int32
	spikeByID []int32

	state State
	tick  int64
}

// New lays out g and allocates the unit's device state.
func New(g model.Graph, opts Options) (*Unit, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = models.Default()
	}
	logger := opts.Logger.With(slog.String("component", "engine"), slog.String("unit", opts.ID))

	space, err := index.Build(g, opts.DT)
	if err != nil {
		return nil, fmt.Errorf("build index space: %w", err)
	}
	dev := opts.Device
	if dev == nil {
		dev = device.NewDevice(0, opts.Logger)
	}
	stream := device.NewStream(0)
	cache := device.NewKernelCache()
	u := &Unit{
		id:        opts.ID,
		opts:      opts,
		logger:    logger,
		registry:  opts.Registry,
		space:     space,
		dev:       dev,
		stream:    stream,
		cache:     cache,
		gateway:   port.NewGateway(stream, cache, opts.Workers),
		gpot:      device.Alloc[float64](dev, "gpot", space.NumGpot),
		spike:     device.Alloc[int32](dev, "spike", space.NumSpike),
		synState:  device.Alloc[float64](dev, "synapse_state", space.SynapseStateLen()),
		gpotByID:  space.GpotByID(),
		spikeByID: space.SpikeByID(),
	}
	if err := u.bindPorts(); err != nil {
		_ = stream.Close()
		u.release()
		return nil, err
	}
	logger.Debug("unit laid out",
		slog.Int("gpot", space.NumGpot),
		slog.Int("spike", space.NumSpike),
		slog.Int("synapses", space.NumSynapses),
		slog.Int("inputs", space.NumInputs))
	return u, nil
}

func (u *Unit) bindPorts() error {
	s := u.space
	mapper := u.opts.Ports
	if mapper == nil {
		sel := port.NewSelectorMap(
			append(append([]string(nil), s.InGpot.Selectors...), s.OutGpot.Selectors...),
			append(append([]string(nil), s.InSpike.Selectors...), s.OutSpike.Selectors...),
		)
		mapper = sel
		if u.opts.PortData == nil {
			u.ports = port.NewData(u.dev, sel.Len(port.Gpot), sel.Len(port.Spike))
			u.ownsPorts = true
		}
	}
	if u.ports == nil {
		if u.opts.PortData == nil {
			return errors.New("port data is required with a custom port mapper")
		}
		u.ports = u.opts.PortData
	}
	var err error
	if u.gpotBind, err = port.Bind(u.dev, mapper, port.Gpot, s.InGpot, s.OutGpot); err != nil {
		return fmt.Errorf("bind graded ports: %w", err)
	}
	if u.spikeBind, err = port.Bind(u.dev, mapper, port.Spike, s.InSpike, s.OutSpike); err != nil {
		return fmt.Errorf("bind spiking ports: %w", err)
	}
	return nil
}

// Start instantiates the models, fills the delay buffers with the initial
// state and opens the input and output streams.
func (u *Unit) Start(ctx context.Context) error {
	switch u.state {
	case Stopped:
		return ErrStopped
	case Primed, Running:
		return ErrAlreadyStarted
	}
	if err := u.open(ctx); err != nil {
		return errors.Join(err, u.abortStart(ctx))
	}
	u.state = Primed
	u.logger.Info("unit started",
		slog.Int("neuron_groups", len(u.neurons)),
		slog.Int("synapse_groups", len(u.synapses)),
		slog.Int("omitted", len(u.omitted)),
		slog.String("device_memory", u.dev.Allocated().HumanReadable()))
	return nil
}

func (u *Unit) open(ctx context.Context) error {
	if err := u.instantiate(); err != nil {
		return err
	}
	if err := u.openBuffers(); err != nil {
		return err
	}
	if err := u.openInput(); err != nil {
		return err
	}
	return u.openOutputs(ctx)
}

// abortStart undoes a partial Start so the unit is back to Uninitialized with
// no model groups, buffers or outputs. An open feeder is kept for the next
// attempt since its source cannot be rewound.
func (u *Unit) abortStart(ctx context.Context) error {
	err := u.stream.Synchronize(ctx)
	for _, s := range []storage.Series{u.outputs.Gpot, u.outputs.Spike, u.outputs.Buffer, u.outputs.Synapses} {
		if s != nil {
			err = errors.Join(err, storage.CloseIfSupported(s))
		}
	}
	u.outputs = Outputs{}
	for _, n := range u.neurons {
		err = errors.Join(err, models.CloseIfSupported(n.impl))
	}
	for _, s := range u.synapses {
		err = errors.Join(err, models.CloseIfSupported(s.impl))
	}
	u.neurons, u.synapses, u.omitted = nil, nil, nil
	u.modulation.Free()
	u.modulation = nil
	if u.buffer != nil {
		u.buffer.Free()
		u.buffer = nil
	}
	return err
}

func (u *Unit) instantiate() error {
	for i := range u.space.Neurons {
		l := &u.space.Neurons[i]
		if l.Group.IsPortInput() {
			continue
		}
		spec, err := u.registry.ResolveNeuron(l.Group.Model)
		if err != nil {
			if u.opts.Strict {
				return err
			}
			u.omit("neuron", l.Group.Model, l.Count, err)
			continue
		}
		if spec.Spiking != l.Spiking() {
			return fmt.Errorf("%w: %s", ErrSpikingMismatch, l.Group.Model)
		}
		cfg := models.NeuronConfig{Group: l.Group, DT: u.space.DT, Debug: u.opts.Debug, Device: u.dev}
		if l.Spiking() {
			cfg.Spikes, err = u.spike.View(l.Start, l.Count)
		} else {
			cfg.Graded, err = u.gpot.View(l.Start, l.Count)
		}
		if err != nil {
			return err
		}
		impl, err := spec.New(cfg)
		if err != nil {
			return fmt.Errorf("instantiate neuron model %s: %w", l.Group.Model, err)
		}
		u.neurons = append(u.neurons, neuronGroup{layout: l, impl: impl})
	}

	needModulation := false
	for i := range u.space.Synapses {
		l := &u.space.Synapses[i]
		if l.Cond.Len()+l.Current.Len() > 0 {
			needModulation = true
		}
		if l.Group.Model == models.PassSynapse {
			continue
		}
		spec, err := u.registry.ResolveSynapse(l.Group.Model)
		if err != nil {
			if u.opts.Strict {
				return err
			}
			u.omit("synapse", l.Group.Model, l.Count, err)
			continue
		}
		view, err := u.synState.View(l.Start, l.Count)
		if err != nil {
			return err
		}
		impl, err := spec.New(models.SynapseConfig{Group: l.Group, DT: u.space.DT, Debug: u.opts.Debug, Device: u.dev, State: view})
		if err != nil {
			return fmt.Errorf("instantiate synapse model %s: %w", l.Group.Model, err)
		}
		u.synapses = append(u.synapses, synapseGroup{layout: l, impl: impl})
	}
	if needModulation {
		u.modulation = device.Alloc[float64](u.dev, "synapse_modulation", u.space.NumSynapses)
	}
	return nil
}

func (u *Unit) omit(kind, name string, count int, err error) {
	u.omitted = append(u.omitted, name)
	u.logger.Error("omitting instances of unknown model",
		slog.String("kind", kind),
		slog.String("model", name),
		slog.Int("instances", count),
		slog.Any("error", err))
}

func (u *Unit) openBuffers() error {
	b, err := delay.NewBuffer(u.dev, delay.Config{
		GpotDepth:  u.space.GpotDepth,
		GpotWidth:  u.space.NumGpot,
		SpikeDepth: u.space.SpikeDepth,
		SpikeWidth: u.space.NumSpike,
	})
	if err != nil {
		return err
	}
	u.buffer = b
	if b.Gpot != nil {
		return b.Gpot.Fill(u.stream, u.gpot)
	}
	return nil
}

func (u *Unit) openInput() error {
	if u.opts.Input == nil || u.feeder != nil {
		return nil
	}
	if got := u.opts.Input.Channels(); got != u.space.NumInputs {
		return fmt.Errorf("%w: source has %d channels, unit has %d extern neurons", input.ErrChannels, got, u.space.NumInputs)
	}
	f, err := input.NewFeeder(u.opts.Input, u.opts.InputWindow, u.opts.Logger.With(slog.String("unit", u.id)))
	if err != nil {
		return err
	}
	u.feeder = f
	return nil
}

func (u *Unit) openOutputs(ctx context.Context) error {
	kind := u.opts.OutputKind
	if kind != "" {
		base := u.opts.OutputPath
		if base == "" {
			base = u.id
		}
		var err error
		if u.outputs.Gpot, err = u.openSeries(ctx, kind, base, "gpot", u.space.NumGpot); err != nil {
			return err
		}
		if u.outputs.Spike, err = u.openSeries(ctx, kind, base, "spike", u.space.NumSpike); err != nil {
			return err
		}
	}
	if !u.opts.Debug {
		return nil
	}
	if kind == "" {
		kind = "memory"
	}
	base := filepath.Join(u.opts.DebugDir, u.id)
	var err error
	if u.outputs.Buffer, err = u.openSeries(ctx, kind, base, "buffer", u.space.GpotDepth*u.space.NumGpot); err != nil {
		return err
	}
	if u.outputs.Synapses, err = u.openSeries(ctx, kind, base, "synapses", u.space.NumSynapses+u.space.NumInputs); err != nil {
		return err
	}
	return nil
}

func (u *Unit) openSeries(ctx context.Context, kind, base, suffix string, width int) (storage.Series, error) {
	if width == 0 {
		return nil, nil
	}
	s, err := storage.NewSeries(kind, storage.FileName(base, suffix, kind), u.id+"_"+suffix, width)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, fmt.Errorf("open %s output: %w", suffix, err)
	}
	return s, nil
}

// Close stops the unit, drains the stream, closes every open store and
// releases device memory. Closing twice is a no-op.
func (u *Unit) Close() error {
	if u.state == Stopped {
		return nil
	}
	err := u.stream.Close()
	for _, s := range []storage.Series{u.outputs.Gpot, u.outputs.Spike, u.outputs.Buffer, u.outputs.Synapses} {
		if s != nil {
			err = errors.Join(err, storage.CloseIfSupported(s))
		}
	}
	switch {
	case u.feeder != nil:
		err = errors.Join(err, u.feeder.Close())
	case u.opts.Input != nil:
		err = errors.Join(err, u.opts.Input.Close())
	}
	for _, n := range u.neurons {
		err = errors.Join(err, models.CloseIfSupported(n.impl))
	}
	for _, s := range u.synapses {
		err = errors.Join(err, models.CloseIfSupported(s.impl))
	}
	u.release()
	u.state = Stopped
	u.logger.Info("unit stopped", slog.Int64("ticks", u.tick), slog.Int("live_arrays", u.dev.Live()))
	return err
}

func (u *Unit) release() {
	u.gpot.Free()
	u.spike.Free()
	u.synState.Free()
	u.modulation.Free()
	if u.buffer != nil {
		u.buffer.Free()
	}
	if u.gpotBind != nil {
		u.gpotBind.Free()
	}
	if u.spikeBind != nil {
		u.spikeBind.Free()
	}
	if u.ownsPorts && u.ports != nil {
		u.ports.Free()
	}
}

func (u *Unit) ID() string {
	return u.id
}

func (u *Unit) State() State {
	return u.state
}

func (u *Unit) Space() *index.Space {
	return u.space
}

// Ports returns the port arrays the unit gathers from and scatters into.
func (u *Unit) Ports() *port.Data {
	return u.ports
}

// Tick returns the number of completed steps.
func (u *Unit) Tick() int64 {
	return u.tick
}

// Omitted lists model names skipped because they were not registered.
func (u *Unit) Omitted() []string {
	return append([]string(nil), u.omitted...)
}

func (u *Unit) Outputs() Outputs {
	return u.outputs
}

func (u *Unit) Device() *device.Device {
	return u.dev
}

// InputRefills reports the external-input window reloads so far.
func (u *Unit) InputRefills() int {
	if u.feeder == nil {
		return 0
	}
	return u.feeder.Refills()
}
