package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/czerwonk/pingwatch/apperror"
)

// Probe modes
const (
	ModeAuto = "auto"
	ModeICMP = "icmp"
	ModeExec = "exec"
)

// Options configure how New selects the probe strategies.
type Options struct {
	Mode        string
	PayloadSize uint16
	Resolver    Resolver
}

// constructors of the strategies, replaced in tests
var (
	newICMP = NewICMP
	newExec = NewExec
)

// Prober checks a single target for reachability and never fails: any error
// of the underlying strategy is reported as an unreachable result.
type Prober struct {
	primary  Strategy
	fallback Strategy
}

// NewWithStrategies returns a Prober using primary, and fallback whenever
// primary fails for lack of permissions. fallback may be nil.
func NewWithStrategies(primary, fallback Strategy) *Prober {
	return &Prober{primary: primary, fallback: fallback}
}

// New selects the probe strategies based on the capabilities of the process.
//
// In auto mode raw ICMP is used if the socket can be opened; if that is
// denied, the ping utility is used instead. Other socket errors are returned.
func New(opts Options) (*Prober, error) {
	switch opts.Mode {
	case ModeExec:
		e, err := newExec()
		if err != nil {
			return nil, apperror.New(apperror.Configuration, "probe.new", err)
		}
		return NewWithStrategies(e, nil), nil

	case ModeICMP:
		icmp, err := newICMP(opts.Resolver, opts.PayloadSize)
		if err != nil {
			return nil, apperror.New(apperror.Configuration, "probe.new", err)
		}
		return NewWithStrategies(icmp, nil), nil

	case ModeAuto, "":
		return newAuto(opts)

	default:
		return nil, apperror.Configf("probe.new", "unknown probe mode %q", opts.Mode)
	}
}

func newAuto(opts Options) (*Prober, error) {
	fallback, execErr := newExec()
	if execErr != nil {
		log.Warnf("no fallback available: %v", execErr)
	}

	icmp, err := newICMP(opts.Resolver, opts.PayloadSize)
	if err == nil {
		log.Infof("using raw ICMP probes")
		if fallback == nil {
			return NewWithStrategies(icmp, nil), nil
		}
		return NewWithStrategies(icmp, fallback), nil
	}

	if !errors.Is(err, os.ErrPermission) {
		return nil, apperror.New(apperror.Configuration, "probe.new", err)
	}

	if fallback == nil {
		return nil, apperror.New(apperror.Configuration, "probe.new", fmt.Errorf("%w, and %w", err, execErr))
	}

	log.Infof("raw ICMP not permitted, using the ping utility instead")
	return NewWithStrategies(fallback, nil), nil
}

// Strategy returns the name of the primary strategy.
func (p *Prober) Strategy() string {
	return p.primary.Name()
}

// Probe checks target once. The returned result always belongs to target.
func (p *Prober) Probe(ctx context.Context, target string, timeout time.Duration) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("probe of %s panicked: %v", target, r)
			res = Unreachable(target)
		}
	}()

	res, err := p.primary.Probe(ctx, target, timeout)
	if err != nil && p.fallback != nil && errors.Is(err, os.ErrPermission) {
		log.Debugf("%s probe of %s not permitted, trying %s: %v", p.primary.Name(), target, p.fallback.Name(), err)
		res, err = p.fallback.Probe(ctx, target, timeout)
	}

	if err != nil {
		log.Debugf("probe of %s failed: %v", target, err)
		return Unreachable(target)
	}

	res.Target = target
	return res.Normalize()
}

// Close releases the resources of all strategies.
func (p *Prober) Close() error {
	err := p.primary.Close()
	if p.fallback != nil {
		err = multierr.Append(err, p.fallback.Close())
	}
	return err
}
