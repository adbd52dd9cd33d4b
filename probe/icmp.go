package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/digineo/go-ping"

	"github.com/czerwonk/pingwatch/apperror"
)

var errNoUsableAddress = errors.New("no address of an enabled IP version")

// ICMP probes a host with raw ICMP echo requests. Opening the raw sockets
// usually requires elevated privileges (root or CAP_NET_RAW).
type ICMP struct {
	pinger   *ping.Pinger
	resolver Resolver
	ipv4     bool
	ipv6     bool
}

// NewICMP opens the raw sockets for every IP version available on this host.
// The returned error wraps os.ErrPermission if the process lacks privileges.
func NewICMP(resolver Resolver, payloadSize uint16) (*ICMP, error) {
	bind4, bind6 := bindAddresses()

	pinger, err := ping.New(bind4, bind6)
	if err != nil && bind4 != "" && bind6 != "" && !errors.Is(err, os.ErrPermission) {
		// loopback works but no raw ICMPv6 socket, stay on IPv4
		bind6 = ""
		pinger, err = ping.New(bind4, bind6)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot open ICMP socket: %w", err)
	}

	if payloadSize > 0 && pinger.PayloadSize() != payloadSize {
		pinger.SetPayloadSize(payloadSize)
	}

	if resolver == nil {
		resolver = net.DefaultResolver
	}

	return &ICMP{
		pinger:   pinger,
		resolver: resolver,
		ipv4:     bind4 != "",
		ipv6:     bind6 != "",
	}, nil
}

func (s *ICMP) Name() string { return "icmp" }

func (s *ICMP) Close() error {
	s.pinger.Close()
	return nil
}

func (s *ICMP) Probe(ctx context.Context, host string, timeout time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr, err := s.resolve(ctx, host)
	if err != nil {
		if isTimeout(err) {
			return Unreachable(host), nil
		}
		return Result{}, apperror.New(apperror.Probe, "probe.icmp", fmt.Errorf("resolve %s: %w", host, err))
	}

	rtt, err := s.pinger.PingContext(ctx, addr)
	if err != nil {
		if isTimeout(err) {
			return Unreachable(host), nil
		}
		return Result{}, apperror.New(apperror.Probe, "probe.icmp", fmt.Errorf("ping %s (%s): %w", host, addr, err))
	}

	return Reachable(host, durationToMillis(rtt)), nil
}

func (s *ICMP) resolve(ctx context.Context, host string) (*net.IPAddr, error) {
	addrs, err := s.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}

	for _, a := range addrs {
		if a.IP.To4() != nil {
			if s.ipv4 {
				return &net.IPAddr{IP: a.IP}, nil
			}
			continue
		}
		if s.ipv6 {
			return &net.IPAddr{IP: a.IP, Zone: a.Zone}, nil
		}
	}

	return nil, errNoUsableAddress
}

// bindAddresses returns the wildcard bind address for each IP version the
// host has a working loopback for, or an empty string if it has none.
func bindAddresses() (bind4, bind6 string) {
	if ln, err := net.Listen("tcp4", "127.0.0.1:0"); err == nil {
		// ipv4 enabled
		ln.Close()
		bind4 = "0.0.0.0"
	}
	if ln, err := net.Listen("tcp6", "[::1]:0"); err == nil {
		// ipv6 enabled
		ln.Close()
		bind6 = "::"
	}

	return bind4, bind6
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
