package utils

import (
	"errors"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

func WaitForSignal() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT)

	return ch
}

func ForEachAsync[T any](arr []T, wg *sync.WaitGroup, do func(value T)) {
	for _, val := range arr {
		wg.Add(1)
		go func(val T) {
			defer wg.Done()

			do(val)
		}(val)
	}
}

// GetMyIPv4Addr gets the ipv4 address of every RUNNING interface on the
// host. ipv6, loopback and non-private addresses are ignored.
func GetMyIPv4Addr() ([]net.IP, error) {
	intfs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	res := make([]net.IP, 0)

	for _, intf := range intfs {
		addrs, _ := intf.Addrs()
		for idx := range addrs {
			ip, _, _ := net.ParseCIDR(addrs[idx].String())
			if ip.To4() != nil && !ip.IsLoopback() && ip.IsPrivate() && (intf.Flags&net.FlagRunning != 0) {
				res = append(res, ip)
			}
		}
	}
	return res, nil
}

// LocalIPv4 returns the first private IPv4 address of the host.
func LocalIPv4() (string, error) {
	ips, err := GetMyIPv4Addr()
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", errors.New("no private ipv4 address found")
	}
	return ips[0].To4().String(), nil
}
