// Copyright (c) 2026 The Nanoev Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build darwin || dragonfly || freebsd || linux

// Package socket provides the non-blocking TCP socket plumbing nanoev is built on.
//
// Addresses are textual IPv4 or IPv6 literals, optionally carrying an IPv6 zone,
// host names are never resolved.
package socket

import (
	"net"
	"net/netip"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	errorx "github.com/nanoev/nanoev/pkg/errors"
)

// Option is used for setting an option on socket.
type Option struct {
	SetSockOpt func(int, int) error
	Opt        int
}

// SetOptions applies opts to fd in order, stopping at the first failure.
func SetOptions(fd int, opts ...Option) error {
	for _, opt := range opts {
		if err := opt.SetSockOpt(fd, opt.Opt); err != nil {
			return err
		}
	}
	return nil
}

var listenerBacklogMaxSize = maxListenerBacklog()

// ParseTCPAddr validates ip and port without any name resolution.
func ParseTCPAddr(ip string, port int) (*net.TCPAddr, error) {
	if port < 0 || port > 0xFFFF {
		return nil, errorx.ErrInvalidAddress
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, errorx.ErrInvalidAddress
	}
	return &net.TCPAddr{IP: addr.AsSlice(), Port: port, Zone: addr.Zone()}, nil
}

// TCPAddrToSockaddr converts a net.TCPAddr to a Sockaddr along with its address family.
// Returns nil if the conversion fails.
func TCPAddrToSockaddr(addr *net.TCPAddr) (unix.Sockaddr, int) {
	if ip4 := addr.IP.To4(); ip4 != nil && addr.Zone == "" {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET
	}
	if ip6 := addr.IP.To16(); ip6 != nil {
		sa := &unix.SockaddrInet6{Port: addr.Port, ZoneId: uint32(ip6ZoneToInt(addr.Zone))}
		copy(sa.Addr[:], ip6)
		return sa, unix.AF_INET6
	}
	return nil, 0
}

// SockaddrToTCPAddr converts a unix.Sockaddr to a net.TCPAddr.
// Returns nil if the conversion fails.
func SockaddrToTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, sa.Addr[:])
		return &net.TCPAddr{IP: ip, Port: sa.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, sa.Addr[:])
		return &net.TCPAddr{IP: ip, Port: sa.Port, Zone: ip6ZoneToString(sa.ZoneId)}
	}
	return nil
}

// ip6ZoneToInt converts an IPv6 zone to an interface index, 0 for no zone.
func ip6ZoneToInt(zone string) int {
	if zone == "" {
		return 0
	}
	if ifi, err := net.InterfaceByName(zone); err == nil {
		return ifi.Index
	}
	n, _ := strconv.Atoi(zone)
	return n
}

// ip6ZoneToString converts an interface index to an IPv6 zone, "" for index 0.
func ip6ZoneToString(zone uint32) string {
	if zone == 0 {
		return ""
	}
	if ifi, err := net.InterfaceByIndex(int(zone)); err == nil {
		return ifi.Name
	}
	return strconv.FormatUint(uint64(zone), 10)
}

func tcpSocket(addr *net.TCPAddr, sockOpts []Option) (fd int, sa unix.Sockaddr, err error) {
	sa, family := TCPAddrToSockaddr(addr)
	if sa == nil {
		return -1, nil, errorx.ErrInvalidAddress
	}
	if fd, err = sysSocket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP); err != nil {
		return -1, nil, errorx.Classify(os.NewSyscallError("socket", err))
	}
	if err = SetOptions(fd, sockOpts...); err != nil {
		_ = unix.Close(fd)
		return -1, nil, errorx.Classify(err)
	}
	return
}

// Listen creates a non-blocking TCP socket bound to addr and listening with the given backlog,
// a non-positive backlog means the maximum the system allows.
func Listen(addr *net.TCPAddr, backlog int, sockOpts ...Option) (fd int, err error) {
	fd, sa, err := tcpSocket(addr, sockOpts)
	if err != nil {
		return -1, err
	}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
			fd = -1
		}
	}()

	if err = unix.Bind(fd, sa); err != nil {
		return fd, errorx.Classify(os.NewSyscallError("bind", err))
	}
	if backlog <= 0 || backlog > listenerBacklogMaxSize {
		backlog = listenerBacklogMaxSize
	}
	if err = unix.Listen(fd, backlog); err != nil {
		return fd, errorx.Classify(os.NewSyscallError("listen", err))
	}
	return fd, nil
}

// Connect creates a non-blocking TCP socket and initiates a connection to addr.
// connected tells whether the connection got established right away, otherwise
// it is in progress and completes once the socket turns writable.
func Connect(addr *net.TCPAddr, sockOpts ...Option) (fd int, connected bool, err error) {
	fd, sa, err := tcpSocket(addr, sockOpts)
	if err != nil {
		return -1, false, err
	}
	for {
		err = unix.Connect(fd, sa)
		if err != unix.EINTR {
			break
		}
	}
	switch err {
	case nil:
		return fd, true, nil
	case unix.EINPROGRESS, unix.EALREADY:
		return fd, false, nil
	}
	_ = unix.Close(fd)
	return -1, false, errorx.Classify(os.NewSyscallError("connect", err))
}

// Accept accepts the next incoming socket along with setting
// O_NONBLOCK and O_CLOEXEC flags on it.
func Accept(fd int) (int, *net.TCPAddr, error) {
	nfd, sa, err := sysAccept(fd)
	if err != nil {
		return -1, nil, err
	}
	return nfd, SockaddrToTCPAddr(sa), nil
}

// LocalAddr returns the address fd is bound to.
func LocalAddr(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, errorx.Classify(os.NewSyscallError("getsockname", err))
	}
	return SockaddrToTCPAddr(sa), nil
}

// PeerAddr returns the address of the peer fd is connected to.
func PeerAddr(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return nil, errorx.Classify(os.NewSyscallError("getpeername", err))
	}
	return SockaddrToTCPAddr(sa), nil
}

// SocketError fetches and clears the pending error of fd, nil if there is none.
func SocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return os.NewSyscallError("getsockopt", err)
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}
