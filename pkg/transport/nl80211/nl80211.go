package nl80211

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/loopholelabs/logging/types"
	"github.com/loopholelabs/wlanctl/pkg/transport"
	"github.com/loopholelabs/wlanctl/pkg/wire"
	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

const (
	Name             = "nl80211"
	DefaultInterface = "wlan0"

	MorseOUI     = 0x0CBF74
	VendorToChip = 0
)

var ErrNoVendorData = errors.New("vendor data attribute missing")
var ErrNotOpen = errors.New("netlink connection not open")

// NL80211 delivers command envelopes to the driver as nl80211 vendor commands.
type NL80211 struct {
	log           types.Logger
	iface         string
	ifindex       int
	c             *genetlink.Conn
	familyID      uint16
	familyVersion uint8

	dial    func() (*genetlink.Conn, error)
	ifIndex func(name string) (int, error)
}

func dialNetlink() (*genetlink.Conn, error) {
	c, err := genetlink.Dial(nil)
	if err != nil {
		return nil, err
	}
	// Best effort, older kernels may refuse these.
	for _, o := range []netlink.ConnOption{
		netlink.ExtendedAcknowledge,
		netlink.GetStrictCheck,
	} {
		_ = c.SetOption(o, true)
	}
	return c, nil
}

func interfaceIndex(name string) (int, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return 0, err
	}
	return ifi.Index, nil
}

func New(log types.Logger) transport.Backend {
	return NewWithDialer(log, dialNetlink, interfaceIndex)
}

// NewWithDialer allows the netlink connection and interface lookup to be replaced.
func NewWithDialer(log types.Logger, dial func() (*genetlink.Conn, error), ifIndex func(string) (int, error)) *NL80211 {
	return &NL80211{
		log:     log,
		iface:   DefaultInterface,
		dial:    dial,
		ifIndex: ifIndex,
	}
}

func fail(op string, err error) error {
	// Errors reported by the kernel keep their errno, so a firmware timeout
	// reaches the caller as -ETIMEDOUT.
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return transport.NewError(-int32(errno), op, err)
	}
	return transport.NewError(transport.CodeNL80211, op, err)
}

func (n *NL80211) Parse(iface string, config string) error {
	if iface != "" {
		n.iface = iface
	}
	return nil
}

func (n *NL80211) InterfaceName() string {
	return n.iface
}

func (n *NL80211) Init() error {
	idx, err := n.ifIndex(n.iface)
	if err != nil {
		return fail("init", fmt.Errorf("invalid interface %s: %w", n.iface, err))
	}
	n.ifindex = idx

	c, err := n.dial()
	if err != nil {
		return fail("init", err)
	}

	family, err := c.GetFamily(unix.NL80211_GENL_NAME)
	if err != nil {
		_ = c.Close()
		return fail("init", err)
	}
	n.c = c
	n.familyID = family.ID
	n.familyVersion = family.Version

	if n.log != nil {
		n.log.Debug().
			Str("interface", n.iface).
			Int("ifindex", n.ifindex).
			Int("family", int(family.ID)).
			Msg("nl80211 ready")
	}
	return nil
}

func (n *NL80211) Deinit() error {
	if n.c == nil {
		return nil
	}
	err := n.c.Close()
	n.c = nil
	if err != nil {
		return fail("deinit", err)
	}
	return nil
}

func (n *NL80211) WriteAlloc(size int) (*wire.Buffer, error) {
	return wire.NewBuffer(0, size, 0)
}

func (n *NL80211) ReadAlloc(size int) (*wire.Buffer, error) {
	return wire.NewBuffer(0, size, 0)
}

func (n *NL80211) Send(cmd *wire.Buffer, resp *wire.Buffer) error {
	if n.c == nil {
		return fail("send", ErrNotOpen)
	}

	ae := netlink.NewAttributeEncoder()
	ae.Uint32(unix.NL80211_ATTR_IFINDEX, uint32(n.ifindex))
	ae.Uint32(unix.NL80211_ATTR_VENDOR_ID, MorseOUI)
	ae.Uint32(unix.NL80211_ATTR_VENDOR_SUBCMD, VendorToChip)
	ae.Bytes(unix.NL80211_ATTR_VENDOR_DATA, cmd.Bytes())
	b, err := ae.Encode()
	if err != nil {
		return fail("send", err)
	}

	msgs, err := n.c.Execute(
		genetlink.Message{
			Header: genetlink.Header{
				Command: unix.NL80211_CMD_VENDOR,
				Version: n.familyVersion,
			},
			Data: b,
		},
		n.familyID,
		netlink.Request,
	)
	if err != nil {
		return fail("send", err)
	}

	for _, m := range msgs {
		data, err := vendorData(m.Data)
		if err != nil {
			return fail("send", err)
		}
		if data == nil {
			continue
		}
		size := len(data)
		if size > resp.Usable() {
			if n.log != nil {
				n.log.Debug().
					Int("received", len(data)).
					Int("available", resp.Usable()).
					Msg("response truncated")
			}
			size = resp.Usable()
		}
		err = resp.SetLen(size)
		if err != nil {
			return fail("send", err)
		}
		copy(resp.Bytes(), data[:size])
		return nil
	}
	return fail("send", ErrNoVendorData)
}

func vendorData(b []byte) ([]byte, error) {
	ad, err := netlink.NewAttributeDecoder(b)
	if err != nil {
		return nil, err
	}
	var data []byte
	for ad.Next() {
		if ad.Type() == unix.NL80211_ATTR_VENDOR_DATA {
			data = ad.Bytes()
		}
	}
	return data, ad.Err()
}
