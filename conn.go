package tlspump

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/hrissan/tlspump/pump"
	"github.com/hrissan/tlspump/pumpstats"
	"github.com/hrissan/tlspump/refsm"
	"github.com/hrissan/tlspump/tlsrand"
)

// toy endpoint around the driver - not optimized at all, unlike core

type Conn struct {
	driver *pump.Driver
	rb     *pump.ReadBuffer
	nc     net.Conn

	mu         sync.Mutex
	closed     bool // if true, condRead is closed
	closeErr   error
	handshaken bool
	condRead   chan struct{}
	condDial   chan struct{}
	reading    [][]byte
	tickets    [][]byte // resumption tickets received by the client
}

var _ net.Conn = &Conn{}
var _ io.ReadWriter = &Conn{}

func signalCond(cond chan struct{}) {
	select {
	case cond <- struct{}{}:
	default:
	}
}

// Client wraps an established stream connection as the connecting side.
// opts may be nil for defaults.
func Client(nc net.Conn, opts *pump.Options) *Conn {
	return newConn(nc, opts, false)
}

// Server wraps an accepted stream connection as the listening side.
func Server(nc net.Conn, opts *pump.Options) *Conn {
	return newConn(nc, opts, true)
}

func newConn(nc net.Conn, opts *pump.Options, roleServer bool) *Conn {
	if opts == nil {
		opts = pump.DefaultOptions(pumpstats.NewStatsLog())
	}
	c := &Conn{
		nc:       nc,
		rb:       &pump.ReadBuffer{},
		condRead: make(chan struct{}, 1),
		condDial: make(chan struct{}, 1),
	}
	if opts.Preallocate {
		c.rb.Lock()
		c.rb.ReserveLocked(opts.ReadBufferReserve)
		c.rb.Unlock()
	}
	var state *refsm.State
	if roleServer {
		state = refsm.NewServerState(tlsrand.CryptoRand())
	} else {
		state = refsm.NewClientState(tlsrand.CryptoRand())
	}
	c.driver = pump.NewDriver(opts, refsm.NewMachine(), state, &connVisitor{c: c}, c.rb,
		func() { _ = nc.Close() })
	go c.goRead()
	if !roleServer {
		// kick so the client's key share flies before the first write
		c.driver.NewTransportData()
	}
	return c
}

func (c *Conn) LocalAddr() net.Addr                { return c.nc.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr               { return c.nc.RemoteAddr() }
func (c *Conn) SetDeadline(t time.Time) error      { return nil } // TODO
func (c *Conn) SetReadDeadline(t time.Time) error  { return nil } // TODO
func (c *Conn) SetWriteDeadline(t time.Time) error { return nil } // TODO

func (c *Conn) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if len(c.reading) != 0 {
			copied := copy(b, c.reading[0])
			c.reading[0] = c.reading[0][copied:]
			if len(c.reading[0]) == 0 {
				c.reading = c.reading[1:]
			}
			return copied, nil
		}
		if c.closed {
			if c.closeErr != nil {
				return 0, c.closeErr
			}
			return 0, io.EOF
		}
		c.mu.Unlock()
		<-c.condRead
		c.mu.Lock()
	}
}

// writeWaiter blocks the writer until the driver either emits the write's
// record or rejects it
type writeWaiter struct {
	done chan struct{}
	err  error
}

func (w *writeWaiter) WriteSuccess() { close(w.done) }

func (w *writeWaiter) WriteErr(n int, err error) {
	w.err = err
	close(w.done)
}

func (c *Conn) Write(b []byte) (int, error) {
	return c.write(b, false)
}

// WriteEarly submits b as 0-RTT payload. May be called before the
// handshake finishes.
func (c *Conn) WriteEarly(b []byte) (int, error) {
	return c.write(b, true)
}

func (c *Conn) write(b []byte, early bool) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, net.ErrClosed
	}
	c.mu.Unlock()
	w := &writeWaiter{done: make(chan struct{})}
	data := append([]byte{}, b...)
	if early {
		c.driver.EarlyAppWrite(pump.EarlyAppWrite{Data: data, Callback: w})
	} else {
		c.driver.AppWrite(pump.AppWrite{Data: data, Callback: w})
	}
	<-w.done
	if w.err != nil {
		return 0, w.err
	}
	return len(b), nil
}

// WriteNewSessionTicket asks the server side to mint a resumption ticket
// carrying appToken.
func (c *Conn) WriteNewSessionTicket(appToken []byte) {
	c.driver.WriteNewSessionTicket(pump.WriteNewSessionTicket{AppToken: append([]byte{}, appToken...)})
}

// SessionTickets returns tickets received so far by the client side.
func (c *Conn) SessionTickets() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte{}, c.tickets...)
}

func (c *Conn) Close() error {
	c.driver.AppClose()
	c.driver.Destroy()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *Conn) closeLocked(err error) {
	if c.closed {
		return
	}
	c.closed = true
	c.closeErr = err
	close(c.condRead)
	signalCond(c.condDial)
}

// read goroutine: socket bytes into the shared buffer, then signal the pump
func (c *Conn) goRead() {
	buf := make([]byte, 4096)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			c.rb.Lock()
			c.rb.AppendLocked(buf[:n])
			c.rb.Unlock()
			c.driver.NewTransportData()
		}
		if err != nil {
			c.driver.MoveToErrorState(err)
			c.mu.Lock()
			c.closeLocked(err)
			c.mu.Unlock()
			return
		}
	}
}

// connVisitor applies the reference endpoint's actions to the socket and
// the reader/writer wait queues
type connVisitor struct {
	c *Conn
}

var _ pump.Visitor = &connVisitor{}

func (v *connVisitor) Visit(action pump.Action) {
	c := v.c
	switch a := action.(type) {
	case refsm.WriteToTransport:
		if _, err := c.nc.Write(a.Data); err != nil {
			if a.Callback != nil {
				a.Callback.WriteErr(0, err)
			}
			c.driver.MoveToErrorState(err)
			return
		}
		if a.Callback != nil {
			a.Callback.WriteSuccess()
		}
	case refsm.DeliverAppData:
		c.mu.Lock()
		if !c.closed && len(a.Data) != 0 { // we store no empty chunks, they violate io.Reader contract
			c.reading = append(c.reading, append([]byte{}, a.Data...))
			signalCond(c.condRead)
		}
		c.mu.Unlock()
	case refsm.HandshakeComplete:
		c.mu.Lock()
		c.handshaken = true
		c.mu.Unlock()
		signalCond(c.condDial)
	case refsm.SessionTicketReceived:
		c.mu.Lock()
		c.tickets = append(c.tickets, append([]byte{}, a.AppToken...))
		c.mu.Unlock()
	case refsm.NewSessionTicketWritten:
		// nothing to do, the record is already on the wire
	case refsm.CloseTransport:
		_ = c.nc.Close()
		c.mu.Lock()
		c.closeLocked(nil)
		c.mu.Unlock()
	case refsm.ReportError:
		c.mu.Lock()
		c.closeLocked(a.Err)
		c.mu.Unlock()
	case refsm.WaitForData:
		c.driver.WaitForData()
	default:
		panic("must be never")
	}
}
