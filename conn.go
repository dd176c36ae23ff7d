// Copyright 2025 The TinyTLS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// TLS low level connection and record layer

package tls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tealfork/tinytls/x509"
)

// A Conn represents a secured connection.
// It implements the net.Conn interface.
type Conn struct {
	// constant
	conn   net.Conn
	config *Config

	// isHandshakeComplete is true if the connection is currently
	// transferring application data (i.e. is not currently processing a
	// handshake). isHandshakeComplete is true implies handshakeErr == nil.
	isHandshakeComplete atomic.Bool
	// constant after handshake; protected by handshakeMutex
	handshakeMutex   sync.Mutex
	handshakeErr     error
	vers             uint16
	haveVers         bool
	didHRR           bool
	cipherSuite      uint16
	curveID          CurveID
	peerCertificates []*x509.Certificate
	verifiedChains   [][]*x509.Certificate
	serverName       string
	// ekm is a closure for exporting keying material.
	ekm func(label string, context []byte, length int) ([]byte, error)
	// resumptionSecret is the resumption_master_secret, retained only so
	// it can be zeroed with the rest of the key material.
	resumptionSecret []byte

	// closeNotifyErr is any error from sending the alertCloseNotify record.
	closeNotifyErr error
	// closeNotifySent is true if the Conn attempted to send an
	// alertCloseNotify record.
	closeNotifySent bool

	// fatalAlertSent prevents sending more than one fatal alert. After a
	// fatal alert all further alert sends, close_notify included, are
	// suppressed (RFC 8446, Section 6).
	fatalAlertSent atomic.Bool

	// input/output
	in, out   halfConn
	rawInput  bytes.Buffer // raw input, starting with a record header
	input     bytes.Reader // application data waiting to be read, from rawInput.Next
	hand      bytes.Buffer // handshake data waiting to be read
	buffering bool         // whether records are buffered in sendBuf
	sendBuf   []byte       // a buffer of records waiting to be sent

	// retryCount counts the number of consecutive non-advancing records
	// received by Conn.readRecord. That is, records that neither advance
	// the handshake, nor deliver application data. Protected by in.Mutex.
	retryCount int

	// activeCall indicates whether Close has been called in the low bit.
	// The rest of the bits are the number of goroutines in Conn.Write.
	activeCall atomic.Int32

	tmp [16]byte
}

// Access to net.Conn methods.
// Cannot just embed net.Conn because that would
// export the struct field too.

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline sets the read and write deadlines associated with the
// connection. A zero value for t means [Conn.Read] and [Conn.Write] will
// not time out. After a Write has timed out, the TLS state is corrupt and
// all future writes will return the same error.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline sets the read deadline on the underlying connection.
// A zero value for t means [Conn.Read] will not time out.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline on the underlying connection.
// A zero value for t means [Conn.Write] will not time out.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// NetConn returns the underlying connection that is wrapped by c.
// Note that writing to or reading from this connection directly will
// corrupt the TLS session.
func (c *Conn) NetConn() net.Conn {
	return c.conn
}

// A halfConn represents one direction of the record layer connection,
// either sending or receiving.
type halfConn struct {
	sync.Mutex

	err    error   // first permanent error
	cipher aead    // nil before key material is installed
	seq    [8]byte // 64-bit sequence number

	trafficSecret []byte // current traffic secret
}

type permanentError struct {
	err net.Error
}

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() error   { return e.err }
func (e *permanentError) Timeout() bool   { return e.err.Timeout() }
func (e *permanentError) Temporary() bool { return false }

// closedError poisons a connection half after a protocol failure. It keeps
// the original error text while matching ErrConnectionClosed, so callers
// can test the failed state with errors.Is.
type closedError struct {
	err error
}

func (e *closedError) Error() string   { return e.err.Error() }
func (e *closedError) Unwrap() []error { return []error{e.err, ErrConnectionClosed} }

func (hc *halfConn) setErrorLocked(err error) error {
	if err == nil {
		hc.err = nil
		return nil
	}
	var op *net.OpError
	switch {
	case err == io.EOF:
		hc.err = err
	case errors.As(err, &op) && (op.Op == "local error" || op.Op == "remote error"):
		// Alert-driven failures poison the connection.
		hc.err = &closedError{err: err}
	default:
		if e, ok := err.(net.Error); ok {
			hc.err = &permanentError{err: e}
		} else {
			hc.err = &closedError{err: err}
		}
	}
	return hc.err
}

// setTrafficSecret installs the record protection keys derived from
// secret and resets the sequence number. The previous traffic secret is
// zeroed before being replaced.
func (hc *halfConn) setTrafficSecret(suite *cipherSuiteTLS13, secret []byte) error {
	if hc.trafficSecret != nil {
		zeroSlice(hc.trafficSecret)
	}
	hc.trafficSecret = secret
	key, iv, err := suite.trafficKey(secret)
	if err != nil {
		return err
	}
	aeadCipher, err := suite.aead(key, iv)
	if err != nil {
		zeroSlice(key)
		zeroSlice(iv)
		return fmt.Errorf("tls: failed to create AEAD cipher: %w", err)
	}
	hc.cipher = aeadCipher
	// The AEAD keeps its own copy of the key schedule.
	zeroSlice(key)
	zeroSlice(iv)
	for i := range hc.seq {
		hc.seq[i] = 0
	}
	return nil
}

// zeroSecrets zeros all secret material held by the connection. Called on
// fatal errors and on Close; RFC 8446, Section 6 requires the secrets of
// failed connections to be forgotten.
func (c *Conn) zeroSecrets() {
	if c.in.trafficSecret != nil {
		zeroSlice(c.in.trafficSecret)
		c.in.trafficSecret = nil
	}
	if c.out.trafficSecret != nil {
		zeroSlice(c.out.trafficSecret)
		c.out.trafficSecret = nil
	}
	if c.resumptionSecret != nil {
		zeroSlice(c.resumptionSecret)
		c.resumptionSecret = nil
	}
}

func zeroSlice(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

var errSequenceOverflow = errors.New("tls: sequence number overflow")

// incSeq increments the sequence number. A sequence number is not allowed
// to wrap; the connection must rekey or terminate first (RFC 8446,
// Section 5.3), so overflow is recorded as a permanent error.
func (hc *halfConn) incSeq() error {
	for i := 7; i >= 0; i-- {
		hc.seq[i]++
		if hc.seq[i] != 0 {
			return nil
		}
	}
	hc.err = errSequenceOverflow
	return errSequenceOverflow
}

// decrypt authenticates and decrypts the record if protection is active
// at this stage. The returned plaintext might overlap with the input.
func (hc *halfConn) decrypt(record []byte) ([]byte, recordType, error) {
	var plaintext []byte
	typ := recordType(record[0])
	payload := record[recordHeaderLen:]

	// change_cipher_spec records are ignored without being decrypted.
	// See RFC 8446, Appendix D.4.
	if typ == recordTypeChangeCipherSpec {
		return payload, typ, nil
	}

	if hc.cipher != nil {
		if typ != recordTypeApplicationData {
			return nil, 0, alertUnexpectedMessage
		}
		var err error
		plaintext, err = hc.cipher.Open(payload[:0], hc.seq[:], payload, record[:recordHeaderLen])
		if err != nil {
			return nil, 0, alertBadRecordMAC
		}
		if len(plaintext) > maxPlaintext+1 {
			return nil, 0, alertRecordOverflow
		}
		// Remove padding and find the ContentType scanning from the end.
		for i := len(plaintext) - 1; i >= 0; i-- {
			if plaintext[i] != 0 {
				typ = recordType(plaintext[i])
				plaintext = plaintext[:i]
				break
			}
			if i == 0 {
				return nil, 0, alertUnexpectedMessage
			}
		}
	} else {
		plaintext = payload
	}

	if err := hc.incSeq(); err != nil {
		return nil, 0, alertInternalError
	}
	return plaintext, typ, nil
}

// sliceForAppend extends the input slice by n bytes. head is the full
// extended slice, while tail is the appended part. If the original slice
// has sufficient capacity no allocation is performed.
func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}

// encrypt encrypts payload and appends it to record, which must already
// contain the record header. paddingLen zero bytes are appended after the
// inner ContentType.
func (hc *halfConn) encrypt(record, payload []byte, paddingLen int) ([]byte, error) {
	if hc.cipher == nil {
		record = append(record, payload...)
		n := len(record) - recordHeaderLen
		record[3] = byte(n >> 8)
		record[4] = byte(n)
		if err := hc.incSeq(); err != nil {
			return nil, err
		}
		return record, nil
	}

	record = append(record, payload...)

	// Encrypt the actual ContentType and replace the plaintext one.
	record = append(record, record[0])
	record[0] = byte(recordTypeApplicationData)

	for i := 0; i < paddingLen; i++ {
		record = append(record, 0)
	}

	n := len(payload) + 1 + paddingLen + hc.cipher.Overhead()
	record[3] = byte(n >> 8)
	record[4] = byte(n)

	record = hc.cipher.Seal(record[:recordHeaderLen],
		hc.seq[:], record[recordHeaderLen:], record[:recordHeaderLen])

	if err := hc.incSeq(); err != nil {
		return nil, err
	}
	return record, nil
}

// RecordHeaderError is returned when a TLS record header is invalid.
type RecordHeaderError struct {
	// Msg contains a human readable string that describes the error.
	Msg string
	// RecordHeader contains the five bytes of TLS record header that
	// triggered the error.
	RecordHeader [5]byte
	// Conn provides the underlying net.Conn in the case that a server
	// sent an initial response that didn't look like TLS.
	// It is nil if there's already been a handshake or a TLS alert has
	// been written to the connection.
	Conn net.Conn
}

func (e RecordHeaderError) Error() string { return "tls: " + e.Msg }

func (c *Conn) newRecordHeaderError(conn net.Conn, msg string) (err RecordHeaderError) {
	err.Msg = msg
	err.Conn = conn
	copy(err.RecordHeader[:], c.rawInput.Bytes())
	return err
}

func (c *Conn) readRecord() error {
	return c.readRecordOrCCS(false)
}

// readRecordOrCCS reads one or more TLS records from the connection and
// updates the record layer state. Some invariants:
//   - c.in must be locked
//   - c.input must be empty
//
// During the handshake one and only one of the following will happen:
//   - c.hand grows
//   - an error is returned
//
// After the handshake one and only one of the following will happen:
//   - c.hand grows
//   - c.input is set
//   - an error is returned
func (c *Conn) readRecordOrCCS(expectChangeCipherSpec bool) error {
	if c.in.err != nil {
		return c.in.err
	}
	handshakeComplete := c.isHandshakeComplete.Load()

	// This function modifies c.rawInput, which owns the c.input memory.
	if c.input.Len() != 0 {
		return c.in.setErrorLocked(errors.New("tls: internal error: attempted to read record with pending application data"))
	}
	c.input.Reset(nil)

	// Read header, payload.
	if err := c.readFromUntil(c.conn, recordHeaderLen); err != nil {
		// RFC 8446, Section 6.1 suggests that EOF without an
		// alertCloseNotify is an error, but popular web sites seem to do
		// this, so we accept it if and only if at the record boundary.
		if err == io.ErrUnexpectedEOF && c.rawInput.Len() == 0 {
			err = io.EOF
		}
		c.in.setErrorLocked(err)
		return err
	}
	hdr := c.rawInput.Bytes()[:recordHeaderLen]
	typ := recordType(hdr[0])

	vers := uint16(hdr[1])<<8 | uint16(hdr[2])
	n := int(hdr[3])<<8 | int(hdr[4])
	if c.haveVers && vers != VersionTLS12 {
		// All TLS 1.3 records carry 0x0303 after the initial hello
		// (RFC 8446, Section 5.1).
		c.sendAlert(alertProtocolVersion)
		msg := fmt.Sprintf("received record with version %x when expecting version %x", vers, VersionTLS12)
		return c.in.setErrorLocked(c.newRecordHeaderError(nil, msg))
	}
	if !c.haveVers {
		// First response, be extra suspicious: this might not be a TLS
		// server. Bail out before reading a full 'body', if possible.
		if (typ != recordTypeAlert && typ != recordTypeHandshake) || vers >= 0x1000 {
			return c.in.setErrorLocked(c.newRecordHeaderError(c.conn, "first record does not look like a TLS handshake"))
		}
	}
	if n > maxCiphertextTLS13 {
		c.sendAlert(alertRecordOverflow)
		msg := fmt.Sprintf("oversized record received with length %d", n)
		return c.in.setErrorLocked(c.newRecordHeaderError(nil, msg))
	}
	if err := c.readFromUntil(c.conn, recordHeaderLen+n); err != nil {
		c.in.setErrorLocked(err)
		return err
	}

	// Process message.
	record := c.rawInput.Next(recordHeaderLen + n)
	data, typ, err := c.in.decrypt(record)
	if err != nil {
		return c.in.setErrorLocked(c.sendAlert(err.(alert)))
	}
	if len(data) > maxPlaintext {
		return c.in.setErrorLocked(c.sendAlert(alertRecordOverflow))
	}

	// Application Data messages are always protected.
	if c.in.cipher == nil && typ == recordTypeApplicationData {
		return c.in.setErrorLocked(c.sendAlert(alertUnexpectedMessage))
	}

	if typ != recordTypeAlert && typ != recordTypeChangeCipherSpec && len(data) > 0 {
		// This is a state-advancing message: reset the retry count.
		c.retryCount = 0
	}

	// Handshake messages MUST NOT be interleaved with other record types.
	if typ != recordTypeHandshake && c.hand.Len() > 0 {
		return c.in.setErrorLocked(c.sendAlert(alertUnexpectedMessage))
	}

	switch typ {
	default:
		return c.in.setErrorLocked(c.sendAlert(alertUnexpectedMessage))

	case recordTypeAlert:
		if len(data) != 2 {
			return c.in.setErrorLocked(c.sendAlert(alertUnexpectedMessage))
		}
		if alert(data[1]) == alertCloseNotify {
			return c.in.setErrorLocked(io.EOF)
		}
		if alert(data[1]) == alertUserCanceled {
			// Drop the record on the floor and retry.
			return c.retryReadRecord(expectChangeCipherSpec)
		}
		return c.in.setErrorLocked(&net.OpError{Op: "remote error", Err: alert(data[1])})

	case recordTypeChangeCipherSpec:
		if len(data) != 1 || data[0] != 1 {
			return c.in.setErrorLocked(c.sendAlert(alertDecodeError))
		}
		// Handshake messages are not allowed to fragment across the CCS.
		if c.hand.Len() > 0 {
			return c.in.setErrorLocked(c.sendAlert(alertUnexpectedMessage))
		}
		// change_cipher_spec records are ignored until the handshake
		// completes; after that they are illegal. See RFC 8446,
		// Appendix D.4.
		if handshakeComplete {
			return c.in.setErrorLocked(c.sendAlert(alertUnexpectedMessage))
		}
		return c.retryReadRecord(expectChangeCipherSpec)

	case recordTypeApplicationData:
		if !handshakeComplete || expectChangeCipherSpec {
			return c.in.setErrorLocked(c.sendAlert(alertUnexpectedMessage))
		}
		// Empty application data records are legal padding-only records.
		// Ignore a limited number of them.
		if len(data) == 0 {
			return c.retryReadRecord(expectChangeCipherSpec)
		}
		// Note that data is owned by c.rawInput, following the Next call
		// above, to avoid copying the plaintext. This is safe because
		// c.rawInput is not read from or written to until c.input is
		// drained.
		c.input.Reset(data)

	case recordTypeHandshake:
		if len(data) == 0 || expectChangeCipherSpec {
			return c.in.setErrorLocked(c.sendAlert(alertUnexpectedMessage))
		}
		c.hand.Write(data)
	}

	return nil
}

// retryReadRecord recurs into readRecordOrCCS to drop a non-advancing
// record, like a change_cipher_spec or an empty application_data record.
func (c *Conn) retryReadRecord(expectChangeCipherSpec bool) error {
	c.retryCount++
	if c.retryCount > maxUselessRecords {
		c.sendAlert(alertUnexpectedMessage)
		return c.in.setErrorLocked(errors.New("tls: too many ignored records"))
	}
	return c.readRecordOrCCS(expectChangeCipherSpec)
}

// atLeastReader reads from R, stopping with EOF once at least N bytes
// have been read. It is different from an io.LimitedReader in that it
// doesn't cut short the last Read call, and in that it considers an early
// EOF an error.
type atLeastReader struct {
	R io.Reader
	N int64
}

func (r *atLeastReader) Read(p []byte) (int, error) {
	if r.N <= 0 {
		return 0, io.EOF
	}
	n, err := r.R.Read(p)
	r.N -= int64(n) // won't underflow unless len(p) >= n > 9223372036854775809
	if r.N > 0 && err == io.EOF {
		return n, io.ErrUnexpectedEOF
	}
	if r.N <= 0 && err == nil {
		return n, io.EOF
	}
	return n, err
}

// readFromUntil reads from r into c.rawInput until c.rawInput contains
// at least n bytes or else returns an error.
func (c *Conn) readFromUntil(r io.Reader, n int) error {
	if c.rawInput.Len() >= n {
		return nil
	}
	needs := n - c.rawInput.Len()
	// There might be extra input waiting on the wire. Make a best effort
	// attempt to fetch it so that it can be used in (*Conn).Read to
	// "predict" closeNotify alerts.
	c.rawInput.Grow(needs + bytes.MinRead)
	_, err := c.rawInput.ReadFrom(&atLeastReader{r, int64(needs)})
	return err
}

// sendAlertLocked sends a TLS alert message. At most one fatal alert is
// sent per connection; once it has gone out every further alert, close
// notify included, is suppressed and the secrets are zeroed (RFC 8446,
// Section 6).
func (c *Conn) sendAlertLocked(err alert) error {
	isFatal := err != alertCloseNotify && err != alertUserCanceled

	if isFatal {
		if !c.fatalAlertSent.CompareAndSwap(false, true) {
			// A fatal alert already went out; record the error without
			// writing another alert.
			return c.out.setErrorLocked(&net.OpError{Op: "local error", Err: err})
		}
		c.zeroSecrets()
	} else if c.fatalAlertSent.Load() {
		return nil
	}

	c.config.logger().Debug("sending alert",
		zap.String("alert", err.String()),
		zap.Bool("fatal", isFatal))

	if isFatal {
		c.tmp[0] = alertLevelError
	} else {
		c.tmp[0] = alertLevelWarning
	}
	c.tmp[1] = byte(err)

	_, writeErr := c.writeRecordLocked(recordTypeAlert, c.tmp[0:2])
	if err == alertCloseNotify {
		// closeNotify is a special case in that it isn't an error.
		return writeErr
	}

	return c.out.setErrorLocked(&net.OpError{Op: "local error", Err: err})
}

// sendAlert sends a TLS alert message.
func (c *Conn) sendAlert(err alert) error {
	c.out.Lock()
	defer c.out.Unlock()
	return c.sendAlertLocked(err)
}

func (c *Conn) write(data []byte) (int, error) {
	if c.buffering {
		c.sendBuf = append(c.sendBuf, data...)
		return len(data), nil
	}
	return c.conn.Write(data)
}

func (c *Conn) flush() (int, error) {
	if len(c.sendBuf) == 0 {
		return 0, nil
	}

	n, err := c.conn.Write(c.sendBuf)
	c.sendBuf = nil
	c.buffering = false
	return n, err
}

// outBufPool pools the record-sized scratch buffers used by
// writeRecordLocked.
var outBufPool = sync.Pool{
	New: func() any {
		return new([]byte)
	},
}

// writeRecordLocked writes a TLS record with the given type and payload
// to the connection and updates the record layer state.
func (c *Conn) writeRecordLocked(typ recordType, data []byte) (int, error) {
	outBufPtr := outBufPool.Get().(*[]byte)
	outBuf := *outBufPtr
	defer func() {
		// You might be tempted to simplify this by just passing &outBuf to
		// Put, but that would make the local copy of the outBuf slice
		// header escape to the heap, causing an allocation. Instead, we
		// keep around the pointer to the slice header returned by Get,
		// which is already on the heap, and overwrite and return that.
		*outBufPtr = outBuf
		outBufPool.Put(outBufPtr)
	}()

	var n int
	for len(data) > 0 {
		m := len(data)
		if m > maxPlaintext {
			m = maxPlaintext
		}

		_, outBuf = sliceForAppend(outBuf[:0], recordHeaderLen)
		outBuf[0] = byte(typ)
		vers := c.vers
		if vers == 0 {
			// Some TLS servers fail if the record version is greater than
			// TLS 1.0 for the initial ClientHello.
			vers = VersionTLS10
		} else {
			// TLS 1.3 froze the record layer version to 1.2.
			// See RFC 8446, Section 5.1.
			vers = VersionTLS12
		}
		outBuf[1] = byte(vers >> 8)
		outBuf[2] = byte(vers)
		outBuf[3] = byte(m >> 8)
		outBuf[4] = byte(m)

		paddingLen := 0
		if c.out.cipher != nil {
			paddingLen = c.config.recordPadding().paddingLen(c.config.rand(), m)
		}

		var err error
		outBuf, err = c.out.encrypt(outBuf, data[:m], paddingLen)
		if err != nil {
			return n, err
		}
		if _, err := c.write(outBuf); err != nil {
			return n, err
		}
		n += m
		data = data[m:]
	}

	return n, nil
}

// writeHandshakeRecord writes a handshake message to the connection and
// updates the record layer state. If transcript is non-nil the marshaled
// message is written to it.
func (c *Conn) writeHandshakeRecord(msg handshakeMessage, transcript transcriptHash) (int, error) {
	c.out.Lock()
	defer c.out.Unlock()

	data, err := msg.marshal()
	if err != nil {
		return 0, err
	}
	if transcript != nil {
		transcript.Write(data)
	}

	return c.writeRecordLocked(recordTypeHandshake, data)
}

// writeChangeCipherRecord writes a ChangeCipherSpec message to the
// connection for middlebox compatibility (RFC 8446, Appendix D.4).
func (c *Conn) writeChangeCipherRecord() error {
	c.out.Lock()
	defer c.out.Unlock()
	_, err := c.writeRecordLocked(recordTypeChangeCipherSpec, []byte{1})
	return err
}

// readHandshakeBytes reads handshake data until c.hand contains at least
// n bytes.
func (c *Conn) readHandshakeBytes(n int) error {
	for c.hand.Len() < n {
		if err := c.readRecord(); err != nil {
			return err
		}
	}
	return nil
}

// transcriptHash accumulates the handshake transcript.
type transcriptHash interface {
	io.Writer
}

// readHandshake reads the next handshake message from the record layer,
// reassembling fragments as needed. If transcript is non-nil, the raw
// message is written to the passed transcriptHash.
func (c *Conn) readHandshake(transcript transcriptHash) (handshakeMessage, error) {
	if err := c.readHandshakeBytes(4); err != nil {
		return nil, err
	}
	data := c.hand.Bytes()

	n := int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	if n > maxHandshake {
		c.sendAlertLocked(alertInternalError)
		return nil, c.in.setErrorLocked(fmt.Errorf("tls: handshake message of length %d bytes exceeds maximum of %d bytes", n, maxHandshake))
	}
	if err := c.readHandshakeBytes(4 + n); err != nil {
		return nil, err
	}
	data = c.hand.Next(4 + n)
	return c.unmarshalHandshakeMessage(data, transcript)
}

func (c *Conn) unmarshalHandshakeMessage(data []byte, transcript transcriptHash) (handshakeMessage, error) {
	var m handshakeMessage
	switch data[0] {
	case typeServerHello:
		m = new(serverHelloMsg)
	case typeNewSessionTicket:
		m = new(newSessionTicketMsgTLS13)
	case typeEncryptedExtensions:
		m = new(encryptedExtensionsMsg)
	case typeCertificate:
		m = new(certificateMsgTLS13)
	case typeCompressedCert:
		m = new(compressedCertificateMsg)
	case typeCertificateVerify:
		m = new(certificateVerifyMsg)
	case typeFinished:
		m = new(finishedMsg)
	case typeKeyUpdate:
		m = new(keyUpdateMsg)
	default:
		return nil, c.in.setErrorLocked(c.sendAlert(alertUnexpectedMessage))
	}

	// The handshake message unmarshalers expect to be able to keep
	// references to data, so pass in a fresh copy that won't be
	// overwritten.
	data = append([]byte(nil), data...)

	if !m.unmarshal(data) {
		return nil, c.in.setErrorLocked(c.sendAlert(alertDecodeError))
	}

	if transcript != nil {
		transcript.Write(data)
	}

	return m, nil
}

// Write writes data to the connection.
//
// As Write calls [Conn.Handshake], in order to prevent indefinite
// blocking a deadline must be set for both [Conn.Read] and Write before
// Write is called when the handshake has not yet completed. See
// [Conn.SetDeadline], [Conn.SetReadDeadline], and [Conn.SetWriteDeadline].
func (c *Conn) Write(b []byte) (int, error) {
	// interlock with Close below
	for {
		x := c.activeCall.Load()
		if x&1 != 0 {
			return 0, &closedError{err: net.ErrClosed}
		}
		if c.activeCall.CompareAndSwap(x, x+2) {
			break
		}
	}
	defer c.activeCall.Add(-2)

	if err := c.Handshake(); err != nil {
		return 0, err
	}

	c.out.Lock()
	defer c.out.Unlock()

	if err := c.out.err; err != nil {
		return 0, err
	}

	if !c.isHandshakeComplete.Load() {
		return 0, alertInternalError
	}

	if c.closeNotifySent {
		return 0, ErrConnectionClosed
	}

	n, err := c.writeRecordLocked(recordTypeApplicationData, b)
	return n, c.out.setErrorLocked(err)
}

// handlePostHandshakeMessage processes a handshake message arrived after
// the handshake is complete.
func (c *Conn) handlePostHandshakeMessage() error {
	msg, err := c.readHandshake(nil)
	if err != nil {
		return err
	}
	c.retryCount++
	if c.retryCount > maxUselessRecords {
		c.sendAlert(alertUnexpectedMessage)
		return c.in.setErrorLocked(errors.New("tls: too many non-advancing records"))
	}

	switch msg := msg.(type) {
	case *newSessionTicketMsgTLS13:
		// Session resumption is not supported; tickets are discarded
		// after framing validation.
		c.config.logger().Debug("discarding session ticket")
		return nil
	case *keyUpdateMsg:
		return c.handleKeyUpdate(msg)
	default:
		c.sendAlert(alertUnexpectedMessage)
		return fmt.Errorf("tls: received unexpected handshake message of type %T", msg)
	}
}

func (c *Conn) handleKeyUpdate(keyUpdate *keyUpdateMsg) error {
	cipherSuite := cipherSuiteTLS13ByID(c.cipherSuite)
	if cipherSuite == nil {
		return c.in.setErrorLocked(c.sendAlert(alertInternalError))
	}

	newSecret, err := cipherSuite.nextTrafficSecret(c.in.trafficSecret)
	if err != nil {
		return c.in.setErrorLocked(c.sendAlert(alertInternalError))
	}
	if err := c.in.setTrafficSecret(cipherSuite, newSecret); err != nil {
		return c.in.setErrorLocked(c.sendAlert(alertInternalError))
	}
	c.config.logger().Debug("updated receive traffic keys")

	if keyUpdate.updateRequested {
		c.out.Lock()
		defer c.out.Unlock()

		msg := &keyUpdateMsg{}
		msgBytes, err := msg.marshal()
		if err != nil {
			return err
		}
		if _, err := c.writeRecordLocked(recordTypeHandshake, msgBytes); err != nil {
			return c.out.setErrorLocked(err)
		}

		newSecret, err := cipherSuite.nextTrafficSecret(c.out.trafficSecret)
		if err != nil {
			return c.out.setErrorLocked(err)
		}
		if err := c.out.setTrafficSecret(cipherSuite, newSecret); err != nil {
			return c.out.setErrorLocked(err)
		}
		c.config.logger().Debug("updated send traffic keys")
	}

	return nil
}

// Read reads data from the connection.
//
// As Read calls [Conn.Handshake], in order to prevent indefinite blocking
// a deadline must be set for both Read and [Conn.Write] before Read is
// called when the handshake has not yet completed. See [Conn.SetDeadline],
// [Conn.SetReadDeadline], and [Conn.SetWriteDeadline].
func (c *Conn) Read(b []byte) (int, error) {
	if err := c.Handshake(); err != nil {
		return 0, err
	}
	if len(b) == 0 {
		// Put this after Handshake, in case people were calling
		// Read(nil) for the side effect of the Handshake.
		return 0, nil
	}

	c.in.Lock()
	defer c.in.Unlock()

	for c.input.Len() == 0 {
		if err := c.readRecord(); err != nil {
			return 0, err
		}
		for c.hand.Len() > 0 {
			if err := c.handlePostHandshakeMessage(); err != nil {
				return 0, err
			}
		}
	}

	n, _ := c.input.Read(b)

	// If a close-notify alert is waiting, read it so that we can return
	// (n, EOF) instead of (n, nil), to signal to the caller that the
	// connection is now closed.
	if n != 0 && c.input.Len() == 0 && c.rawInput.Len() > 0 &&
		recordType(c.rawInput.Bytes()[0]) == recordTypeAlert {
		if err := c.readRecord(); err != nil {
			return n, err // will be io.EOF on closeNotify
		}
	}

	return n, nil
}

// Close closes the connection. All secret material is zeroed so that key
// material does not persist in memory after the connection ends.
func (c *Conn) Close() error {
	// Interlock with Conn.Write above.
	var x int32
	for {
		x = c.activeCall.Load()
		if x&1 != 0 {
			return &closedError{err: net.ErrClosed}
		}
		if c.activeCall.CompareAndSwap(x, x|1) {
			break
		}
	}
	if x != 0 {
		// io.Writer and io.Closer should not be used concurrently.
		// If Close is called while a Write is currently in-flight,
		// interpret that as a sign that this Close is really just being
		// used to break the Write and/or clean up resources and avoid
		// sending the alertCloseNotify, which may block waiting on
		// handshakeMutex or the c.out mutex.
		c.zeroSecrets()
		return c.conn.Close()
	}

	var alertErr error
	if c.isHandshakeComplete.Load() {
		if err := c.closeNotify(); err != nil {
			alertErr = fmt.Errorf("tls: failed to send closeNotify alert (but connection was closed anyway): %w", err)
		}
	}

	c.zeroSecrets()

	if err := c.conn.Close(); err != nil {
		return err
	}
	return alertErr
}

const closeNotifyTimeout = 5 * time.Second

func (c *Conn) closeNotify() error {
	c.out.Lock()
	defer c.out.Unlock()

	if !c.closeNotifySent {
		// Set a write deadline to prevent possibly blocking forever.
		c.SetWriteDeadline(time.Now().Add(closeNotifyTimeout))
		c.closeNotifyErr = c.sendAlertLocked(alertCloseNotify)
		c.closeNotifySent = true
		// Any subsequent writes will fail.
		c.SetWriteDeadline(time.Now())
	}
	return c.closeNotifyErr
}

// Handshake runs the client handshake protocol if it has not yet been
// run.
//
// Most uses of this package need not call Handshake explicitly: the first
// [Conn.Read] or [Conn.Write] will call it automatically.
//
// For control over canceling or setting a timeout on a handshake, use
// [Conn.HandshakeContext] instead.
func (c *Conn) Handshake() error {
	return c.HandshakeContext(context.Background())
}

// HandshakeContext runs the client handshake protocol if it has not yet
// been run.
//
// The provided Context must be non-nil. If the context is canceled before
// the handshake is complete, the handshake is interrupted and an error is
// returned. Once the handshake has completed, cancellation of the context
// will not affect the connection.
func (c *Conn) HandshakeContext(ctx context.Context) error {
	// Delegate to unexported method for named return
	// without confusing documented signature.
	return c.handshakeContext(ctx)
}

func (c *Conn) handshakeContext(ctx context.Context) (ret error) {
	// Fast sync/atomic-based exit if there is no handshake in flight and
	// the last one succeeded without an error. Avoids the expensive
	// context setup and mutex for most Read and Write calls.
	if c.isHandshakeComplete.Load() {
		return nil
	}

	handshakeCtx, cancel := context.WithCancel(ctx)
	// Note: defer this before starting the "interrupter" goroutine so
	// that we can tell the difference between the input being canceled
	// and this cancellation. In the former case, we need to close the
	// connection.
	defer cancel()

	if ctx.Done() != nil {
		// Start the "interrupter" goroutine, if this context might be
		// canceled. (The background context cannot.)
		//
		// The interrupter goroutine waits for the input context to be
		// done and closes the connection if this happens before the
		// function returns.
		done := make(chan struct{})
		interruptRes := make(chan error, 1)
		defer func() {
			close(done)
			if ctxErr := <-interruptRes; ctxErr != nil {
				// Return context error to user.
				ret = ctxErr
			}
		}()
		go func() {
			select {
			case <-handshakeCtx.Done():
				_ = c.conn.Close()
				interruptRes <- handshakeCtx.Err()
			case <-done:
				interruptRes <- nil
			}
		}()
	}

	c.handshakeMutex.Lock()
	defer c.handshakeMutex.Unlock()

	if err := c.handshakeErr; err != nil {
		return err
	}
	if c.isHandshakeComplete.Load() {
		return nil
	}

	c.in.Lock()
	defer c.in.Unlock()

	c.handshakeErr = c.clientHandshake(handshakeCtx)
	if c.handshakeErr != nil {
		// If an error occurred during the handshake try to flush the
		// alert that might be left in the buffer.
		c.flush()
	}

	if c.handshakeErr == nil && !c.isHandshakeComplete.Load() {
		c.handshakeErr = errors.New("tls: internal error: handshake should have had a result")
	}
	if c.handshakeErr != nil && c.isHandshakeComplete.Load() {
		panic("tls: internal error: handshake returned an error but is marked successful")
	}

	return c.handshakeErr
}

// ConnectionState returns basic TLS details about the connection.
func (c *Conn) ConnectionState() ConnectionState {
	c.handshakeMutex.Lock()
	defer c.handshakeMutex.Unlock()
	return c.connectionStateLocked()
}

func (c *Conn) connectionStateLocked() ConnectionState {
	var state ConnectionState
	state.HandshakeComplete = c.isHandshakeComplete.Load()
	state.Version = c.vers
	state.ServerName = c.serverName
	state.CipherSuite = c.cipherSuite
	state.PeerCertificates = c.peerCertificates
	state.VerifiedChains = c.verifiedChains
	state.NegotiatedGroup = c.curveID
	return state
}

// VerifyHostname checks that the peer certificate chain is valid for
// connecting to host. If so, it returns nil; if not, it returns an error
// describing the problem.
func (c *Conn) VerifyHostname(host string) error {
	c.handshakeMutex.Lock()
	defer c.handshakeMutex.Unlock()
	if !c.isHandshakeComplete.Load() {
		return errors.New("tls: handshake has not yet been performed")
	}
	if len(c.verifiedChains) == 0 {
		return errors.New("tls: handshake did not verify certificate chain")
	}
	if len(c.peerCertificates) == 0 {
		return errors.New("tls: no peer certificates available")
	}
	return c.peerCertificates[0].VerifyHostname(host)
}
