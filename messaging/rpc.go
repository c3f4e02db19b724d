// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package messaging

import (
	"io"
	"net"
	"os"

	"github.com/agilira/conduit/control"
	"github.com/agilira/conduit/errs"
)

// RPC request opcodes.
const (
	opList   byte = 0
	opUpdate byte = 1
)

// RPC update response status codes.
const (
	statusOK    byte = 0
	statusError byte = 1
)

// serveRPC listens at path for category-management connections: every
// message is u8 length || payload, request and response alike. Mirrors the
// remote control endpoint MessageUnit exposes for listing and toggling
// categories, generalized from Control.h's per-category bit flip into a
// small framed protocol.
func (u *Unit) serveRPC(path string) error {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return errs.Wrap(errs.KindUnavailable, "messaging: rpc listen", err)
	}
	u.mu.Lock()
	u.rpcListener = ln
	u.mu.Unlock()

	go u.acceptRPC(ln)
	return nil
}

func (u *Unit) acceptRPC(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go u.handleRPCConn(conn)
	}
}

func (u *Unit) handleRPCConn(conn net.Conn) {
	defer conn.Close()
	for {
		req, err := readFrame(conn)
		if err != nil {
			return
		}
		resp := u.dispatchRPC(req)
		if err := writeFrame(conn, resp); err != nil {
			return
		}
	}
}

func (u *Unit) dispatchRPC(req []byte) []byte {
	if len(req) == 0 {
		return []byte{statusError}
	}
	switch req[0] {
	case opList:
		return encodeCategoryList(u.registry.Snapshot())
	case opUpdate:
		entry, ok := decodeEntry(req[1:])
		if !ok {
			return []byte{statusError}
		}
		u.ApplyOverride(entry)
		return []byte{statusOK}
	default:
		return []byte{statusError}
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenByte [1]byte
	if _, err := io.ReadFull(r, lenByte[:]); err != nil {
		return nil, err
	}
	buf := make([]byte, lenByte[0])
	if lenByte[0] == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > 0xFF {
		return errs.New(errs.KindWriteError, "messaging: rpc response too large")
	}
	if _, err := w.Write([]byte{byte(len(payload))}); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// encodeCategoryList encodes a List response:
//
//	u8 count | (u8 kind | u8 moduleLen | module | u8 categoryLen | category | u8 enabled)*
func encodeCategoryList(entries []control.Entry) []byte {
	buf := []byte{byte(len(entries))}
	for _, e := range entries {
		buf = append(buf, byte(e.Kind), byte(len(e.Module)))
		buf = append(buf, e.Module...)
		buf = append(buf, byte(len(e.Category)))
		buf = append(buf, e.Category...)
		enabled := byte(0)
		if e.Enabled {
			enabled = 1
		}
		buf = append(buf, enabled)
	}
	return buf
}

// decodeEntry decodes a single Update request payload:
//
//	u8 kind | u8 moduleLen | module | u8 categoryLen | category | u8 enabled
func decodeEntry(buf []byte) (control.Entry, bool) {
	if len(buf) < 2 {
		return control.Entry{}, false
	}
	kind := control.Kind(buf[0])
	moduleLen := int(buf[1])
	pos := 2
	if pos+moduleLen+1 > len(buf) {
		return control.Entry{}, false
	}
	module := string(buf[pos : pos+moduleLen])
	pos += moduleLen

	categoryLen := int(buf[pos])
	pos++
	if pos+categoryLen+1 > len(buf) {
		return control.Entry{}, false
	}
	category := string(buf[pos : pos+categoryLen])
	pos += categoryLen

	enabled := buf[pos] != 0
	return control.Entry{Kind: kind, Module: module, Category: category, Enabled: enabled}, true
}

// RPCClient is a connection to a MessageUnit's RPC endpoint for listing or
// updating categories from another process, without linking in the full
// Unit. Obtain one with DialRPC.
type RPCClient struct {
	conn net.Conn
}

// DialRPC connects to the RPC endpoint at path.
func DialRPC(path string) (*RPCClient, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnavailable, "messaging: rpc dial", err)
	}
	return &RPCClient{conn: conn}, nil
}

// List requests the current category snapshot.
func (c *RPCClient) List() ([]control.Entry, error) {
	if err := writeFrame(c.conn, []byte{opList}); err != nil {
		return nil, errs.Wrap(errs.KindUnavailable, "messaging: rpc list", err)
	}
	resp, err := readFrame(c.conn)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnavailable, "messaging: rpc list", err)
	}
	return decodeCategoryList(resp)
}

// Update requests a single category override.
func (c *RPCClient) Update(entry control.Entry) error {
	payload := append([]byte{opUpdate}, encodeEntry(entry)...)
	if err := writeFrame(c.conn, payload); err != nil {
		return errs.Wrap(errs.KindUnavailable, "messaging: rpc update", err)
	}
	resp, err := readFrame(c.conn)
	if err != nil {
		return errs.Wrap(errs.KindUnavailable, "messaging: rpc update", err)
	}
	if len(resp) == 0 || resp[0] != statusOK {
		return errs.New(errs.KindIllegalState, "messaging: rpc update rejected")
	}
	return nil
}

// Close closes the RPC connection.
func (c *RPCClient) Close() error {
	return c.conn.Close()
}

func encodeEntry(e control.Entry) []byte {
	buf := []byte{byte(e.Kind), byte(len(e.Module))}
	buf = append(buf, e.Module...)
	buf = append(buf, byte(len(e.Category)))
	buf = append(buf, e.Category...)
	enabled := byte(0)
	if e.Enabled {
		enabled = 1
	}
	return append(buf, enabled)
}

func decodeCategoryList(buf []byte) ([]control.Entry, error) {
	if len(buf) == 0 {
		return nil, errs.New(errs.KindTruncated, "messaging: rpc list: empty response")
	}
	count := int(buf[0])
	pos := 1
	out := make([]control.Entry, 0, count)
	for i := 0; i < count; i++ {
		if pos+2 > len(buf) {
			return nil, errs.New(errs.KindTruncated, "messaging: rpc list: truncated entry")
		}
		kind := control.Kind(buf[pos])
		moduleLen := int(buf[pos+1])
		pos += 2
		if pos+moduleLen+1 > len(buf) {
			return nil, errs.New(errs.KindTruncated, "messaging: rpc list: truncated module")
		}
		module := string(buf[pos : pos+moduleLen])
		pos += moduleLen
		categoryLen := int(buf[pos])
		pos++
		if pos+categoryLen+1 > len(buf) {
			return nil, errs.New(errs.KindTruncated, "messaging: rpc list: truncated category")
		}
		category := string(buf[pos : pos+categoryLen])
		pos += categoryLen
		enabled := buf[pos] != 0
		pos++
		out = append(out, control.Entry{Kind: kind, Module: module, Category: category, Enabled: enabled})
	}
	return out, nil
}
