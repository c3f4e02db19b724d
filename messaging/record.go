// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package messaging

import (
	"encoding/binary"
	"time"

	"github.com/agilira/conduit/control"
	"github.com/agilira/conduit/errs"
)

// Record is one decoded message pulled off the buffered-mode dispatch
// channel: a category identity, a timestamp, and the text it carried.
// Mirrors TextMessage.h's category-tagged line, generalized to carry
// arbitrary kind/module/category metadata instead of just a trace tag.
type Record struct {
	Kind      control.Kind
	Module    string
	Category  string
	Timestamp time.Time
	Text      string
}

// encodeRecord serializes a record for the buffered-mode dispatch channel:
//
//	u8 kind | u8 moduleLen | module | u8 categoryLen | category | i64 unixNano | text
func encodeRecord(kind control.Kind, module, category string, ts time.Time, text string) []byte {
	buf := make([]byte, 0, 1+1+len(module)+1+len(category)+8+len(text))
	buf = append(buf, byte(kind))
	buf = append(buf, byte(len(module)))
	buf = append(buf, module...)
	buf = append(buf, byte(len(category)))
	buf = append(buf, category...)

	var ts8 [8]byte
	binary.LittleEndian.PutUint64(ts8[:], uint64(ts.UnixNano()))
	buf = append(buf, ts8[:]...)
	buf = append(buf, text...)
	return buf
}

func decodeRecord(buf []byte) (Record, error) {
	if len(buf) < 1+1 {
		return Record{}, errs.New(errs.KindTruncated, "messaging: record: missing header")
	}
	kind := control.Kind(buf[0])
	moduleLen := int(buf[1])
	pos := 2
	if pos+moduleLen > len(buf) {
		return Record{}, errs.New(errs.KindTruncated, "messaging: record: module name truncated")
	}
	module := string(buf[pos : pos+moduleLen])
	pos += moduleLen

	if pos+1 > len(buf) {
		return Record{}, errs.New(errs.KindTruncated, "messaging: record: missing category length")
	}
	categoryLen := int(buf[pos])
	pos++
	if pos+categoryLen > len(buf) {
		return Record{}, errs.New(errs.KindTruncated, "messaging: record: category name truncated")
	}
	category := string(buf[pos : pos+categoryLen])
	pos += categoryLen

	if pos+8 > len(buf) {
		return Record{}, errs.New(errs.KindTruncated, "messaging: record: timestamp truncated")
	}
	nanos := binary.LittleEndian.Uint64(buf[pos : pos+8])
	pos += 8

	text := string(buf[pos:])
	return Record{
		Kind:      kind,
		Module:    module,
		Category:  category,
		Timestamp: time.Unix(0, int64(nanos)),
		Text:      text,
	}, nil
}
