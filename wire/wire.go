// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wire implements the primitive codec: a small fixed vocabulary of
// booleans, fixed and variable-length integers, floats, length-prefixed
// strings, 16-byte GUIDs and raw byte blobs, read from and written to a
// byte stream with a sticky error (the first I/O error short-circuits every
// later call).
package wire

import (
	"io"
	"math"
)

// Reader decodes primitives from a byte stream.
type Reader interface {
	Bool() bool
	Int8() int8
	Uint8() uint8
	Int16() int16
	Uint16() uint16
	Int32() int32
	Uint32() uint32
	Int64() int64
	Uint64() uint64
	Float32() float32
	Float64() float64
	String() string
	GUID() GUID
	Blob() []byte
	Count() uint32
	Data(p []byte)
	Error() error
	SetError(error)
}

// Writer encodes primitives to a byte stream.
type Writer interface {
	Bool(bool)
	Int8(int8)
	Uint8(uint8)
	Int16(int16)
	Uint16(uint16)
	Int32(int32)
	Uint32(uint32)
	Int64(int64)
	Uint64(uint64)
	Float32(float32)
	Float64(float64)
	String(string)
	GUID(GUID)
	Blob([]byte)
	Data([]byte)
	Error() error
	SetError(error)
}

// GUID is a 16-byte opaque identifier, matching the wire size of a .NET
// System.Guid. It carries no interpretation beyond byte-for-byte identity.
type GUID [16]byte

type reader struct {
	r   io.Reader
	tmp [9]byte
	err error
}

type writer struct {
	w   io.Writer
	tmp [9]byte
	err error
}

// NewReader wraps r in a primitive Reader.
func NewReader(r io.Reader) Reader { return &reader{r: r} }

// NewWriter wraps w in a primitive Writer.
func NewWriter(w io.Writer) Writer { return &writer{w: w} }

func (r *reader) Data(p []byte) {
	if r.err != nil {
		return
	}
	_, r.err = io.ReadFull(r.r, p)
}

func (w *writer) Data(p []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(p)
	if err != nil {
		w.err = err
		return
	}
	if n != len(p) {
		w.err = io.ErrShortWrite
	}
}

func (r *reader) Error() error  { return r.err }
func (w *writer) Error() error  { return w.err }
func (r *reader) SetError(e error) {
	if r.err == nil {
		r.err = e
	}
}
func (w *writer) SetError(e error) {
	if w.err == nil {
		w.err = e
	}
}

func (r *reader) Uint8() uint8 {
	if r.err != nil {
		return 0
	}
	b := r.tmp[:1]
	_, r.err = io.ReadFull(r.r, b)
	return b[0]
}

func (w *writer) Uint8(v uint8) {
	w.tmp[0] = v
	w.Data(w.tmp[:1])
}

func (r *reader) Int8() int8  { return int8(r.Uint8()) }
func (w *writer) Int8(v int8) { w.Uint8(uint8(v)) }

func (r *reader) Bool() bool { return r.Uint8() != 0 }
func (w *writer) Bool(v bool) {
	if v {
		w.Uint8(1)
	} else {
		w.Uint8(0)
	}
}

// uintv/intv implement the 7-bit variable-length encoding: the leading byte
// carries a unary run-length prefix (1-bits) counting how many following
// bytes extend the value, mirroring framework/binary/vle's encoding
// exactly.
func (r *reader) uintv() uint64 {
	tag := r.Uint8()
	count := uint(0)
	for ; ((0x80 >> count) & tag) != 0; count++ {
	}
	v := uint64(tag & (byte(0xff) >> count))
	if count == 0 {
		return v
	}
	r.Data(r.tmp[:count])
	for i := uint(0); i < count; i++ {
		v = (v << 8) | uint64(r.tmp[i])
	}
	return v
}

func (w *writer) uintv(v uint64) {
	space := uint64(0x7f)
	tag := byte(0)
	for o := 8; ; o-- {
		if v <= space {
			w.tmp[o] = byte(v) | tag
			w.Data(w.tmp[o:])
			return
		}
		w.tmp[o] = byte(v)
		v >>= 8
		space >>= 1
		tag = (tag >> 1) | 0x80
	}
}

func (r *reader) intv() int64 {
	uv := r.uintv()
	v := int64(uv >> 1)
	if uv&1 != 0 {
		v = ^v
	}
	return v
}

func (w *writer) intv(v int64) {
	uv := uint64(v) << 1
	if v < 0 {
		uv = ^uv
	}
	w.uintv(uv)
}

func (r *reader) Int16() int16    { return int16(r.intv()) }
func (w *writer) Int16(v int16)   { w.intv(int64(v)) }
func (r *reader) Uint16() uint16  { return uint16(r.uintv()) }
func (w *writer) Uint16(v uint16) { w.uintv(uint64(v)) }
func (r *reader) Int32() int32    { return int32(r.intv()) }
func (w *writer) Int32(v int32)   { w.intv(int64(v)) }
func (r *reader) Uint32() uint32  { return uint32(r.uintv()) }
func (w *writer) Uint32(v uint32) { w.uintv(uint64(v)) }
func (r *reader) Int64() int64    { return r.intv() }
func (w *writer) Int64(v int64)   { w.intv(v) }
func (r *reader) Uint64() uint64  { return r.uintv() }
func (w *writer) Uint64(v uint64) { w.uintv(v) }

func shuffle32(v uint32) uint32 {
	return ((v & 0x000000ff) << 24) |
		((v & 0x0000ff00) << 8) |
		((v & 0x00ff0000) >> 8) |
		((v & 0xff000000) >> 24)
}

func shuffle64(v uint64) uint64 {
	return ((v & 0x00000000000000ff) << 56) |
		((v & 0x000000000000ff00) << 40) |
		((v & 0x0000000000ff0000) << 24) |
		((v & 0x00000000ff000000) << 8) |
		((v & 0x000000ff00000000) >> 8) |
		((v & 0x0000ff0000000000) >> 24) |
		((v & 0x00ff000000000000) >> 40) |
		((v & 0xff00000000000000) >> 56)
}

func (r *reader) Float32() float32 { return math.Float32frombits(shuffle32(r.Uint32())) }
func (w *writer) Float32(v float32) {
	w.Uint32(shuffle32(math.Float32bits(v)))
}

func (r *reader) Float64() float64 { return math.Float64frombits(shuffle64(r.Uint64())) }
func (w *writer) Float64(v float64) {
	w.Uint64(shuffle64(math.Float64bits(v)))
}

func (r *reader) Count() uint32 { return r.Uint32() }

func (r *reader) String() string {
	n := r.Uint32()
	if r.err != nil || n == 0 {
		return ""
	}
	b := make([]byte, n)
	r.Data(b)
	return string(b)
}

func (w *writer) String(v string) {
	w.Uint32(uint32(len(v)))
	if len(v) > 0 {
		w.Data([]byte(v))
	}
}

func (r *reader) Blob() []byte {
	n := r.Uint32()
	if r.err != nil || n == 0 {
		return nil
	}
	b := make([]byte, n)
	r.Data(b)
	return b
}

func (w *writer) Blob(v []byte) {
	w.Uint32(uint32(len(v)))
	if len(v) > 0 {
		w.Data(v)
	}
}

func (r *reader) GUID() (g GUID) {
	r.Data(g[:])
	return g
}

func (w *writer) GUID(g GUID) {
	w.Data(g[:])
}
