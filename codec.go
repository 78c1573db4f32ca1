package proctrace

import (
	"google.golang.org/protobuf/encoding/protowire"
	"golang.org/x/xerrors"
)

// Field numbers of the event schema, see proctrace.proto. They are part of the
// wire format identified by FrameMagic and must never be renumbered.
const (
	timespecSec  protowire.Number = 1
	timespecNsec protowire.Number = 2

	stringlistS protowire.Number = 1

	procBeginPID     protowire.Number = 1
	procBeginPPID    protowire.Number = 2
	procBeginExe     protowire.Number = 3
	procBeginCwd     protowire.Number = 4
	procBeginCmdline protowire.Number = 5
	procBeginEnviron protowire.Number = 6

	procEndPID      protowire.Number = 1
	procEndCPUTime  protowire.Number = 2
	procEndUserTime protowire.Number = 3
	procEndSysTime  protowire.Number = 4
	procEndMaxRSSKB protowire.Number = 5
	procEndMinFlt   protowire.Number = 6
	procEndMajFlt   protowire.Number = 7
	procEndInBlock  protowire.Number = 8
	procEndOuBlock  protowire.Number = 9
	procEndNvcsw    protowire.Number = 10
	procEndNivcsw   protowire.Number = 11

	eventTimestamp protowire.Number = 1
	eventProcBegin protowire.Number = 2
	eventProcEnd   protowire.Number = 3
)

// span locates one string inside a stringList's data.
type span struct {
	off int
	n   int
}

// stringList is a list of strings stored as spans into one arena-owned buffer.
type stringList struct {
	data  []byte
	spans []span
}

// Len returns the number of strings in the list.
func (l stringList) Len() int {
	return len(l.spans)
}

// At returns the i-th string as a view into the list's buffer.
func (l stringList) At(i int) []byte {
	s := l.spans[i]
	return l.data[s.off : s.off+s.n]
}

// Strings copies the list into owned strings.
func (l stringList) Strings() []string {
	out := make([]string, l.Len())
	for i := range out {
		out[i] = string(l.At(i))
	}
	return out
}

// beginRecord is a ProcessBegin whose variable sized fields are views into
// arena-owned buffers. It is only valid until the arena is released.
type beginRecord struct {
	pid     uint32
	ppid    uint32
	exe     []byte
	cwd     []byte
	cmdline stringList
	environ stringList
}

type endRecord struct {
	pid     uint32
	cpuTime Timestamp
	usage   *ResourceUsage
}

// eventRecord is the event being built. Exactly one of begin and end is set.
type eventRecord struct {
	timestamp Timestamp
	begin     *beginRecord
	end       *endRecord
}

// encodeEvent serializes ev into a buffer owned by the caller. The arena is
// released before returning, whether encoding succeeded or not, so ev must not
// be used afterwards.
func encodeEvent(ev *eventRecord, a *arena) ([]byte, error) {
	defer func() {
		_ = a.Release()
	}()

	if ev.begin == nil && ev.end == nil {
		return nil, errNoPayload
	}
	if ev.begin != nil && ev.end != nil {
		return nil, errTwoPayloads
	}

	size := ev.size()
	out := ev.appendTo(make([]byte, 0, size))
	if len(out) != size {
		return nil, xerrors.Errorf("encode event (%d bytes, expected %d): %w", len(out), size, errSizeMismatch)
	}
	return out, nil
}

func sizeVarintField(num protowire.Number, v uint64) int {
	return protowire.SizeTag(num) + protowire.SizeVarint(v)
}

func sizeBytesField(num protowire.Number, n int) int {
	return protowire.SizeTag(num) + protowire.SizeBytes(n)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// appendMessageField appends a length delimited sub-message whose body is
// size bytes long and written by fn.
func appendMessageField(b []byte, num protowire.Number, size int, fn func([]byte) []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(size))
	return fn(b)
}

func (t Timestamp) size() int {
	return sizeVarintField(timespecSec, uint64(t.Sec)) +
		sizeVarintField(timespecNsec, uint64(t.Nsec))
}

func (t Timestamp) appendTo(b []byte) []byte {
	b = appendVarintField(b, timespecSec, uint64(t.Sec))
	return appendVarintField(b, timespecNsec, uint64(t.Nsec))
}

func (l stringList) size() int {
	n := 0
	for _, s := range l.spans {
		n += sizeBytesField(stringlistS, s.n)
	}
	return n
}

func (l stringList) appendTo(b []byte) []byte {
	for i := range l.spans {
		b = appendBytesField(b, stringlistS, l.At(i))
	}
	return b
}

func (r *beginRecord) size() int {
	return sizeVarintField(procBeginPID, uint64(r.pid)) +
		sizeVarintField(procBeginPPID, uint64(r.ppid)) +
		sizeBytesField(procBeginExe, len(r.exe)) +
		sizeBytesField(procBeginCwd, len(r.cwd)) +
		sizeBytesField(procBeginCmdline, r.cmdline.size()) +
		sizeBytesField(procBeginEnviron, r.environ.size())
}

func (r *beginRecord) appendTo(b []byte) []byte {
	b = appendVarintField(b, procBeginPID, uint64(r.pid))
	b = appendVarintField(b, procBeginPPID, uint64(r.ppid))
	b = appendBytesField(b, procBeginExe, r.exe)
	b = appendBytesField(b, procBeginCwd, r.cwd)
	b = appendMessageField(b, procBeginCmdline, r.cmdline.size(), r.cmdline.appendTo)
	return appendMessageField(b, procBeginEnviron, r.environ.size(), r.environ.appendTo)
}

// counterField is a varint field of the resource usage block.
type counterField struct {
	num protowire.Number
	v   uint64
}

func (u *ResourceUsage) counters() []counterField {
	return []counterField{
		{procEndMaxRSSKB, u.MaxRSSKB},
		{procEndMinFlt, u.MinorFaults},
		{procEndMajFlt, u.MajorFaults},
		{procEndInBlock, u.InBlock},
		{procEndOuBlock, u.OutBlock},
		{procEndNvcsw, u.VoluntaryCtxSwitches},
		{procEndNivcsw, u.InvoluntaryCtxSwitches},
	}
}

func (r *endRecord) size() int {
	n := sizeVarintField(procEndPID, uint64(r.pid)) +
		sizeBytesField(procEndCPUTime, r.cpuTime.size())
	if r.usage != nil {
		n += sizeBytesField(procEndUserTime, r.usage.UserTime.size())
		n += sizeBytesField(procEndSysTime, r.usage.SysTime.size())
		for _, c := range r.usage.counters() {
			n += sizeVarintField(c.num, c.v)
		}
	}
	return n
}

func (r *endRecord) appendTo(b []byte) []byte {
	b = appendVarintField(b, procEndPID, uint64(r.pid))
	b = appendMessageField(b, procEndCPUTime, r.cpuTime.size(), r.cpuTime.appendTo)
	if r.usage != nil {
		b = appendMessageField(b, procEndUserTime, r.usage.UserTime.size(), r.usage.UserTime.appendTo)
		b = appendMessageField(b, procEndSysTime, r.usage.SysTime.size(), r.usage.SysTime.appendTo)
		for _, c := range r.usage.counters() {
			b = appendVarintField(b, c.num, c.v)
		}
	}
	return b
}

func (ev *eventRecord) size() int {
	n := sizeBytesField(eventTimestamp, ev.timestamp.size())
	if ev.begin != nil {
		n += sizeBytesField(eventProcBegin, ev.begin.size())
	}
	if ev.end != nil {
		n += sizeBytesField(eventProcEnd, ev.end.size())
	}
	return n
}

func (ev *eventRecord) appendTo(b []byte) []byte {
	b = appendMessageField(b, eventTimestamp, ev.timestamp.size(), ev.timestamp.appendTo)
	if ev.begin != nil {
		b = appendMessageField(b, eventProcBegin, ev.begin.size(), ev.begin.appendTo)
	}
	if ev.end != nil {
		b = appendMessageField(b, eventProcEnd, ev.end.size(), ev.end.appendTo)
	}
	return b
}

// DecodeEvent parses an event payload as written by the capture functions.
// Unknown fields are skipped so newer writers stay readable.
func DecodeEvent(b []byte) (*Event, error) {
	var (
		ev           Event
		hasTimestamp bool
	)
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		var err error
		switch num {
		case eventTimestamp:
			hasTimestamp = true
			ev.Timestamp, err = decodeTimestamp(v)
		case eventProcBegin:
			if ev.ProcessBegin != nil || ev.ProcessEnd != nil {
				return errTwoPayloads
			}
			ev.ProcessBegin, err = decodeProcessBegin(v)
		case eventProcEnd:
			if ev.ProcessBegin != nil || ev.ProcessEnd != nil {
				return errTwoPayloads
			}
			ev.ProcessEnd, err = decodeProcessEnd(v)
		}
		return err
	})
	if err != nil {
		return nil, xerrors.Errorf("decode event: %w", err)
	}
	if !hasTimestamp {
		return nil, errNoTimestamp
	}
	if ev.ProcessBegin == nil && ev.ProcessEnd == nil {
		return nil, errNoPayload
	}
	return &ev, nil
}

// walkFields calls fn for each field in the message b. For varint fields v is
// nil and x holds the value; for length delimited fields v holds the bytes.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var err error
		switch typ {
		case protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			err = fn(num, typ, nil, x)
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			err = fn(num, typ, v, 0)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeTimestamp(b []byte) (Timestamp, error) {
	var t Timestamp
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, _ []byte, x uint64) error {
		if typ != protowire.VarintType {
			return nil
		}
		switch num {
		case timespecSec:
			t.Sec = int64(x)
		case timespecNsec:
			t.Nsec = uint32(x)
		}
		return nil
	})
	return t, err
}

func decodeStringList(b []byte) ([]string, error) {
	out := []string{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num == stringlistS && typ == protowire.BytesType {
			out = append(out, string(v))
		}
		return nil
	})
	return out, err
}

func decodeProcessBegin(b []byte) (*ProcessBegin, error) {
	var p ProcessBegin
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		var err error
		switch {
		case num == procBeginPID && typ == protowire.VarintType:
			p.PID = uint32(x)
		case num == procBeginPPID && typ == protowire.VarintType:
			p.HasPPID = true
			p.PPID = uint32(x)
		case num == procBeginExe && typ == protowire.BytesType:
			p.Exe = string(v)
		case num == procBeginCwd && typ == protowire.BytesType:
			p.Cwd = string(v)
		case num == procBeginCmdline && typ == protowire.BytesType:
			p.Cmdline, err = decodeStringList(v)
		case num == procBeginEnviron && typ == protowire.BytesType:
			p.Environ, err = decodeStringList(v)
		}
		return err
	})
	if err != nil {
		return nil, xerrors.Errorf("decode process begin: %w", err)
	}
	return &p, nil
}

func decodeProcessEnd(b []byte) (*ProcessEnd, error) {
	var (
		p ProcessEnd
		u ResourceUsage
		// usage is only reported if any of its fields were present.
		hasUsage bool
	)
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		if typ == protowire.BytesType {
			var err error
			switch num {
			case procEndCPUTime:
				p.CPUTime, err = decodeTimestamp(v)
			case procEndUserTime:
				hasUsage = true
				u.UserTime, err = decodeTimestamp(v)
			case procEndSysTime:
				hasUsage = true
				u.SysTime, err = decodeTimestamp(v)
			}
			return err
		}
		if typ != protowire.VarintType {
			return nil
		}

		switch num {
		case procEndPID:
			p.PID = uint32(x)
			return nil
		case procEndMaxRSSKB:
			u.MaxRSSKB = x
		case procEndMinFlt:
			u.MinorFaults = x
		case procEndMajFlt:
			u.MajorFaults = x
		case procEndInBlock:
			u.InBlock = x
		case procEndOuBlock:
			u.OutBlock = x
		case procEndNvcsw:
			u.VoluntaryCtxSwitches = x
		case procEndNivcsw:
			u.InvoluntaryCtxSwitches = x
		default:
			return nil
		}
		hasUsage = true
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("decode process end: %w", err)
	}
	if hasUsage {
		p.Usage = &u
	}
	return &p, nil
}
