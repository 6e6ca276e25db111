package pod

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"

	"remotemem/dispatch"
	"remotemem/process"
	"remotemem/remote"
)

// SizeOf returns the encoded size of T. T must be fixed-size and non-empty:
// numbers, bools, arrays and structs of those.
func SizeOf[T any]() (process.ProcessMemorySize, error) {
	var zero T
	// binary.Size measures slices by length, so a nil slice would report 0
	n := binary.Size(zero)
	if n <= 0 {
		return 0, fmt.Errorf("pod: %T is not a fixed-size type", zero)
	}
	return process.ProcessMemorySize(n), nil
}

// Decode reads a little-endian T from the front of data.
func Decode[T any](data []byte) (T, error) {
	var v T
	size, err := SizeOf[T]()
	if err != nil {
		return v, err
	}
	if len(data) < int(size) {
		return v, fmt.Errorf("pod: need %d bytes for %T, have %d", size, v, len(data))
	}
	if err := binary.Read(bytes.NewReader(data[:size]), binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("pod: decode %T: %w", v, err)
	}
	return v, nil
}

// Encode returns the little-endian bytes of v.
func Encode[T any](v T) ([]byte, error) {
	if _, err := SizeOf[T](); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("pod: encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// ReadT reads one T from addr in the target.
func ReadT[T any](p *remote.Process, addr process.ProcessMemoryAddress) *dispatch.Future[T] {
	size, err := SizeOf[T]()
	if err != nil {
		return dispatch.Rejected[T](p.Client().Dispatcher(), err)
	}
	return dispatch.Map(p.ReadAt(addr, size), Decode[T])
}

// ReadSliceT reads count consecutive T values starting at addr with a
// single read.
func ReadSliceT[T any](p *remote.Process, addr process.ProcessMemoryAddress, count int) *dispatch.Future[[]T] {
	d := p.Client().Dispatcher()
	if count < 0 {
		return dispatch.Rejected[[]T](d, fmt.Errorf("pod: negative count %d", count))
	}
	size, err := SizeOf[T]()
	if err != nil {
		return dispatch.Rejected[[]T](d, err)
	}
	if count == 0 {
		return dispatch.Resolved(d, []T{})
	}
	return dispatch.Map(p.ReadAt(addr, size*process.ProcessMemorySize(count)), func(data []byte) ([]T, error) {
		out := make([]T, count)
		for i := range out {
			v, err := Decode[T](data[i*int(size):])
			if err != nil {
				return nil, fmt.Errorf("pod: element %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	})
}

// WriteT writes v to addr in the target and resolves true.
func WriteT[T any](p *remote.Process, addr process.ProcessMemoryAddress, v T) *dispatch.Future[bool] {
	data, err := Encode(v)
	if err != nil {
		return dispatch.Rejected[bool](p.Client().Dispatcher(), err)
	}
	return p.WriteAt(addr, data)
}

// ReadPointerList reads count 8-byte pointers at addr and keeps the ones
// valid reports true for. A nil valid keeps every non-zero pointer.
func ReadPointerList(p *remote.Process, addr process.ProcessMemoryAddress, count int, valid func(process.ProcessMemoryAddress) bool) *dispatch.Future[[]process.ProcessMemoryAddress] {
	return dispatch.Map(ReadSliceT[uint64](p, addr, count), func(raw []uint64) ([]process.ProcessMemoryAddress, error) {
		var out []process.ProcessMemoryAddress
		for _, r := range raw {
			ptr := process.ProcessMemoryAddress(r)
			if ptr == 0 || (valid != nil && !valid(ptr)) {
				continue
			}
			out = append(out, ptr)
		}
		return out, nil
	})
}

// Describe lists the fields of struct v with their byte offsets and values.
// Fields tagged `pod:"pointer"` are printed as addresses.
func Describe(v any) *Table {
	t := NewTable(
		ColumnSpec{Header: "Field"},
		ColumnSpec{Header: "Offset"},
		ColumnSpec{Header: "Value", MinWidth: 12},
	)

	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		t.AddRow("value", "+0x0", fmt.Sprint(v))
		return t
	}
	describeStruct(t, "", 0, rv)
	return t
}

func describeStruct(t *Table, prefix string, base int, rv reflect.Value) {
	offset := 0
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		fv := rv.Field(i)
		at := fmt.Sprintf("+0x%x", base+offset)
		size := binary.Size(reflect.New(f.Type).Elem().Interface())
		name := prefix + f.Name

		switch {
		case !f.IsExported():
		case fv.Kind() == reflect.Struct:
			describeStruct(t, name+".", base+offset, fv)
		case f.Tag.Get("pod") == "pointer" && fv.CanUint():
			t.AddRow(name, at, process.ProcessMemoryAddress(fv.Uint()).ToString())
		case fv.CanUint():
			t.AddRow(name, at, fmt.Sprintf("%d (0x%x)", fv.Uint(), fv.Uint()))
		case fv.CanInt():
			t.AddRow(name, at, fmt.Sprint(fv.Int()))
		default:
			t.AddRow(name, at, fmt.Sprint(fv.Interface()))
		}
		offset += size
	}
}
