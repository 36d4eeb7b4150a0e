package async

import (
	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/loop"
	"google.golang.org/protobuf/encoding/protowire"
)

// SettledResult is one per-input record of an AllSettled outcome.
type SettledResult struct {
	Fulfilled bool
	Result    []byte // fulfilled only
	Code      int32  // rejected only
	Message   string // rejected only
}

// All returns a promise that fulfills with the encoded ordered result list
// once every input fulfills, or rejects with the first rejection's code
// and message. Later rejections are ignored. An empty input list fulfills
// immediately with an empty list.
func All(lp *loop.Loop, promises []*Promise) *Promise {
	combined := NewPromise(lp)
	n := len(promises)
	if n == 0 {
		_ = combined.Resolve(encodeResultList(nil))
		return combined
	}

	results := make([][]byte, n)
	remaining := n
	for i, in := range promises {
		i := i
		in.addObserver(func(settled *Promise) {
			if !combined.IsPending() {
				return
			}
			if settled.IsRejected() {
				_ = combined.Reject(settled.ErrCode(), settled.ErrMessage())
				return
			}
			results[i] = settled.Result()
			remaining--
			if remaining == 0 {
				_ = combined.Resolve(encodeResultList(results))
			}
		})
	}
	return combined
}

// Race returns a promise that adopts the first input settlement, fulfilled
// or rejected. Later settlements are ignored. An empty input list yields a
// promise that never settles.
func Race(lp *loop.Loop, promises []*Promise) *Promise {
	combined := NewPromise(lp)
	for _, in := range promises {
		in.addObserver(func(settled *Promise) {
			if !combined.IsPending() {
				return
			}
			if settled.IsRejected() {
				_ = combined.Reject(settled.ErrCode(), settled.ErrMessage())
			} else {
				_ = combined.Resolve(settled.Result())
			}
		})
	}
	return combined
}

// AllSettled returns a promise that fulfills with the encoded per-input
// settlement records once every input has settled. It never rejects. An
// empty input list fulfills immediately with an empty record list.
func AllSettled(lp *loop.Loop, promises []*Promise) *Promise {
	combined := NewPromise(lp)
	n := len(promises)
	if n == 0 {
		_ = combined.Resolve(encodeSettledList(nil))
		return combined
	}

	records := make([]SettledResult, n)
	remaining := n
	for i, in := range promises {
		i := i
		in.addObserver(func(settled *Promise) {
			if !combined.IsPending() {
				return
			}
			if settled.IsRejected() {
				records[i] = SettledResult{Code: settled.ErrCode(), Message: settled.ErrMessage()}
			} else {
				records[i] = SettledResult{Fulfilled: true, Result: settled.Result()}
			}
			remaining--
			if remaining == 0 {
				_ = combined.Resolve(encodeSettledList(records))
			}
		})
	}
	return combined
}

// Combined buffers are protobuf wire data. Result lists: field 1 is the
// record count, field 2 repeats one bytes entry per input in order.
// Settled lists: field 2 repeats one nested record per input, where a
// record is field 1 status varint (1 fulfilled, 0 rejected), field 2
// result bytes, field 3 zigzag error code, field 4 message bytes.

func encodeResultList(results [][]byte) []byte {
	buf := protowire.AppendTag(nil, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(len(results)))
	for _, r := range results {
		buf = protowire.AppendTag(buf, 2, protowire.BytesType)
		buf = protowire.AppendBytes(buf, r)
	}
	return buf
}

// DecodeResultList unpacks a combined All result into its ordered
// per-input payloads.
func DecodeResultList(buf []byte) ([][]byte, error) {
	var out [][]byte
	var declared uint64
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, codes.New(codes.ErrInvalidParam, "malformed result list")
		}
		buf = buf[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(buf)
			if m < 0 {
				return nil, codes.New(codes.ErrInvalidParam, "malformed result count")
			}
			declared = v
			buf = buf[m:]
		case num == 2 && typ == protowire.BytesType:
			b, m := protowire.ConsumeBytes(buf)
			if m < 0 {
				return nil, codes.New(codes.ErrInvalidParam, "malformed result entry")
			}
			out = append(out, b)
			buf = buf[m:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, codes.New(codes.ErrInvalidParam, "malformed result list")
			}
			buf = buf[n:]
		}
	}
	if declared != uint64(len(out)) {
		return nil, codes.Errorf(codes.ErrInvalidParam, "result count %d does not match %d entries", declared, len(out))
	}
	return out, nil
}

func encodeSettledList(records []SettledResult) []byte {
	buf := protowire.AppendTag(nil, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(len(records)))
	for _, rec := range records {
		var body []byte
		status := uint64(0)
		if rec.Fulfilled {
			status = 1
		}
		body = protowire.AppendTag(body, 1, protowire.VarintType)
		body = protowire.AppendVarint(body, status)
		if rec.Fulfilled {
			body = protowire.AppendTag(body, 2, protowire.BytesType)
			body = protowire.AppendBytes(body, rec.Result)
		} else {
			body = protowire.AppendTag(body, 3, protowire.VarintType)
			body = protowire.AppendVarint(body, protowire.EncodeZigZag(int64(rec.Code)))
			body = protowire.AppendTag(body, 4, protowire.BytesType)
			body = protowire.AppendBytes(body, []byte(rec.Message))
		}
		buf = protowire.AppendTag(buf, 2, protowire.BytesType)
		buf = protowire.AppendBytes(buf, body)
	}
	return buf
}

// DecodeSettledList unpacks a combined AllSettled result into its ordered
// per-input records.
func DecodeSettledList(buf []byte) ([]SettledResult, error) {
	var out []SettledResult
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, codes.New(codes.ErrInvalidParam, "malformed settled list")
		}
		buf = buf[n:]
		switch {
		case num == 2 && typ == protowire.BytesType:
			body, m := protowire.ConsumeBytes(buf)
			if m < 0 {
				return nil, codes.New(codes.ErrInvalidParam, "malformed settled record")
			}
			buf = buf[m:]
			rec, err := decodeSettledRecord(body)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		default:
			n = protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, codes.New(codes.ErrInvalidParam, "malformed settled list")
			}
			buf = buf[n:]
		}
	}
	return out, nil
}

func decodeSettledRecord(body []byte) (SettledResult, error) {
	var rec SettledResult
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return rec, codes.New(codes.ErrInvalidParam, "malformed settled record")
		}
		body = body[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(body)
			if m < 0 {
				return rec, codes.New(codes.ErrInvalidParam, "malformed settled status")
			}
			rec.Fulfilled = v == 1
			body = body[m:]
		case num == 2 && typ == protowire.BytesType:
			b, m := protowire.ConsumeBytes(body)
			if m < 0 {
				return rec, codes.New(codes.ErrInvalidParam, "malformed settled result")
			}
			rec.Result = b
			body = body[m:]
		case num == 3 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(body)
			if m < 0 {
				return rec, codes.New(codes.ErrInvalidParam, "malformed settled code")
			}
			rec.Code = int32(protowire.DecodeZigZag(v))
			body = body[m:]
		case num == 4 && typ == protowire.BytesType:
			b, m := protowire.ConsumeBytes(body)
			if m < 0 {
				return rec, codes.New(codes.ErrInvalidParam, "malformed settled message")
			}
			rec.Message = string(b)
			body = body[m:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return rec, codes.New(codes.ErrInvalidParam, "malformed settled record")
			}
			body = body[n:]
		}
	}
	return rec, nil
}
