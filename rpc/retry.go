package rpc

import (
	"time"

	"github.com/linchenxuan/uvbus/async"
	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/log"
)

// Retry calls method up to maxRetries+1 times, waiting
// initialDelayMS * multiplier^n between attempts via loop timers (the
// thread is never blocked). The returned promise fulfills with the first
// success or rejects with the last failure.
func Retry(c *Client, method string, params []byte, maxRetries int, initialDelayMS int, multiplier float64) *async.Promise {
	outer := async.NewPromise(c.Loop())
	if maxRetries < 0 || initialDelayMS < 0 || multiplier <= 0 {
		_ = outer.Reject(codes.ErrInvalidParam, "invalid retry parameters")
		return outer
	}

	delay := float64(initialDelayMS)
	attemptsLeft := maxRetries

	var attempt func()
	attempt = func() {
		p := c.Call(method, params)
		p.SetCallback(func(settled *async.Promise) {
			if settled.IsFulfilled() {
				_ = outer.Resolve(settled.Result())
				return
			}
			if attemptsLeft == 0 {
				_ = outer.Reject(settled.ErrCode(), settled.ErrMessage())
				return
			}
			attemptsLeft--
			log.Debug().Str("method", method).Int("left", attemptsLeft).
				Float64("delayMS", delay).Msg("retrying call")
			c.Loop().After(time.Duration(delay)*time.Millisecond, attempt)
			delay *= multiplier
		})
	}
	attempt()
	return outer
}
