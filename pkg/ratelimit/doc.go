// Package ratelimit bounds the request rate sent to each remote host.
//
// Every outbound fetch acquires a slot from its host's limiter before the
// request is issued. Acquisition suspends the caller until a slot frees up;
// requests are never dropped. A cancelled context ends the wait with ctx.Err().
//
// Limiters are token buckets backed by golang.org/x/time/rate. The Registry
// creates one per host on first use, so all tasks talking to a host share it.
//
//	reg := ratelimit.NewRegistry(4, 4, map[string]float64{"coomer.su": 2}, log)
//
//	if err := reg.Wait(ctx, "coomer.su"); err != nil {
//	    return err // cancelled
//	}
//	// issue the request
package ratelimit
