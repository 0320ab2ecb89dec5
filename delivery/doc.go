// Package delivery ships one-time codes and account notices to phones.
//
// A [Pipeline] owns a bounded queue and a fixed pool of workers that make
// each [Message]'s first attempt through a [Sender]. Transient failures
// (network errors, timeouts, provider 5xx and 429) move the message to its
// own retry goroutine, bounded by MaxInBackoff, which backs off
// exponentially (base, 2*base, 4*base, ...) up to MaxRetries. Anything else
// fails at once. The outcome of every message is reported through Config.OnResult and
// the logger; Enqueue itself never waits for delivery.
//
// Providers form a closed set ([ProviderKind]) chosen once at startup:
// console for development, a generic JSON HTTP gateway, and Twilio.
package delivery
